// Package engine implements the per-batch dispatch state machines: push
// sends, idempotent push removal, and missed-message email batching.
package engine

import (
	"log/slog"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// Config carries the engine's tunables.
type Config struct {
	// MaxMentionGroupSize is the largest mentioned-group size that still
	// reactivates a long-term-idle recipient.
	MaxMentionGroupSize int
}

// Engine orchestrates dispatch for one user batch at a time. It holds no
// mutable state across calls and is safe for concurrent use by the pipeline
// workers.
type Engine struct {
	cfg         Config
	backend     dispatch.DeliveryBackend
	registry    dispatch.DeviceRegistry
	state       dispatch.DeliveryStateStore
	messages    dispatch.MessageStore
	users       dispatch.UserStore
	reactivator dispatch.Reactivator
	counters    dispatch.CounterSink
	renderer    dispatch.DigestRenderer
	logger      *slog.Logger
}

// New assembles the engine from its collaborators.
func New(
	cfg Config,
	backend dispatch.DeliveryBackend,
	registry dispatch.DeviceRegistry,
	state dispatch.DeliveryStateStore,
	messages dispatch.MessageStore,
	users dispatch.UserStore,
	reactivator dispatch.Reactivator,
	counters dispatch.CounterSink,
	renderer dispatch.DigestRenderer,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		backend:     backend,
		registry:    registry,
		state:       state,
		messages:    messages,
		users:       users,
		reactivator: reactivator,
		counters:    counters,
		renderer:    renderer,
		logger:      logger.With("component", "DispatchEngine"),
	}
}

// splitTargets buckets a mixed device list by platform.
func splitTargets(targets []dispatch.DeliveryTarget) (apple, android []dispatch.DeliveryTarget) {
	for _, t := range targets {
		switch t.Platform {
		case dispatch.PlatformApple:
			apple = append(apple, t)
		case dispatch.PlatformAndroid:
			android = append(android, t)
		}
	}
	return apple, android
}
