// Package pushdispatchservice assembles the dispatch engine, the queue
// pipeline, and the device registration API into one runnable service.
package pushdispatchservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch-service/internal/api"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/engine"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch-service/pushdispatchservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.DispatchEvent]
	logger          *slog.Logger
}

// New assembles the service around an already-selected DeliveryBackend.
// Backend selection (direct vs bouncer) happens once in the caller; the
// engine and everything below it is backend-agnostic.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	backend dispatch.DeliveryBackend,
	registry dispatch.DeviceRegistry,
	state dispatch.DeliveryStateStore,
	messages dispatch.MessageStore,
	users dispatch.UserStore,
	reactivator dispatch.Reactivator,
	counters dispatch.CounterSink,
	renderer dispatch.DigestRenderer,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Engine + Processor
	eng := engine.New(
		engine.Config{MaxMentionGroupSize: cfg.Engine.MaxMentionGroupSize},
		backend, registry, state, messages, users, reactivator, counters, renderer,
		logger,
	)
	processor := pipeline.NewProcessor(eng, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.DispatchEventTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API (Device Registration)
	deviceAPI := api.NewDeviceAPI(registry, users, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/devices/register", deviceAPI.Register)
	handle("POST /api/v1/devices/unregister", deviceAPI.Unregister)

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Just returns 200 OK with CORS headers handled by middleware
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
