// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client  APNSClient
	topic   string // The App Bundle ID (e.g. com.tinywide.messenger)
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	// PushesPerSecond paces the serial push loop; zero means unlimited.
	PushesPerSecond float64
}

// NewDispatcher creates a configured APNs dispatcher.
// It parses the P8 key immediately to fail fast on startup if credentials
// are bad.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	limit := rate.Inf
	if cfg.PushesPerSecond > 0 {
		limit = rate.Limit(cfg.PushesPerSecond)
	}

	return &Dispatcher{
		client:  apns2.NewTokenClient(tokenSource).Production(),
		topic:   cfg.BundleID,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "APNSDispatcher"),
	}, nil
}

// newTestDispatcher wires a mock client; used by tests only.
func newTestDispatcher(client APNSClient, bundleID string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:  client,
		topic:   bundleID,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger.With("component", "APNSDispatcher"),
	}
}

// Dispatch sends the payload to a batch of APNs tokens and reports how many
// devices accepted it plus the tokens Apple declared dead.
//
// APNs' HTTP/2 API is unary (one request per token), so we iterate
// sequentially under the rate limiter. This runs inside a scaled pipeline
// worker, so serial processing per user is acceptable.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, p dispatch.PushPayload) (int, []string, error) {
	if len(tokens) == 0 {
		return 0, nil, nil
	}

	builder := buildAPNSPayload(p)

	var invalidTokens []string
	successCount := 0
	failureCount := 0

	for _, deviceToken := range tokens {
		if err := d.limiter.Wait(ctx); err != nil {
			return successCount, invalidTokens, fmt.Errorf("apns rate wait: %w", err)
		}

		n := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     builder,
		}
		if p.Event == "remove" {
			n.PushType = apns2.PushTypeBackground
			n.Priority = apns2.PriorityLow
		}

		res, err := d.client.PushWithContext(ctx, n)
		if err != nil {
			// Network/Transport failure for this device only.
			d.logger.Error("APNs transport failed", "err", err)
			failureCount++
			continue
		}

		if res.Sent() {
			successCount++
			continue
		}

		failureCount++
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			// Token is dead. Add to cleanup list.
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// Other rejections (TopicDisallowed, PayloadEmpty) usually mean
			// our configuration is wrong, not that the token is.
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	return successCount, invalidTokens, nil
}

// buildAPNSPayload maps the structured block onto the APNs JSON envelope.
// Removal payloads are content-available background pushes with a badge
// reset; the client drops the listed notifications on receipt.
func buildAPNSPayload(p dispatch.PushPayload) *payload.Payload {
	builder := payload.NewPayload()

	if p.Event == "remove" {
		builder.ContentAvailable()
	} else {
		builder.AlertTitle(p.Title).AlertBody(p.Body).Sound("default")
	}
	if p.Badge != nil {
		builder.Badge(*p.Badge)
	}

	builder.Custom("event", p.Event)
	ids := make([]any, len(p.MessageIDs))
	for i, id := range p.MessageIDs {
		ids[i] = id
	}
	builder.Custom("message_ids", ids)
	for k, v := range p.Data {
		builder.Custom(k, v)
	}
	return builder
}
