// Package renderer hands missed-message digests off to the external email
// renderer service.
package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// Publisher is the subset of the Pub/Sub publisher API we use.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// PubSubRenderer implements dispatch.DigestRenderer by publishing each
// digest to the email renderer's topic. Subject/body construction happens
// on the consumer side.
type PubSubRenderer struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewPubSubRenderer(publisher Publisher, logger *slog.Logger) *PubSubRenderer {
	return &PubSubRenderer{
		publisher: publisher,
		logger:    logger.With("component", "DigestRenderer"),
	}
}

// Render publishes one digest and waits for the server ack, so a failed
// hand-off surfaces to the batcher instead of disappearing.
func (r *PubSubRenderer) Render(ctx context.Context, digest *dispatch.MissedMessageDigest) error {
	payload, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("marshal digest: %w", err)
	}

	result := r.publisher.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}

	r.logger.Debug("Digest handed off.",
		"user_id", digest.User.ID,
		"messages", len(digest.Messages),
	)
	return nil
}
