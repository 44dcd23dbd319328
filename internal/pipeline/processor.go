package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

// Dispatcher is the slice of the engine the processor drives; narrowed to
// an interface so the routing can be tested against a mock.
type Dispatcher interface {
	DispatchPush(ctx context.Context, userID int64, pending []trigger.Pending) error
	DispatchRemoval(ctx context.Context, userID int64, messageIDs []int64) error
	BatchMissedMessageEmails(ctx context.Context, userID int64, pending []trigger.Pending) error
}

// NewProcessor routes validated dispatch events to the engine.
//
// A returned error makes the StreamingService nack the message for
// redelivery; that is exactly the retry-later contract (bouncer
// unreachable, storage down). Everything the engine absorbs internally
// (per-message races, terminal delivery failures) comes back as nil and the
// message is acked.
func NewProcessor(
	eng Dispatcher,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[dispatch.DispatchEvent] {

	return func(ctx context.Context, original messagepipeline.Message, event *dispatch.DispatchEvent) error {
		procLogger := logger.With(
			"event_type", string(event.Type),
			"user_id", event.UserID,
			"pubsub_msg_id", original.ID,
		)

		var err error
		switch event.Type {
		case dispatch.EventSend:
			err = eng.DispatchPush(ctx, event.UserID, event.Pending)
		case dispatch.EventRemove:
			err = eng.DispatchRemoval(ctx, event.UserID, event.MessageIDs)
		case dispatch.EventDigest:
			err = eng.BatchMissedMessageEmails(ctx, event.UserID, event.Pending)
		default:
			// Validate() should have caught this; drop rather than loop.
			procLogger.Error("Unroutable event type; dropping.")
			return nil
		}

		if err != nil {
			if dispatch.IsRetryLater(err) {
				procLogger.Warn("Dispatch deferred; bouncer unreachable.", "err", err)
			} else {
				procLogger.Error("Dispatch failed.", "err", err)
			}
			return fmt.Errorf("dispatch %s for user %d: %w", event.Type, event.UserID, err)
		}
		return nil
	}
}
