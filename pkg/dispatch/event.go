package dispatch

import (
	"fmt"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

// EventType names the three operations the queue can ask for.
type EventType string

const (
	EventSend   EventType = "send"
	EventRemove EventType = "remove"
	EventDigest EventType = "digest"
)

// DispatchEvent is the queue envelope produced by the upstream event
// pipeline: one batch of work for one user.
type DispatchEvent struct {
	Type   EventType `json:"type"`
	UserID int64     `json:"user_id"`
	// Pending carries the (message, trigger) pairs for send and digest
	// events.
	Pending []trigger.Pending `json:"pending,omitempty"`
	// MessageIDs carries the pushes to clear for remove events.
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// Validate checks the envelope is well-formed for its type. Malformed
// events are skipped by the pipeline rather than retried.
func (e *DispatchEvent) Validate() error {
	if e.UserID <= 0 {
		return fmt.Errorf("dispatch event missing user_id")
	}

	switch e.Type {
	case EventSend, EventDigest:
		if len(e.Pending) == 0 {
			return fmt.Errorf("%s event has no pending notifications", e.Type)
		}
		for _, p := range e.Pending {
			if p.MessageID <= 0 {
				return fmt.Errorf("%s event has pending entry without message id", e.Type)
			}
			if !p.Trigger.Valid() {
				return fmt.Errorf("unknown trigger %q", p.Trigger)
			}
		}
	case EventRemove:
		if len(e.MessageIDs) == 0 {
			return fmt.Errorf("remove event has no message ids")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
