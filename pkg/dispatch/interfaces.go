package dispatch

import (
	"context"
	"time"
)

// DeliveryBackend is the single seam between the dispatcher and the outside
// world: either direct platform calls or a relaying bouncer. The dispatcher
// itself is backend-agnostic; the implementation is selected once at
// startup from configuration.
type DeliveryBackend interface {
	// SendPush delivers a content push to every device in the request.
	// A *RetryLaterError means nothing was delivered and the batch should
	// be re-enqueued; any other error is terminal for this attempt.
	SendPush(ctx context.Context, req *PushRequest) (*PushReceipt, error)

	// RemovePush delivers a "clear" payload to every device in the request.
	RemovePush(ctx context.Context, req *PushRequest) (*PushReceipt, error)
}

// DeviceRegistry manages the local copy of registered devices. Targets must
// be read fresh on every call; registrations change concurrently.
type DeviceRegistry interface {
	// Targets returns every registered device for the user.
	Targets(ctx context.Context, realm int64, user int64) ([]DeliveryTarget, error)

	// Register adds or refreshes a device (upsert).
	Register(ctx context.Context, realm int64, user int64, target DeliveryTarget) error

	// Unregister removes a device token. Removing an unknown token is not
	// an error.
	Unregister(ctx context.Context, realm int64, user int64, platform Platform, token string) error
}

// DeliveryStateStore holds the per-(message, user) "push currently active"
// flag. Clear must be idempotent: the flag ends up false no matter how many
// times removal runs.
type DeliveryStateStore interface {
	// MarkActive records that at least one device accepted a push for the
	// message.
	MarkActive(ctx context.Context, realm int64, user int64, messageID int64) error
	Clear(ctx context.Context, realm int64, user int64, messageID int64) error
	Active(ctx context.Context, realm int64, user int64, messageID int64) (bool, error)
}

// MessageStore is the external message storage collaborator, read-only.
type MessageStore interface {
	// Message returns the stored message or ErrMessageGone.
	Message(ctx context.Context, messageID int64) (*Message, error)

	// Flags returns the recipient's per-message record or ErrNoRecord.
	Flags(ctx context.Context, user int64, messageID int64) (*MessageFlags, error)

	// VisibleMessages filters ids down to those that still exist and are
	// accessible to the user, preserving order.
	VisibleMessages(ctx context.Context, user int64, messageIDs []int64) ([]*Message, error)
}

// UserStore is the external user/profile collaborator, read-only.
type UserStore interface {
	Profile(ctx context.Context, user int64) (*UserProfile, error)

	// TopicParticipant reports whether the user has sent a message in the
	// given stream topic.
	TopicParticipant(ctx context.Context, user int64, streamID int64, topic string) (bool, error)
}

// Reactivator is the external user-activity subsystem. Reactivate
// materializes a long-term-idle user's deferred records synchronously;
// dispatch continues only after it returns.
type Reactivator interface {
	Reactivate(ctx context.Context, user int64) error
}

// CounterSink records delivered-device counts for the external analytics
// collaborator. One increment per device that actually accepted a payload.
type CounterSink interface {
	AddDelivered(ctx context.Context, realm int64, day time.Time, devices int) error
}

// DigestRenderer receives one structured digest per conversation group and
// owns subject/body construction, redaction, and localization.
type DigestRenderer interface {
	Render(ctx context.Context, digest *MissedMessageDigest) error
}
