// Package dispatch contains the public contracts and domain models for the
// push dispatch engine.
package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

// Platform is the closed set of mobile push platforms the engine delivers to.
type Platform string

const (
	PlatformApple   Platform = "apple"
	PlatformAndroid Platform = "android"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformApple || p == PlatformAndroid
}

// DeliveryTarget is one registered device. Targets are looked up fresh on
// every dispatch; tokens can be added or rotated by the client between the
// time an event is queued and the time it is dispatched.
type DeliveryTarget struct {
	Token    string   `json:"token" firestore:"token"`
	Platform Platform `json:"platform" firestore:"platform"`
	AppID    string   `json:"app_id" firestore:"app_id"`
}

// UserIdentity is the stable identity of a recipient: the numeric id used by
// local storage plus the opaque token used when talking to the bouncer.
type UserIdentity struct {
	ID   int64     `json:"id"`
	UUID uuid.UUID `json:"uuid"`
}

// RealmIdentity identifies the organization a recipient belongs to.
type RealmIdentity struct {
	ID   int64     `json:"id"`
	UUID uuid.UUID `json:"uuid"`
}

// RecipientKind distinguishes the conversation types a message can land in.
type RecipientKind string

const (
	RecipientDirect RecipientKind = "direct"
	RecipientHuddle RecipientKind = "huddle"
	RecipientStream RecipientKind = "stream"
)

// Message is the read-only view of a stored message that payload
// construction needs. Content rendering stays with the storage collaborator.
type Message struct {
	ID           int64         `json:"id"`
	SenderID     int64         `json:"sender_id"`
	SenderName   string        `json:"sender_name"`
	Kind         RecipientKind `json:"kind"`
	StreamID     int64         `json:"stream_id,omitempty"`
	StreamName   string        `json:"stream_name,omitempty"`
	Topic        string        `json:"topic,omitempty"`
	Content      string        `json:"content"`
	SentAt       time.Time     `json:"sent_at"`
	RecipientIDs []int64       `json:"recipient_ids,omitempty"`
}

// MessageFlags is the recipient's per-message record held by the external
// message store. Read suppresses delivery; the record being absent entirely
// is meaningful to the missing-record guard.
type MessageFlags struct {
	Read bool `json:"read"`
}

// UserProfile carries the recipient facts dispatch decisions depend on.
type UserProfile struct {
	Identity     UserIdentity  `json:"identity"`
	Realm        RealmIdentity `json:"realm"`
	LongTermIdle bool          `json:"long_term_idle"`
}

// PushPayload is the structured, platform-neutral block handed to the
// delivery layer. Templating and localization live with the (external)
// renderer; this engine supplies the fields.
type PushPayload struct {
	Event      string            `json:"event"` // "message" or "remove"
	Badge      *int              `json:"badge,omitempty"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	MessageIDs []int64           `json:"message_ids"`
	Trigger    trigger.Trigger   `json:"trigger,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// PushRequest is one delivery attempt for one recipient: both platform
// payloads plus the freshly resolved device lists. A backend treats the
// request atomically: either every device is covered by the attempt or the
// attempt fails before any local state changed.
type PushRequest struct {
	User           UserIdentity
	Realm          RealmIdentity
	ApplePayload   PushPayload
	AndroidPayload PushPayload
	AppleDevices   []DeliveryTarget
	AndroidDevices []DeliveryTarget
}

// InvalidToken identifies a device token the delivery layer reported as
// permanently dead. The dispatcher purges it from the local registry.
type InvalidToken struct {
	Platform Platform `json:"platform"`
	Token    string   `json:"token"`
}

// PushReceipt summarizes one delivery attempt: how many devices accepted the
// payload per platform, and which tokens should be purged.
type PushReceipt struct {
	AppleDelivered   int            `json:"apple_delivered"`
	AndroidDelivered int            `json:"android_delivered"`
	InvalidTokens    []InvalidToken `json:"invalid_tokens,omitempty"`
}

// Delivered is the total number of devices that accepted the payload.
func (r PushReceipt) Delivered() int {
	return r.AppleDelivered + r.AndroidDelivered
}

// ConversationKey identifies a digest grouping: a direct thread, a huddle,
// or a stream+topic pair.
type ConversationKey struct {
	Kind     RecipientKind `json:"kind"`
	StreamID int64         `json:"stream_id,omitempty"`
	Topic    string        `json:"topic,omitempty"`
	// ThreadID is the canonical direct/huddle thread identifier, derived
	// from the sorted participant ids.
	ThreadID string `json:"thread_id,omitempty"`
}

// MissedMessageDigest is one per-conversation email handed to the external
// renderer. Messages are ordered ascending by id and already filtered for
// deletion and accessibility.
type MissedMessageDigest struct {
	User         UserIdentity      `json:"user"`
	Realm        RealmIdentity     `json:"realm"`
	Conversation ConversationKey   `json:"conversation"`
	Headline     trigger.Pending   `json:"headline"`
	Messages     []*Message        `json:"messages"`
	Pending      []trigger.Pending `json:"pending"`
}
