package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// ReadAdapter gives the engine read-only access to the external message and
// user collections. Message storage itself is owned by another service;
// this adapter only maps its documents onto the engine's view of them.
type ReadAdapter struct {
	client *firestore.Client
}

func NewReadAdapter(client *firestore.Client) *ReadAdapter {
	return &ReadAdapter{client: client}
}

type messageDoc struct {
	SenderID     int64     `firestore:"sender_id"`
	SenderName   string    `firestore:"sender_name"`
	Kind         string    `firestore:"kind"`
	StreamID     int64     `firestore:"stream_id"`
	StreamName   string    `firestore:"stream_name"`
	Topic        string    `firestore:"topic"`
	Content      string    `firestore:"content"`
	SentAt       time.Time `firestore:"sent_at"`
	RecipientIDs []int64   `firestore:"recipient_ids"`
}

type userDoc struct {
	UUID         string `firestore:"uuid"`
	RealmID      int64  `firestore:"realm_id"`
	RealmUUID    string `firestore:"realm_uuid"`
	LongTermIdle bool   `firestore:"long_term_idle"`
}

type flagsDoc struct {
	Read bool `firestore:"read"`
}

// Message returns the stored message, or dispatch.ErrMessageGone when it
// was deleted between enqueue and dispatch.
func (a *ReadAdapter) Message(ctx context.Context, messageID int64) (*dispatch.Message, error) {
	doc, err := a.client.Collection("messages").Doc(fmt.Sprintf("%d", messageID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrMessageGone
		}
		return nil, fmt.Errorf("fetch message %d: %w", messageID, err)
	}

	var record messageDoc
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("decode message %d: %w", messageID, err)
	}

	return &dispatch.Message{
		ID:           messageID,
		SenderID:     record.SenderID,
		SenderName:   record.SenderName,
		Kind:         dispatch.RecipientKind(record.Kind),
		StreamID:     record.StreamID,
		StreamName:   record.StreamName,
		Topic:        record.Topic,
		Content:      record.Content,
		SentAt:       record.SentAt,
		RecipientIDs: record.RecipientIDs,
	}, nil
}

// Flags returns the recipient's per-message record, or dispatch.ErrNoRecord
// when none was ever materialized for them.
func (a *ReadAdapter) Flags(ctx context.Context, user int64, messageID int64) (*dispatch.MessageFlags, error) {
	doc, err := a.userDoc(user).Collection("messages").Doc(fmt.Sprintf("%d", messageID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrNoRecord
		}
		return nil, fmt.Errorf("fetch flags for user %d message %d: %w", user, messageID, err)
	}

	var record flagsDoc
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}
	return &dispatch.MessageFlags{Read: record.Read}, nil
}

// VisibleMessages filters ids down to the messages that still exist and
// that the user holds a record for. A missing record means the message is
// not accessible to them (deleted, or outside their history visibility).
func (a *ReadAdapter) VisibleMessages(ctx context.Context, user int64, messageIDs []int64) ([]*dispatch.Message, error) {
	visible := make([]*dispatch.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg, err := a.Message(ctx, id)
		if err != nil {
			if errors.Is(err, dispatch.ErrMessageGone) {
				continue
			}
			return nil, err
		}
		if _, err := a.Flags(ctx, user, id); err != nil {
			if errors.Is(err, dispatch.ErrNoRecord) {
				continue
			}
			return nil, err
		}
		visible = append(visible, msg)
	}
	return visible, nil
}

// Profile returns the dispatch-relevant view of a user.
func (a *ReadAdapter) Profile(ctx context.Context, user int64) (*dispatch.UserProfile, error) {
	doc, err := a.userDoc(user).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch user %d: %w", user, err)
	}

	var record userDoc
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", user, err)
	}

	userUUID, err := uuid.Parse(record.UUID)
	if err != nil {
		return nil, fmt.Errorf("user %d has invalid uuid: %w", user, err)
	}
	realmUUID, err := uuid.Parse(record.RealmUUID)
	if err != nil {
		return nil, fmt.Errorf("user %d has invalid realm uuid: %w", user, err)
	}

	return &dispatch.UserProfile{
		Identity:     dispatch.UserIdentity{ID: user, UUID: userUUID},
		Realm:        dispatch.RealmIdentity{ID: record.RealmID, UUID: realmUUID},
		LongTermIdle: record.LongTermIdle,
	}, nil
}

// TopicParticipant reports whether the user has sent a message in the
// stream topic. Participation is recorded by the message-send path as a
// presence document.
func (a *ReadAdapter) TopicParticipant(ctx context.Context, user int64, streamID int64, topic string) (bool, error) {
	_, err := a.userDoc(user).Collection("topic_participation").Doc(topicID(streamID, topic)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("fetch topic participation: %w", err)
	}
	return true, nil
}

func (a *ReadAdapter) userDoc(user int64) *firestore.DocumentRef {
	return a.client.Collection("users").Doc(fmt.Sprintf("%d", user))
}

func topicID(streamID int64, topic string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", streamID, topic)))
	return hex.EncodeToString(sum[:])
}
