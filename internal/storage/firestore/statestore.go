package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StateStore implements dispatch.DeliveryStateStore: one document per
// (message, user) while a push is active, deleted when it is cleared.
// Delete-of-absent is a Firestore no-op, which gives Clear its idempotency
// for free.
type StateStore struct {
	client *firestore.Client
}

func NewStateStore(client *firestore.Client) *StateStore {
	return &StateStore{client: client}
}

type stateRecord struct {
	Active    bool      `firestore:"active"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// MarkActive records that at least one device accepted a push for the
// message. Called by the add-path after a successful send.
func (s *StateStore) MarkActive(ctx context.Context, realm int64, user int64, messageID int64) error {
	_, err := s.stateRef(realm, user, messageID).Set(ctx, stateRecord{
		Active:    true,
		UpdatedAt: time.Now(),
	})
	return err
}

// Clear drops the active flag. Safe to call any number of times.
func (s *StateStore) Clear(ctx context.Context, realm int64, user int64, messageID int64) error {
	_, err := s.stateRef(realm, user, messageID).Delete(ctx)
	return err
}

// Active reports whether a push is currently recorded as active.
func (s *StateStore) Active(ctx context.Context, realm int64, user int64, messageID int64) (bool, error) {
	doc, err := s.stateRef(realm, user, messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}

	var record stateRecord
	if err := doc.DataTo(&record); err != nil {
		return false, err
	}
	return record.Active, nil
}

// stateRef: realms/{realm}/users/{user}/pushstate/{messageID}
func (s *StateStore) stateRef(realm int64, user int64, messageID int64) *firestore.DocumentRef {
	return s.client.Collection("realms").
		Doc(fmt.Sprintf("%d", realm)).
		Collection("users").
		Doc(fmt.Sprintf("%d", user)).
		Collection("pushstate").
		Doc(fmt.Sprintf("%d", messageID))
}
