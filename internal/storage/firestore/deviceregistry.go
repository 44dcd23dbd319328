// Package firestore holds the Firestore-backed stores: the device registry,
// the per-message delivery state, and the read adapters over the external
// message/user collections.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// DeviceRegistry implements dispatch.DeviceRegistry on Firestore.
type DeviceRegistry struct {
	client *firestore.Client
}

func NewDeviceRegistry(client *firestore.Client) *DeviceRegistry {
	return &DeviceRegistry{client: client}
}

// deviceRecord is the internal DB representation of one registration.
type deviceRecord struct {
	Token     string    `firestore:"token"`
	Platform  string    `firestore:"platform"`
	AppID     string    `firestore:"app_id"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// Register upserts a device. The doc id is a hash of platform+token, which
// deduplicates re-registrations and avoids hot-spotting on raw tokens.
func (r *DeviceRegistry) Register(ctx context.Context, realm int64, user int64, target dispatch.DeliveryTarget) error {
	record := deviceRecord{
		Token:     target.Token,
		Platform:  string(target.Platform),
		AppID:     target.AppID,
		UpdatedAt: time.Now(),
	}
	_, err := r.deviceRef(realm, user, deviceID(target.Platform, target.Token)).Set(ctx, record)
	return err
}

// Unregister deletes a device. Deleting an unknown token is a no-op in
// Firestore, which matches the idempotency the registry promises.
func (r *DeviceRegistry) Unregister(ctx context.Context, realm int64, user int64, platform dispatch.Platform, token string) error {
	_, err := r.deviceRef(realm, user, deviceID(platform, token)).Delete(ctx)
	return err
}

// Targets reads every registered device for the user. Always a fresh query;
// registrations change concurrently with dispatch.
func (r *DeviceRegistry) Targets(ctx context.Context, realm int64, user int64) ([]dispatch.DeliveryTarget, error) {
	iter := r.devicesCollection(realm, user).Documents(ctx)
	defer iter.Stop()

	var targets []dispatch.DeliveryTarget
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt rows are skipped, not fatal.
			continue
		}

		platform := dispatch.Platform(record.Platform)
		if !platform.Valid() || record.Token == "" {
			continue
		}
		targets = append(targets, dispatch.DeliveryTarget{
			Token:    record.Token,
			Platform: platform,
			AppID:    record.AppID,
		})
	}
	return targets, nil
}

// deviceRef: realms/{realm}/users/{user}/devices/{deviceHash}
func (r *DeviceRegistry) deviceRef(realm int64, user int64, docID string) *firestore.DocumentRef {
	return r.devicesCollection(realm, user).Doc(docID)
}

func (r *DeviceRegistry) devicesCollection(realm int64, user int64) *firestore.CollectionRef {
	return r.client.Collection("realms").
		Doc(fmt.Sprintf("%d", realm)).
		Collection("users").
		Doc(fmt.Sprintf("%d", user)).
		Collection("devices")
}

func deviceID(platform dispatch.Platform, token string) string {
	sum := sha256.Sum256([]byte(string(platform) + ":" + token))
	return hex.EncodeToString(sum[:])
}
