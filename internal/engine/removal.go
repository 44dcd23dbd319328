package engine

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// DispatchRemoval clears an already-delivered push for the given messages:
// best-effort "remove" delivery to the devices, then an unconditional,
// idempotent clear of the local per-message delivery state. A message that
// has been read must never be considered actively pushed again locally,
// even when no device was reachable.
//
// Running removal twice for the same message is safe; the second call finds
// the flag already cleared and only the (harmless) network call repeats.
func (e *Engine) DispatchRemoval(ctx context.Context, userID int64, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}

	profile, err := e.users.Profile(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch profile for user %d: %w", userID, err)
	}
	logger := e.logger.With("user_id", userID, "realm_id", profile.Realm.ID)

	targets, err := e.registry.Targets(ctx, profile.Realm.ID, userID)
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}

	if len(targets) > 0 {
		apple, android := splitTargets(targets)
		payload := e.buildRemovalPayload(profile, messageIDs)
		req := &dispatch.PushRequest{
			User:           profile.Identity,
			Realm:          profile.Realm,
			ApplePayload:   payload,
			AndroidPayload: payload,
			AppleDevices:   apple,
			AndroidDevices: android,
		}

		receipt, err := e.backend.RemovePush(ctx, req)
		if err != nil {
			if dispatch.IsRetryLater(err) {
				// State not cleared yet; redelivery will retry the whole call.
				return err
			}
			logger.Error("Push removal delivery failed terminally.", "err", err)
		} else {
			e.reconcile(ctx, logger, profile.Realm.ID, userID, receipt)
		}
	}

	// Authoritative for local state regardless of delivery outcome.
	var firstErr error
	for _, id := range messageIDs {
		if err := e.state.Clear(ctx, profile.Realm.ID, userID, id); err != nil {
			logger.Error("Failed to clear delivery state.", "message_id", id, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("clear delivery state for message %d: %w", id, err)
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}

	logger.Info("Push removal dispatched.", "messages", len(messageIDs), "devices", len(targets))
	return nil
}
