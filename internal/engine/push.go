package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

// DispatchPush delivers one mobile push for a batch of pending notifications
// addressed to userID.
//
// Per-message races (message deleted, record already read, record missing
// for an idle recipient) are expected and absorbed silently; a missing
// record for a non-idle recipient is logged as an internal consistency
// error. The only error returned to the caller is a retry-later condition
// from the bouncer, which is raised before any local state mutation so the
// queue can redeliver safely.
func (e *Engine) DispatchPush(ctx context.Context, userID int64, pending []trigger.Pending) error {
	if len(pending) == 0 {
		return trigger.ErrEmptyBatch
	}

	profile, err := e.users.Profile(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch profile for user %d: %w", userID, err)
	}
	logger := e.logger.With("user_id", userID, "realm_id", profile.Realm.ID)

	// Fresh read on every dispatch; tokens rotate between enqueue and now.
	targets, err := e.registry.Targets(ctx, profile.Realm.ID, userID)
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}
	if len(targets) == 0 {
		logger.Debug("No devices registered; dropping push.")
		return nil
	}

	fetched := make(map[int64]*dispatch.Message, len(pending))

	// A long-term-idle recipient has no materialized records yet. Decide
	// reactivation first so the guards below read post-materialization
	// state, and so payload construction sees a consistent view.
	idle := profile.LongTermIdle
	if idle {
		reactivated, err := e.maybeReactivate(ctx, userID, pending, fetched)
		if err != nil {
			return err
		}
		if reactivated {
			logger.Info("Reactivated long-term-idle user before dispatch.")
			idle = false
		}
	}

	survivors, messages := e.applyGuards(ctx, logger, userID, idle, pending, fetched)
	if len(survivors) == 0 {
		return nil
	}

	headline, ordered, err := trigger.Resolve(survivors)
	if err != nil {
		return err
	}

	apple, android := splitTargets(targets)
	req := &dispatch.PushRequest{
		User:           profile.Identity,
		Realm:          profile.Realm,
		AppleDevices:   apple,
		AndroidDevices: android,
	}
	req.ApplePayload, req.AndroidPayload = e.buildPayloads(profile, headline, ordered, messages)

	receipt, err := e.backend.SendPush(ctx, req)
	if err != nil {
		if dispatch.IsRetryLater(err) {
			// No local mutation has happened yet; safe to re-enqueue.
			return err
		}
		logger.Error("Push delivery failed terminally.", "err", err)
		return nil
	}

	e.reconcile(ctx, logger, profile.Realm.ID, userID, receipt)

	if receipt.Delivered() > 0 {
		for _, p := range ordered {
			if err := e.state.MarkActive(ctx, profile.Realm.ID, userID, p.MessageID); err != nil {
				logger.Warn("Failed to mark push active.", "message_id", p.MessageID, "err", err)
			}
		}
	}

	logger.Info("Push dispatched.",
		"headline", headline.Trigger.String(),
		"messages", len(ordered),
		"delivered", receipt.Delivered(),
	)
	return nil
}

// maybeReactivate runs the reactivation policy over the batch and wakes the
// user on the first qualifying event. Messages fetched along the way are
// cached into fetched for the guard pass.
func (e *Engine) maybeReactivate(
	ctx context.Context,
	userID int64,
	pending []trigger.Pending,
	fetched map[int64]*dispatch.Message,
) (bool, error) {
	for _, p := range pending {
		msg, err := e.lookupMessage(ctx, p.MessageID, fetched)
		if err != nil {
			if errors.Is(err, dispatch.ErrMessageGone) {
				continue
			}
			return false, err
		}

		in := trigger.ReactivationInput{
			Trigger:            p.Trigger,
			MentionedGroupSize: p.MentionedGroupSize,
		}
		if p.Trigger == trigger.TopicWildcardMention || p.Trigger == trigger.TopicWildcardMentionInFollowedTopic {
			participant, err := e.users.TopicParticipant(ctx, userID, msg.StreamID, msg.Topic)
			if err != nil {
				return false, fmt.Errorf("check topic participation: %w", err)
			}
			in.TopicParticipant = participant
		}

		if trigger.ShouldReactivate(in, e.cfg.MaxMentionGroupSize) {
			if err := e.reactivator.Reactivate(ctx, userID); err != nil {
				return false, fmt.Errorf("reactivate user %d: %w", userID, err)
			}
			return true, nil
		}
	}
	return false, nil
}

// applyGuards drops events whose message is gone or already read. Guard
// failures are isolated per message; one bad event never blocks the rest of
// the batch.
func (e *Engine) applyGuards(
	ctx context.Context,
	logger *slog.Logger,
	userID int64,
	idle bool,
	pending []trigger.Pending,
	fetched map[int64]*dispatch.Message,
) ([]trigger.Pending, map[int64]*dispatch.Message) {
	survivors := make([]trigger.Pending, 0, len(pending))
	messages := make(map[int64]*dispatch.Message, len(pending))

	for _, p := range pending {
		msg, err := e.lookupMessage(ctx, p.MessageID, fetched)
		if err != nil {
			if errors.Is(err, dispatch.ErrMessageGone) {
				logger.Debug("Message deleted before dispatch; skipping.", "message_id", p.MessageID)
			} else {
				logger.Error("Message lookup failed.", "message_id", p.MessageID, "err", err)
			}
			continue
		}

		flags, err := e.messages.Flags(ctx, userID, p.MessageID)
		switch {
		case errors.Is(err, dispatch.ErrNoRecord):
			if idle {
				// Expected: records for idle users are materialized lazily.
				continue
			}
			logger.Error("Missing message record for non-idle user.", "message_id", p.MessageID)
			continue
		case err != nil:
			logger.Error("Flags lookup failed.", "message_id", p.MessageID, "err", err)
			continue
		case flags.Read:
			logger.Debug("Message already read; skipping.", "message_id", p.MessageID)
			continue
		}

		survivors = append(survivors, p)
		messages[p.MessageID] = msg
	}
	return survivors, messages
}

func (e *Engine) lookupMessage(ctx context.Context, id int64, fetched map[int64]*dispatch.Message) (*dispatch.Message, error) {
	if msg, ok := fetched[id]; ok {
		return msg, nil
	}
	msg, err := e.messages.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	fetched[id] = msg
	return msg, nil
}

// reconcile purges tokens the delivery layer reported dead and records the
// delivered-device count. Both are best-effort; failures are logged only.
func (e *Engine) reconcile(
	ctx context.Context,
	logger *slog.Logger,
	realmID int64,
	userID int64,
	receipt *dispatch.PushReceipt,
) {
	if len(receipt.InvalidTokens) > 0 {
		logger.Info("Cleaning up invalid device tokens.", "count", len(receipt.InvalidTokens))
		for _, it := range receipt.InvalidTokens {
			if err := e.registry.Unregister(ctx, realmID, userID, it.Platform, it.Token); err != nil {
				logger.Warn("Failed to delete device token.", "platform", string(it.Platform), "err", err)
			}
		}
	}

	if n := receipt.Delivered(); n > 0 {
		if err := e.counters.AddDelivered(ctx, realmID, time.Now().UTC(), n); err != nil {
			logger.Warn("Failed to record delivery counter.", "err", err)
		}
	}
}
