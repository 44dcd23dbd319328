package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

// BatchMissedMessageEmails groups a user's pending missed messages by
// conversation and hands one structured digest per surviving group to the
// external renderer. Messages deleted or made inaccessible since enqueue
// are dropped silently; a group left empty produces no email.
//
// Render failures are absorbed per conversation. Returning an error here
// would nack the whole event and redeliver digests that already reached the
// renderer, so a failed hand-off costs one digest rather than duplicating
// the rest.
func (e *Engine) BatchMissedMessageEmails(ctx context.Context, userID int64, pending []trigger.Pending) error {
	if len(pending) == 0 {
		return nil
	}

	profile, err := e.users.Profile(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch profile for user %d: %w", userID, err)
	}
	logger := e.logger.With("user_id", userID, "realm_id", profile.Realm.ID)

	ids := make([]int64, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.MessageID)
	}

	// One accessibility-filtered read covers deletion and history
	// visibility at once; whatever is absent is silently out of context.
	visible, err := e.messages.VisibleMessages(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("filter visible messages: %w", err)
	}
	byID := make(map[int64]*dispatch.Message, len(visible))
	for _, m := range visible {
		byID[m.ID] = m
	}

	groups := make(map[dispatch.ConversationKey][]trigger.Pending)
	for _, p := range pending {
		msg, ok := byID[p.MessageID]
		if !ok {
			continue
		}
		key := conversationKey(msg)
		groups[key] = append(groups[key], p)
	}

	for key, groupPending := range groups {
		headline, ordered, err := trigger.Resolve(groupPending)
		if err != nil {
			continue
		}

		msgs := make([]*dispatch.Message, 0, len(ordered))
		for _, p := range ordered {
			msgs = append(msgs, byID[p.MessageID])
		}

		digest := &dispatch.MissedMessageDigest{
			User:         profile.Identity,
			Realm:        profile.Realm,
			Conversation: key,
			Headline:     headline,
			Messages:     msgs,
			Pending:      ordered,
		}

		// One email per conversation; a failed render must not block the
		// user's other conversations or nack ones already handed off.
		if err := e.renderer.Render(ctx, digest); err != nil {
			logger.Error("Digest render failed.", "conversation", key.ThreadID, "err", err)
		}
	}
	return nil
}

// conversationKey derives the grouping key: stream messages group by
// stream+topic, direct and huddle messages by the canonical participant
// thread.
func conversationKey(msg *dispatch.Message) dispatch.ConversationKey {
	if msg.Kind == dispatch.RecipientStream {
		return dispatch.ConversationKey{
			Kind:     dispatch.RecipientStream,
			StreamID: msg.StreamID,
			Topic:    msg.Topic,
		}
	}
	return dispatch.ConversationKey{
		Kind:     msg.Kind,
		ThreadID: threadID(msg.RecipientIDs),
	}
}

func threadID(participants []int64) string {
	sorted := make([]int64, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
