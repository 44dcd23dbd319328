package engine

import (
	"strconv"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

// maxBodyRunes bounds the plain-text excerpt carried in a push payload.
// Full rendering and localization belong to the client.
const maxBodyRunes = 200

const (
	eventMessage = "message"
	eventRemove  = "remove"
)

// buildPayloads assembles the structured per-platform payloads for a send.
// The headline event names the batch; the ordered events supply the
// chronological id list the client uses to fetch context.
func (e *Engine) buildPayloads(
	profile *dispatch.UserProfile,
	headline trigger.Pending,
	ordered []trigger.Pending,
	messages map[int64]*dispatch.Message,
) (apple, android dispatch.PushPayload) {
	ids := make([]int64, 0, len(ordered))
	for _, p := range ordered {
		ids = append(ids, p.MessageID)
	}

	msg := messages[headline.MessageID]
	base := dispatch.PushPayload{
		Event:      eventMessage,
		Title:      payloadTitle(msg),
		Body:       truncate(msg.Content, maxBodyRunes),
		MessageIDs: ids,
		Trigger:    headline.Trigger,
		Data:       e.customData(profile, headline),
	}

	// The two platforms currently share the structured block; the backends
	// map it onto their native envelopes.
	return base, base
}

// buildRemovalPayload assembles the "clear" payload: no content, badge
// reset, the ids to drop.
func (e *Engine) buildRemovalPayload(profile *dispatch.UserProfile, messageIDs []int64) dispatch.PushPayload {
	badge := 0
	return dispatch.PushPayload{
		Event:      eventRemove,
		Badge:      &badge,
		MessageIDs: messageIDs,
		Data: map[string]string{
			"event":      eventRemove,
			"realm_id":   strconv.FormatInt(profile.Realm.ID, 10),
			"realm_uuid": profile.Realm.UUID.String(),
			"user_id":    strconv.FormatInt(profile.Identity.ID, 10),
			"user_uuid":  profile.Identity.UUID.String(),
		},
	}
}

func (e *Engine) customData(profile *dispatch.UserProfile, headline trigger.Pending) map[string]string {
	data := map[string]string{
		"event":      eventMessage,
		"trigger":    headline.Trigger.String(),
		"realm_id":   strconv.FormatInt(profile.Realm.ID, 10),
		"realm_uuid": profile.Realm.UUID.String(),
		"user_id":    strconv.FormatInt(profile.Identity.ID, 10),
		"user_uuid":  profile.Identity.UUID.String(),
	}
	if headline.MentionedGroupID != 0 {
		data["mentioned_user_group_id"] = strconv.FormatInt(headline.MentionedGroupID, 10)
	}
	return data
}

func payloadTitle(msg *dispatch.Message) string {
	if msg.Kind == dispatch.RecipientStream {
		return "#" + msg.StreamName + " > " + msg.Topic
	}
	return msg.SenderName
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
