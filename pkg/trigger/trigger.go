// Package trigger contains the notification trigger taxonomy and the pure
// logic that ranks triggers and decides long-term-idle reactivation.
package trigger

// Trigger identifies the reason a notification fired for a recipient.
// Exactly one trigger is attached to a given (message, recipient) event.
type Trigger string

const (
	DirectMessage                        Trigger = "direct_message"
	Mention                              Trigger = "mention"
	TopicWildcardMentionInFollowedTopic  Trigger = "topic_wildcard_mention_in_followed_topic"
	StreamWildcardMentionInFollowedTopic Trigger = "stream_wildcard_mention_in_followed_topic"
	TopicWildcardMention                 Trigger = "topic_wildcard_mention"
	StreamWildcardMention                Trigger = "stream_wildcard_mention"
	FollowedTopicEmail                   Trigger = "followed_topic_email"
	StreamEmail                          Trigger = "stream_email"
)

// rank assigns each trigger its place in the total priority order.
// Lower is more urgent. Group-size tie-breaking for Mention is layered on
// top of this table in Compare; every other pair is decided here.
var rank = map[Trigger]int{
	DirectMessage:                        0,
	Mention:                              1,
	TopicWildcardMentionInFollowedTopic:  2,
	StreamWildcardMentionInFollowedTopic: 3,
	TopicWildcardMention:                 4,
	StreamWildcardMention:                5,
	FollowedTopicEmail:                   6,
	StreamEmail:                          7,
}

// Valid reports whether t is a member of the taxonomy.
func (t Trigger) Valid() bool {
	_, ok := rank[t]
	return ok
}

// String returns the wire name of the trigger.
func (t Trigger) String() string { return string(t) }

// Pending is one queued notification event for a recipient: the message it
// concerns plus the trigger that fired it. MentionedGroupID/Size are set only
// for Mention events caused by a user-group mention; a personal @-mention
// leaves MentionedGroupID zero.
type Pending struct {
	MessageID          int64   `json:"message_id"`
	Trigger            Trigger `json:"trigger"`
	MentionedGroupID   int64   `json:"mentioned_user_group_id,omitempty"`
	MentionedGroupSize int     `json:"mentioned_user_group_size,omitempty"`
}

// groupMention reports whether p is a mention routed through a user group.
func (p Pending) groupMention() bool {
	return p.Trigger == Mention && p.MentionedGroupID != 0
}

// Compare orders two pending events by notification priority.
// It returns a negative value when a outranks b, positive when b outranks a.
// The order is total: among group mentions the smaller group wins, and a
// personal mention beats any group mention.
func Compare(a, b Pending) int {
	if a.Trigger != b.Trigger {
		return rank[a.Trigger] - rank[b.Trigger]
	}
	if a.Trigger != Mention {
		return 0
	}
	switch {
	case a.groupMention() && !b.groupMention():
		return 1
	case !a.groupMention() && b.groupMention():
		return -1
	case a.groupMention() && b.groupMention():
		return a.MentionedGroupSize - b.MentionedGroupSize
	}
	return 0
}
