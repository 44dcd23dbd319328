package trigger

// ReactivationInput carries the per-event facts the reactivation policy
// looks at. TopicParticipant means the recipient has themselves sent a
// message in the topic the event belongs to.
type ReactivationInput struct {
	Trigger            Trigger
	MentionedGroupSize int
	TopicParticipant   bool
}

// ShouldReactivate decides whether an event is significant enough to wake a
// long-term-idle recipient and force their deferred message records to be
// materialized before dispatch continues. Callers only consult it when the
// recipient is actually in long-term-idle mode.
//
// maxGroupSize is the largest mentioned-group size that still counts as
// targeted enough to reactivate; stream-wide wildcards and plain
// stream/followed-topic email triggers never do.
func ShouldReactivate(in ReactivationInput, maxGroupSize int) bool {
	switch in.Trigger {
	case DirectMessage:
		return true
	case Mention:
		if in.MentionedGroupSize == 0 {
			// Personal @-mention.
			return true
		}
		return in.MentionedGroupSize <= maxGroupSize
	case TopicWildcardMention, TopicWildcardMentionInFollowedTopic:
		return in.TopicParticipant
	case StreamWildcardMention, StreamWildcardMentionInFollowedTopic:
		return false
	case FollowedTopicEmail, StreamEmail:
		return false
	}
	return false
}
