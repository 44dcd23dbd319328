package trigger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/trigger"
)

func TestResolve_Headline(t *testing.T) {
	t.Run("Personal mention beats every lower trigger", func(t *testing.T) {
		pending := []trigger.Pending{
			{MessageID: 10, Trigger: trigger.StreamEmail},
			{MessageID: 11, Trigger: trigger.StreamWildcardMention},
			{MessageID: 12, Trigger: trigger.Mention},
			{MessageID: 13, Trigger: trigger.TopicWildcardMentionInFollowedTopic},
			{MessageID: 14, Trigger: trigger.Mention, MentionedGroupID: 7, MentionedGroupSize: 3},
		}

		headline, _, err := trigger.Resolve(pending)
		require.NoError(t, err)
		assert.Equal(t, int64(12), headline.MessageID)
		assert.Equal(t, trigger.Mention, headline.Trigger)
		assert.Zero(t, headline.MentionedGroupID)
	})

	t.Run("Smaller group mention wins", func(t *testing.T) {
		pending := []trigger.Pending{
			{MessageID: 1, Trigger: trigger.Mention, MentionedGroupID: 30, MentionedGroupSize: 9},
			{MessageID: 2, Trigger: trigger.Mention, MentionedGroupID: 31, MentionedGroupSize: 4},
			{MessageID: 3, Trigger: trigger.Mention, MentionedGroupID: 32, MentionedGroupSize: 15},
		}

		headline, _, err := trigger.Resolve(pending)
		require.NoError(t, err)
		assert.Equal(t, int64(31), headline.MentionedGroupID)
	})

	t.Run("Two group mentions with context ordering", func(t *testing.T) {
		// Batch {m1: mention(group A, size 2), m2: mention(group B, size 5)}.
		pending := []trigger.Pending{
			{MessageID: 2, Trigger: trigger.Mention, MentionedGroupID: 200, MentionedGroupSize: 5},
			{MessageID: 1, Trigger: trigger.Mention, MentionedGroupID: 100, MentionedGroupSize: 2},
		}

		headline, ordered, err := trigger.Resolve(pending)
		require.NoError(t, err)
		assert.Equal(t, int64(100), headline.MentionedGroupID)

		require.Len(t, ordered, 2)
		assert.Equal(t, int64(1), ordered[0].MessageID)
		assert.Equal(t, int64(2), ordered[1].MessageID)
	})

	t.Run("Email-only batch picks the higher of the two", func(t *testing.T) {
		pending := []trigger.Pending{
			{MessageID: 5, Trigger: trigger.StreamEmail},
			{MessageID: 6, Trigger: trigger.FollowedTopicEmail},
		}

		headline, _, err := trigger.Resolve(pending)
		require.NoError(t, err)
		assert.Equal(t, trigger.FollowedTopicEmail, headline.Trigger)
	})

	t.Run("Wildcard ladder", func(t *testing.T) {
		pending := []trigger.Pending{
			{MessageID: 1, Trigger: trigger.StreamWildcardMention},
			{MessageID: 2, Trigger: trigger.TopicWildcardMention},
			{MessageID: 3, Trigger: trigger.StreamWildcardMentionInFollowedTopic},
			{MessageID: 4, Trigger: trigger.TopicWildcardMentionInFollowedTopic},
		}

		headline, _, err := trigger.Resolve(pending)
		require.NoError(t, err)
		assert.Equal(t, trigger.TopicWildcardMentionInFollowedTopic, headline.Trigger)
	})

	t.Run("Single element resolves to itself", func(t *testing.T) {
		pending := []trigger.Pending{{MessageID: 42, Trigger: trigger.StreamEmail}}

		headline, ordered, err := trigger.Resolve(pending)
		require.NoError(t, err)
		assert.Equal(t, pending[0], headline)
		assert.Equal(t, pending, ordered)
	})

	t.Run("Empty batch is rejected", func(t *testing.T) {
		_, _, err := trigger.Resolve(nil)
		require.ErrorIs(t, err, trigger.ErrEmptyBatch)
	})
}

func TestResolve_OrderingIsChronological(t *testing.T) {
	// The headline is the mention, but context stays in ascending id order
	// regardless of where the headline sits.
	pending := []trigger.Pending{
		{MessageID: 9, Trigger: trigger.StreamEmail},
		{MessageID: 3, Trigger: trigger.Mention},
		{MessageID: 6, Trigger: trigger.StreamWildcardMention},
	}

	headline, ordered, err := trigger.Resolve(pending)
	require.NoError(t, err)
	assert.Equal(t, int64(3), headline.MessageID)

	ids := make([]int64, len(ordered))
	for i, p := range ordered {
		ids[i] = p.MessageID
	}
	assert.Equal(t, []int64{3, 6, 9}, ids)
}

func TestCompare_TotalOrder(t *testing.T) {
	ladder := []trigger.Trigger{
		trigger.DirectMessage,
		trigger.Mention,
		trigger.TopicWildcardMentionInFollowedTopic,
		trigger.StreamWildcardMentionInFollowedTopic,
		trigger.TopicWildcardMention,
		trigger.StreamWildcardMention,
		trigger.FollowedTopicEmail,
		trigger.StreamEmail,
	}

	for i := 0; i < len(ladder); i++ {
		for j := i + 1; j < len(ladder); j++ {
			a := trigger.Pending{Trigger: ladder[i]}
			b := trigger.Pending{Trigger: ladder[j]}
			assert.Negative(t, trigger.Compare(a, b), "%s should outrank %s", ladder[i], ladder[j])
			assert.Positive(t, trigger.Compare(b, a), "%s should be outranked by %s", ladder[j], ladder[i])
		}
	}
}

func TestCompare_DirectMessageAndMentionAreDisjoint(t *testing.T) {
	// Direct messages and stream mentions never co-occur in one batch
	// (disjoint recipient contexts). The rank table still resolves a
	// malformed mixed batch deterministically rather than guessing
	// semantics for it.
	dm := trigger.Pending{Trigger: trigger.DirectMessage}
	mention := trigger.Pending{Trigger: trigger.Mention}
	assert.Negative(t, trigger.Compare(dm, mention))
}
