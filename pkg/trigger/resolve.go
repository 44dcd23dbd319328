package trigger

import (
	"errors"
	"sort"
)

// ErrEmptyBatch is returned when Resolve is called with no pending events.
var ErrEmptyBatch = errors.New("trigger: empty pending batch")

// Resolve picks the headline event for a batch of pending notifications
// addressed to one recipient, and returns the batch ordered chronologically
// (ascending message id) for use as context.
//
// The headline is the running best under Compare; the context ordering is
// independent of the headline computation. Direct messages and stream
// mentions arise in disjoint recipient contexts and never co-occur in one
// batch, so no tie-break between them is defined beyond the rank table.
func Resolve(pending []Pending) (Pending, []Pending, error) {
	if len(pending) == 0 {
		return Pending{}, nil, ErrEmptyBatch
	}

	headline := pending[0]
	for _, p := range pending[1:] {
		if Compare(p, headline) < 0 {
			headline = p
		}
	}

	ordered := make([]Pending, len(pending))
	copy(ordered, pending)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].MessageID < ordered[j].MessageID
	})

	return headline, ordered, nil
}
