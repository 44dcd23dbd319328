package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the storage collaborators. The dispatcher
// treats both as expected races, not failures.
var (
	// ErrMessageGone means the message was deleted between enqueue and
	// dispatch.
	ErrMessageGone = errors.New("dispatch: message gone")
	// ErrNoRecord means the recipient has no per-message record. Benign for
	// a long-term-idle recipient, an internal consistency error otherwise.
	ErrNoRecord = errors.New("dispatch: no user message record")
)

// RetryLaterError signals that the bouncer could not be reached and the
// whole batch should be re-enqueued by the caller with backoff. It is raised
// before any local state mutation, so redelivery is safe.
type RetryLaterError struct {
	Err error
}

func (e *RetryLaterError) Error() string {
	return fmt.Sprintf("dispatch: retry later: %v", e.Err)
}

func (e *RetryLaterError) Unwrap() error { return e.Err }

// RetryLater wraps err as a retry-later condition.
func RetryLater(err error) error {
	return &RetryLaterError{Err: err}
}

// IsRetryLater reports whether err is (or wraps) a retry-later condition.
func IsRetryLater(err error) bool {
	var rl *RetryLaterError
	return errors.As(err, &rl)
}
