package venue

import (
	"errors"
	"fmt"
)

// Error is a failure reported by the remote venue. Transient errors
// (network faults, throttling, 5xx) may succeed on a later cycle;
// non-transient ones are rejections of the request itself.
type Error struct {
	Op        string // venue operation, e.g. "create", "amend"
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "rejection"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("venue %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable venue failure.
func NewTransient(op string, err error) *Error {
	return &Error{Op: op, Transient: true, Err: err}
}

// NewRejection wraps err as a definitive refusal by the venue.
func NewRejection(op string, err error) *Error {
	return &Error{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is a venue error that may clear up on
// the next cycle.
func IsTransient(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Transient
	}
	return false
}
