package booking

import (
	"errors"
	"fmt"

	"sereno/models"
)

// Sentinel errors surfaced to callers. None of these are retryable: they
// indicate a caller bug or a legitimate business rejection.
var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrBookingTerminal    = errors.New("booking is already in a terminal state")
	ErrCancelWindowClosed = errors.New("booking is inside the minimum cancellation notice window")
	ErrCreditsExhausted   = errors.New("no bundle credits remaining")
	ErrConflictingBooking = errors.New("practitioner already has an overlapping booking")
	ErrBelowMinimumPayout = errors.New("ready earnings are below the minimum payout amount")
)

// InvalidTransitionError reports a status change not permitted by the
// transition table.
type InvalidTransitionError struct {
	From models.BookingStatus
	To   models.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// TransientError wraps a gateway or persistence failure that is safe to
// retry under the task backoff policy.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient tags err as retryable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
