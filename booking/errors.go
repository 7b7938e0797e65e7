/*
errors.go - Error kinds for the booking engine

PURPOSE:
  Every rejection is one of a fixed set of kinds. Callers branch with
  errors.Is against the sentinels below; the *Error wrapper adds the
  human-readable reason and the request coordinates.

ERROR CATEGORIES:
  1. Validation - detected before any write, cheap to re-check
  2. Conflict   - a race lost against another transaction
  3. Ownership  - NotFound / Forbidden / PastBooking
  4. Store      - StoreUnavailable, propagated from the store

None of these are retried inside the engine.
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrDurationExceeded   = errors.New("duration exceeded")
	ErrOutOfBookingWindow = errors.New("out of booking window")
	ErrCooldownViolation  = errors.New("cooldown violation")
	ErrAlreadyBookedToday = errors.New("already booked today")
	ErrSlotConflict       = errors.New("slot conflict")
	ErrNotFound           = errors.New("reservation not found")
	ErrForbidden          = errors.New("forbidden")
	ErrPastBooking        = errors.New("past booking")
	ErrDayMismatch        = errors.New("day mismatch")
	ErrStoreUnavailable   = errors.New("store unavailable")

	// ErrMalformedRecord marks a stored record that fails validation on read.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrScanUnsupported is returned by a store that cannot serve a
	// cross-user scan of head records.
	ErrScanUnsupported = errors.New("scan not supported by store")
)

var kinds = []error{
	ErrInvalidInterval, ErrDurationExceeded, ErrOutOfBookingWindow,
	ErrCooldownViolation, ErrAlreadyBookedToday, ErrSlotConflict,
	ErrNotFound, ErrForbidden, ErrPastBooking, ErrDayMismatch,
	ErrStoreUnavailable,
}

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error carries the kind, a reason for the user, and where it happened.
type Error struct {
	Kind   error
	Reason string
	UserID UserID
	DayKey DayKey
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, user UserID, day DayKey, format string, args ...any) *Error {
	return &Error{Kind: kind, UserID: user, DayKey: day, Reason: fmt.Sprintf(format, args...)}
}

// storeError wraps a failure of the store itself. Domain errors raised
// inside a transaction pass through untouched.
func storeError(err error, user UserID, day DayKey) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	// Stores translate key collisions into these sentinels.
	for _, k := range []error{ErrSlotConflict, ErrAlreadyBookedToday} {
		if errors.Is(err, k) {
			return &Error{Kind: k, UserID: user, DayKey: day, Reason: "lost a race with another booking", Cause: err}
		}
	}
	return &Error{Kind: ErrStoreUnavailable, UserID: user, DayKey: day, Reason: "store transaction failed", Cause: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the sentinel kind of err, or nil if it has none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsClientError returns true if correcting the input can make the call succeed.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrDurationExceeded) ||
		errors.Is(err, ErrOutOfBookingWindow) ||
		errors.Is(err, ErrCooldownViolation) ||
		errors.Is(err, ErrDayMismatch) ||
		errors.Is(err, ErrPastBooking)
}

// IsConflict returns true if the call lost a race for a slot or a day.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrAlreadyBookedToday)
}

// IsRetryable returns true if the same call might succeed later unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
