/*
errors.go - Centralized error taxonomy for the booking engine

PURPOSE:
  All error types in one place. Business-rule violations are sentinel
  errors matched with errors.Is(); richer failures carry context via
  structured types matched with errors.As().

ERROR CATEGORIES:
  1. Reservation errors  - DuplicateBooking, InsufficientTokens, NotFutureDate
  2. Verification errors - NotBooked, AlreadyVerified
  3. Lookup errors       - StudentNotFound, BookingNotFound
  4. Store errors        - Conflict (retryable), Unavailable

PROPAGATION POLICY:
  Rule violations are detected locally and returned typed; they are never
  logged as errors. Only genuine infrastructure failures (store unreachable,
  lock timeout) are treated as unexpected.

SEE ALSO:
  - engine.go: Produces reservation and verification errors
  - store/:    Maps storage-layer violations onto these errors
*/
package mess

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateBooking is returned when a booking already exists for the
	// (student, date) pair. Never retried automatically.
	ErrDuplicateBooking = errors.New("booking already exists for this date")

	// ErrInsufficientTokens is returned when one or more requested slots
	// have no remaining tokens. Wrapped by InsufficientTokensError, which
	// carries the full list of offending slots.
	ErrInsufficientTokens = errors.New("insufficient tokens")

	// ErrNotBooked is returned when verification targets a slot the student
	// never reserved. The operation is a no-op.
	ErrNotBooked = errors.New("slot was not booked")

	// ErrAlreadyVerified is the idempotency guard: a second verification of
	// the same slot is rejected rather than silently applied twice.
	ErrAlreadyVerified = errors.New("slot already verified")

	// ErrNotFutureDate is returned when a reservation targets today or a
	// past date. The contract is a date strictly after today.
	ErrNotFutureDate = errors.New("date must be after today")

	// ErrNoSlots is returned when a reservation requests no slots.
	ErrNoSlots = errors.New("no meal slots requested")

	// ErrInvalidSlot is returned for a slot outside the closed enumeration.
	ErrInvalidSlot = errors.New("invalid meal slot")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrBookingNotFound is returned when a referenced booking doesn't exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrDuplicateRollNo is returned when creating a student with a roll
	// number that is already registered.
	ErrDuplicateRollNo = errors.New("roll number already registered")

	// ErrConflict is returned when the store rejects an operation due to a
	// concurrent writer or lock timeout. Safe to retry.
	ErrConflict = errors.New("storage conflict")

	// ErrStoreUnavailable is returned when the store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientTokensError reports every requested slot with a zero balance,
// not just the first, so the caller sees all problems in one round trip.
type InsufficientTokensError struct {
	StudentID string
	Slots     []MealSlot
}

func (e *InsufficientTokensError) Error() string {
	names := make([]string, len(e.Slots))
	for i, slot := range e.Slots {
		names[i] = string(slot)
	}
	return fmt.Sprintf("insufficient tokens for: %s", strings.Join(names, ", "))
}

func (e *InsufficientTokensError) Unwrap() error {
	return ErrInsufficientTokens
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. The caller,
// not the engine, decides whether to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is a business-rule violation
// caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrInsufficientTokens) ||
		errors.Is(err, ErrNotBooked) ||
		errors.Is(err, ErrAlreadyVerified) ||
		errors.Is(err, ErrNotFutureDate) ||
		errors.Is(err, ErrNoSlots) ||
		errors.Is(err, ErrInvalidSlot) ||
		errors.Is(err, ErrDuplicateRollNo)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrBookingNotFound)
}
