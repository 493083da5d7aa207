/*
store.go - Persistence interface for students, ledgers, and bookings

PURPOSE:
  Defines the interface between the booking engine and the database.
  All coordination between concurrent requests happens through the
  store's atomicity guarantees, never through in-process state.

KEY INTERFACES:
  Store:   Record-level operations, each individually atomic
  TxStore: Store plus WithTx for multi-step atomic units

ATOMICITY CONTRACT:
  - DebitLedger is a conditional decrement: it only succeeds when every
    requested slot holds at least one token, and it never leaves a
    partially-decremented ledger.
  - InsertBooking enforces UNIQUE(student, date) at the storage layer.
    This is the backstop: even if an existence pre-check races, the
    second of two concurrent same-day inserts is rejected here.
  - SetVerified is a conditional update (verified=true only if currently
    false), so two concurrent verifications cannot both succeed.
  - ResetLedger is one atomic write per student, serialized against
    concurrent debits by the storage engine.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - mess/store/memory.go:   In-memory for testing

SEE ALSO:
  - engine.go: Composes these operations inside WithTx
*/
package mess

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Record-level persistence
// =============================================================================

// Store handles persistence of students and bookings. Every method is an
// atomic round trip; multi-step units go through TxStore.WithTx.
type Store interface {
	// SaveStudent inserts a student. Fails with ErrDuplicateRollNo if the
	// roll number is taken.
	SaveStudent(ctx context.Context, s Student) error

	// GetStudent returns a student by ID, or ErrStudentNotFound.
	GetStudent(ctx context.Context, id string) (*Student, error)

	// ListStudents returns all students ordered by roll number.
	ListStudents(ctx context.Context) ([]Student, error)

	// GetBooking returns a booking by ID, or ErrBookingNotFound.
	GetBooking(ctx context.Context, id string) (*Booking, error)

	// FindBooking returns the booking for (student, date), or nil if none.
	// date must be midnight-normalized.
	FindBooking(ctx context.Context, studentID string, date time.Time) (*Booking, error)

	// InsertBooking persists a new booking. The (student, date) uniqueness
	// constraint maps violations to ErrDuplicateBooking.
	InsertBooking(ctx context.Context, b Booking) error

	// DebitLedger removes one token from every requested slot, atomically.
	// Fails with InsufficientTokensError (listing every offending slot)
	// without touching the ledger. Returns the post-debit ledger.
	DebitLedger(ctx context.Context, studentID string, requested SlotSet) (Ledger, error)

	// SetVerified flips verified[slot] to true if and only if the slot is
	// booked and not yet verified. Fails with ErrBookingNotFound,
	// ErrNotBooked, or ErrAlreadyVerified.
	SetVerified(ctx context.Context, bookingID string, slot MealSlot) error

	// ResetLedger sets one student's ledger to the given allotment,
	// unconditionally, as a single atomic write.
	ResetLedger(ctx context.Context, studentID string, allotment Ledger) error

	// Unverified returns booked-but-unverified entries for (date, slot),
	// ordered by roll number ascending.
	Unverified(ctx context.Context, date time.Time, slot MealSlot) ([]UnverifiedEntry, error)

	// History returns a student's bookings, most recent date first,
	// capped at limit.
	History(ctx context.Context, studentID string, limit int) ([]Booking, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic multi-step units
// =============================================================================

// TxStore wraps Store with transaction support. The reservation flow
// (existence check, ledger debit, booking insert) runs inside WithTx so a
// concurrent reservation observes either the pre-debit or fully-debited
// ledger, never an intermediate state.
type TxStore interface {
	Store

	// WithTx executes fn atomically. If fn returns an error the unit is
	// rolled back; otherwise it is committed. The Store handed to fn is
	// write-scoped: the projection methods (ListStudents, Unverified,
	// History) are only available outside a transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
