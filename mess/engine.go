/*
engine.go - Booking and verification operations

PURPOSE:
  The Engine is the only writer of reservations and verifications. It
  validates requests and delegates atomicity to the store: the whole
  reserve unit runs inside one storage transaction, and verification is
  a single conditional update.

RESERVE ALGORITHM:
  1. Normalize the date to midnight (the natural uniqueness key)
  2. Reject dates not strictly after today
  3. Inside one transaction:
     a. Fail with ErrDuplicateBooking if (student, date) already booked
     b. Debit the ledger; fail with the full list of short slots
     c. Insert the booking (unique index is the backstop for races)
  Either the ledger decrements and the booking exists, or neither.

VERIFICATION:
  Tokens are spent at booking time, not at verification time.
  Verification is purely an attendance record: set verified[slot]=true
  at most once, strictly after booked[slot] was true.

SEE ALSO:
  - store.go:  Atomicity contract
  - reset.go:  Monthly ledger reset
  - query.go:  Read-only projections
*/
package mess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine owns all ledger and booking mutations.
type Engine struct {
	store TxStore
	log   zerolog.Logger
}

// NewEngine creates an engine on top of a transactional store.
func NewEngine(store TxStore, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// =============================================================================
// RESERVE
// =============================================================================

// Reserve books the requested slots for a future date, atomically debiting
// the student's ledger and creating the booking record. Returns the created
// booking and the post-debit ledger for display.
func (e *Engine) Reserve(ctx context.Context, studentID string, date time.Time, requested SlotSet) (*Booking, Ledger, error) {
	if requested.IsEmpty() {
		return nil, Ledger{}, ErrNoSlots
	}

	day := Midnight(date)
	if !day.After(Today()) {
		return nil, Ledger{}, ErrNotFutureDate
	}

	booking := Booking{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Date:      day,
		Booked:    requested,
		CreatedAt: time.Now().UTC(),
	}

	var ledger Ledger
	err := e.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetStudent(ctx, studentID); err != nil {
			return err
		}

		// Pre-check for a friendly error; the unique index catches races.
		existing, err := tx.FindBooking(ctx, studentID, day)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateBooking
		}

		ledger, err = tx.DebitLedger(ctx, studentID, requested)
		if err != nil {
			return err
		}

		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, Ledger{}, err
	}

	e.log.Info().
		Str("student_id", studentID).
		Str("booking_id", booking.ID).
		Str("date", day.Format("2006-01-02")).
		Strs("slots", slotNames(requested.Slots())).
		Msg("meals reserved")

	return &booking, ledger, nil
}

// =============================================================================
// VERIFY
// =============================================================================

// Verify marks a booked slot as collected. Idempotency is enforced by the
// store's conditional update: a repeat attempt fails with ErrAlreadyVerified
// and leaves the record untouched. No ledger side effect.
func (e *Engine) Verify(ctx context.Context, bookingID string, slot MealSlot) (*Booking, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return nil, err
	}

	if err := e.store.SetVerified(ctx, bookingID, slot); err != nil {
		return nil, err
	}

	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("booking_id", bookingID).
		Str("slot", string(slot)).
		Msg("meal verified")

	return booking, nil
}

func slotNames(slots []MealSlot) []string {
	names := make([]string, len(slots))
	for i, slot := range slots {
		names[i] = string(slot)
	}
	return names
}
