/*
query.go - Read-only projections

Three projections, none of which mutate state. The "today"/"tomorrow"
windows shown to administrators are derived from the current date at query
time; they are never stored. Today's unverified list is always the list of
bookings dated today.
*/
package mess

import (
	"context"
	"time"
)

// DefaultHistoryLimit caps booking history when the caller passes no limit.
const DefaultHistoryLimit = 30

// Queries exposes the read side of the booking system.
type Queries struct {
	store Store
}

// NewQueries creates the read-only query service.
func NewQueries(store Store) *Queries {
	return &Queries{store: store}
}

// ListUnverified returns every student whose booking for the given date has
// the slot booked but not yet verified, ordered by roll number ascending.
func (q *Queries) ListUnverified(ctx context.Context, date time.Time, slot MealSlot) ([]UnverifiedEntry, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return nil, err
	}
	return q.store.Unverified(ctx, Midnight(date), slot)
}

// LedgerOf returns a student's current remaining tokens.
func (q *Queries) LedgerOf(ctx context.Context, studentID string) (Ledger, error) {
	s, err := q.store.GetStudent(ctx, studentID)
	if err != nil {
		return Ledger{}, err
	}
	return s.Ledger, nil
}

// HistoryOf returns a student's bookings, most recent date first, capped at
// limit (DefaultHistoryLimit when limit <= 0).
func (q *Queries) HistoryOf(ctx context.Context, studentID string, limit int) ([]Booking, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return q.store.History(ctx, studentID, limit)
}
