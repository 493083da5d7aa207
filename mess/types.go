/*
Package mess provides the core meal-token booking engine.

PURPOSE:
  This package contains the domain types and algorithms for managing a
  per-student consumable-token ledger. Students spend tokens to reserve
  meal slots for a future date; mess administrators verify redemption;
  a monthly reset restores every ledger to the default allotment.

KEY CONCEPTS IN THIS FILE (types.go):
  - MealSlot: One of the four fixed daily categories
  - SlotSet:  Fixed-size set of meal slots (booked/verified flags)
  - Ledger:   A student's remaining token counts per slot
  - Student:  Ledger owner with identity and mess label
  - Booking:  Immutable reservation record for one (student, date)

DESIGN PRINCIPLES:
  1. Closed enumeration: exactly four meal slots, handled exhaustively
  2. Immutability: bookings are created once, never edited or deleted;
     only the verified flags flip, each at most once
  3. Day granularity: booking dates carry no time-of-day component

SEE ALSO:
  - engine.go: Reserve and Verify operations
  - store.go:  Persistence interface
  - errors.go: Error taxonomy
*/
package mess

import (
	"fmt"
	"time"
)

// =============================================================================
// MEAL SLOT - Closed enumeration of daily meal categories
// =============================================================================

type MealSlot string

const (
	SlotBreakfast MealSlot = "breakfast"
	SlotLunch     MealSlot = "lunch"
	SlotSnacks    MealSlot = "snacks"
	SlotDinner    MealSlot = "dinner"
)

// AllSlots returns the four meal slots in canonical (chronological) order.
func AllSlots() [4]MealSlot {
	return [4]MealSlot{SlotBreakfast, SlotLunch, SlotSnacks, SlotDinner}
}

// ParseSlot converts a string into a MealSlot, rejecting anything outside
// the closed enumeration.
func ParseSlot(s string) (MealSlot, error) {
	switch MealSlot(s) {
	case SlotBreakfast, SlotLunch, SlotSnacks, SlotDinner:
		return MealSlot(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
}

// =============================================================================
// SLOT SET - Fixed-size boolean mapping over the four slots
// =============================================================================

// SlotSet is a set of meal slots. Used both for the booked flags and the
// verified flags of a Booking, and for the requested slots of a reservation.
type SlotSet struct {
	Breakfast bool `json:"breakfast"`
	Lunch     bool `json:"lunch"`
	Snacks    bool `json:"snacks"`
	Dinner    bool `json:"dinner"`
}

// NewSlotSet builds a SlotSet from a list of slots.
func NewSlotSet(slots ...MealSlot) SlotSet {
	var set SlotSet
	for _, slot := range slots {
		set.Set(slot, true)
	}
	return set
}

// Has reports whether the slot is in the set.
func (ss SlotSet) Has(slot MealSlot) bool {
	switch slot {
	case SlotBreakfast:
		return ss.Breakfast
	case SlotLunch:
		return ss.Lunch
	case SlotSnacks:
		return ss.Snacks
	case SlotDinner:
		return ss.Dinner
	}
	return false
}

// Set adds or removes a slot.
func (ss *SlotSet) Set(slot MealSlot, on bool) {
	switch slot {
	case SlotBreakfast:
		ss.Breakfast = on
	case SlotLunch:
		ss.Lunch = on
	case SlotSnacks:
		ss.Snacks = on
	case SlotDinner:
		ss.Dinner = on
	}
}

// IsEmpty reports whether no slot is set.
func (ss SlotSet) IsEmpty() bool {
	return !ss.Breakfast && !ss.Lunch && !ss.Snacks && !ss.Dinner
}

// Slots returns the members of the set in canonical order.
func (ss SlotSet) Slots() []MealSlot {
	var slots []MealSlot
	for _, slot := range AllSlots() {
		if ss.Has(slot) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// =============================================================================
// LEDGER - Remaining token counts per meal slot
// =============================================================================

// DefaultAllotment is the number of tokens granted per slot at each reset.
const DefaultAllotment = 15

// Ledger holds a student's remaining tokens per meal slot.
//
// INVARIANT: every count is >= 0. The ledger is mutated by exactly two
// actors: the booking engine (atomic decrement at reservation time) and
// the reset job (bulk restore to the default allotment).
type Ledger struct {
	Breakfast int `json:"breakfast"`
	Lunch     int `json:"lunch"`
	Snacks    int `json:"snacks"`
	Dinner    int `json:"dinner"`
}

// DefaultLedger returns a ledger with the default allotment in every slot.
func DefaultLedger() Ledger {
	return UniformLedger(DefaultAllotment)
}

// UniformLedger returns a ledger with the same count in every slot.
func UniformLedger(n int) Ledger {
	return Ledger{Breakfast: n, Lunch: n, Snacks: n, Dinner: n}
}

// Count returns the remaining tokens for a slot.
func (l Ledger) Count(slot MealSlot) int {
	switch slot {
	case SlotBreakfast:
		return l.Breakfast
	case SlotLunch:
		return l.Lunch
	case SlotSnacks:
		return l.Snacks
	case SlotDinner:
		return l.Dinner
	}
	return 0
}

// Short returns every requested slot with fewer than one remaining token,
// in canonical order. The full list is reported so a caller sees all
// problems in one round trip.
func (l Ledger) Short(requested SlotSet) []MealSlot {
	var short []MealSlot
	for _, slot := range AllSlots() {
		if requested.Has(slot) && l.Count(slot) < 1 {
			short = append(short, slot)
		}
	}
	return short
}

// Debit returns a copy of the ledger with one token removed from every
// requested slot. Callers must check Short first; Debit does not guard.
func (l Ledger) Debit(requested SlotSet) Ledger {
	out := l
	if requested.Breakfast {
		out.Breakfast--
	}
	if requested.Lunch {
		out.Lunch--
	}
	if requested.Snacks {
		out.Snacks--
	}
	if requested.Dinner {
		out.Dinner--
	}
	return out
}

// =============================================================================
// STUDENT - Ledger owner
// =============================================================================

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Student is a ledger owner. Identity is established by an external
// collaborator; this package trusts the ID it is handed.
type Student struct {
	ID        string
	RollNo    string // stable sort key for the admin meal list
	Name      string
	MessName  string
	Role      Role
	Ledger    Ledger
	CreatedAt time.Time
}

// =============================================================================
// BOOKING - Immutable reservation for one (student, date)
// =============================================================================

// Booking records which slots a student reserved for a specific date.
//
// INVARIANTS:
//   - Exactly one booking exists per (student, date)
//   - Verified[slot] implies Booked[slot]
//   - Verified[slot] never reverts to false
//   - Booked is immutable after creation
type Booking struct {
	ID        string
	StudentID string
	Date      time.Time // always midnight UTC
	Booked    SlotSet
	Verified  SlotSet
	CreatedAt time.Time
}

// UnverifiedEntry is one row of the admin meal list: a student whose
// booked slot has not been verified yet.
type UnverifiedEntry struct {
	BookingID string
	StudentID string
	RollNo    string
	Name      string
	MessName  string
}

// =============================================================================
// DAY ARITHMETIC
// =============================================================================

// Midnight truncates a time to the start of its UTC day. Booking dates are
// always stored in this form; (student, Midnight(date)) is the natural key.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the start of the current UTC day.
func Today() time.Time {
	return Midnight(time.Now())
}

// Tomorrow returns the start of the next UTC day, the default reservation
// window for the student flow.
func Tomorrow() time.Time {
	return Today().AddDate(0, 0, 1)
}
