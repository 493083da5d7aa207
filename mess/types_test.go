package mess_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mess-engine/mess"
)

func TestParseSlot(t *testing.T) {
	for _, slot := range mess.AllSlots() {
		parsed, err := mess.ParseSlot(string(slot))
		require.NoError(t, err)
		assert.Equal(t, slot, parsed)
	}

	for _, bad := range []string{"", "brunch", "Lunch", "dinner "} {
		_, err := mess.ParseSlot(bad)
		assert.ErrorIs(t, err, mess.ErrInvalidSlot, bad)
	}
}

func TestSlotSetMembership(t *testing.T) {
	set := mess.NewSlotSet(mess.SlotDinner, mess.SlotBreakfast)

	assert.True(t, set.Has(mess.SlotBreakfast))
	assert.True(t, set.Has(mess.SlotDinner))
	assert.False(t, set.Has(mess.SlotLunch))
	assert.False(t, set.IsEmpty())

	// Slots come back in canonical order regardless of insertion order.
	assert.Equal(t, []mess.MealSlot{mess.SlotBreakfast, mess.SlotDinner}, set.Slots())

	set.Set(mess.SlotDinner, false)
	assert.False(t, set.Has(mess.SlotDinner))
}

func TestLedgerShortListsEveryEmptyRequestedSlot(t *testing.T) {
	ledger := mess.Ledger{Breakfast: 0, Lunch: 2, Snacks: 0, Dinner: 1}

	short := ledger.Short(mess.NewSlotSet(mess.SlotBreakfast, mess.SlotLunch, mess.SlotSnacks))
	assert.Equal(t, []mess.MealSlot{mess.SlotBreakfast, mess.SlotSnacks}, short)

	// Empty slots outside the request don't count.
	assert.Empty(t, ledger.Short(mess.NewSlotSet(mess.SlotLunch, mess.SlotDinner)))
}

func TestLedgerDebitOnlyTouchesRequestedSlots(t *testing.T) {
	ledger := mess.UniformLedger(5)

	debited := ledger.Debit(mess.NewSlotSet(mess.SlotLunch, mess.SlotDinner))
	assert.Equal(t, mess.Ledger{Breakfast: 5, Lunch: 4, Snacks: 5, Dinner: 4}, debited)

	// The receiver is untouched.
	assert.Equal(t, mess.UniformLedger(5), ledger)
}

func TestMidnightNormalizesToUTCDayStart(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2026, time.August, 29, 1, 30, 0, 0, ist) // Aug 28, 20:00 UTC

	got := mess.Midnight(in)
	assert.Equal(t, time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC), got)
}

func TestTomorrowIsOneDayAfterToday(t *testing.T) {
	assert.Equal(t, mess.Today().AddDate(0, 0, 1), mess.Tomorrow())
}
