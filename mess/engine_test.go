package mess_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mess-engine/mess"
	memstore "github.com/warp/mess-engine/mess/store"
	"github.com/warp/mess-engine/store/sqlite"
)

// newStores builds one of each TxStore implementation so every scenario
// runs against both the production store and the in-memory one.
func newStores(t *testing.T) map[string]mess.TxStore {
	t.Helper()

	sqliteStore, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]mess.TxStore{
		"sqlite": sqliteStore,
		"memory": memstore.NewMemory(),
	}
}

func seedStudent(t *testing.T, store mess.Store, id, rollNo string, ledger mess.Ledger) {
	t.Helper()
	require.NoError(t, store.SaveStudent(context.Background(), mess.Student{
		ID:        id,
		RollNo:    rollNo,
		Name:      "Student " + rollNo,
		MessName:  "north",
		Role:      mess.RoleStudent,
		Ledger:    ledger,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestReserveDebitsLedgerAndCreatesBooking(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a student with tokens {breakfast:1, lunch:1, snacks:3, dinner:3}
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.Ledger{Breakfast: 1, Lunch: 1, Snacks: 3, Dinner: 3})

			// WHEN reserving all four slots for tomorrow
			booking, ledger, err := engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(),
				mess.NewSlotSet(mess.SlotBreakfast, mess.SlotLunch, mess.SlotSnacks, mess.SlotDinner))

			// THEN the booking exists and every slot lost exactly one token
			require.NoError(t, err)
			assert.Equal(t, mess.Ledger{Breakfast: 0, Lunch: 0, Snacks: 2, Dinner: 2}, ledger)
			assert.Equal(t, mess.Tomorrow(), booking.Date)
			assert.True(t, booking.Booked.Has(mess.SlotLunch))
			assert.True(t, booking.Verified.IsEmpty())

			stored, err := store.GetBooking(context.Background(), booking.ID)
			require.NoError(t, err)
			assert.Equal(t, booking.Booked, stored.Booked)
		})
	}
}

func TestReserveReportsEveryShortSlot(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a student with zero lunch and zero dinner tokens
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.Ledger{Breakfast: 5, Lunch: 0, Snacks: 5, Dinner: 0})

			// WHEN reserving breakfast, lunch, and dinner
			_, _, err := engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(),
				mess.NewSlotSet(mess.SlotBreakfast, mess.SlotLunch, mess.SlotDinner))

			// THEN the error lists both short slots and nothing was debited
			require.ErrorIs(t, err, mess.ErrInsufficientTokens)
			var insufficient *mess.InsufficientTokensError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, []mess.MealSlot{mess.SlotLunch, mess.SlotDinner}, insufficient.Slots)

			s, err := store.GetStudent(context.Background(), "stu-1")
			require.NoError(t, err)
			assert.Equal(t, mess.Ledger{Breakfast: 5, Lunch: 0, Snacks: 5, Dinner: 0}, s.Ledger)

			found, err := store.FindBooking(context.Background(), "stu-1", mess.Tomorrow())
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}

func TestReserveRejectsSecondBookingForSameDate(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN an existing booking for tomorrow
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())
			_, _, err := engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(), mess.NewSlotSet(mess.SlotLunch))
			require.NoError(t, err)

			// WHEN reserving a different slot for the same date
			_, _, err = engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(), mess.NewSlotSet(mess.SlotDinner))

			// THEN the reservation fails and the ledger is only debited once
			require.ErrorIs(t, err, mess.ErrDuplicateBooking)

			s, err := store.GetStudent(context.Background(), "stu-1")
			require.NoError(t, err)
			assert.Equal(t, mess.DefaultAllotment-1, s.Ledger.Lunch)
			assert.Equal(t, mess.DefaultAllotment, s.Ledger.Dinner)
		})
	}
}

func TestReserveRejectsTodayAndPastDates(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())

			for _, date := range []time.Time{mess.Today(), mess.Today().AddDate(0, 0, -1)} {
				_, _, err := engine.Reserve(context.Background(), "stu-1", date, mess.NewSlotSet(mess.SlotLunch))
				assert.ErrorIs(t, err, mess.ErrNotFutureDate)
			}
		})
	}
}

func TestReserveRejectsEmptySlotSet(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())

			_, _, err := engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(), mess.SlotSet{})
			assert.ErrorIs(t, err, mess.ErrNoSlots)
		})
	}
}

func TestReserveUnknownStudent(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())

			_, _, err := engine.Reserve(context.Background(), "ghost", mess.Tomorrow(), mess.NewSlotSet(mess.SlotLunch))
			assert.ErrorIs(t, err, mess.ErrStudentNotFound)
		})
	}
}

func TestConcurrentReservesSameDateExactlyOneSucceeds(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN one student and many concurrent reservations for the same date
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())

			const attempts = 8
			errs := make([]error, attempts)
			var wg sync.WaitGroup
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _, errs[i] = engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(),
						mess.NewSlotSet(mess.SlotLunch))
				}(i)
			}
			wg.Wait()

			// THEN exactly one succeeded and the ledger was debited exactly once
			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
				} else {
					assert.ErrorIs(t, err, mess.ErrDuplicateBooking)
				}
			}
			assert.Equal(t, 1, succeeded)

			s, err := store.GetStudent(context.Background(), "stu-1")
			require.NoError(t, err)
			assert.Equal(t, mess.DefaultAllotment-1, s.Ledger.Lunch)
		})
	}
}

func TestVerifyMarksSlotOnceAndSpendsNoTokens(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a booking for lunch and snacks
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())
			booking, ledgerAfterReserve, err := engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(),
				mess.NewSlotSet(mess.SlotLunch, mess.SlotSnacks))
			require.NoError(t, err)

			// WHEN verifying lunch
			verified, err := engine.Verify(context.Background(), booking.ID, mess.SlotLunch)

			// THEN only lunch is marked and the ledger is untouched
			require.NoError(t, err)
			assert.True(t, verified.Verified.Has(mess.SlotLunch))
			assert.False(t, verified.Verified.Has(mess.SlotSnacks))

			s, err := store.GetStudent(context.Background(), "stu-1")
			require.NoError(t, err)
			assert.Equal(t, ledgerAfterReserve, s.Ledger)

			// WHEN verifying lunch a second time
			_, err = engine.Verify(context.Background(), booking.ID, mess.SlotLunch)

			// THEN the idempotency guard rejects it
			assert.ErrorIs(t, err, mess.ErrAlreadyVerified)
		})
	}
}

func TestBookingFlowEndToEnd(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a student with tokens {breakfast:1, lunch:0, snacks:3, dinner:2}
			engine := mess.NewEngine(store, zerolog.Nop())
			queries := mess.NewQueries(store)
			ctx := context.Background()
			seedStudent(t, store, "stu-1", "B20001", mess.Ledger{Breakfast: 1, Lunch: 0, Snacks: 3, Dinner: 2})

			// WHEN reserving breakfast and lunch
			_, _, err := engine.Reserve(ctx, "stu-1", mess.Tomorrow(), mess.NewSlotSet(mess.SlotBreakfast, mess.SlotLunch))

			// THEN the shortage names lunch and nothing changed
			var insufficient *mess.InsufficientTokensError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, []mess.MealSlot{mess.SlotLunch}, insufficient.Slots)
			s, err := store.GetStudent(ctx, "stu-1")
			require.NoError(t, err)
			assert.Equal(t, mess.Ledger{Breakfast: 1, Lunch: 0, Snacks: 3, Dinner: 2}, s.Ledger)

			// WHEN reserving breakfast and snacks instead
			booking, ledger, err := engine.Reserve(ctx, "stu-1", mess.Tomorrow(), mess.NewSlotSet(mess.SlotBreakfast, mess.SlotSnacks))

			// THEN the reservation lands with the expected balance
			require.NoError(t, err)
			assert.Equal(t, mess.Ledger{Breakfast: 0, Lunch: 0, Snacks: 2, Dinner: 2}, ledger)
			assert.Equal(t, mess.NewSlotSet(mess.SlotBreakfast, mess.SlotSnacks), booking.Booked)

			// WHEN the admin verifies breakfast
			verified, err := engine.Verify(ctx, booking.ID, mess.SlotBreakfast)
			require.NoError(t, err)
			assert.True(t, verified.Verified.Has(mess.SlotBreakfast))

			// THEN the student drops off the unverified breakfast list
			entries, err := queries.ListUnverified(ctx, mess.Tomorrow(), mess.SlotBreakfast)
			require.NoError(t, err)
			assert.Empty(t, entries)

			// AND still appears on the snacks list
			entries, err = queries.ListUnverified(ctx, mess.Tomorrow(), mess.SlotSnacks)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "B20001", entries[0].RollNo)
		})
	}
}

func TestVerifyUnbookedSlot(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())
			booking, _, err := engine.Reserve(context.Background(), "stu-1", mess.Tomorrow(),
				mess.NewSlotSet(mess.SlotLunch))
			require.NoError(t, err)

			_, err = engine.Verify(context.Background(), booking.ID, mess.SlotDinner)
			assert.ErrorIs(t, err, mess.ErrNotBooked)
		})
	}
}

func TestVerifyUnknownBooking(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())

			_, err := engine.Verify(context.Background(), "no-such-booking", mess.SlotLunch)
			assert.ErrorIs(t, err, mess.ErrBookingNotFound)
		})
	}
}

func TestVerifyRejectsInvalidSlot(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())

			_, err := engine.Verify(context.Background(), "any", mess.MealSlot("brunch"))
			assert.ErrorIs(t, err, mess.ErrInvalidSlot)
		})
	}
}
