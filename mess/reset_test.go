package mess_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mess-engine/mess"
)

func TestResetAllRestoresEveryLedger(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN students with partially and fully drained ledgers
			engine := mess.NewEngine(store, zerolog.Nop())
			ctx := context.Background()

			seedStudent(t, store, "stu-1", "B20001", mess.Ledger{Breakfast: 0, Lunch: 3, Snacks: 1, Dinner: 0})
			seedStudent(t, store, "stu-2", "B20002", mess.UniformLedger(0))

			// WHEN running the reset
			updated, err := engine.ResetAll(ctx, mess.DefaultLedger())

			// THEN every ledger holds the full allotment again
			require.NoError(t, err)
			assert.Equal(t, 2, updated)

			for _, id := range []string{"stu-1", "stu-2"} {
				s, err := store.GetStudent(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, mess.DefaultLedger(), s.Ledger)
			}
		})
	}
}

func TestResetAllKeepsBookings(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a booking made before the reset
			engine := mess.NewEngine(store, zerolog.Nop())
			ctx := context.Background()

			seedStudent(t, store, "stu-1", "B20001", mess.DefaultLedger())
			booking, _, err := engine.Reserve(ctx, "stu-1", mess.Tomorrow(), mess.NewSlotSet(mess.SlotDinner))
			require.NoError(t, err)

			// WHEN resetting
			_, err = engine.ResetAll(ctx, mess.DefaultLedger())
			require.NoError(t, err)

			// THEN the booking survives untouched and the date stays reserved
			stored, err := store.GetBooking(ctx, booking.ID)
			require.NoError(t, err)
			assert.True(t, stored.Booked.Has(mess.SlotDinner))

			_, _, err = engine.Reserve(ctx, "stu-1", mess.Tomorrow(), mess.NewSlotSet(mess.SlotLunch))
			assert.ErrorIs(t, err, mess.ErrDuplicateBooking)
		})
	}
}

func TestResetConcurrentWithReserveSettlesToOneOrdering(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a reservation and a reset racing on the same student
			engine := mess.NewEngine(store, zerolog.Nop())
			ctx := context.Background()

			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("stu-%d", i)
				seedStudent(t, store, id, fmt.Sprintf("B2%04d", i), mess.UniformLedger(2))

				var wg sync.WaitGroup
				var reserveErr, resetErr error
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, _, reserveErr = engine.Reserve(ctx, id, mess.Tomorrow(), mess.NewSlotSet(mess.SlotLunch))
				}()
				go func() {
					defer wg.Done()
					_, resetErr = engine.ResetAll(ctx, mess.UniformLedger(5))
				}()
				wg.Wait()

				require.NoError(t, reserveErr)
				require.NoError(t, resetErr)

				// THEN the ledger lands on exactly one of the two valid
				// orderings: reserve-then-reset (5) or reset-then-reserve (4),
				// never a lost update
				s, err := store.GetStudent(ctx, id)
				require.NoError(t, err)
				assert.Contains(t, []int{4, 5}, s.Ledger.Lunch, "iteration %d", i)

				// AND the booking from the reserve side always exists
				booking, err := store.FindBooking(ctx, id, mess.Tomorrow())
				require.NoError(t, err)
				require.NotNil(t, booking)
				assert.True(t, booking.Booked.Has(mess.SlotLunch))
			}
		})
	}
}

func TestResetAllWithNoStudents(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())

			updated, err := engine.ResetAll(context.Background(), mess.DefaultLedger())
			require.NoError(t, err)
			assert.Zero(t, updated)
		})
	}
}

func TestResetAllAppliesCustomAllotment(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			engine := mess.NewEngine(store, zerolog.Nop())
			seedStudent(t, store, "stu-1", "B20001", mess.UniformLedger(2))

			updated, err := engine.ResetAll(context.Background(), mess.UniformLedger(20))
			require.NoError(t, err)
			assert.Equal(t, 1, updated)

			s, err := store.GetStudent(context.Background(), "stu-1")
			require.NoError(t, err)
			assert.Equal(t, mess.UniformLedger(20), s.Ledger)
		})
	}
}
