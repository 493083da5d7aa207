package api_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/warp/mess-engine/api"
	"github.com/warp/mess-engine/mess"
	memstore "github.com/warp/mess-engine/mess/store"
)

func TestNextResetAfter(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid month",
			now:  time.Date(2026, time.August, 14, 9, 30, 0, 0, time.UTC),
			want: time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first instant of a month waits for the next one",
			now:  time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "december rolls into january",
			now:  time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last instant before the boundary",
			now:  time.Date(2026, time.February, 28, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, api.NextResetAfter(tc.now))
		})
	}
}

func TestSchedulerStartStop(t *testing.T) {
	// The first boundary is far away; this only exercises clean shutdown.
	engine := mess.NewEngine(memstore.NewMemory(), zerolog.Nop())
	scheduler := api.NewResetScheduler(engine, mess.DefaultLedger(), zerolog.Nop())

	scheduler.Start()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
