/*
scheduler.go - Monthly ledger reset job

PURPOSE:
  Restores every student's ledger to the configured allotment at the
  first instant of each calendar month. A missed or failed run is
  recoverable: administrators can trigger the same pass manually via
  the reset endpoint, and the next scheduled run restores the steady
  state regardless.

MECHANISM:
  A timer armed for the next month boundary, re-armed after each run.
  Stop() waits for an in-flight pass to finish before returning.
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/mess-engine/mess"
)

// resetTimeout bounds a single reset pass.
const resetTimeout = 5 * time.Minute

// ResetScheduler runs the monthly ledger reset.
type ResetScheduler struct {
	engine    *mess.Engine
	allotment mess.Ledger
	log       zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewResetScheduler creates a scheduler; call Start to arm it.
func NewResetScheduler(engine *mess.Engine, allotment mess.Ledger, log zerolog.Logger) *ResetScheduler {
	return &ResetScheduler{
		engine:    engine,
		allotment: allotment,
		log:       log,
		stop:      make(chan struct{}),
	}
}

// NextResetAfter returns the first instant of the month following t, in
// t's location. time.Date normalizes month 13 into January next year.
func NextResetAfter(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

// Start launches the scheduler goroutine.
func (s *ResetScheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Info().
		Time("next_reset", NextResetAfter(time.Now().UTC())).
		Msg("reset scheduler started")
}

// Stop shuts the scheduler down, waiting for any in-flight pass.
func (s *ResetScheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info().Msg("reset scheduler stopped")
}

func (s *ResetScheduler) run() {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		timer := time.NewTimer(NextResetAfter(now).Sub(now))

		select {
		case <-timer.C:
			s.runOnce()
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// runOnce executes one reset pass. Failures are logged, never fatal; the
// next boundary gets a fresh attempt.
func (s *ResetScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	updated, err := s.engine.ResetAll(ctx, s.allotment)
	if err != nil {
		s.log.Error().Err(err).
			Int("students_updated", updated).
			Msg("scheduled ledger reset failed")
		return
	}

	resetRunsTotal.Inc()
	resetStudentsTotal.Add(float64(updated))
	s.log.Info().
		Int("students_updated", updated).
		Msg("scheduled ledger reset complete")
}
