/*
reset.go - Periodic bulk ledger reset

The reset restores every student's ledger to the default allotment,
unconditionally. Each student is one atomic write, so the storage engine
defines a total order between a reset and any in-flight reservation for
the same student: the outcome is always reset-then-reserve or
reserve-then-reset, never a lost update.

A failure for one student must not halt the pass; failures are logged
and the count of successfully reset students is reported.
*/
package mess

import "context"

// ResetAll sets every student's ledger to the allotment and returns the
// number of students updated. Per-student failures are logged and skipped.
func (e *Engine) ResetAll(ctx context.Context, allotment Ledger) (int, error) {
	students, err := e.store.ListStudents(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range students {
		if err := e.store.ResetLedger(ctx, s.ID, allotment); err != nil {
			e.log.Error().Err(err).
				Str("student_id", s.ID).
				Str("roll_no", s.RollNo).
				Msg("ledger reset failed for student")
			continue
		}
		count++
	}

	e.log.Info().Int("students", count).Msg("ledger reset complete")
	return count, nil
}
