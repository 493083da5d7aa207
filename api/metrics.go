/*
metrics.go - Prometheus instrumentation

Counters only. Latency and saturation belong to the infrastructure in
front of this service; what matters here is how often the business
operations run and why reservations fail.
*/
package api

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/mess-engine/mess"
)

var (
	reservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_reservations_total",
		Help: "Successful meal reservations.",
	})

	reservationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_reservation_failures_total",
		Help: "Failed meal reservations by reason.",
	}, []string{"reason"})

	verificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_verifications_total",
		Help: "Successful meal verifications.",
	})

	resetRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_ledger_reset_runs_total",
		Help: "Completed ledger reset passes (scheduled or manual).",
	})

	resetStudentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_ledger_reset_students_total",
		Help: "Student ledgers restored across all reset passes.",
	})
)

// failureReason buckets a reservation error into a low-cardinality label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, mess.ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, mess.ErrInsufficientTokens):
		return "insufficient_tokens"
	case errors.Is(err, mess.ErrNotFutureDate):
		return "not_future_date"
	case errors.Is(err, mess.ErrNoSlots), errors.Is(err, mess.ErrInvalidSlot):
		return "invalid_request"
	case mess.IsNotFound(err):
		return "not_found"
	case mess.IsRetryable(err):
		return "conflict"
	default:
		return "internal"
	}
}
