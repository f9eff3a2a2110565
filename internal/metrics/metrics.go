package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonsched"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Booking creation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Cancelled bookings by whether a fee applied.",
		},
		[]string{"fee"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Booking status changes by target status.",
		},
		[]string{"status"},
	)

	seriesOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_operations_total",
			Help:      "Treatment series operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	availabilityQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_queries_total",
			Help:      "Availability queries served.",
		},
	)

	remindersDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminder events published by reminder kind.",
		},
		[]string{"kind"},
	)

	reminderScanErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_scan_errors_total",
			Help:      "Failed reminder scans or claims.",
		},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "staff_lock_wait_seconds",
			Help:      "Time spent waiting for the per-staff booking lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingCancelled, bookingTransitions, seriesOps,
			availabilityQueries, remindersDispatched, reminderScanErrors, lockWait,
		)
	})
}

// IncBookingCreated counts a creation attempt; outcome is "ok" or an error code.
func IncBookingCreated(outcome string) {
	bookingCreated.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled(feeRequired bool) {
	fee := "no"
	if feeRequired {
		fee = "yes"
	}
	bookingCancelled.WithLabelValues(fee).Inc()
}

func IncBookingTransition(status string) {
	bookingTransitions.WithLabelValues(status).Inc()
}

func IncSeriesOp(op, outcome string) {
	seriesOps.WithLabelValues(op, outcome).Inc()
}

func IncAvailabilityQuery() {
	availabilityQueries.Inc()
}

// ObserveLockWait records how long a request waited for a staff lock.
func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

func IncReminderDispatched(kind string) {
	remindersDispatched.WithLabelValues(kind).Inc()
}

func IncReminderScanError() {
	reminderScanErrors.Inc()
}
