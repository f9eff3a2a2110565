package domain

import "fmt"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusScheduled  BookingStatus = "scheduled"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusNoShow     BookingStatus = "no_show"
)

// ActiveStatuses occupy the staff member's time.
var ActiveStatuses = []BookingStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

// IsActive reports whether the booking blocks its time range.
func (s BookingStatus) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a client may still cancel.
func (s BookingStatus) Cancellable() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusScheduled:  {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal booking status change.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckBookingTransition returns ErrInvalidTransition for an illegal change.
func CheckBookingTransition(from, to BookingStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: booking %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// SeriesStatus is the lifecycle state of a treatment series.
type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCompleted SeriesStatus = "completed"
	SeriesCancelled SeriesStatus = "cancelled"
)

var seriesTransitions = map[SeriesStatus][]SeriesStatus{
	SeriesActive: {SeriesPaused, SeriesCompleted, SeriesCancelled},
	SeriesPaused: {SeriesActive, SeriesCancelled},
}

// CanTransition reports whether from -> to is a legal series status change.
func (s SeriesStatus) CanTransition(to SeriesStatus) bool {
	for _, next := range seriesTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s SeriesStatus) IsTerminal() bool {
	return len(seriesTransitions[s]) == 0
}

// CheckSeriesTransition returns ErrInvalidTransition for an illegal change.
func CheckSeriesTransition(from, to SeriesStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: series %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
