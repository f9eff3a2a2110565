package domain

import (
	"context"
	"time"
)

// ScheduleReader serves tenant configuration, staff schedules and the service catalog.
type ScheduleReader interface {
	GetTenantScheduleConfig(ctx context.Context, tenantID string) (*TenantScheduleConfig, error)
	GetStaffSchedule(ctx context.Context, tenantID, staffID string) (*StaffSchedule, error)
	GetService(ctx context.Context, tenantID, serviceID string) (*Service, error)
}

// BookingReader serves booking lookups. Ranges are [from, to) on scheduled_at.
type BookingReader interface {
	GetBooking(ctx context.Context, tenantID, id string) (*Booking, error)
	GetBookingsForStaff(ctx context.Context, tenantID, staffID string, from, to time.Time, statuses []BookingStatus) ([]Booking, error)
	GetBookingsForTenant(ctx context.Context, tenantID string, from, to time.Time, statuses []BookingStatus) ([]Booking, error)
}

// ClientCounter counts a client's active bookings on the day and Monday-start week containing day.
type ClientCounter interface {
	GetClientBookingCounts(ctx context.Context, tenantID, clientID string, day time.Time) (ClientBookingCounts, error)
}

// BookingWriter persists booking changes.
type BookingWriter interface {
	WriteBooking(ctx context.Context, b *Booking) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, tenantID, id string, status BookingStatus, meta StatusMetadata) error
	// UpdateBookingTime moves a booking to scheduledAt and stamps updated_at with at.
	UpdateBookingTime(ctx context.Context, tenantID, id string, scheduledAt, at time.Time) error
}

// SeriesStore persists treatment series. WriteSeries, AppendSeriesSessions and CancelSeries
// are atomic.
type SeriesStore interface {
	WriteSeries(ctx context.Context, s *TreatmentSeries, sessions []Booking) error
	// AppendSeriesSessions inserts further sessions of an existing series, all or none.
	AppendSeriesSessions(ctx context.Context, tenantID, seriesID string, sessions []Booking) error
	GetSeries(ctx context.Context, tenantID, id string) (*TreatmentSeries, error)
	ListSeriesBookings(ctx context.Context, tenantID, seriesID string) ([]Booking, error)
	// UpdateSeriesStatus changes the status only while it still equals from. A series that
	// moved on in the meantime fails with ErrInvalidTransition.
	UpdateSeriesStatus(ctx context.Context, tenantID, id string, from, to SeriesStatus, at time.Time) error
	// CancelSeries fails with ErrInvalidTransition once the series is terminal.
	CancelSeries(ctx context.Context, tenantID, id string, at time.Time) (int, error)
}

// Store is the full storage collaborator.
type Store interface {
	ScheduleReader
	BookingReader
	ClientCounter
	BookingWriter
	SeriesStore
}
