package pgstore

import (
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

type tenantRow struct {
	ID            string                     `gorm:"primaryKey"`
	Name          string
	Timezone      string                     `gorm:"not null"`
	BusinessHours []domain.BusinessHours     `gorm:"type:jsonb;serializer:json;not null"`
	Closures      []domain.ScheduleException `gorm:"type:jsonb;serializer:json"`
	Rules         domain.BookingRules        `gorm:"type:jsonb;serializer:json;not null"`
	IsActive      bool                       `gorm:"not null"`
	UpdatedAt     time.Time
}

func (tenantRow) TableName() string { return "tenants" }

type staffRow struct {
	TenantID   string `gorm:"primaryKey"`
	ID         string `gorm:"primaryKey"`
	Name       string
	Week       map[timeutil.Weekday][]domain.WorkInterval `gorm:"type:jsonb;serializer:json"`
	Exceptions []domain.ScheduleException                 `gorm:"type:jsonb;serializer:json"`
	IsActive   bool                                       `gorm:"not null"`
	UpdatedAt  time.Time
}

func (staffRow) TableName() string { return "staff" }

type serviceRow struct {
	TenantID        string `gorm:"primaryKey"`
	ID              string `gorm:"primaryKey"`
	Name            string `gorm:"not null"`
	DurationMinutes int    `gorm:"not null"`
	Price           float64
	IsActive        bool `gorm:"not null"`
	UpdatedAt       time.Time
}

func (serviceRow) TableName() string { return "services" }

type seriesRow struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"not null;index:idx_series_tenant"`
	ClientID      string `gorm:"not null"`
	ServiceID     string `gorm:"not null"`
	StaffID       string `gorm:"not null"`
	TotalSessions int    `gorm:"not null"`
	IntervalDays  int    `gorm:"not null"`
	Status        string `gorm:"not null;index:idx_series_tenant"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (seriesRow) TableName() string { return "treatment_series" }

type bookingRow struct {
	ID              string    `gorm:"primaryKey"`
	TenantID        string    `gorm:"not null;index:idx_bookings_staff_time,priority:1;index:idx_bookings_client_time,priority:1"`
	StaffID         string    `gorm:"not null;index:idx_bookings_staff_time,priority:2"`
	ClientID        string    `gorm:"not null;index:idx_bookings_client_time,priority:2"`
	ServiceID       string    `gorm:"not null"`
	ScheduledAt     time.Time `gorm:"not null;index:idx_bookings_staff_time,priority:3;index:idx_bookings_client_time,priority:3"`
	DurationMinutes int       `gorm:"not null"`
	Status          string    `gorm:"not null"`
	SeriesID        *string   `gorm:"index"`
	SessionNumber   int
	FeePercent      float64
	FeeCharged      *float64
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (bookingRow) TableName() string { return "bookings" }

func bookingFromDomain(b *domain.Booking) bookingRow {
	row := bookingRow{
		ID:              b.ID,
		TenantID:        b.TenantID,
		StaffID:         b.StaffID,
		ClientID:        b.ClientID,
		ServiceID:       b.ServiceID,
		ScheduledAt:     b.ScheduledAt.UTC(),
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		SessionNumber:   b.SessionNumber,
		FeePercent:      b.FeePercent,
		FeeCharged:      b.FeeCharged,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
	if b.SeriesID != "" {
		id := b.SeriesID
		row.SeriesID = &id
	}
	if b.CancelledAt != nil {
		at := b.CancelledAt.UTC()
		row.CancelledAt = &at
	}
	return row
}

func (r bookingRow) toDomain() domain.Booking {
	b := domain.Booking{
		ID:              r.ID,
		TenantID:        r.TenantID,
		StaffID:         r.StaffID,
		ClientID:        r.ClientID,
		ServiceID:       r.ServiceID,
		ScheduledAt:     r.ScheduledAt,
		DurationMinutes: r.DurationMinutes,
		Status:          domain.BookingStatus(r.Status),
		SessionNumber:   r.SessionNumber,
		FeePercent:      r.FeePercent,
		FeeCharged:      r.FeeCharged,
		CancelledAt:     r.CancelledAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.SeriesID != nil {
		b.SeriesID = *r.SeriesID
	}
	return b
}

func seriesFromDomain(s *domain.TreatmentSeries) seriesRow {
	return seriesRow{
		ID:            s.ID,
		TenantID:      s.TenantID,
		ClientID:      s.ClientID,
		ServiceID:     s.ServiceID,
		StaffID:       s.StaffID,
		TotalSessions: s.TotalSessions,
		IntervalDays:  s.IntervalDays,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
}

func (r seriesRow) toDomain() domain.TreatmentSeries {
	return domain.TreatmentSeries{
		ID:            r.ID,
		TenantID:      r.TenantID,
		ClientID:      r.ClientID,
		ServiceID:     r.ServiceID,
		StaffID:       r.StaffID,
		TotalSessions: r.TotalSessions,
		IntervalDays:  r.IntervalDays,
		Status:        domain.SeriesStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r tenantRow) toDomain() domain.TenantScheduleConfig {
	return domain.TenantScheduleConfig{
		TenantID:      r.ID,
		Name:          r.Name,
		Timezone:      r.Timezone,
		BusinessHours: r.BusinessHours,
		Closures:      r.Closures,
		Rules:         r.Rules,
	}
}

func (r staffRow) toDomain() domain.StaffSchedule {
	return domain.StaffSchedule{
		StaffID:    r.ID,
		TenantID:   r.TenantID,
		Name:       r.Name,
		Week:       r.Week,
		Exceptions: r.Exceptions,
	}
}

func (r serviceRow) toDomain() domain.Service {
	return domain.Service{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Name:            r.Name,
		DurationMinutes: r.DurationMinutes,
		Price:           r.Price,
	}
}
