// Package domain defines the scheduling data model, status machines and storage contracts.
package domain

import (
	"time"

	"salonsched/internal/timeutil"
)

// BusinessHours is one weekday entry of a tenant's weekly schedule.
type BusinessHours struct {
	Weekday timeutil.Weekday `yaml:"weekday" json:"weekday"`
	Open    string           `yaml:"open,omitempty" json:"open,omitempty"`   // "09:00"
	Close   string           `yaml:"close,omitempty" json:"close,omitempty"` // "17:00"
	Closed  bool             `yaml:"closed" json:"closed"`
}

// BookingRules is the tenant booking policy.
type BookingRules struct {
	MinAdvanceHours           float64 `yaml:"min_advance_hours" json:"minAdvanceHours"`
	MaxAdvanceDays            int     `yaml:"max_advance_days" json:"maxAdvanceDays"`
	SameDayAllowed            bool    `yaml:"same_day_allowed" json:"sameDayAllowed"`
	BufferBeforeMinutes       int     `yaml:"buffer_before_minutes" json:"bufferBeforeMinutes"`
	BufferAfterMinutes        int     `yaml:"buffer_after_minutes" json:"bufferAfterMinutes"`
	CancellationDeadlineHours int     `yaml:"cancellation_deadline_hours" json:"cancellationDeadlineHours"`
	CancellationFeeEnabled    bool    `yaml:"cancellation_fee_enabled" json:"cancellationFeeEnabled"`
	CancellationFeePercent    float64 `yaml:"cancellation_fee_percent" json:"cancellationFeePercent"`
	MaxConcurrentPerSlot      int     `yaml:"max_concurrent_per_slot" json:"maxConcurrentPerSlot"`
	MaxDailyPerClient         int     `yaml:"max_daily_per_client" json:"maxDailyPerClient"`
	MaxWeeklyPerClient        int     `yaml:"max_weekly_per_client" json:"maxWeeklyPerClient"`
	SlotGranularityMinutes    int     `yaml:"slot_granularity_minutes" json:"slotGranularityMinutes"`
}

// DefaultSlotGranularity applies when a tenant leaves SlotGranularityMinutes unset.
const DefaultSlotGranularity = 15 * time.Minute

// Granularity returns the slot step.
func (r BookingRules) Granularity() time.Duration {
	if r.SlotGranularityMinutes <= 0 {
		return DefaultSlotGranularity
	}
	return time.Duration(r.SlotGranularityMinutes) * time.Minute
}

// Buffer returns the padding applied around every booking.
func (r BookingRules) Buffer() Buffer {
	return Buffer{
		Before: time.Duration(r.BufferBeforeMinutes) * time.Minute,
		After:  time.Duration(r.BufferAfterMinutes) * time.Minute,
	}
}

// Buffer is the padding before and after a booking.
type Buffer struct {
	Before time.Duration
	After  time.Duration
}

// TenantScheduleConfig is a tenant's opening hours, closures and policy.
type TenantScheduleConfig struct {
	TenantID      string              `yaml:"id" json:"tenantId"`
	Name          string              `yaml:"name,omitempty" json:"name,omitempty"`
	Timezone      string              `yaml:"timezone" json:"timezone"`
	BusinessHours []BusinessHours     `yaml:"business_hours" json:"businessHours"`
	Closures      []ScheduleException `yaml:"closures,omitempty" json:"closures,omitempty"`
	Rules         BookingRules        `yaml:"rules" json:"rules"`
}

// ExceptionKind classifies a date-specific schedule exception.
type ExceptionKind string

const (
	ExceptionBlocked    ExceptionKind = "blocked"
	ExceptionExtraHours ExceptionKind = "extra_hours"
	ExceptionOverride   ExceptionKind = "override"
)

// ScheduleException overrides the recurring week for one date.
type ScheduleException struct {
	Date   string        `yaml:"date" json:"date"` // "2026-12-25"
	Kind   ExceptionKind `yaml:"kind" json:"kind"`
	Start  string        `yaml:"start,omitempty" json:"start,omitempty"`
	End    string        `yaml:"end,omitempty" json:"end,omitempty"`
	Reason string        `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// WorkInterval is a working block within a day.
type WorkInterval struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// StaffSchedule is one staff member's recurring week plus exceptions.
type StaffSchedule struct {
	StaffID    string                              `yaml:"id" json:"staffId"`
	TenantID   string                              `yaml:"-" json:"tenantId"`
	Name       string                              `yaml:"name,omitempty" json:"name,omitempty"`
	Week       map[timeutil.Weekday][]WorkInterval `yaml:"week,omitempty" json:"week,omitempty"`
	Exceptions []ScheduleException                 `yaml:"exceptions,omitempty" json:"exceptions,omitempty"`
}

// FollowsBusinessHours reports whether the staff member has no own week schedule.
func (s *StaffSchedule) FollowsBusinessHours() bool {
	for _, ivs := range s.Week {
		if len(ivs) > 0 {
			return false
		}
	}
	return true
}

// Service is a bookable treatment.
type Service struct {
	ID              string  `yaml:"id" json:"id"`
	TenantID        string  `yaml:"-" json:"tenantId"`
	Name            string  `yaml:"name" json:"name"`
	DurationMinutes int     `yaml:"duration_minutes" json:"durationMinutes"`
	Price           float64 `yaml:"price" json:"price"`
}

// Duration returns the service length.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Booking is a single appointment.
type Booking struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenantId"`
	StaffID         string        `json:"staffId"`
	ClientID        string        `json:"clientId"`
	ServiceID       string        `json:"serviceId"`
	ScheduledAt     time.Time     `json:"scheduledAt"`
	DurationMinutes int           `json:"durationMinutes"`
	Status          BookingStatus `json:"status"`
	SeriesID        string        `json:"seriesId,omitempty"`
	SessionNumber   int           `json:"sessionNumber,omitempty"`
	FeePercent      float64       `json:"feePercent,omitempty"`
	FeeCharged      *float64      `json:"feeCharged,omitempty"`
	CancelledAt     *time.Time    `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Duration returns the booked service length.
func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

// Interval returns [ScheduledAt, ScheduledAt+duration).
func (b *Booking) Interval() timeutil.Interval {
	return timeutil.NewInterval(b.ScheduledAt, b.Duration())
}

// TreatmentSeries groups the sessions of a multi-visit package.
type TreatmentSeries struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenantId"`
	ClientID      string       `json:"clientId"`
	ServiceID     string       `json:"serviceId"`
	StaffID       string       `json:"staffId"`
	TotalSessions int          `json:"totalSessions"`
	IntervalDays  int          `json:"intervalDays"`
	Status        SeriesStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// AvailabilitySlot is a bookable window. Never persisted.
type AvailabilitySlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DaySlots is the slot list for one calendar date.
type DaySlots struct {
	Date  string             `json:"date"`
	Slots []AvailabilitySlot `json:"slots"`
}

// ClientBookingCounts holds active bookings of a client around a date.
type ClientBookingCounts struct {
	Daily  int
	Weekly int
}

// StatusMetadata accompanies a booking status change.
type StatusMetadata struct {
	At         time.Time
	FeePercent float64
	FeeCharged *float64
}
