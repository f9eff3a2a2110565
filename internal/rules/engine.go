// Package rules enforces a tenant's booking policy.
package rules

import (
	"context"
	"fmt"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

// Engine applies one tenant's BookingRules in the tenant timezone.
type Engine struct {
	rules domain.BookingRules
	loc   *time.Location
}

// New builds an engine. A nil loc means UTC.
func New(rules domain.BookingRules, loc *time.Location) (*Engine, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := Validate(rules); err != nil {
		return nil, err
	}
	return &Engine{rules: rules, loc: loc}, nil
}

// Validate checks rule values for sanity.
func Validate(r domain.BookingRules) error {
	switch {
	case r.MinAdvanceHours < 0:
		return domain.InvalidConfig("rules.min_advance_hours", "must not be negative")
	case r.MaxAdvanceDays < 0:
		return domain.InvalidConfig("rules.max_advance_days", "must not be negative")
	case r.BufferBeforeMinutes < 0 || r.BufferAfterMinutes < 0:
		return domain.InvalidConfig("rules.buffer", "buffers must not be negative")
	case r.CancellationDeadlineHours < 0:
		return domain.InvalidConfig("rules.cancellation_deadline_hours", "must not be negative")
	case r.CancellationFeePercent < 0 || r.CancellationFeePercent > 100:
		return domain.InvalidConfig("rules.cancellation_fee_percent", "must be within 0-100, got %g", r.CancellationFeePercent)
	case r.MaxConcurrentPerSlot < 0 || r.MaxDailyPerClient < 0 || r.MaxWeeklyPerClient < 0:
		return domain.InvalidConfig("rules.limits", "caps must not be negative")
	case r.SlotGranularityMinutes < 0:
		return domain.InvalidConfig("rules.slot_granularity_minutes", "must not be negative")
	}
	return nil
}

// Rules returns the underlying policy.
func (e *Engine) Rules() domain.BookingRules {
	return e.rules
}

// Buffer returns the padding configured for the tenant.
func (e *Engine) Buffer() domain.Buffer {
	return e.rules.Buffer()
}

// ValidateOption adjusts ValidateRequestedTime.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	ignoreHorizon bool
}

// IgnoreHorizon skips the max-advance check. Treatment series sessions are committed up front
// and may legitimately land beyond the booking horizon.
func IgnoreHorizon() ValidateOption {
	return func(o *validateOptions) { o.ignoreHorizon = true }
}

// ValidateRequestedTime checks advance notice, horizon and same-day policy.
// All checks run so the error lists every violated constraint.
func (e *Engine) ValidateRequestedTime(requested, now time.Time, opts ...ValidateOption) error {
	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	var violations []domain.Violation
	gap := requested.Sub(now)

	minAdvance := time.Duration(e.rules.MinAdvanceHours * float64(time.Hour))
	if gap < 0 || gap < minAdvance {
		violations = append(violations, domain.TooSoon)
	}
	if !o.ignoreHorizon && e.rules.MaxAdvanceDays > 0 && gap > time.Duration(e.rules.MaxAdvanceDays)*24*time.Hour {
		violations = append(violations, domain.TooFarAhead)
	}
	if !e.rules.SameDayAllowed && timeutil.SameDate(requested, now, e.loc) {
		violations = append(violations, domain.SameDayNotAllowed)
	}

	if len(violations) > 0 {
		return &domain.RuleViolationError{Violations: violations}
	}
	return nil
}

// Outcome describes what happens if a booking is cancelled now.
type Outcome struct {
	Allowed     bool
	FeeRequired bool
	FeePercent  float64
}

// CancellationOutcome evaluates cancellation of an appointment starting at appointment.
// Only strictly past appointments are refused.
func (e *Engine) CancellationOutcome(appointment, now time.Time) Outcome {
	if appointment.Before(now) {
		return Outcome{}
	}
	out := Outcome{Allowed: true}
	deadline := time.Duration(e.rules.CancellationDeadlineHours) * time.Hour
	if e.rules.CancellationFeeEnabled && appointment.Sub(now) < deadline {
		out.FeeRequired = true
		out.FeePercent = e.rules.CancellationFeePercent
	}
	return out
}

// Buffered is a booking interval with its padding.
type Buffered struct {
	BufferedStart time.Time
	Start         time.Time
	End           time.Time
	BufferedEnd   time.Time
}

// Occupied is the padded range the staff member is unavailable for.
func (b Buffered) Occupied() timeutil.Interval {
	return timeutil.Interval{Start: b.BufferedStart, End: b.BufferedEnd}
}

// ApplyBuffer pads [start, start+duration) with the tenant buffers.
func (e *Engine) ApplyBuffer(start time.Time, duration time.Duration) Buffered {
	return ApplyBuffer(e.rules.Buffer(), start, duration)
}

// ApplyBuffer pads [start, start+duration) with buf.
func ApplyBuffer(buf domain.Buffer, start time.Time, duration time.Duration) Buffered {
	end := start.Add(duration)
	return Buffered{
		BufferedStart: start.Add(-buf.Before),
		Start:         start,
		End:           end,
		BufferedEnd:   end.Add(buf.After),
	}
}

// WithinClientLimits fails with LimitExceeded when another booking on day would exceed the
// client's daily or weekly cap.
func (e *Engine) WithinClientLimits(ctx context.Context, counter domain.ClientCounter, tenantID, clientID string, day time.Time) error {
	if e.rules.MaxDailyPerClient <= 0 && e.rules.MaxWeeklyPerClient <= 0 {
		return nil
	}
	counts, err := counter.GetClientBookingCounts(ctx, tenantID, clientID, day.In(e.loc))
	if err != nil {
		return fmt.Errorf("client booking counts: %w", err)
	}
	if e.rules.MaxDailyPerClient > 0 && counts.Daily >= e.rules.MaxDailyPerClient {
		return &domain.RuleViolationError{Violations: []domain.Violation{domain.LimitExceeded}}
	}
	if e.rules.MaxWeeklyPerClient > 0 && counts.Weekly >= e.rules.MaxWeeklyPerClient {
		return &domain.RuleViolationError{Violations: []domain.Violation{domain.LimitExceeded}}
	}
	return nil
}
