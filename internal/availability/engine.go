// Package availability computes bookable slots for a staff member.
package availability

import (
	"context"
	"fmt"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"

	"github.com/rs/zerolog"
)

// MaxRangeDays caps a single availability query.
const MaxRangeDays = 90

// Reader is the storage the engine reads from.
type Reader interface {
	domain.ScheduleReader
	domain.BookingReader
}

// Engine loads per-request plans and turns them into slot lists.
type Engine struct {
	store  Reader
	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates an availability engine. now defaults to time.Now.
func NewEngine(store Reader, now func() time.Time, logger *zerolog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "availability").Logger()
	}
	return &Engine{store: store, now: now, logger: l}
}

// Query describes a slot search. From and To are civil dates, inclusive.
type Query struct {
	TenantID    string
	StaffID     string
	From        time.Time
	To          time.Time
	Duration    time.Duration
	Granularity time.Duration
}

// Prepare loads tenant config, the staff schedule and active bookings around [from, to]
// and builds a plan. The booking window is widened by a day on each side so bookings
// spilling over midnight are still seen.
func (e *Engine) Prepare(ctx context.Context, tenantID, staffID string, from, to time.Time) (*Plan, error) {
	cfg, err := e.store.GetTenantScheduleConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant config: %w", err)
	}
	staff, err := e.store.GetStaffSchedule(ctx, tenantID, staffID)
	if err != nil {
		return nil, fmt.Errorf("get staff schedule: %w", err)
	}

	loc, err := timeutil.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, domain.InvalidConfig("timezone", "%v", err)
	}
	rangeStart := civil(from, loc).AddDate(0, 0, -1)
	rangeEnd := civil(to, loc).AddDate(0, 0, 2)

	existing, err := e.store.GetBookingsForStaff(ctx, tenantID, staffID, rangeStart, rangeEnd, domain.ActiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("get staff bookings: %w", err)
	}

	var tenant []domain.Booking
	if cfg.Rules.MaxConcurrentPerSlot > 0 {
		tenant, err = e.store.GetBookingsForTenant(ctx, tenantID, rangeStart, rangeEnd, domain.ActiveStatuses)
		if err != nil {
			return nil, fmt.Errorf("get tenant bookings: %w", err)
		}
	}

	return NewPlan(cfg, staff, existing, tenant)
}

// ComputeSlots returns one slot list per date in the query range, chronologically.
func (e *Engine) ComputeSlots(ctx context.Context, q Query) ([]domain.DaySlots, error) {
	if q.Duration <= 0 {
		return nil, domain.InvalidArgument("service duration must be positive")
	}
	if q.To.Before(q.From) {
		return nil, domain.InvalidArgument("dateFrom must not be after dateTo")
	}
	if days := len(timeutil.Dates(q.From, q.To)); days > MaxRangeDays {
		return nil, domain.InvalidArgument("date range of %d days exceeds %d", days, MaxRangeDays)
	}

	plan, err := e.Prepare(ctx, q.TenantID, q.StaffID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	now := e.now()
	from := plan.Day(q.From)
	to := plan.Day(q.To)

	var out []domain.DaySlots
	for _, day := range timeutil.Dates(from, to) {
		out = append(out, domain.DaySlots{
			Date:  timeutil.DateKey(day),
			Slots: plan.SlotsForDay(day, q.Duration, q.Granularity, now),
		})
	}

	e.logger.Debug().
		Str("tenant_id", q.TenantID).
		Str("staff_id", q.StaffID).
		Int("days", len(out)).
		Msg("computed availability")
	return out, nil
}

func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
