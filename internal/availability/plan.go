package availability

import (
	"fmt"
	"time"

	"salonsched/internal/conflict"
	"salonsched/internal/domain"
	"salonsched/internal/hours"
	"salonsched/internal/rules"
	"salonsched/internal/timeutil"
)

// Plan is the per-request snapshot of everything slot computation needs for one staff member.
// It is built fresh for each top-level request and never shared across requests.
type Plan struct {
	TenantID string
	StaffID  string

	Hours *hours.Resolver
	Rules *rules.Engine
	Staff *StaffHours

	existing []domain.Booking
	tenant   []domain.Booking
	exceptID string
	opts     []rules.ValidateOption
}

// NewPlan assembles a plan from already loaded data. Malformed config fails with domain.ErrInvalidConfig.
func NewPlan(cfg *domain.TenantScheduleConfig, staff *domain.StaffSchedule, existing, tenant []domain.Booking) (*Plan, error) {
	res, err := hours.New(cfg)
	if err != nil {
		return nil, err
	}
	eng, err := rules.New(cfg.Rules, res.Location())
	if err != nil {
		return nil, err
	}
	sh, err := ParseStaffSchedule(staff)
	if err != nil {
		return nil, err
	}
	return &Plan{
		TenantID: cfg.TenantID,
		StaffID:  staff.StaffID,
		Hours:    res,
		Rules:    eng,
		Staff:    sh,
		existing: existing,
		tenant:   tenant,
	}, nil
}

// Location is the tenant timezone.
func (p *Plan) Location() *time.Location {
	return p.Hours.Location()
}

// Exclude ignores the booking with id during conflict checks (used when rescheduling it).
func (p *Plan) Exclude(id string) {
	p.exceptID = id
}

// WithValidateOptions passes options to every ValidateRequestedTime call.
func (p *Plan) WithValidateOptions(opts ...rules.ValidateOption) {
	p.opts = append(p.opts, opts...)
}

// Add records a booking placed during this request so later placements see it.
func (p *Plan) Add(b domain.Booking) {
	p.existing = append(p.existing, b)
	p.tenant = append(p.tenant, b)
}

// Existing returns the staff member's bookings known to the plan.
func (p *Plan) Existing() []domain.Booking {
	return p.existing
}

// Day anchors t's civil date at midnight in the tenant timezone.
func (p *Plan) Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.Location())
}

// WorkingIntervals returns the staff member's effective working intervals on day,
// clipped to the tenant's opening hours.
func (p *Plan) WorkingIntervals(day time.Time) []timeutil.Interval {
	day = timeutil.StartOfDay(day.In(p.Location()))
	biz, open := p.Hours.HoursFor(day)
	if !open {
		return nil
	}

	own, useBusiness := p.Staff.intervals(day)
	if useBusiness {
		return []timeutil.Interval{biz}
	}

	var out []timeutil.Interval
	for _, iv := range timeutil.Merge(own) {
		if clipped, ok := iv.Intersect(biz); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// SlotsForDay lists bookable starts on day for a service of length duration.
func (p *Plan) SlotsForDay(day time.Time, duration, granularity time.Duration, now time.Time) []domain.AvailabilitySlot {
	if duration <= 0 {
		return nil
	}
	if granularity <= 0 {
		granularity = p.Rules.Rules().Granularity()
	}
	after := p.Rules.Buffer().After

	slots := []domain.AvailabilitySlot{}
	for _, w := range p.WorkingIntervals(day) {
		for start := w.Start; !start.Add(duration + after).After(w.End); start = start.Add(granularity) {
			iv := timeutil.NewInterval(start, duration)
			if p.blocked(iv) != nil {
				continue
			}
			if p.Rules.ValidateRequestedTime(start, now, p.opts...) != nil {
				continue
			}
			slots = append(slots, domain.AvailabilitySlot{Start: iv.Start, End: iv.End})
		}
	}
	return slots
}

// FirstSlotFrom returns the earliest valid slot starting at or after notBefore,
// searching notBefore's date and the following windowDays dates.
func (p *Plan) FirstSlotFrom(notBefore time.Time, windowDays int, duration time.Duration, now time.Time) (domain.AvailabilitySlot, bool) {
	notBefore = notBefore.In(p.Location())
	first := timeutil.StartOfDay(notBefore)
	for i := 0; i <= windowDays; i++ {
		for _, s := range p.SlotsForDay(first.AddDate(0, 0, i), duration, 0, now) {
			if !s.Start.Before(notBefore) {
				return s, true
			}
		}
	}
	return domain.AvailabilitySlot{}, false
}

// CheckSlot verifies that iv lies inside working hours and collides with nothing.
// Failures wrap domain.ErrSlotUnavailable.
func (p *Plan) CheckSlot(iv timeutil.Interval) error {
	if !p.withinWorkingHours(iv) {
		return fmt.Errorf("%w: outside working hours", domain.ErrSlotUnavailable)
	}
	return p.blocked(iv)
}

func (p *Plan) withinWorkingHours(iv timeutil.Interval) bool {
	padded := timeutil.Interval{Start: iv.Start, End: iv.End.Add(p.Rules.Buffer().After)}
	for _, w := range p.WorkingIntervals(iv.Start) {
		if w.Contains(padded) {
			return true
		}
	}
	return false
}

func (p *Plan) blocked(iv timeutil.Interval) error {
	if b, hit := conflict.FirstConflict(iv, p.existing, p.Rules.Buffer(), p.exceptID); hit {
		return fmt.Errorf("%w: overlaps booking %s", domain.ErrSlotUnavailable, b.ID)
	}
	if limit := p.Rules.Rules().MaxConcurrentPerSlot; limit > 0 {
		if conflict.CountOverlapping(iv, p.tenant, p.exceptID) >= limit {
			return fmt.Errorf("%w: tenant capacity of %d reached", domain.ErrSlotUnavailable, limit)
		}
	}
	return nil
}
