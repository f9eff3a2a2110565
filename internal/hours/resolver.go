// Package hours resolves a tenant's opening hours for a calendar date.
package hours

import (
	"fmt"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

type dayHours struct {
	open, close timeutil.Clock
	closed      bool
}

// Resolver answers opening-hour questions for one tenant.
type Resolver struct {
	loc     *time.Location
	week    [7]dayHours
	blocked map[string]bool
	special map[string]dayHours
}

// New validates cfg and builds a resolver. Any malformed entry fails with domain.ErrInvalidConfig.
func New(cfg *domain.TenantScheduleConfig) (*Resolver, error) {
	if cfg == nil {
		return nil, domain.InvalidConfig("tenant", "schedule config is missing")
	}

	loc, err := timeutil.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, domain.InvalidConfig("timezone", "%v", err)
	}

	r := &Resolver{
		loc:     loc,
		blocked: make(map[string]bool),
		special: make(map[string]dayHours),
	}

	if len(cfg.BusinessHours) != 7 {
		return nil, domain.InvalidConfig("business_hours", "expected 7 entries, got %d", len(cfg.BusinessHours))
	}
	var seen [7]bool
	for i, bh := range cfg.BusinessHours {
		prefix := fmt.Sprintf("business_hours[%d]", i)
		if !bh.Weekday.Valid() {
			return nil, domain.InvalidConfig(prefix+".weekday", "invalid weekday %d", int(bh.Weekday))
		}
		if seen[bh.Weekday] {
			return nil, domain.InvalidConfig(prefix+".weekday", "duplicate entry for %s", bh.Weekday)
		}
		seen[bh.Weekday] = true

		if bh.Closed {
			r.week[bh.Weekday] = dayHours{closed: true}
			continue
		}
		dh, err := parseHours(prefix, bh.Open, bh.Close)
		if err != nil {
			return nil, err
		}
		r.week[bh.Weekday] = dh
	}

	for i, ex := range cfg.Closures {
		prefix := fmt.Sprintf("closures[%d]", i)
		if _, err := timeutil.ParseDate(ex.Date, loc); err != nil {
			return nil, domain.InvalidConfig(prefix+".date", "%v", err)
		}
		switch ex.Kind {
		case domain.ExceptionBlocked:
			r.blocked[ex.Date] = true
		case domain.ExceptionOverride:
			dh, err := parseHours(prefix, ex.Start, ex.End)
			if err != nil {
				return nil, err
			}
			r.special[ex.Date] = dh
		default:
			return nil, domain.InvalidConfig(prefix+".kind", "unsupported tenant exception kind %q", ex.Kind)
		}
	}

	return r, nil
}

func parseHours(prefix, openStr, closeStr string) (dayHours, error) {
	open, err := timeutil.ParseClock(openStr)
	if err != nil {
		return dayHours{}, domain.InvalidConfig(prefix+".open", "%v", err)
	}
	closeAt, err := timeutil.ParseClosingClock(closeStr)
	if err != nil {
		return dayHours{}, domain.InvalidConfig(prefix+".close", "%v", err)
	}
	if !open.Before(closeAt) {
		return dayHours{}, domain.InvalidConfig(prefix, "open %s must be before close %s", open, closeAt)
	}
	return dayHours{open: open, close: closeAt}, nil
}

// Location is the tenant timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

func (r *Resolver) resolve(date time.Time) dayHours {
	date = date.In(r.loc)
	key := timeutil.DateKey(date)
	if r.blocked[key] {
		return dayHours{closed: true}
	}
	if dh, ok := r.special[key]; ok {
		return dh
	}
	return r.week[timeutil.WeekdayOf(date)]
}

// IsOpen reports whether the tenant opens at all on date's calendar day.
func (r *Resolver) IsOpen(date time.Time) bool {
	return !r.resolve(date).closed
}

// HoursFor returns the opening interval for date's calendar day in the tenant timezone.
func (r *Resolver) HoursFor(date time.Time) (timeutil.Interval, bool) {
	dh := r.resolve(date)
	if dh.closed {
		return timeutil.Interval{}, false
	}
	day := timeutil.StartOfDay(date.In(r.loc))
	return timeutil.Interval{Start: dh.open.On(day), End: dh.close.On(day)}, true
}

// NextOpenMoment returns the earliest instant at or after after when the tenant is open,
// looking at most 7 days ahead.
func (r *Resolver) NextOpenMoment(after time.Time) (time.Time, bool) {
	after = after.In(r.loc)
	day := timeutil.StartOfDay(after)
	for i := 0; i <= 7; i++ {
		hrs, ok := r.HoursFor(day.AddDate(0, 0, i))
		if !ok || !hrs.End.After(after) {
			continue
		}
		if hrs.Start.After(after) {
			return hrs.Start, true
		}
		return after, true
	}
	return time.Time{}, false
}
