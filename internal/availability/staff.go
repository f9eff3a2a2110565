package availability

import (
	"fmt"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

type span struct {
	start, end timeutil.Clock
}

func (s span) on(day time.Time) timeutil.Interval {
	return timeutil.Interval{Start: s.start.On(day), End: s.end.On(day)}
}

type dayException struct {
	blocked   bool
	overrides []span
	extras    []span
}

// StaffHours is a validated, parsed StaffSchedule.
type StaffHours struct {
	StaffID         string
	followsBusiness bool
	week            [7][]span
	exceptions      map[string]*dayException
}

// ParseStaffSchedule validates every interval and exception of s.
// Malformed data fails with domain.ErrInvalidConfig.
func ParseStaffSchedule(s *domain.StaffSchedule) (*StaffHours, error) {
	if s == nil {
		return nil, domain.InvalidConfig("staff", "schedule is missing")
	}
	h := &StaffHours{
		StaffID:         s.StaffID,
		followsBusiness: s.FollowsBusinessHours(),
		exceptions:      make(map[string]*dayException),
	}

	for day, intervals := range s.Week {
		if !day.Valid() {
			return nil, domain.InvalidConfig(fmt.Sprintf("staff[%s].week", s.StaffID), "invalid weekday %d", int(day))
		}
		for i, iv := range intervals {
			sp, err := parseSpan(fmt.Sprintf("staff[%s].week.%s[%d]", s.StaffID, day, i), iv.Start, iv.End)
			if err != nil {
				return nil, err
			}
			h.week[day] = append(h.week[day], sp)
		}
	}

	for i, ex := range s.Exceptions {
		prefix := fmt.Sprintf("staff[%s].exceptions[%d]", s.StaffID, i)
		if _, err := time.Parse(timeutil.DateLayout, ex.Date); err != nil {
			return nil, domain.InvalidConfig(prefix+".date", "invalid date %q, expected YYYY-MM-DD", ex.Date)
		}
		de := h.exceptions[ex.Date]
		if de == nil {
			de = &dayException{}
			h.exceptions[ex.Date] = de
		}
		switch ex.Kind {
		case domain.ExceptionBlocked:
			de.blocked = true
		case domain.ExceptionOverride, domain.ExceptionExtraHours:
			sp, err := parseSpan(prefix, ex.Start, ex.End)
			if err != nil {
				return nil, err
			}
			if ex.Kind == domain.ExceptionOverride {
				de.overrides = append(de.overrides, sp)
			} else {
				de.extras = append(de.extras, sp)
			}
		default:
			return nil, domain.InvalidConfig(prefix+".kind", "unknown exception kind %q", ex.Kind)
		}
	}
	return h, nil
}

func parseSpan(prefix, startStr, endStr string) (span, error) {
	start, err := timeutil.ParseClock(startStr)
	if err != nil {
		return span{}, domain.InvalidConfig(prefix+".start", "%v", err)
	}
	end, err := timeutil.ParseClosingClock(endStr)
	if err != nil {
		return span{}, domain.InvalidConfig(prefix+".end", "%v", err)
	}
	if !start.Before(end) {
		return span{}, domain.InvalidConfig(prefix, "start %s must be before end %s", start, end)
	}
	return span{start: start, end: end}, nil
}

// intervals returns the staff member's own working intervals on day (midnight in tenant tz),
// before clipping to business hours. useBusiness is true when the day falls back to the
// tenant's opening hours.
func (h *StaffHours) intervals(day time.Time) (ivs []timeutil.Interval, useBusiness bool) {
	de := h.exceptions[timeutil.DateKey(day)]
	if de != nil && de.blocked {
		return nil, false
	}

	var base []span
	switch {
	case de != nil && len(de.overrides) > 0:
		base = de.overrides
	case h.followsBusiness:
		// Business hours already bound the day; extra hours cannot widen them.
		return nil, true
	default:
		base = h.week[timeutil.WeekdayOf(day)]
	}
	if de != nil {
		base = append(append([]span(nil), base...), de.extras...)
	}

	for _, sp := range base {
		ivs = append(ivs, sp.on(day))
	}
	return ivs, false
}
