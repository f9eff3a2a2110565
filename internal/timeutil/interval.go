package timeutil

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the calendar date format used across config, storage and the API.
const DateLayout = "2006-01-02"

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval builds [start, start+d).
func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Duration of the interval; zero for empty or inverted ranges.
func (i Interval) Duration() time.Duration {
	if !i.End.After(i.Start) {
		return 0
	}
	return i.End.Sub(i.Start)
}

// IsEmpty reports whether the interval contains no instant.
func (i Interval) IsEmpty() bool {
	return !i.End.After(i.Start)
}

// Overlaps is the half-open intersection test. Touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Pad widens the interval by before and after.
func (i Interval) Pad(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// Intersect returns the common part of i and o, if any.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	start := i.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := i.End
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Merge sorts intervals and joins the overlapping or touching ones. Empty intervals are dropped.
func Merge(in []Interval) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.IsEmpty() {
			out = append(out, iv)
		}
	}
	if len(out) < 2 {
		return out
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Start.Before(out[b].Start) })

	merged := out[:1]
	for _, iv := range out[1:] {
		last := &merged[len(merged)-1]
		if iv.Start.After(last.End) {
			merged = append(merged, iv)
			continue
		}
		if iv.End.After(last.End) {
			last.End = iv.End
		}
	}
	return merged
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days keeping the wall-clock time.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// SameDate reports whether a and b fall on the same calendar date in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateKey formats t as YYYY-MM-DD in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Dates returns every calendar date from..to inclusive, each at midnight in from's location.
func Dates(from, to time.Time) []time.Time {
	from = StartOfDay(from)
	to = StartOfDay(to.In(from.Location()))
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// StartOfWeek returns midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}
