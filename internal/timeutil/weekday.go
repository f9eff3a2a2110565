// Package timeutil holds the calendar primitives shared by the scheduling packages.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is a day of the week, Sunday=0 through Saturday=6.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// AllWeekdays lists every weekday in index order.
var AllWeekdays = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

func (d Weekday) String() string {
	switch d {
	case Sunday:
		return "sunday"
	case Monday:
		return "monday"
	case Tuesday:
		return "tuesday"
	case Wednesday:
		return "wednesday"
	case Thursday:
		return "thursday"
	case Friday:
		return "friday"
	case Saturday:
		return "saturday"
	default:
		return fmt.Sprintf("weekday(%d)", int(d))
	}
}

// Valid reports whether d is one of the seven weekdays.
func (d Weekday) Valid() bool {
	return d >= Sunday && d <= Saturday
}

// WeekdayFromIndex converts a 0-6 day index.
func WeekdayFromIndex(i int) (Weekday, error) {
	d := Weekday(i)
	if !d.Valid() {
		return 0, fmt.Errorf("invalid weekday index %d, must be 0-6 (0=Sun)", i)
	}
	return d, nil
}

// ParseWeekday accepts full or three-letter English names, case-insensitive.
func ParseWeekday(name string) (Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, d := range AllWeekdays {
		s := d.String()
		if n == s || n == s[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday name %q", name)
}

// WeekdayOf returns the weekday of t in t's location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(t.Weekday())
}

// MarshalText encodes the weekday by name.
func (d Weekday) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts a weekday name or a 0-6 index.
func (d *Weekday) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		w, err := WeekdayFromIndex(int(s[0] - '0'))
		if err != nil {
			return err
		}
		*d = w
		return nil
	}
	w, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = w
	return nil
}
