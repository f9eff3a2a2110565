package timeutil

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// EndOfDay is the 24:00 closing boundary.
var EndOfDay = Clock{Hour: 24}

// ParseClock parses a strict "HH:MM" string in the range 00:00-23:59.
func ParseClock(s string) (Clock, error) {
	c, err := parseHHMM(s)
	if err != nil {
		return Clock{}, err
	}
	if c.Hour > 23 {
		return Clock{}, fmt.Errorf("invalid time %q: hour out of range", s)
	}
	return c, nil
}

// ParseClosingClock is ParseClock that also accepts "24:00".
func ParseClosingClock(s string) (Clock, error) {
	c, err := parseHHMM(s)
	if err != nil {
		return Clock{}, err
	}
	if c.Hour == 24 && c.Minute == 0 {
		return c, nil
	}
	if c.Hour > 23 {
		return Clock{}, fmt.Errorf("invalid time %q: hour out of range", s)
	}
	return c, nil
}

func parseHHMM(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	digits := [4]byte{s[0], s[1], s[3], s[4]}
	for _, b := range digits {
		if b < '0' || b > '9' {
			return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 {
		return Clock{}, fmt.Errorf("invalid time %q: minute out of range", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is earlier in the day than o.
func (c Clock) Before(o Clock) bool {
	return c.Minutes() < o.Minutes()
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On places the clock on date's calendar day in date's location.
// 24:00 resolves to midnight of the following day.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

// ClockOf returns the wall-clock time of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}
