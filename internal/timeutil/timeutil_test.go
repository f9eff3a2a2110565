package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: Clock{9, 0}},
		{in: "23:59", want: Clock{23, 59}},
		{in: "00:00", want: Clock{0, 0}},
		{in: "9:00", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
		{in: "12-00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClosingClockAcceptsMidnight(t *testing.T) {
	c, err := ParseClosingClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, c)

	_, err = ParseClosingClock("24:30")
	assert.Error(t, err)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), c.On(day))
}

func TestWeekday(t *testing.T) {
	for i, d := range AllWeekdays {
		got, err := WeekdayFromIndex(i)
		require.NoError(t, err)
		assert.Equal(t, d, got)

		parsed, err := ParseWeekday(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	_, err := WeekdayFromIndex(7)
	assert.Error(t, err)
	_, err = WeekdayFromIndex(-1)
	assert.Error(t, err)

	d, err := ParseWeekday("Mon")
	require.NoError(t, err)
	assert.Equal(t, Monday, d)

	// 2026-03-02 is a Monday.
	assert.Equal(t, Monday, WeekdayOf(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
}

func TestWeekdayYAMLKeys(t *testing.T) {
	var week map[Weekday]string
	require.NoError(t, yaml.Unmarshal([]byte("monday: a\nsun: b\n"), &week))
	assert.Equal(t, map[Weekday]string{Monday: "a", Sunday: "b"}, week)
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a := NewInterval(base, time.Hour)

	tests := []struct {
		name string
		b    Interval
		want bool
	}{
		{"touching after", NewInterval(base.Add(time.Hour), time.Hour), false},
		{"touching before", NewInterval(base.Add(-time.Hour), time.Hour), false},
		{"partial", NewInterval(base.Add(30*time.Minute), time.Hour), true},
		{"inside", NewInterval(base.Add(10*time.Minute), 10*time.Minute), true},
		{"covering", NewInterval(base.Add(-time.Hour), 3*time.Hour), true},
		{"disjoint", NewInterval(base.Add(2*time.Hour), time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(a))
		})
	}
}

func TestIntervalIntersectAndPad(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	day := Interval{Start: base, End: base.Add(8 * time.Hour)}

	got, ok := day.Intersect(Interval{Start: base.Add(-time.Hour), End: base.Add(2 * time.Hour)})
	require.True(t, ok)
	assert.Equal(t, Interval{Start: base, End: base.Add(2 * time.Hour)}, got)

	_, ok = day.Intersect(Interval{Start: base.Add(8 * time.Hour), End: base.Add(9 * time.Hour)})
	assert.False(t, ok)

	padded := NewInterval(base, time.Hour).Pad(15*time.Minute, 10*time.Minute)
	assert.Equal(t, base.Add(-15*time.Minute), padded.Start)
	assert.Equal(t, base.Add(70*time.Minute), padded.End)
	assert.True(t, day.Contains(NewInterval(base, time.Hour)))
	assert.False(t, day.Contains(padded))
}

func TestMerge(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

	got := Merge([]Interval{
		{Start: h(14), End: h(18)},
		{Start: h(9), End: h(12)},
		{Start: h(12), End: h(13)},
		{Start: h(20), End: h(20)},
		{Start: h(15), End: h(16)},
	})
	assert.Equal(t, []Interval{{Start: h(9), End: h(13)}, {Start: h(14), End: h(18)}}, got)
}

func TestDatesAndWeeks(t *testing.T) {
	loc, err := LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	from, err := ParseDate("2026-03-28", loc)
	require.NoError(t, err)
	to, err := ParseDate("2026-03-31", loc)
	require.NoError(t, err)

	days := Dates(from, to)
	require.Len(t, days, 4)
	// DST switch on 2026-03-29 must not skip or repeat a date.
	assert.Equal(t, []string{"2026-03-28", "2026-03-29", "2026-03-30", "2026-03-31"},
		[]string{DateKey(days[0]), DateKey(days[1]), DateKey(days[2]), DateKey(days[3])})

	assert.Equal(t, "2026-03-23", DateKey(StartOfWeek(from)))
	assert.Equal(t, "2026-03-30", DateKey(StartOfWeek(days[2])))

	assert.True(t, SameDate(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC), time.Date(2026, 3, 3, 0, 10, 0, 0, time.UTC), loc))

	_, err = ParseDate("02-03-2026", loc)
	assert.Error(t, err)
	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}
