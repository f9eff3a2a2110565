package hours

import (
	"testing"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdaysConfig() *domain.TenantScheduleConfig {
	cfg := &domain.TenantScheduleConfig{TenantID: "t1", Timezone: "Europe/Berlin"}
	for _, d := range timeutil.AllWeekdays {
		bh := domain.BusinessHours{Weekday: d, Open: "09:00", Close: "17:00"}
		if d == timeutil.Saturday || d == timeutil.Sunday {
			bh = domain.BusinessHours{Weekday: d, Closed: true}
		}
		cfg.BusinessHours = append(cfg.BusinessHours, bh)
	}
	return cfg
}

func berlin(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestResolverWeeklyHours(t *testing.T) {
	r, err := New(weekdaysConfig())
	require.NoError(t, err)
	loc := berlin(t)

	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, loc)
	assert.True(t, r.IsOpen(monday))

	hrs, ok := r.HoursFor(monday)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, loc), hrs.Start)
	assert.Equal(t, time.Date(2026, 3, 2, 17, 0, 0, 0, loc), hrs.End)

	saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	assert.False(t, r.IsOpen(saturday))
	_, ok = r.HoursFor(saturday)
	assert.False(t, ok)
}

func TestResolverBlockedClosureWins(t *testing.T) {
	cfg := weekdaysConfig()
	cfg.Closures = []domain.ScheduleException{
		{Date: "2026-03-02", Kind: domain.ExceptionBlocked, Reason: "holiday"},
		{Date: "2026-03-07", Kind: domain.ExceptionBlocked},
	}
	r, err := New(cfg)
	require.NoError(t, err)
	loc := berlin(t)

	for _, d := range []time.Time{
		time.Date(2026, 3, 2, 0, 0, 0, 0, loc),
		time.Date(2026, 3, 2, 23, 59, 0, 0, loc),
		time.Date(2026, 3, 7, 10, 0, 0, 0, loc),
	} {
		assert.False(t, r.IsOpen(d), d.String())
	}
	assert.True(t, r.IsOpen(time.Date(2026, 3, 3, 10, 0, 0, 0, loc)))
}

func TestResolverSpecialHours(t *testing.T) {
	cfg := weekdaysConfig()
	cfg.Closures = []domain.ScheduleException{
		{Date: "2026-03-07", Kind: domain.ExceptionOverride, Start: "10:00", End: "14:00"},
	}
	r, err := New(cfg)
	require.NoError(t, err)
	loc := berlin(t)

	hrs, ok := r.HoursFor(time.Date(2026, 3, 7, 0, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, 10, hrs.Start.Hour())
	assert.Equal(t, 14, hrs.End.Hour())
}

func TestResolverUsesTenantTimezone(t *testing.T) {
	r, err := New(weekdaysConfig())
	require.NoError(t, err)

	// Sunday 23:30 UTC is already Monday 00:30 in Berlin.
	assert.True(t, r.IsOpen(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)))
}

func TestNextOpenMoment(t *testing.T) {
	r, err := New(weekdaysConfig())
	require.NoError(t, err)
	loc := berlin(t)

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"before opening", time.Date(2026, 3, 2, 7, 0, 0, 0, loc), time.Date(2026, 3, 2, 9, 0, 0, 0, loc)},
		{"during opening", time.Date(2026, 3, 2, 11, 20, 0, 0, loc), time.Date(2026, 3, 2, 11, 20, 0, 0, loc)},
		{"at closing", time.Date(2026, 3, 2, 17, 0, 0, 0, loc), time.Date(2026, 3, 3, 9, 0, 0, 0, loc)},
		{"friday evening", time.Date(2026, 3, 6, 18, 0, 0, 0, loc), time.Date(2026, 3, 9, 9, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.NextOpenMoment(tt.after)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestNextOpenMomentFullyClosed(t *testing.T) {
	cfg := &domain.TenantScheduleConfig{TenantID: "t1", Timezone: "UTC"}
	for _, d := range timeutil.AllWeekdays {
		cfg.BusinessHours = append(cfg.BusinessHours, domain.BusinessHours{Weekday: d, Closed: true})
	}
	r, err := New(cfg)
	require.NoError(t, err)

	_, ok := r.NextOpenMoment(time.Now())
	assert.False(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.TenantScheduleConfig)
		field  string
	}{
		{"malformed open", func(c *domain.TenantScheduleConfig) { c.BusinessHours[1].Open = "9:00" }, "business_hours[1].open"},
		{"malformed close", func(c *domain.TenantScheduleConfig) { c.BusinessHours[2].Close = "17h" }, "business_hours[2].close"},
		{"open after close", func(c *domain.TenantScheduleConfig) { c.BusinessHours[3].Open = "18:00" }, "business_hours[3]"},
		{"missing weekday", func(c *domain.TenantScheduleConfig) { c.BusinessHours = c.BusinessHours[:6] }, "business_hours"},
		{"duplicate weekday", func(c *domain.TenantScheduleConfig) { c.BusinessHours[6].Weekday = timeutil.Monday }, "business_hours[6].weekday"},
		{"bad timezone", func(c *domain.TenantScheduleConfig) { c.Timezone = "Nowhere/Land" }, "timezone"},
		{"bad closure date", func(c *domain.TenantScheduleConfig) {
			c.Closures = []domain.ScheduleException{{Date: "25.12.2026", Kind: domain.ExceptionBlocked}}
		}, "closures[0].date"},
		{"extra hours at tenant level", func(c *domain.TenantScheduleConfig) {
			c.Closures = []domain.ScheduleException{{Date: "2026-12-24", Kind: domain.ExceptionExtraHours, Start: "08:00", End: "09:00"}}
		}, "closures[0].kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := weekdaysConfig()
			tt.mutate(cfg)
			_, err := New(cfg)
			require.ErrorIs(t, err, domain.ErrInvalidConfig)

			var ce *domain.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
