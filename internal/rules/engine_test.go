package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"salonsched/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) GetClientBookingCounts(ctx context.Context, tenantID, clientID string, day time.Time) (domain.ClientBookingCounts, error) {
	args := m.Called(ctx, tenantID, clientID, day)
	return args.Get(0).(domain.ClientBookingCounts), args.Error(1)
}

func newEngine(t *testing.T, r domain.BookingRules) *Engine {
	t.Helper()
	e, err := New(r, time.UTC)
	require.NoError(t, err)
	return e
}

func TestValidateRequestedTimeMinAdvance(t *testing.T) {
	e := newEngine(t, domain.BookingRules{MinAdvanceHours: 2, SameDayAllowed: true})
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	err := e.ValidateRequestedTime(now.Add(time.Hour), now)
	require.ErrorIs(t, err, domain.ErrRuleViolation)
	assert.Equal(t, []domain.Violation{domain.TooSoon}, domain.Violations(err))

	assert.NoError(t, e.ValidateRequestedTime(now.Add(3*time.Hour), now))
	assert.NoError(t, e.ValidateRequestedTime(now.Add(2*time.Hour), now))
}

func TestValidateRequestedTimeReportsAllViolations(t *testing.T) {
	e := newEngine(t, domain.BookingRules{MinAdvanceHours: 1, MaxAdvanceDays: 30, SameDayAllowed: false})
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		requested time.Time
		want      []domain.Violation
	}{
		{"same day and too soon", now.Add(30 * time.Minute), []domain.Violation{domain.TooSoon, domain.SameDayNotAllowed}},
		{"same day only", now.Add(5 * time.Hour), []domain.Violation{domain.SameDayNotAllowed}},
		{"past", now.Add(-time.Hour), []domain.Violation{domain.TooSoon, domain.SameDayNotAllowed}},
		{"too far", now.AddDate(0, 0, 31), []domain.Violation{domain.TooFarAhead}},
		{"next day", now.Add(24 * time.Hour), nil},
		{"exactly at horizon", now.AddDate(0, 0, 30), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ValidateRequestedTime(tt.requested, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, domain.Violations(err))
		})
	}

	assert.NoError(t, e.ValidateRequestedTime(now.AddDate(0, 0, 60), now, IgnoreHorizon()))
}

func TestValidateRequestedTimeZeroMinAdvanceRejectsPast(t *testing.T) {
	e := newEngine(t, domain.BookingRules{SameDayAllowed: true})
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, []domain.Violation{domain.TooSoon}, domain.Violations(e.ValidateRequestedTime(now.Add(-time.Minute), now)))
	assert.NoError(t, e.ValidateRequestedTime(now, now))
}

func TestSameDayUsesTenantTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	e, err := New(domain.BookingRules{}, loc)
	require.NoError(t, err)

	// 23:00 and 03:00 UTC next day are the same New York evening.
	now := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	err = e.ValidateRequestedTime(time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC), now)
	assert.Equal(t, []domain.Violation{domain.SameDayNotAllowed}, domain.Violations(err))
}

func TestCancellationOutcome(t *testing.T) {
	e := newEngine(t, domain.BookingRules{
		CancellationDeadlineHours: 24,
		CancellationFeeEnabled:    true,
		CancellationFeePercent:    50,
	})
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		appointment time.Time
		want        Outcome
	}{
		{"past", now.Add(-time.Second), Outcome{}},
		{"exactly now", now, Outcome{Allowed: true, FeeRequired: true, FeePercent: 50}},
		{"inside deadline", now.Add(23 * time.Hour), Outcome{Allowed: true, FeeRequired: true, FeePercent: 50}},
		{"at deadline", now.Add(24 * time.Hour), Outcome{Allowed: true}},
		{"well ahead", now.Add(72 * time.Hour), Outcome{Allowed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CancellationOutcome(tt.appointment, now))
		})
	}
}

func TestCancellationOutcomeFeesDisabled(t *testing.T) {
	e := newEngine(t, domain.BookingRules{CancellationDeadlineHours: 24, CancellationFeePercent: 50})
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, Outcome{Allowed: true}, e.CancellationOutcome(now.Add(time.Hour), now))
}

func TestApplyBuffer(t *testing.T) {
	e := newEngine(t, domain.BookingRules{BufferBeforeMinutes: 15, BufferAfterMinutes: 10})
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	b := e.ApplyBuffer(start, time.Hour)
	assert.Equal(t, start.Add(-15*time.Minute), b.BufferedStart)
	assert.Equal(t, start, b.Start)
	assert.Equal(t, start.Add(time.Hour), b.End)
	assert.Equal(t, start.Add(70*time.Minute), b.BufferedEnd)
	assert.Equal(t, b.BufferedStart, b.Occupied().Start)
	assert.Equal(t, b.BufferedEnd, b.Occupied().End)
}

func TestWithinClientLimits(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		counts  domain.ClientBookingCounts
		wantErr bool
	}{
		{"under both caps", domain.ClientBookingCounts{Daily: 0, Weekly: 2}, false},
		{"daily cap reached", domain.ClientBookingCounts{Daily: 1, Weekly: 1}, true},
		{"weekly cap reached", domain.ClientBookingCounts{Daily: 0, Weekly: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, domain.BookingRules{MaxDailyPerClient: 1, MaxWeeklyPerClient: 3})
			counter := new(mockCounter)
			counter.On("GetClientBookingCounts", ctx, "t1", "c1", day).Return(tt.counts, nil)

			err := e.WithinClientLimits(ctx, counter, "t1", "c1", day)
			if tt.wantErr {
				assert.Equal(t, []domain.Violation{domain.LimitExceeded}, domain.Violations(err))
			} else {
				assert.NoError(t, err)
			}
			counter.AssertExpectations(t)
		})
	}
}

func TestWithinClientLimitsSkipsStoreWithoutCaps(t *testing.T) {
	e := newEngine(t, domain.BookingRules{})
	counter := new(mockCounter)

	assert.NoError(t, e.WithinClientLimits(context.Background(), counter, "t1", "c1", time.Now()))
	counter.AssertNotCalled(t, "GetClientBookingCounts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithinClientLimitsPropagatesStorageError(t *testing.T) {
	e := newEngine(t, domain.BookingRules{MaxDailyPerClient: 2})
	counter := new(mockCounter)
	storeErr := domain.Unavailable("count bookings", errors.New("connection reset"))
	counter.On("GetClientBookingCounts", mock.Anything, "t1", "c1", mock.Anything).Return(domain.ClientBookingCounts{}, storeErr)

	err := e.WithinClientLimits(context.Background(), counter, "t1", "c1", time.Now())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrRuleViolation)
}

func TestValidateRules(t *testing.T) {
	_, err := New(domain.BookingRules{CancellationFeePercent: 120}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(domain.BookingRules{BufferAfterMinutes: -5}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(domain.BookingRules{MinAdvanceHours: 1.5}, nil)
	assert.NoError(t, err)
}
