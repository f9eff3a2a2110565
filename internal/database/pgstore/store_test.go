package pgstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"salonsched/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBookingRowConversion(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	at := time.Date(2026, 3, 9, 10, 0, 0, 0, berlin)
	single := &domain.Booking{
		ID: "b1", TenantID: "glow", StaffID: "anna", ClientID: "c1", ServiceID: "facial",
		ScheduledAt: at, DurationMinutes: 60, Status: domain.StatusScheduled,
		CreatedAt: at.Add(-time.Hour), UpdatedAt: at.Add(-time.Hour),
	}
	row := bookingFromDomain(single)
	assert.Nil(t, row.SeriesID, "a single booking has no series")
	assert.Nil(t, row.CancelledAt)
	assert.Equal(t, time.UTC, row.ScheduledAt.Location())
	assert.Equal(t, "scheduled", row.Status)

	back := row.toDomain()
	assert.Empty(t, back.SeriesID)
	assert.True(t, back.ScheduledAt.Equal(at))

	fee := 40.0
	cancelled := at.Add(-3 * time.Hour)
	session := *single
	session.SeriesID = "s1"
	session.SessionNumber = 2
	session.Status = domain.StatusCancelled
	session.FeeCharged = &fee
	session.CancelledAt = &cancelled

	row = bookingFromDomain(&session)
	require.NotNil(t, row.SeriesID)
	assert.Equal(t, "s1", *row.SeriesID)
	require.NotNil(t, row.CancelledAt)
	assert.True(t, row.CancelledAt.Equal(cancelled))

	back = row.toDomain()
	assert.Equal(t, "s1", back.SeriesID)
	assert.Equal(t, 2, back.SessionNumber)
	assert.Equal(t, domain.StatusCancelled, back.Status)
	require.NotNil(t, back.FeeCharged)
	assert.Equal(t, 40.0, *back.FeeCharged)
}

func TestSeriesRowConversion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &domain.TreatmentSeries{
		ID: "s1", TenantID: "glow", ClientID: "c1", ServiceID: "facial", StaffID: "anna",
		TotalSessions: 6, IntervalDays: 7, Status: domain.SeriesPaused, CreatedAt: now, UpdatedAt: now,
	}
	assert.Equal(t, *s, seriesFromDomain(s).toDomain())
}

func TestNotFoundMapping(t *testing.T) {
	err := notFound("get booking", "booking", "b1", fmt.Errorf("query: %w", gorm.ErrRecordNotFound))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "booking b1: not found", err.Error())

	err = notFound("get booking", "booking", "b1", errors.New("dial tcp 10.1.2.3:5432: connection refused"))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotContains(t, err.Error(), "10.1.2.3")
}

func TestExpectRow(t *testing.T) {
	assert.NoError(t, expectRow(&gorm.DB{RowsAffected: 1}, "op", "booking", "b1"))
	assert.ErrorIs(t, expectRow(&gorm.DB{}, "op", "booking", "b1"), domain.ErrNotFound)
	assert.ErrorIs(t, expectRow(&gorm.DB{Error: errors.New("boom")}, "op", "booking", "b1"), domain.ErrUnavailable)
}
