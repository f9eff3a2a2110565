package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salonsched/internal/booking"
	"salonsched/internal/domain"
	"salonsched/internal/series"
	"salonsched/internal/storetest"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter serves a Berlin salon where now is Friday 2026-02-27 12:00.
func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	store := storetest.NewMemory()
	store.PutConfig(storetest.WeekdaySalon("t1", "Europe/Berlin", domain.BookingRules{
		SameDayAllowed:            true,
		MaxAdvanceDays:            14,
		CancellationDeadlineHours: 24,
		CancellationFeeEnabled:    true,
		CancellationFeePercent:    50,
	}))
	store.PutStaff(storetest.FullTimeStaff("t1", "s1"))
	store.PutService(domain.Service{ID: "facial", TenantID: "t1", Name: "Facial", DurationMinutes: 60, Price: 80})

	logger := zerolog.New(io.Discard)
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, loc)
	orch := booking.New(store, booking.Options{Now: func() time.Time { return now }}, &logger)

	if opts.Keys == nil {
		opts.Keys = []string{testKey}
	}
	return NewServer(orch, opts, &logger).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTenantID, "t1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestBookingFlow(t *testing.T) {
	h := newTestRouter(t, Options{})
	body := map[string]string{
		"clientId":    "c1",
		"staffId":     "s1",
		"serviceId":   "facial",
		"requestedAt": "2026-03-02T10:00:00+01:00",
	}

	w := do(t, h, http.MethodPost, "/api/v1/bookings", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Booking](t, w)
	assert.Equal(t, domain.StatusScheduled, created.Status)
	assert.NotEmpty(t, created.ID)

	w = do(t, h, http.MethodPost, "/api/v1/bookings", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, w).Code)

	w = do(t, h, http.MethodPost, "/api/v1/bookings/"+created.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusConfirmed, decode[domain.Booking](t, w).Status)

	w = do(t, h, http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[booking.CancelResult](t, w)
	assert.True(t, res.Cancelled)
	assert.False(t, res.FeeRequired)

	w = do(t, h, http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, w).Code)
}

func TestCreateBookingRuleViolation(t *testing.T) {
	h := newTestRouter(t, Options{})
	w := do(t, h, http.MethodPost, "/api/v1/bookings", map[string]string{
		"clientId":    "c1",
		"staffId":     "s1",
		"serviceId":   "facial",
		"requestedAt": "2026-04-20T10:00:00+02:00",
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "booking_rule_violation", resp.Code)
	assert.Equal(t, []domain.Violation{domain.TooFarAhead}, resp.Violations)
}

func TestCreateBookingBadInput(t *testing.T) {
	h := newTestRouter(t, Options{})

	w := do(t, h, http.MethodPost, "/api/v1/bookings", map[string]any{"clientId": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/bookings", map[string]string{"clientId": "c1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_argument", decode[ErrorResponse](t, w).Code)

	w = do(t, h, http.MethodPost, "/api/v1/bookings/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	h := newTestRouter(t, Options{})

	w := do(t, h, http.MethodGet, "/api/v1/availability?staffId=s1&serviceId=facial&dateFrom=2026-03-02&dateTo=2026-03-03", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	days := decode[[]domain.DaySlots](t, w)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-02", days[0].Date)
	assert.NotEmpty(t, days[0].Slots)

	w = do(t, h, http.MethodGet, "/api/v1/availability?staffId=s1&serviceId=facial&dateFrom=03/02/2026&dateTo=2026-03-03", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/availability?staffId=s1&serviceId=facial&dateFrom=2026-03-05&dateTo=2026-03-02", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSeriesEndpoints(t *testing.T) {
	h := newTestRouter(t, Options{})

	w := do(t, h, http.MethodPost, "/api/v1/booking-series", map[string]any{
		"clientId":         "c1",
		"serviceId":        "facial",
		"totalSessions":    3,
		"intervalDays":     7,
		"firstSessionDate": "2026-03-03T10:00:00+01:00",
		"preferredStaffId": "s1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[series.Result](t, w)
	require.Len(t, res.Sessions, 3)
	assert.Equal(t, domain.SeriesActive, res.Series.Status)

	w = do(t, h, http.MethodPost, "/api/v1/series/"+res.Series.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.SeriesPaused, decode[domain.TreatmentSeries](t, w).Status)

	w = do(t, h, http.MethodPost, "/api/v1/series/"+res.Series.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/series/"+res.Series.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/v1/series/"+res.Series.ID+"/sessions/"+res.Sessions[2].ID+"/reschedule",
		map[string]string{"notBefore": "2026-03-18T14:00:00+01:00"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[domain.Booking](t, w)
	assert.False(t, moved.ScheduledAt.Before(time.Date(2026, 3, 18, 13, 0, 0, 0, time.UTC)))

	w = do(t, h, http.MethodPost, "/api/v1/series/"+res.Series.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.SeriesCancelled, decode[domain.TreatmentSeries](t, w).Status)

	w = do(t, h, http.MethodPost, "/api/v1/series/unknown/pause", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthAndTenantHeaders(t *testing.T) {
	h := newTestRouter(t, Options{})
	path := "/api/v1/availability?staffId=s1&serviceId=facial&dateFrom=2026-03-02&dateTo=2026-03-02"

	tests := []struct {
		name   string
		key    string
		tenant string
		status int
		code   string
	}{
		{"missing key", "", "t1", http.StatusUnauthorized, "missing_api_key"},
		{"wrong key", "nope", "t1", http.StatusUnauthorized, "invalid_api_key"},
		{"missing tenant", testKey, "", http.StatusBadRequest, "invalid_argument"},
		{"unknown tenant", testKey, "t2", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.key != "" {
				req.Header.Set(HeaderAPIKey, tt.key)
			}
			if tt.tenant != "" {
				req.Header.Set(HeaderTenantID, tt.tenant)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestRateLimitPerKey(t *testing.T) {
	h := newTestRouter(t, Options{RateLimitPerSecond: 0.001, RateLimitBurst: 1})
	path := "/api/v1/bookings/missing/cancel"

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, path, nil).Code)
	w := do(t, h, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, w).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.InvalidArgument("x"), http.StatusBadRequest, "invalid_argument"},
		{fmt.Errorf("booking b1: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{&domain.RuleViolationError{Violations: []domain.Violation{domain.TooSoon}}, http.StatusUnprocessableEntity, "booking_rule_violation"},
		{domain.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{&domain.InfeasibleError{Session: 2}, http.StatusUnprocessableEntity, "scheduling_infeasible"},
		{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{domain.ErrPastAppointment, http.StatusConflict, "past_appointment"},
		{domain.ErrSeriesPaused, http.StatusConflict, "series_paused"},
		{domain.InvalidConfig("rules", "bad"), http.StatusInternalServerError, "invalid_config"},
		{domain.Unavailable("get booking", context.DeadlineExceeded), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
