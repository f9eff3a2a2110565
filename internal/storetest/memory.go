// Package storetest provides an in-memory domain.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

// Memory is a thread-safe in-memory store. Fail hooks inject storage errors.
type Memory struct {
	mu       sync.Mutex
	configs  map[string]domain.TenantScheduleConfig
	staff    map[string]domain.StaffSchedule
	services map[string]domain.Service
	bookings map[string]domain.Booking
	series   map[string]domain.TreatmentSeries
	order    []string

	// FailWrites makes every write return this error when set.
	FailWrites error
	// FailReads makes every booking read return this error when set.
	FailReads error
	// WriteDelay is slept inside WriteBooking to widen race windows.
	WriteDelay time.Duration
	// BeforeSeriesUpdate runs at the start of UpdateSeriesStatus, before the store lock is taken.
	BeforeSeriesUpdate func()
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		configs:  make(map[string]domain.TenantScheduleConfig),
		staff:    make(map[string]domain.StaffSchedule),
		services: make(map[string]domain.Service),
		bookings: make(map[string]domain.Booking),
		series:   make(map[string]domain.TreatmentSeries),
	}
}

func key(tenantID, id string) string { return tenantID + "/" + id }

// PutConfig stores a tenant config.
func (m *Memory) PutConfig(cfg domain.TenantScheduleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.TenantID] = cfg
}

// PutStaff stores a staff schedule.
func (m *Memory) PutStaff(s domain.StaffSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[key(s.TenantID, s.StaffID)] = s
}

// PutService stores a service.
func (m *Memory) PutService(s domain.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[key(s.TenantID, s.ID)] = s
}

// PutBooking stores a booking as is.
func (m *Memory) PutBooking(b domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putBooking(b)
}

func (m *Memory) putBooking(b domain.Booking) {
	k := key(b.TenantID, b.ID)
	if _, ok := m.bookings[k]; !ok {
		m.order = append(m.order, k)
	}
	m.bookings[k] = b
}

// Bookings returns all stored bookings in insertion order.
func (m *Memory) Bookings() []domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Booking, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.bookings[k])
	}
	return out
}

// SeriesCount returns the number of stored series.
func (m *Memory) SeriesCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.series)
}

func (m *Memory) GetTenantScheduleConfig(_ context.Context, tenantID string) (*domain.TenantScheduleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	return &cfg, nil
}

func (m *Memory) GetStaffSchedule(_ context.Context, tenantID, staffID string) (*domain.StaffSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[key(tenantID, staffID)]
	if !ok {
		return nil, fmt.Errorf("staff %s: %w", staffID, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) GetService(_ context.Context, tenantID, serviceID string) (*domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[key(tenantID, serviceID)]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", serviceID, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) GetBooking(_ context.Context, tenantID, id string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, domain.Unavailable("get booking", m.FailReads)
	}
	b, ok := m.bookings[key(tenantID, id)]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (m *Memory) filter(match func(domain.Booking) bool) []domain.Booking {
	var out []domain.Booking
	for _, k := range m.order {
		if b := m.bookings[k]; match(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func hasStatus(statuses []domain.BookingStatus, s domain.BookingStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (m *Memory) GetBookingsForStaff(_ context.Context, tenantID, staffID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, domain.Unavailable("get staff bookings", m.FailReads)
	}
	return m.filter(func(b domain.Booking) bool {
		return b.TenantID == tenantID && b.StaffID == staffID &&
			!b.ScheduledAt.Before(from) && b.ScheduledAt.Before(to) && hasStatus(statuses, b.Status)
	}), nil
}

func (m *Memory) GetBookingsForTenant(_ context.Context, tenantID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, domain.Unavailable("get tenant bookings", m.FailReads)
	}
	return m.filter(func(b domain.Booking) bool {
		return b.TenantID == tenantID &&
			!b.ScheduledAt.Before(from) && b.ScheduledAt.Before(to) && hasStatus(statuses, b.Status)
	}), nil
}

func (m *Memory) GetClientBookingCounts(_ context.Context, tenantID, clientID string, day time.Time) (domain.ClientBookingCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return domain.ClientBookingCounts{}, domain.Unavailable("count client bookings", m.FailReads)
	}
	dayStart := timeutil.StartOfDay(day)
	weekStart := timeutil.StartOfWeek(day)
	var counts domain.ClientBookingCounts
	for _, b := range m.bookings {
		if b.TenantID != tenantID || b.ClientID != clientID || !b.Status.IsActive() {
			continue
		}
		if !b.ScheduledAt.Before(dayStart) && b.ScheduledAt.Before(dayStart.AddDate(0, 0, 1)) {
			counts.Daily++
		}
		if !b.ScheduledAt.Before(weekStart) && b.ScheduledAt.Before(weekStart.AddDate(0, 0, 7)) {
			counts.Weekly++
		}
	}
	return counts, nil
}

func (m *Memory) WriteBooking(_ context.Context, b *domain.Booking) (*domain.Booking, error) {
	if m.WriteDelay > 0 {
		time.Sleep(m.WriteDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return nil, domain.Unavailable("write booking", m.FailWrites)
	}
	m.putBooking(*b)
	out := *b
	return &out, nil
}

func (m *Memory) UpdateBookingStatus(_ context.Context, tenantID, id string, status domain.BookingStatus, meta domain.StatusMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Unavailable("update booking status", m.FailWrites)
	}
	k := key(tenantID, id)
	b, ok := m.bookings[k]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	b.Status = status
	b.UpdatedAt = meta.At
	if status == domain.StatusCancelled {
		at := meta.At
		b.CancelledAt = &at
		b.FeePercent = meta.FeePercent
		b.FeeCharged = meta.FeeCharged
	}
	m.bookings[k] = b
	return nil
}

func (m *Memory) UpdateBookingTime(_ context.Context, tenantID, id string, scheduledAt, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Unavailable("update booking time", m.FailWrites)
	}
	k := key(tenantID, id)
	b, ok := m.bookings[k]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	b.ScheduledAt = scheduledAt
	b.UpdatedAt = at
	m.bookings[k] = b
	return nil
}

func (m *Memory) WriteSeries(_ context.Context, s *domain.TreatmentSeries, sessions []domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Unavailable("write series", m.FailWrites)
	}
	m.series[key(s.TenantID, s.ID)] = *s
	for _, b := range sessions {
		m.putBooking(b)
	}
	return nil
}

func (m *Memory) AppendSeriesSessions(_ context.Context, tenantID, seriesID string, sessions []domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Unavailable("append series sessions", m.FailWrites)
	}
	if _, ok := m.series[key(tenantID, seriesID)]; !ok {
		return fmt.Errorf("series %s: %w", seriesID, domain.ErrNotFound)
	}
	for _, b := range sessions {
		if _, dup := m.bookings[key(b.TenantID, b.ID)]; dup {
			return domain.Unavailable("append series sessions", fmt.Errorf("booking %s already exists", b.ID))
		}
	}
	for _, b := range sessions {
		m.putBooking(b)
	}
	return nil
}

func (m *Memory) GetSeries(_ context.Context, tenantID, id string) (*domain.TreatmentSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key(tenantID, id)]
	if !ok {
		return nil, fmt.Errorf("series %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) ListSeriesBookings(_ context.Context, tenantID, seriesID string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(b domain.Booking) bool { return b.TenantID == tenantID && b.SeriesID == seriesID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].SessionNumber < out[j].SessionNumber })
	return out, nil
}

func (m *Memory) UpdateSeriesStatus(_ context.Context, tenantID, id string, from, to domain.SeriesStatus, at time.Time) error {
	if m.BeforeSeriesUpdate != nil {
		m.BeforeSeriesUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return domain.Unavailable("update series status", m.FailWrites)
	}
	k := key(tenantID, id)
	s, ok := m.series[k]
	if !ok {
		return fmt.Errorf("series %s: %w", id, domain.ErrNotFound)
	}
	if s.Status != from {
		return fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, id, s.Status)
	}
	s.Status = to
	s.UpdatedAt = at
	m.series[k] = s
	return nil
}

func (m *Memory) CancelSeries(_ context.Context, tenantID, id string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return 0, domain.Unavailable("cancel series", m.FailWrites)
	}
	k := key(tenantID, id)
	s, ok := m.series[k]
	if !ok {
		return 0, fmt.Errorf("series %s: %w", id, domain.ErrNotFound)
	}
	if s.Status.IsTerminal() {
		return 0, fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, id, s.Status)
	}
	s.Status = domain.SeriesCancelled
	s.UpdatedAt = at
	m.series[k] = s

	n := 0
	for bk, b := range m.bookings {
		if b.TenantID != tenantID || b.SeriesID != id || !b.Status.Cancellable() {
			continue
		}
		b.Status = domain.StatusCancelled
		b.CancelledAt = &at
		b.UpdatedAt = at
		m.bookings[bk] = b
		n++
	}
	return n, nil
}

var _ domain.Store = (*Memory)(nil)
