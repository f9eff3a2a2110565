// Package series places and maintains the sessions of treatment series.
package series

import (
	"context"
	"fmt"
	"time"

	"salonsched/internal/availability"
	"salonsched/internal/domain"
	"salonsched/internal/events"
	"salonsched/internal/lock"
	"salonsched/internal/metrics"
	"salonsched/internal/rules"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultSearchWindowDays is how many dates past a candidate are searched for a free slot.
	DefaultSearchWindowDays = 14

	MaxSessions     = 52
	MaxIntervalDays = 365
)

// Request describes a series to create.
type Request struct {
	ClientID         string
	ServiceID        string
	TotalSessions    int
	IntervalDays     int
	FirstSessionDate time.Time
	PreferredStaffID string
}

// Result is a created series with its sessions in order.
type Result struct {
	Series   domain.TreatmentSeries `json:"series"`
	Sessions []domain.Booking       `json:"sessions"`
}

// Scheduler creates series and keeps their sessions consistent.
type Scheduler struct {
	store     domain.Store
	avail     *availability.Engine
	locker    lock.Locker
	publisher events.Publisher
	now       func() time.Time
	window    int
	logger    zerolog.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSearchWindow overrides DefaultSearchWindowDays.
func WithSearchWindow(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.window = days
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sets where series events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.publisher = p
		}
	}
}

// New creates a Scheduler.
func New(store domain.Store, avail *availability.Engine, locker lock.Locker, logger *zerolog.Logger, opts ...Option) *Scheduler {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "series").Logger()
	}
	s := &Scheduler{
		store:     store,
		avail:     avail,
		locker:    locker,
		publisher: events.Nop{},
		now:       time.Now,
		window:    DefaultSearchWindowDays,
		logger:    l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (r Request) validate() error {
	switch {
	case r.ClientID == "":
		return domain.InvalidArgument("clientId is required")
	case r.ServiceID == "":
		return domain.InvalidArgument("serviceId is required")
	case r.PreferredStaffID == "":
		return domain.InvalidArgument("preferredStaffId is required")
	case r.TotalSessions < 1 || r.TotalSessions > MaxSessions:
		return domain.InvalidArgument("totalSessions must be between 1 and %d", MaxSessions)
	case r.IntervalDays < 1 || r.IntervalDays > MaxIntervalDays:
		return domain.InvalidArgument("intervalDays must be between 1 and %d", MaxIntervalDays)
	case r.FirstSessionDate.IsZero():
		return domain.InvalidArgument("firstSessionDate is required")
	}
	return nil
}

// CreateSeries places every session or none. The staff lock, plus the tenant lock under a
// tenant-wide cap, is held from the first availability read until the series is written.
func (s *Scheduler) CreateSeries(ctx context.Context, tenantID string, req Request) (res *Result, err error) {
	defer func() { metrics.IncSeriesOp("create", metrics.Outcome(err)) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	svc, err := s.store.GetService(ctx, tenantID, req.ServiceID)
	if err != nil {
		return nil, domain.Unavailable("get service", err)
	}
	if svc.DurationMinutes <= 0 {
		return nil, domain.InvalidConfig("services["+svc.ID+"].duration_minutes", "must be positive")
	}

	unlock, err := s.acquire(ctx, tenantID, req.PreferredStaffID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Each session may drift by up to a full window, and the drift carries forward.
	horizon := (req.TotalSessions-1)*req.IntervalDays + req.TotalSessions*s.window
	plan, err := s.avail.Prepare(ctx, tenantID, req.PreferredStaffID, req.FirstSessionDate, req.FirstSessionDate.AddDate(0, 0, horizon))
	if err != nil {
		return nil, domain.Unavailable("prepare series", err)
	}
	plan.WithValidateOptions(rules.IgnoreHorizon())

	now := s.now()
	series := domain.TreatmentSeries{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		ClientID:      req.ClientID,
		ServiceID:     req.ServiceID,
		StaffID:       req.PreferredStaffID,
		TotalSessions: req.TotalSessions,
		IntervalDays:  req.IntervalDays,
		Status:        domain.SeriesActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	first := req.FirstSessionDate.In(plan.Location())
	sessions := make([]domain.Booking, 0, req.TotalSessions)
	for i := 0; i < req.TotalSessions; i++ {
		candidate := first.AddDate(0, 0, i*req.IntervalDays)
		if i > 0 {
			if spaced := sessions[i-1].ScheduledAt.AddDate(0, 0, req.IntervalDays); spaced.After(candidate) {
				candidate = spaced
			}
		}
		slot, ok := plan.FirstSlotFrom(candidate, s.window, svc.Duration(), now)
		if !ok {
			s.logger.Info().
				Str("tenant_id", tenantID).
				Str("staff_id", req.PreferredStaffID).
				Int("session", i+1).
				Time("candidate", candidate).
				Msg("series infeasible")
			return nil, &domain.InfeasibleError{Session: i + 1, Candidate: candidate, Window: s.window}
		}
		b := domain.Booking{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			StaffID:         req.PreferredStaffID,
			ClientID:        req.ClientID,
			ServiceID:       req.ServiceID,
			ScheduledAt:     slot.Start,
			DurationMinutes: svc.DurationMinutes,
			Status:          domain.StatusScheduled,
			SeriesID:        series.ID,
			SessionNumber:   i + 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		plan.Add(b)
		sessions = append(sessions, b)
	}

	if err := s.store.WriteSeries(ctx, &series, sessions); err != nil {
		return nil, domain.Unavailable("write series", err)
	}

	s.publish(events.SeriesCreated, tenantID, map[string]any{
		"seriesId": series.ID,
		"clientId": series.ClientID,
		"staffId":  series.StaffID,
		"sessions": len(sessions),
	})
	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("series_id", series.ID).
		Int("sessions", len(sessions)).
		Msg("series created")
	return &Result{Series: series, Sessions: sessions}, nil
}

// PauseSeries stops automatic replacement of missed sessions. Scheduled sessions stay booked.
func (s *Scheduler) PauseSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error) {
	return s.transition(ctx, tenantID, seriesID, domain.SeriesPaused, "pause", events.SeriesPaused)
}

// ResumeSeries reactivates a paused series.
func (s *Scheduler) ResumeSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error) {
	return s.transition(ctx, tenantID, seriesID, domain.SeriesActive, "resume", events.SeriesResumed)
}

func (s *Scheduler) transition(ctx context.Context, tenantID, seriesID string, to domain.SeriesStatus, op, eventType string) (out *domain.TreatmentSeries, err error) {
	defer func() { metrics.IncSeriesOp(op, metrics.Outcome(err)) }()

	series, err := s.store.GetSeries(ctx, tenantID, seriesID)
	if err != nil {
		return nil, domain.Unavailable("get series", err)
	}
	if err := domain.CheckSeriesTransition(series.Status, to); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.store.UpdateSeriesStatus(ctx, tenantID, seriesID, series.Status, to, now); err != nil {
		return nil, domain.Unavailable("update series status", err)
	}
	series.Status = to
	series.UpdatedAt = now

	s.publish(eventType, tenantID, map[string]any{"seriesId": seriesID, "status": to})
	return series, nil
}

// CancelSeries cancels the series and its scheduled or confirmed sessions in one write.
// Completed, in-progress and no-show sessions are left as they are.
func (s *Scheduler) CancelSeries(ctx context.Context, tenantID, seriesID string) (out *domain.TreatmentSeries, err error) {
	defer func() { metrics.IncSeriesOp("cancel", metrics.Outcome(err)) }()

	series, err := s.store.GetSeries(ctx, tenantID, seriesID)
	if err != nil {
		return nil, domain.Unavailable("get series", err)
	}
	if err := domain.CheckSeriesTransition(series.Status, domain.SeriesCancelled); err != nil {
		return nil, err
	}
	now := s.now()
	n, err := s.store.CancelSeries(ctx, tenantID, seriesID, now)
	if err != nil {
		return nil, domain.Unavailable("cancel series", err)
	}
	series.Status = domain.SeriesCancelled
	series.UpdatedAt = now

	s.publish(events.SeriesCancelled, tenantID, map[string]any{"seriesId": seriesID, "cancelledSessions": n})
	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("series_id", seriesID).
		Int("cancelled_sessions", n).
		Msg("series cancelled")
	return series, nil
}

func (s *Scheduler) publish(eventType, tenantID string, payload any) {
	ev, err := events.New(eventType, tenantID, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("build event")
		return
	}
	s.publisher.Publish(ev)
}

// acquire takes the staff lock, preceded by the tenant lock when the tenant caps concurrent
// bookings per slot.
func (s *Scheduler) acquire(ctx context.Context, tenantID, staffID string) (func(), error) {
	cfg, err := s.store.GetTenantScheduleConfig(ctx, tenantID)
	if err != nil {
		return nil, domain.Unavailable("get tenant config", err)
	}
	unlock, waited, err := lock.Acquire(ctx, s.locker, lock.Scope{
		TenantID:   tenantID,
		StaffID:    staffID,
		TenantWide: cfg.Rules.MaxConcurrentPerSlot > 0,
	})
	if err != nil {
		return nil, domain.Unavailable("acquire staff lock", err)
	}
	metrics.ObserveLockWait(waited)
	return unlock, nil
}

func (s *Scheduler) activeSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error) {
	series, err := s.store.GetSeries(ctx, tenantID, seriesID)
	if err != nil {
		return nil, domain.Unavailable("get series", err)
	}
	switch series.Status {
	case domain.SeriesActive:
		return series, nil
	case domain.SeriesPaused:
		return nil, fmt.Errorf("series %s: %w", seriesID, domain.ErrSeriesPaused)
	default:
		return nil, fmt.Errorf("%w: series %s is %s", domain.ErrInvalidTransition, seriesID, series.Status)
	}
}
