// Package booking sequences rule checks, availability and conflict detection in front of
// every booking write.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"salonsched/internal/availability"
	"salonsched/internal/domain"
	"salonsched/internal/events"
	"salonsched/internal/lock"
	"salonsched/internal/metrics"
	"salonsched/internal/rules"
	"salonsched/internal/series"
	"salonsched/internal/timeutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options wires optional collaborators. Zero values fall back to in-process defaults.
type Options struct {
	Locker           lock.Locker
	Publisher        events.Publisher
	Now              func() time.Time
	SearchWindowDays int
}

// Orchestrator is the entry point for availability queries and booking changes.
type Orchestrator struct {
	store     domain.Store
	avail     *availability.Engine
	series    *series.Scheduler
	locker    lock.Locker
	publisher events.Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates an Orchestrator over store.
func New(store domain.Store, opts Options, logger *zerolog.Logger) *Orchestrator {
	if opts.Locker == nil {
		opts.Locker = lock.NewKeyedMutex()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "booking").Logger()
	}

	avail := availability.NewEngine(store, opts.Now, logger)
	return &Orchestrator{
		store: store,
		avail: avail,
		series: series.New(store, avail, opts.Locker, logger,
			series.WithClock(opts.Now),
			series.WithPublisher(opts.Publisher),
			series.WithSearchWindow(opts.SearchWindowDays),
		),
		locker:    opts.Locker,
		publisher: opts.Publisher,
		now:       opts.Now,
		logger:    l,
	}
}

// AvailabilityRequest asks for one staff member's free slots for a service.
// DateFrom and DateTo are civil dates, inclusive.
type AvailabilityRequest struct {
	StaffID   string
	ServiceID string
	DateFrom  time.Time
	DateTo    time.Time
}

// Availability lists bookable slots per date. It takes no lock.
func (o *Orchestrator) Availability(ctx context.Context, tenantID string, req AvailabilityRequest) ([]domain.DaySlots, error) {
	metrics.IncAvailabilityQuery()
	if req.StaffID == "" || req.ServiceID == "" {
		return nil, domain.InvalidArgument("staffId and serviceId are required")
	}
	svc, err := o.store.GetService(ctx, tenantID, req.ServiceID)
	if err != nil {
		return nil, domain.Unavailable("get service", err)
	}
	days, err := o.avail.ComputeSlots(ctx, availability.Query{
		TenantID: tenantID,
		StaffID:  req.StaffID,
		From:     req.DateFrom,
		To:       req.DateTo,
		Duration: svc.Duration(),
	})
	if err != nil {
		return nil, domain.Unavailable("compute slots", err)
	}
	return days, nil
}

// CreateRequest asks for a single booking.
type CreateRequest struct {
	ClientID    string
	StaffID     string
	ServiceID   string
	RequestedAt time.Time
}

func (r CreateRequest) validate() error {
	switch {
	case r.ClientID == "":
		return domain.InvalidArgument("clientId is required")
	case r.StaffID == "":
		return domain.InvalidArgument("staffId is required")
	case r.ServiceID == "":
		return domain.InvalidArgument("serviceId is required")
	case r.RequestedAt.IsZero():
		return domain.InvalidArgument("requestedAt is required")
	}
	return nil
}

// CreateBooking validates policy, then checks caps and conflicts and writes the booking under
// the locks of writeScope. The write is the only side effect and the last step.
func (o *Orchestrator) CreateBooking(ctx context.Context, tenantID string, req CreateRequest) (out *domain.Booking, err error) {
	defer func() { metrics.IncBookingCreated(metrics.Outcome(err)) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	eng, err := o.rulesFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	svc, err := o.store.GetService(ctx, tenantID, req.ServiceID)
	if err != nil {
		return nil, domain.Unavailable("get service", err)
	}
	if svc.DurationMinutes <= 0 {
		return nil, domain.InvalidConfig("services["+svc.ID+"].duration_minutes", "must be positive")
	}

	now := o.now()
	if err := eng.ValidateRequestedTime(req.RequestedAt, now); err != nil {
		return nil, err
	}

	unlock, waited, err := lock.Acquire(ctx, o.locker, writeScope(eng, tenantID, req.StaffID, req.ClientID))
	if err != nil {
		return nil, domain.Unavailable("acquire booking lock", err)
	}
	defer unlock()
	metrics.ObserveLockWait(waited)

	if err := eng.WithinClientLimits(ctx, o.store, tenantID, req.ClientID, req.RequestedAt); err != nil {
		return nil, domain.Unavailable("client limits", err)
	}

	plan, err := o.avail.Prepare(ctx, tenantID, req.StaffID, req.RequestedAt, req.RequestedAt)
	if err != nil {
		return nil, domain.Unavailable("prepare booking", err)
	}
	if err := plan.CheckSlot(timeutil.NewInterval(req.RequestedAt, svc.Duration())); err != nil {
		return nil, err
	}

	b := &domain.Booking{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		StaffID:         req.StaffID,
		ClientID:        req.ClientID,
		ServiceID:       req.ServiceID,
		ScheduledAt:     req.RequestedAt.In(plan.Location()),
		DurationMinutes: svc.DurationMinutes,
		Status:          domain.StatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	saved, err := o.store.WriteBooking(ctx, b)
	if err != nil {
		return nil, domain.Unavailable("write booking", err)
	}

	o.publish(events.BookingCreated, tenantID, saved)
	o.logger.Info().
		Str("tenant_id", tenantID).
		Str("booking_id", saved.ID).
		Str("staff_id", saved.StaffID).
		Time("scheduled_at", saved.ScheduledAt).
		Msg("booking created")
	return saved, nil
}

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	Cancelled   bool     `json:"cancelled"`
	FeeRequired bool     `json:"feeRequired"`
	FeePercent  float64  `json:"feePercent"`
	FeeCharged  *float64 `json:"feeCharged,omitempty"`
}

// CancelBooking cancels a scheduled or confirmed booking, recording a late-cancellation fee
// when policy requires one. Past appointments fail with domain.ErrPastAppointment.
func (o *Orchestrator) CancelBooking(ctx context.Context, tenantID, bookingID string) (*CancelResult, error) {
	b, err := o.store.GetBooking(ctx, tenantID, bookingID)
	if err != nil {
		return nil, domain.Unavailable("get booking", err)
	}
	if !b.Status.Cancellable() {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, b.ID, b.Status)
	}
	eng, err := o.rulesFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	outcome := eng.CancellationOutcome(b.ScheduledAt, now)
	if !outcome.Allowed {
		return nil, fmt.Errorf("booking %s at %s: %w", b.ID, b.ScheduledAt.Format(time.RFC3339), domain.ErrPastAppointment)
	}

	res := &CancelResult{Cancelled: true, FeeRequired: outcome.FeeRequired}
	meta := domain.StatusMetadata{At: now}
	if outcome.FeeRequired {
		res.FeePercent = outcome.FeePercent
		meta.FeePercent = outcome.FeePercent
		fee, err := o.fee(ctx, tenantID, b.ServiceID, outcome.FeePercent)
		if err != nil {
			return nil, err
		}
		res.FeeCharged = fee
		meta.FeeCharged = fee
	}

	if err := o.store.UpdateBookingStatus(ctx, tenantID, b.ID, domain.StatusCancelled, meta); err != nil {
		return nil, domain.Unavailable("cancel booking", err)
	}
	metrics.IncBookingCancelled(outcome.FeeRequired)

	o.publish(events.BookingCancelled, tenantID, map[string]any{
		"bookingId":   b.ID,
		"clientId":    b.ClientID,
		"staffId":     b.StaffID,
		"scheduledAt": b.ScheduledAt,
		"feeRequired": res.FeeRequired,
		"feePercent":  res.FeePercent,
		"feeCharged":  res.FeeCharged,
	})
	o.logger.Info().
		Str("tenant_id", tenantID).
		Str("booking_id", b.ID).
		Bool("fee_required", res.FeeRequired).
		Msg("booking cancelled")
	return res, nil
}

// fee is price*percent/100 rounded to cents. A service missing from the catalog yields no amount.
func (o *Orchestrator) fee(ctx context.Context, tenantID, serviceID string, percent float64) (*float64, error) {
	svc, err := o.store.GetService(ctx, tenantID, serviceID)
	if errors.Is(err, domain.ErrNotFound) {
		o.logger.Warn().Str("tenant_id", tenantID).Str("service_id", serviceID).Msg("service missing, fee amount unknown")
		return nil, nil
	}
	if err != nil {
		return nil, domain.Unavailable("get service", err)
	}
	amount := math.Round(svc.Price*percent) / 100
	return &amount, nil
}

// RescheduleBooking moves a scheduled or confirmed booking, running the same checks as
// CreateBooking while ignoring the booking itself.
func (o *Orchestrator) RescheduleBooking(ctx context.Context, tenantID, bookingID string, requestedAt time.Time) (*domain.Booking, error) {
	if requestedAt.IsZero() {
		return nil, domain.InvalidArgument("requestedAt is required")
	}
	b, err := o.store.GetBooking(ctx, tenantID, bookingID)
	if err != nil {
		return nil, domain.Unavailable("get booking", err)
	}
	if !b.Status.Cancellable() {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, b.ID, b.Status)
	}
	eng, err := o.rulesFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	if err := eng.ValidateRequestedTime(requestedAt, now); err != nil {
		return nil, err
	}

	unlock, waited, err := lock.Acquire(ctx, o.locker, writeScope(eng, tenantID, b.StaffID, b.ClientID))
	if err != nil {
		return nil, domain.Unavailable("acquire booking lock", err)
	}
	defer unlock()
	metrics.ObserveLockWait(waited)

	counter := excludingCounter{ClientCounter: o.store, self: *b}
	if err := eng.WithinClientLimits(ctx, counter, tenantID, b.ClientID, requestedAt); err != nil {
		return nil, domain.Unavailable("client limits", err)
	}

	plan, err := o.avail.Prepare(ctx, tenantID, b.StaffID, requestedAt, requestedAt)
	if err != nil {
		return nil, domain.Unavailable("prepare reschedule", err)
	}
	plan.Exclude(b.ID)
	if err := plan.CheckSlot(timeutil.NewInterval(requestedAt, b.Duration())); err != nil {
		return nil, err
	}
	if err := o.store.UpdateBookingTime(ctx, tenantID, b.ID, requestedAt, now); err != nil {
		return nil, domain.Unavailable("update booking time", err)
	}

	previous := b.ScheduledAt
	b.ScheduledAt = requestedAt.In(plan.Location())
	b.UpdatedAt = now
	o.publish(events.BookingRescheduled, tenantID, map[string]any{
		"bookingId":   b.ID,
		"previousAt":  previous,
		"scheduledAt": b.ScheduledAt,
	})
	return b, nil
}

// writeScope adds the tenant key when a tenant-wide cap applies and the client key when
// per-client caps apply, so the counts read under the lock stay true until the write.
func writeScope(eng *rules.Engine, tenantID, staffID, clientID string) lock.Scope {
	r := eng.Rules()
	scope := lock.Scope{TenantID: tenantID, StaffID: staffID, TenantWide: r.MaxConcurrentPerSlot > 0}
	if r.MaxDailyPerClient > 0 || r.MaxWeeklyPerClient > 0 {
		scope.ClientID = clientID
	}
	return scope
}

// excludingCounter removes the booking being moved from the client's counts.
type excludingCounter struct {
	domain.ClientCounter
	self domain.Booking
}

func (c excludingCounter) GetClientBookingCounts(ctx context.Context, tenantID, clientID string, day time.Time) (domain.ClientBookingCounts, error) {
	counts, err := c.ClientCounter.GetClientBookingCounts(ctx, tenantID, clientID, day)
	if err != nil || !c.self.Status.IsActive() {
		return counts, err
	}
	own := c.self.ScheduledAt.In(day.Location())
	if timeutil.SameDate(own, day, day.Location()) && counts.Daily > 0 {
		counts.Daily--
	}
	if timeutil.StartOfWeek(own).Equal(timeutil.StartOfWeek(day)) && counts.Weekly > 0 {
		counts.Weekly--
	}
	return counts, nil
}

func (o *Orchestrator) rulesFor(ctx context.Context, tenantID string) (*rules.Engine, error) {
	cfg, err := o.store.GetTenantScheduleConfig(ctx, tenantID)
	if err != nil {
		return nil, domain.Unavailable("get tenant config", err)
	}
	loc, err := timeutil.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, domain.InvalidConfig("timezone", "%v", err)
	}
	return rules.New(cfg.Rules, loc)
}

func (o *Orchestrator) publish(eventType, tenantID string, payload any) {
	ev, err := events.New(eventType, tenantID, payload)
	if err != nil {
		o.logger.Error().Err(err).Str("event_type", eventType).Msg("build event")
		return
	}
	o.publisher.Publish(ev)
}
