// Package reminders publishes reminder events for upcoming appointments.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/events"
	"salonsched/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// BookingLister is the part of the store the dispatcher scans.
type BookingLister interface {
	GetBookingsForTenant(ctx context.Context, tenantID string, from, to time.Time, statuses []domain.BookingStatus) ([]domain.Booking, error)
}

// Reminder is the payload of a booking.reminder_due event.
type Reminder struct {
	BookingID     string    `json:"bookingId"`
	ClientID      string    `json:"clientId"`
	StaffID       string    `json:"staffId"`
	ServiceID     string    `json:"serviceId"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	Kind          string    `json:"kind"`
	SeriesID      string    `json:"seriesId,omitempty"`
	SessionNumber int       `json:"sessionNumber,omitempty"`
}

// Options configures a Dispatcher. Zero values get defaults.
type Options struct {
	Leads         []time.Duration
	Interval      time.Duration
	RatePerSecond float64
	Claimer       Claimer
	Publisher     events.Publisher
	Now           func() time.Time
}

// Dispatcher scans each tenant's upcoming bookings and publishes one reminder
// per booking and lead time.
type Dispatcher struct {
	bookings  BookingLister
	leads     []time.Duration
	interval  time.Duration
	claimer   Claimer
	publisher events.Publisher
	limiter   *rate.Limiter
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.RWMutex
	tenants []string
}

var remindable = []domain.BookingStatus{domain.StatusScheduled, domain.StatusConfirmed}

func New(bookings BookingLister, opts Options, logger *zerolog.Logger) *Dispatcher {
	leads := make([]time.Duration, 0, len(opts.Leads))
	for _, l := range opts.Leads {
		if l > 0 {
			leads = append(leads, l)
		}
	}
	if len(leads) == 0 {
		leads = []time.Duration{24 * time.Hour}
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i] < leads[j] })

	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.Claimer == nil {
		opts.Claimer = NewMemoryClaimer()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "reminders").Logger()
	}
	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Dispatcher{
		bookings:  bookings,
		leads:     leads,
		interval:  opts.Interval,
		claimer:   opts.Claimer,
		publisher: opts.Publisher,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		now:       opts.Now,
		logger:    l,
	}
}

// SetTenants replaces the set of tenants to scan.
func (d *Dispatcher) SetTenants(ids []string) {
	d.mu.Lock()
	d.tenants = append([]string(nil), ids...)
	d.mu.Unlock()
}

// Start scans immediately, then every interval until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Dur("interval", d.interval).Interface("leads", d.leads).Msg("reminder dispatcher started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("reminder scan failed")
		}
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("reminder dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scan and returns how many reminders were published.
// A failing tenant does not stop the scan of the others.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	d.mu.RLock()
	tenants := d.tenants
	d.mu.RUnlock()

	now := d.now()
	horizon := now.Add(d.leads[len(d.leads)-1])

	var (
		sent int
		errs []error
	)
	for _, tenantID := range tenants {
		n, err := d.scanTenant(ctx, tenantID, now, horizon)
		sent += n
		if err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			metrics.IncReminderScanError()
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
	}
	if sent > 0 {
		d.logger.Info().Int("sent", sent).Int("tenants", len(tenants)).Msg("reminders dispatched")
	}
	return sent, errors.Join(errs...)
}

func (d *Dispatcher) scanTenant(ctx context.Context, tenantID string, now, horizon time.Time) (int, error) {
	bookings, err := d.bookings.GetBookingsForTenant(ctx, tenantID, now, horizon, remindable)
	if err != nil {
		return 0, fmt.Errorf("list upcoming bookings: %w", err)
	}

	sent := 0
	for i := range bookings {
		b := &bookings[i]
		lead := d.leadFor(b.ScheduledAt.Sub(now))
		kind := Kind(lead)

		key := claimKey(b, kind)
		ok, err := d.claimer.Claim(ctx, key, lead+time.Hour)
		if err != nil {
			return sent, fmt.Errorf("claim reminder %s: %w", b.ID, err)
		}
		if !ok {
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			d.release(ctx, key)
			return sent, err
		}

		ev, err := events.New(events.BookingReminderDue, tenantID, Reminder{
			BookingID:     b.ID,
			ClientID:      b.ClientID,
			StaffID:       b.StaffID,
			ServiceID:     b.ServiceID,
			ScheduledAt:   b.ScheduledAt,
			Kind:          kind,
			SeriesID:      b.SeriesID,
			SessionNumber: b.SessionNumber,
		})
		if err != nil {
			d.release(ctx, key)
			return sent, err
		}
		d.publisher.Publish(ev)
		metrics.IncReminderDispatched(kind)
		sent++

		d.logger.Debug().
			Str("tenant_id", tenantID).
			Str("booking_id", b.ID).
			Str("kind", kind).
			Msg("reminder published")
	}
	return sent, nil
}

// release frees a claim so the next scan retries the reminder.
func (d *Dispatcher) release(ctx context.Context, key string) {
	if err := d.claimer.Release(ctx, key); err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("failed to release reminder claim")
	}
}

// leadFor returns the shortest lead that still covers remaining, so a booking made
// an hour ahead gets only the closest reminder.
func (d *Dispatcher) leadFor(remaining time.Duration) time.Duration {
	for _, l := range d.leads {
		if remaining <= l {
			return l
		}
	}
	return d.leads[len(d.leads)-1]
}

// Kind names a reminder by its lead time, e.g. "24h_before".
func Kind(lead time.Duration) string {
	if lead%time.Hour == 0 {
		return fmt.Sprintf("%dh_before", int(lead/time.Hour))
	}
	return fmt.Sprintf("%dm_before", int(lead/time.Minute))
}

// The start time is part of the key so a rescheduled booking is reminded again.
func claimKey(b *domain.Booking, kind string) string {
	return fmt.Sprintf("salonsched:reminder:%s:%s:%d:%s", b.TenantID, b.ID, b.ScheduledAt.Unix(), kind)
}
