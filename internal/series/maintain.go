package series

import (
	"context"
	"fmt"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/events"
	"salonsched/internal/metrics"
	"salonsched/internal/rules"

	"github.com/google/uuid"
)

// RescheduleSession moves one session of an active series to the first free slot on or after
// notBefore, keeping at least IntervalDays after the previous session and before the next one.
// Siblings never move.
func (s *Scheduler) RescheduleSession(ctx context.Context, tenantID, seriesID, bookingID string, notBefore time.Time) (out *domain.Booking, err error) {
	defer func() { metrics.IncSeriesOp("reschedule_session", metrics.Outcome(err)) }()

	series, err := s.activeSeries(ctx, tenantID, seriesID)
	if err != nil {
		return nil, err
	}

	// Every session belongs to the series staff member, so the siblings read below hold still.
	unlock, err := s.acquire(ctx, tenantID, series.StaffID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sessions, err := s.store.ListSeriesBookings(ctx, tenantID, seriesID)
	if err != nil {
		return nil, domain.Unavailable("list series bookings", err)
	}

	idx := -1
	for i := range sessions {
		if sessions[i].ID == bookingID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("booking %s in series %s: %w", bookingID, seriesID, domain.ErrNotFound)
	}
	target := sessions[idx]
	if !target.Status.Cancellable() {
		return nil, fmt.Errorf("%w: session %d is %s", domain.ErrInvalidTransition, target.SessionNumber, target.Status)
	}

	lower := notBefore
	if prev, ok := previousSession(sessions, idx); ok {
		if spaced := prev.ScheduledAt.AddDate(0, 0, series.IntervalDays); spaced.After(lower) {
			lower = spaced
		}
	}
	var upper time.Time
	if next, ok := nextSession(sessions, idx); ok {
		upper = next.ScheduledAt.AddDate(0, 0, -series.IntervalDays)
		if upper.Before(lower) {
			return nil, &domain.InfeasibleError{Session: target.SessionNumber, Candidate: lower, Window: s.window}
		}
	}

	plan, err := s.avail.Prepare(ctx, tenantID, target.StaffID, lower, lower.AddDate(0, 0, s.window))
	if err != nil {
		return nil, domain.Unavailable("prepare reschedule", err)
	}
	plan.Exclude(target.ID)
	plan.WithValidateOptions(rules.IgnoreHorizon())

	now := s.now()
	slot, ok := plan.FirstSlotFrom(lower, s.window, target.Duration(), now)
	if !ok || (!upper.IsZero() && slot.Start.After(upper)) {
		return nil, &domain.InfeasibleError{Session: target.SessionNumber, Candidate: lower, Window: s.window}
	}
	if err := s.store.UpdateBookingTime(ctx, tenantID, target.ID, slot.Start, now); err != nil {
		return nil, domain.Unavailable("update booking time", err)
	}

	previous := target.ScheduledAt
	target.ScheduledAt = slot.Start
	target.UpdatedAt = now
	s.publish(events.BookingRescheduled, tenantID, map[string]any{
		"bookingId":   target.ID,
		"seriesId":    seriesID,
		"previousAt":  previous,
		"scheduledAt": target.ScheduledAt,
	})
	return &target, nil
}

// previousSession is the closest earlier sibling that still counts for spacing.
func previousSession(sessions []domain.Booking, idx int) (domain.Booking, bool) {
	for i := idx - 1; i >= 0; i-- {
		if sessions[i].Status != domain.StatusCancelled {
			return sessions[i], true
		}
	}
	return domain.Booking{}, false
}

// nextSession is the closest later sibling that still counts for spacing.
func nextSession(sessions []domain.Booking, idx int) (domain.Booking, bool) {
	for i := idx + 1; i < len(sessions); i++ {
		if sessions[i].Status != domain.StatusCancelled {
			return sessions[i], true
		}
	}
	return domain.Booking{}, false
}

// RescheduleMissedSessions appends a replacement session for every no-show that has none yet.
// Replacements are spaced IntervalDays after the latest session. Paused series fail with
// domain.ErrSeriesPaused.
func (s *Scheduler) RescheduleMissedSessions(ctx context.Context, tenantID, seriesID string) (placed []domain.Booking, err error) {
	defer func() { metrics.IncSeriesOp("replace_missed", metrics.Outcome(err)) }()

	series, err := s.activeSeries(ctx, tenantID, seriesID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSeriesBookings(ctx, tenantID, seriesID)
	if err != nil {
		return nil, domain.Unavailable("list series bookings", err)
	}

	missing := pendingReplacements(series, sessions)
	if missing == 0 {
		return nil, nil
	}

	var last time.Time
	for _, b := range sessions {
		if b.Status != domain.StatusCancelled && b.ScheduledAt.After(last) {
			last = b.ScheduledAt
		}
	}
	svc, err := s.store.GetService(ctx, tenantID, series.ServiceID)
	if err != nil {
		return nil, domain.Unavailable("get service", err)
	}

	unlock, err := s.acquire(ctx, tenantID, series.StaffID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	from := last.AddDate(0, 0, series.IntervalDays)
	horizon := missing * (series.IntervalDays + s.window)
	plan, err := s.avail.Prepare(ctx, tenantID, series.StaffID, from, from.AddDate(0, 0, horizon))
	if err != nil {
		return nil, domain.Unavailable("prepare replacements", err)
	}
	plan.WithValidateOptions(rules.IgnoreHorizon())

	now := s.now()
	next := len(sessions) + 1
	for i := 0; i < missing; i++ {
		candidate := last.AddDate(0, 0, series.IntervalDays)
		slot, ok := plan.FirstSlotFrom(candidate, s.window, svc.Duration(), now)
		if !ok {
			return nil, &domain.InfeasibleError{Session: next + i, Candidate: candidate, Window: s.window}
		}
		b := domain.Booking{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			StaffID:         series.StaffID,
			ClientID:        series.ClientID,
			ServiceID:       series.ServiceID,
			ScheduledAt:     slot.Start,
			DurationMinutes: svc.DurationMinutes,
			Status:          domain.StatusScheduled,
			SeriesID:        series.ID,
			SessionNumber:   next + i,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		plan.Add(b)
		placed = append(placed, b)
		last = slot.Start
	}

	if err := s.store.AppendSeriesSessions(ctx, tenantID, seriesID, placed); err != nil {
		return nil, domain.Unavailable("write replacement sessions", err)
	}
	for i := range placed {
		s.publish(events.BookingCreated, tenantID, map[string]any{
			"bookingId":   placed[i].ID,
			"seriesId":    seriesID,
			"scheduledAt": placed[i].ScheduledAt,
			"replacement": true,
		})
	}
	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("series_id", seriesID).
		Int("replacements", len(placed)).
		Msg("missed sessions rescheduled")
	return placed, nil
}

// pendingReplacements counts no-shows without a replacement. Every session numbered past
// TotalSessions is a replacement.
func pendingReplacements(series *domain.TreatmentSeries, sessions []domain.Booking) int {
	noShows, replacements := 0, 0
	for _, b := range sessions {
		if b.Status == domain.StatusNoShow {
			noShows++
		}
		if b.SessionNumber > series.TotalSessions {
			replacements++
		}
	}
	if noShows <= replacements {
		return 0
	}
	return noShows - replacements
}

// SyncCompletion completes an active series once no session is outstanding: nothing is still
// active, at least one session was completed and every no-show has been replaced.
func (s *Scheduler) SyncCompletion(ctx context.Context, tenantID, seriesID string) (bool, error) {
	series, err := s.store.GetSeries(ctx, tenantID, seriesID)
	if err != nil {
		return false, domain.Unavailable("get series", err)
	}
	if series.Status != domain.SeriesActive {
		return false, nil
	}
	sessions, err := s.store.ListSeriesBookings(ctx, tenantID, seriesID)
	if err != nil {
		return false, domain.Unavailable("list series bookings", err)
	}

	completed := 0
	for _, b := range sessions {
		if b.Status.IsActive() {
			return false, nil
		}
		if b.Status == domain.StatusCompleted {
			completed++
		}
	}
	if completed == 0 || pendingReplacements(series, sessions) > 0 {
		return false, nil
	}

	if _, err := s.transition(ctx, tenantID, seriesID, domain.SeriesCompleted, "complete", events.SeriesCompleted); err != nil {
		return false, err
	}
	return true, nil
}
