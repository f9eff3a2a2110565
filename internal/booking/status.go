package booking

import (
	"context"
	"errors"
	"time"

	"salonsched/internal/domain"
	"salonsched/internal/events"
	"salonsched/internal/metrics"
	"salonsched/internal/series"
)

// Confirm marks a scheduled booking as confirmed by the client.
func (o *Orchestrator) Confirm(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error) {
	return o.transition(ctx, tenantID, bookingID, domain.StatusConfirmed)
}

// Start marks the appointment as in progress.
func (o *Orchestrator) Start(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error) {
	return o.transition(ctx, tenantID, bookingID, domain.StatusInProgress)
}

// Complete finishes the appointment and completes its series when nothing is left.
func (o *Orchestrator) Complete(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error) {
	b, err := o.transition(ctx, tenantID, bookingID, domain.StatusCompleted)
	if err != nil || b.SeriesID == "" {
		return b, err
	}
	if _, err := o.series.SyncCompletion(ctx, tenantID, b.SeriesID); err != nil {
		o.logger.Warn().Err(err).Str("series_id", b.SeriesID).Msg("series completion sync failed")
	}
	return b, nil
}

// MarkNoShow records a missed appointment. Sessions of an active series get a replacement.
func (o *Orchestrator) MarkNoShow(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error) {
	b, err := o.transition(ctx, tenantID, bookingID, domain.StatusNoShow)
	if err != nil || b.SeriesID == "" {
		return b, err
	}
	o.replaceMissed(ctx, tenantID, b.SeriesID)
	return b, nil
}

func (o *Orchestrator) replaceMissed(ctx context.Context, tenantID, seriesID string) {
	placed, err := o.series.RescheduleMissedSessions(ctx, tenantID, seriesID)
	switch {
	case errors.Is(err, domain.ErrSeriesPaused):
		o.logger.Debug().Str("series_id", seriesID).Msg("series paused, missed sessions kept")
	case err != nil:
		o.logger.Warn().Err(err).Str("series_id", seriesID).Msg("replace missed sessions failed")
	case len(placed) > 0:
		o.logger.Info().Str("series_id", seriesID).Int("placed", len(placed)).Msg("missed sessions replaced")
	}
}

func (o *Orchestrator) transition(ctx context.Context, tenantID, bookingID string, to domain.BookingStatus) (*domain.Booking, error) {
	b, err := o.store.GetBooking(ctx, tenantID, bookingID)
	if err != nil {
		return nil, domain.Unavailable("get booking", err)
	}
	if err := domain.CheckBookingTransition(b.Status, to); err != nil {
		return nil, err
	}
	now := o.now()
	if err := o.store.UpdateBookingStatus(ctx, tenantID, b.ID, to, domain.StatusMetadata{At: now}); err != nil {
		return nil, domain.Unavailable("update booking status", err)
	}
	from := b.Status
	b.Status = to
	b.UpdatedAt = now
	metrics.IncBookingTransition(string(to))

	o.publish(events.BookingStatusChanged, tenantID, map[string]any{
		"bookingId": b.ID,
		"from":      from,
		"to":        to,
	})
	return b, nil
}

// CreateSeries books every session of a treatment series or none of them.
func (o *Orchestrator) CreateSeries(ctx context.Context, tenantID string, req series.Request) (*series.Result, error) {
	return o.series.CreateSeries(ctx, tenantID, req)
}

// PauseSeries pauses a series.
func (o *Orchestrator) PauseSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error) {
	return o.series.PauseSeries(ctx, tenantID, seriesID)
}

// ResumeSeries reactivates a series and replaces sessions missed while it was paused.
func (o *Orchestrator) ResumeSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error) {
	s, err := o.series.ResumeSeries(ctx, tenantID, seriesID)
	if err != nil {
		return nil, err
	}
	o.replaceMissed(ctx, tenantID, seriesID)
	return s, nil
}

// CancelSeries cancels a series and its open sessions.
func (o *Orchestrator) CancelSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error) {
	return o.series.CancelSeries(ctx, tenantID, seriesID)
}

// RescheduleSession moves one session of an active series.
func (o *Orchestrator) RescheduleSession(ctx context.Context, tenantID, seriesID, bookingID string, notBefore time.Time) (*domain.Booking, error) {
	if notBefore.IsZero() {
		return nil, domain.InvalidArgument("notBefore is required")
	}
	return o.series.RescheduleSession(ctx, tenantID, seriesID, bookingID, notBefore)
}
