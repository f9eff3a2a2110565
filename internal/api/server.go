// Package api exposes the scheduler over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"salonsched/internal/booking"
	"salonsched/internal/domain"
	"salonsched/internal/series"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Scheduler is the booking surface the handlers call.
type Scheduler interface {
	Availability(ctx context.Context, tenantID string, req booking.AvailabilityRequest) ([]domain.DaySlots, error)
	CreateBooking(ctx context.Context, tenantID string, req booking.CreateRequest) (*domain.Booking, error)
	CancelBooking(ctx context.Context, tenantID, bookingID string) (*booking.CancelResult, error)
	RescheduleBooking(ctx context.Context, tenantID, bookingID string, requestedAt time.Time) (*domain.Booking, error)
	Confirm(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error)
	Start(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error)
	Complete(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error)
	MarkNoShow(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error)

	CreateSeries(ctx context.Context, tenantID string, req series.Request) (*series.Result, error)
	PauseSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error)
	ResumeSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error)
	CancelSeries(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error)
	RescheduleSession(ctx context.Context, tenantID, seriesID, bookingID string, notBefore time.Time) (*domain.Booking, error)
}

var _ Scheduler = (*booking.Orchestrator)(nil)

// Options configures the HTTP surface.
type Options struct {
	Port               int
	Keys               []string
	RateLimitPerSecond float64
	RateLimitBurst     int
	RequestTimeout     time.Duration
}

// Server routes /api/v1 requests to a Scheduler.
type Server struct {
	scheduler Scheduler
	opts      Options
	limiters  *limiterStore
	logger    zerolog.Logger
}

func NewServer(scheduler Scheduler, opts Options, logger *zerolog.Logger) *Server {
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 40
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	return &Server{
		scheduler: scheduler,
		opts:      opts,
		limiters:  newLimiterStore(opts.RateLimitPerSecond, opts.RateLimitBurst),
		logger:    l,
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	v1 := r.Group("/api/v1")
	v1.Use(
		apiKeyAuth(s.opts.Keys),
		rateLimit(s.limiters, s.logger),
		tenantScope(),
		requestTimeout(s.opts.RequestTimeout),
	)

	v1.GET("/availability", s.getAvailability)

	v1.POST("/bookings", s.createBooking)
	v1.POST("/bookings/:id/cancel", s.cancelBooking)
	v1.POST("/bookings/:id/reschedule", s.rescheduleBooking)
	v1.POST("/bookings/:id/confirm", s.bookingStatus(s.scheduler.Confirm))
	v1.POST("/bookings/:id/start", s.bookingStatus(s.scheduler.Start))
	v1.POST("/bookings/:id/complete", s.bookingStatus(s.scheduler.Complete))
	v1.POST("/bookings/:id/no-show", s.bookingStatus(s.scheduler.MarkNoShow))

	v1.POST("/booking-series", s.createSeries)
	v1.POST("/series/:id/pause", s.seriesStatus(s.scheduler.PauseSeries))
	v1.POST("/series/:id/resume", s.seriesStatus(s.scheduler.ResumeSeries))
	v1.POST("/series/:id/cancel", s.seriesStatus(s.scheduler.CancelSeries))
	v1.POST("/series/:id/sessions/:bookingId/reschedule", s.rescheduleSession)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.opts.Port).Msg("API server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
