package api

import (
	"context"
	"net/http"
	"time"

	"salonsched/internal/booking"
	"salonsched/internal/domain"
	"salonsched/internal/series"
	"salonsched/internal/timeutil"

	"github.com/gin-gonic/gin"
)

func (s *Server) getAvailability(c *gin.Context) {
	from, err := time.Parse(timeutil.DateLayout, c.Query("dateFrom"))
	if err != nil {
		badRequest(c, "dateFrom must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(timeutil.DateLayout, c.Query("dateTo"))
	if err != nil {
		badRequest(c, "dateTo must be YYYY-MM-DD")
		return
	}

	days, err := s.scheduler.Availability(c.Request.Context(), c.GetString(ctxTenantID), booking.AvailabilityRequest{
		StaffID:   c.Query("staffId"),
		ServiceID: c.Query("serviceId"),
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

type createBookingRequest struct {
	ClientID    string    `json:"clientId"`
	StaffID     string    `json:"staffId"`
	ServiceID   string    `json:"serviceId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (s *Server) createBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	b, err := s.scheduler.CreateBooking(c.Request.Context(), c.GetString(ctxTenantID), booking.CreateRequest{
		ClientID:    req.ClientID,
		StaffID:     req.StaffID,
		ServiceID:   req.ServiceID,
		RequestedAt: req.RequestedAt,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) cancelBooking(c *gin.Context) {
	res, err := s.scheduler.CancelBooking(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rescheduleRequest struct {
	RequestedAt time.Time `json:"requestedAt"`
}

func (s *Server) rescheduleBooking(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.RequestedAt.IsZero() {
		badRequest(c, "requestedAt is required")
		return
	}

	b, err := s.scheduler.RescheduleBooking(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), req.RequestedAt)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type bookingTransition func(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error)

func (s *Server) bookingStatus(fn bookingTransition) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := fn(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

type createSeriesRequest struct {
	ClientID         string    `json:"clientId"`
	ServiceID        string    `json:"serviceId"`
	TotalSessions    int       `json:"totalSessions"`
	IntervalDays     int       `json:"intervalDays"`
	FirstSessionDate time.Time `json:"firstSessionDate"`
	PreferredStaffID string    `json:"preferredStaffId"`
}

func (s *Server) createSeries(c *gin.Context) {
	var req createSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := s.scheduler.CreateSeries(c.Request.Context(), c.GetString(ctxTenantID), series.Request{
		ClientID:         req.ClientID,
		ServiceID:        req.ServiceID,
		TotalSessions:    req.TotalSessions,
		IntervalDays:     req.IntervalDays,
		FirstSessionDate: req.FirstSessionDate,
		PreferredStaffID: req.PreferredStaffID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type seriesTransition func(ctx context.Context, tenantID, seriesID string) (*domain.TreatmentSeries, error)

func (s *Server) seriesStatus(fn seriesTransition) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := fn(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

type rescheduleSessionRequest struct {
	NotBefore time.Time `json:"notBefore"`
}

func (s *Server) rescheduleSession(c *gin.Context) {
	var req rescheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	b, err := s.scheduler.RescheduleSession(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), c.Param("bookingId"), req.NotBefore)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
