package api

import (
	"errors"
	"net/http"

	"salonsched/internal/domain"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code       string             `json:"error_code"`
	Message    string             `json:"message"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: an UnavailableError also unwraps to its cause.
var errorMappings = []errorMapping{
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrRuleViolation, http.StatusUnprocessableEntity, "booking_rule_violation"},
	{domain.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{domain.ErrSchedulingInfeasible, http.StatusUnprocessableEntity, "scheduling_infeasible"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrPastAppointment, http.StatusConflict, "past_appointment"},
	{domain.ErrSeriesPaused, http.StatusConflict, "series_paused"},
	{domain.ErrInvalidConfig, http.StatusInternalServerError, "invalid_config"},
}

// statusFor maps a scheduling error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Code: code, Message: err.Error(), Violations: domain.Violations(err)}

	ev := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
		var ue *domain.UnavailableError
		if errors.As(err, &ue) {
			ev = ev.AnErr("cause", ue.Cause())
		}
	}
	if code == "internal_error" {
		resp.Message = "internal error"
	}
	ev.Err(err).
		Str("path", c.FullPath()).
		Int("status", status).
		Str("error_code", code).
		Msg("request failed")

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_argument", Message: message})
}
