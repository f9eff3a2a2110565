package metrics

import (
	"errors"

	"salonsched/internal/domain"
)

// Outcome maps an operation result onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRuleViolation):
		return "rule_violation"
	case errors.Is(err, domain.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, domain.ErrSchedulingInfeasible):
		return "infeasible"
	case errors.Is(err, domain.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrPastAppointment), errors.Is(err, domain.ErrSeriesPaused):
		return "invalid_state"
	default:
		return "error"
	}
}
