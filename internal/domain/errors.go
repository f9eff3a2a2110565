package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidConfig        = errors.New("invalid schedule config")
	ErrRuleViolation        = errors.New("booking rule violation")
	ErrSlotUnavailable      = errors.New("slot unavailable")
	ErrSchedulingInfeasible = errors.New("scheduling infeasible")
	ErrUnavailable          = errors.New("storage unavailable")
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrPastAppointment      = errors.New("cannot cancel a past appointment")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrSeriesPaused         = errors.New("series is paused")
)

// Violation names one booking policy constraint.
type Violation string

const (
	TooSoon           Violation = "too_soon"
	TooFarAhead       Violation = "too_far_ahead"
	SameDayNotAllowed Violation = "same_day_not_allowed"
	LimitExceeded     Violation = "limit_exceeded"
)

// RuleViolationError carries every constraint a request failed.
type RuleViolationError struct {
	Violations []Violation
}

func (e *RuleViolationError) Error() string {
	names := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		names[i] = string(v)
	}
	return fmt.Sprintf("%s: %s", ErrRuleViolation, strings.Join(names, ", "))
}

func (e *RuleViolationError) Unwrap() error { return ErrRuleViolation }

// Has reports whether v is among the violations.
func (e *RuleViolationError) Has(v Violation) bool {
	for _, got := range e.Violations {
		if got == v {
			return true
		}
	}
	return false
}

// Violations returns the violations carried by err, or nil.
func Violations(err error) []Violation {
	var rv *RuleViolationError
	if errors.As(err, &rv) {
		return rv.Violations
	}
	return nil
}

// ConfigError points at the malformed part of a tenant schedule.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// InvalidConfig builds a ConfigError.
func InvalidConfig(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InfeasibleError reports the first series session that could not be placed.
type InfeasibleError struct {
	Session   int
	Candidate time.Time
	Window    int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("%s: session %d has no free slot within %d days of %s",
		ErrSchedulingInfeasible, e.Session, e.Window, e.Candidate.Format("2006-01-02"))
}

func (e *InfeasibleError) Unwrap() error { return ErrSchedulingInfeasible }

// UnavailableError hides the storage cause from the message but keeps it for errors.Is.
type UnavailableError struct {
	Op    string
	cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrUnavailable)
}

func (e *UnavailableError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.cause}
}

// Cause returns the underlying storage error for logging.
func (e *UnavailableError) Cause() error { return e.cause }

// Unavailable wraps a storage failure. Not-found and domain errors pass through untouched.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &UnavailableError{Op: op, cause: err}
}

// IsDomain reports whether err already belongs to the scheduling taxonomy.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrInvalidConfig, ErrRuleViolation, ErrSlotUnavailable, ErrSchedulingInfeasible,
		ErrUnavailable, ErrNotFound, ErrInvalidTransition, ErrPastAppointment,
		ErrInvalidArgument, ErrSeriesPaused,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// InvalidArgument builds an ErrInvalidArgument with a message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
