package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/sequencer/internal/ir"
)

// RuntimeError represents an error detected while resolving or traversing
// a schedule.
//
// Runtime errors include:
//   - Unknown schedule: Execute called with an unregistered id
//   - Unknown element: a vertex or edge refers to an unregistered payload
//   - Malformed graph: no eligible outgoing edge, unmatched sync end,
//     or a sub-schedule dispatching one of its own ancestors
//   - Incorrect processor: a processor was handed a vertex it cannot run
//   - Quota exceeded: a run visited more vertices than allowed
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Schedule identifies the affected schedule.
	Schedule ir.ScheduleID

	// RunID identifies the affected run, when one exists.
	RunID string

	// Vertex is the label of the vertex being processed, if any.
	Vertex string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeUnknownSchedule    RuntimeErrorCode = "UNKNOWN_SCHEDULE"
	ErrCodeUnknownElement     RuntimeErrorCode = "UNKNOWN_ELEMENT"
	ErrCodeMalformedGraph     RuntimeErrorCode = "MALFORMED_GRAPH"
	ErrCodeIncorrectProcessor RuntimeErrorCode = "INCORRECT_PROCESSOR"
	ErrCodeQuotaExceeded      RuntimeErrorCode = "QUOTA_EXCEEDED"
	ErrCodeAlreadyStarted     RuntimeErrorCode = "ALREADY_STARTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Vertex != "" && e.Schedule != "":
		msg = fmt.Sprintf("%s (schedule=%s, vertex=%s)", msg, e.Schedule, e.Vertex)
	case e.Schedule != "":
		msg = fmt.Sprintf("%s (schedule=%s)", msg, e.Schedule)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Cause }

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownScheduleError reports whether err is an unknown-schedule error.
func IsUnknownScheduleError(err error) bool { return hasCode(err, ErrCodeUnknownSchedule) }

// IsUnknownElementError reports whether err is an unknown-element error.
func IsUnknownElementError(err error) bool { return hasCode(err, ErrCodeUnknownElement) }

// IsMalformedGraphError reports whether err is a malformed-graph error.
func IsMalformedGraphError(err error) bool { return hasCode(err, ErrCodeMalformedGraph) }

// IsQuotaError reports whether err is a quota error.
func IsQuotaError(err error) bool { return hasCode(err, ErrCodeQuotaExceeded) }

// NewUnknownScheduleError creates the error raised by Execute for an
// unregistered schedule id.
func NewUnknownScheduleError(id ir.ScheduleID) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownSchedule,
		Message:  "schedule is not registered",
		Schedule: id,
	}
}

// NewQuotaError creates the error raised when a run exceeds its visit quota.
func NewQuotaError(id ir.ScheduleID, runID string, visits, limit int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("run exceeded max visits (%d > %d)", visits, limit),
		Schedule: id,
		RunID:    runID,
	}
}
