package scheduler

import (
	"errors"
	"fmt"
)

// SchedulerError describes a non-fatal condition detected by the scheduler.
//
// None of these ever abort a tick. Most are only logged and recorded as
// events; Run returns one only for a rejected nested call.
type SchedulerError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Command is the display name of the affected command, if any.
	Command string

	// CommandID is the affected command's numeric id, or 0.
	CommandID int64

	// Tick is the tick during which the condition was detected.
	Tick int64
}

// ErrorCode categorizes scheduler errors.
type ErrorCode string

const (
	// ErrCodeConflictRejected: a candidate needed a subsystem held by a
	// non-interruptible command and was dropped.
	ErrCodeConflictRejected ErrorCode = "CONFLICT_REJECTED"

	// ErrCodeReentrantRun: Run was called while a tick was in progress.
	ErrCodeReentrantRun ErrorCode = "REENTRANT_RUN"

	// ErrCodeStaleReference: an operation named a command the scheduler
	// does not know (e.g. cancel of an unknown telemetry id).
	ErrCodeStaleReference ErrorCode = "STALE_REFERENCE"

	// ErrCodeMisconfigured: a default command was rejected at assignment.
	ErrCodeMisconfigured ErrorCode = "MISCONFIGURED"

	// ErrCodeCallbackPanic: a command callback panicked.
	ErrCodeCallbackPanic ErrorCode = "CALLBACK_PANIC"

	// ErrCodeTelemetryFailed: publishing the tick snapshot failed.
	ErrCodeTelemetryFailed ErrorCode = "TELEMETRY_FAILED"
)

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s (command=%s, id=%d, tick=%d)", e.Code, e.Message, e.Command, e.CommandID, e.Tick)
	}
	return fmt.Sprintf("%s: %s (tick=%d)", e.Code, e.Message, e.Tick)
}

// IsReentrantError returns true if err is a rejected nested Run.
// Uses errors.As to handle wrapped errors.
func IsReentrantError(err error) bool {
	return hasCode(err, ErrCodeReentrantRun)
}

// IsCallbackError returns true if err reports a panicking command callback.
func IsCallbackError(err error) bool {
	return hasCode(err, ErrCodeCallbackPanic)
}

// IsConflictError returns true if err reports a rejected admission.
func IsConflictError(err error) bool {
	return hasCode(err, ErrCodeConflictRejected)
}

func hasCode(err error, code ErrorCode) bool {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// newReentrantError creates a SchedulerError for a nested Run call.
func newReentrantError(tick int64) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeReentrantRun,
		Message: "run called while a tick is already in progress",
		Tick:    tick,
	}
}

// newCallbackError creates a SchedulerError for a recovered panic.
func newCallbackError(e *entry, phase string, recovered any, tick int64) *SchedulerError {
	return &SchedulerError{
		Code:      ErrCodeCallbackPanic,
		Message:   fmt.Sprintf("%s panicked: %v", phase, recovered),
		Command:   e.name,
		CommandID: e.id,
		Tick:      tick,
	}
}

// newConflictError creates a SchedulerError for a dropped candidate.
func newConflictError(candidate string, id int64, holder string, subsystem string, tick int64) *SchedulerError {
	return &SchedulerError{
		Code:      ErrCodeConflictRejected,
		Message:   fmt.Sprintf("subsystem %s is held by non-interruptible %s", subsystem, holder),
		Command:   candidate,
		CommandID: id,
		Tick:      tick,
	}
}
