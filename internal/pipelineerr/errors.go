// Package pipelineerr defines the error taxonomy shared by the candidate pipeline
// and work-time accounting services.
package pipelineerr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind is a stable, machine-readable error classification.
type Kind string

const (
	KindConfiguration   Kind = "configuration_error"
	KindAlreadyFinal    Kind = "already_final"
	KindNotFound        Kind = "not_found"
	KindAccountConflict Kind = "account_conflict"
	KindInvalidToken    Kind = "invalid_token"
	KindTimerState      Kind = "timer_state_error"
	KindConcurrency     Kind = "concurrency_conflict"
	KindValidation      Kind = "validation_error"
	KindPolicy          Kind = "policy_violation"
	KindCommitUncertain Kind = "commit_uncertain"
	KindInternal        Kind = "internal_error"
)

// ConfigurationError reports a company stage configuration that cannot be
// navigated: duplicate active orders, a stage from another company, or an
// inactive target stage.
type ConfigurationError struct {
	CompanyID uuid.UUID
	StageID   uuid.UUID
	Message   string
}

func (e *ConfigurationError) Error() string {
	if e.StageID != uuid.Nil {
		return fmt.Sprintf("configuration error: %s (company %s, stage %s)", e.Message, e.CompanyID, e.StageID)
	}
	return fmt.Sprintf("configuration error: %s (company %s)", e.Message, e.CompanyID)
}

// AlreadyFinalError is returned when advancing an application that sits on its
// company's final stage.
type AlreadyFinalError struct {
	ApplicationID uuid.UUID
}

func (e *AlreadyFinalError) Error() string {
	return fmt.Sprintf("application %s is already at the final stage", e.ApplicationID)
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NotFound is a shorthand for a NotFoundError keyed by a UUID.
func NotFound(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// AccountConflictError means an account with the email already exists.
// The stage engine recovers from it; other callers may surface it.
type AccountConflictError struct {
	Email     string
	AccountID uuid.UUID
}

func (e *AccountConflictError) Error() string {
	return fmt.Sprintf("account already exists for email: %s", e.Email)
}

// InvalidTokenError is deliberately uninformative: unknown and expired tokens
// are indistinguishable to the caller.
type InvalidTokenError struct{}

func (e *InvalidTokenError) Error() string {
	return "invalid or expired document link"
}

// TimerReason narrows a TimerStateError.
type TimerReason string

const (
	ReasonAlreadyRunning  TimerReason = "already_running"
	ReasonNoActiveTimer   TimerReason = "no_active_timer"
	ReasonNotRunning      TimerReason = "not_running"
	ReasonNotPaused       TimerReason = "not_paused"
	ReasonAccountInactive TimerReason = "account_inactive"
	ReasonNoWorker        TimerReason = "no_worker_assigned"
)

// TimerStateError reports an illegal time-tracking transition.
type TimerStateError struct {
	Reason   TimerReason
	JobID    uuid.UUID
	WorkerID uuid.UUID
}

func (e *TimerStateError) Error() string {
	switch e.Reason {
	case ReasonAlreadyRunning:
		return fmt.Sprintf("time tracking is already in progress for job %s", e.JobID)
	case ReasonNoActiveTimer:
		return fmt.Sprintf("no active or paused time tracking session found for job %s", e.JobID)
	case ReasonNotRunning:
		return fmt.Sprintf("no running time tracking session found for job %s", e.JobID)
	case ReasonNotPaused:
		return fmt.Sprintf("no paused time tracking session found for job %s", e.JobID)
	case ReasonAccountInactive:
		return fmt.Sprintf("worker %s has no active account", e.WorkerID)
	case ReasonNoWorker:
		return fmt.Sprintf("no worker assigned to job %s", e.JobID)
	default:
		return fmt.Sprintf("timer state error: %s", e.Reason)
	}
}

// ConcurrencyConflictError wraps lock contention, lock timeouts, deadlocks and
// serialization failures. Nothing was applied; the caller should retry.
type ConcurrencyConflictError struct {
	Operation string
	Cause     error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("concurrency conflict during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("concurrency conflict during %s", e.Operation)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Cause
}

// ValidationError indicates bad input rejected before any transaction opened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// PolicyViolationError reports an operation refused by a hard policy, such as
// deleting a stage that applications still reference.
type PolicyViolationError struct {
	Message string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: %s", e.Message)
}

// CommitUncertainError is returned when the unit of work succeeded but the
// commit itself failed, so the outcome is unknown.
type CommitUncertainError struct {
	Operation string
	Cause     error
}

func (e *CommitUncertainError) Error() string {
	return fmt.Sprintf("commit outcome unknown for %s: %v", e.Operation, e.Cause)
}

func (e *CommitUncertainError) Unwrap() error {
	return e.Cause
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		configErr    *ConfigurationError
		finalErr     *AlreadyFinalError
		notFoundErr  *NotFoundError
		conflictErr  *AccountConflictError
		tokenErr     *InvalidTokenError
		timerErr     *TimerStateError
		concErr      *ConcurrencyConflictError
		validErr     *ValidationError
		policyErr    *PolicyViolationError
		uncertainErr *CommitUncertainError
	)
	switch {
	case errors.As(err, &uncertainErr):
		return KindCommitUncertain
	case errors.As(err, &concErr):
		return KindConcurrency
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &finalErr):
		return KindAlreadyFinal
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &conflictErr):
		return KindAccountConflict
	case errors.As(err, &tokenErr):
		return KindInvalidToken
	case errors.As(err, &timerErr):
		return KindTimerState
	case errors.As(err, &validErr):
		return KindValidation
	case errors.As(err, &policyErr):
		return KindPolicy
	default:
		return KindInternal
	}
}

// Retryable reports whether the failed operation left no trace and may be
// retried as-is.
func Retryable(err error) bool {
	return KindOf(err) == KindConcurrency
}

// IsTimerReason reports whether err is a TimerStateError with the given reason.
func IsTimerReason(err error, reason TimerReason) bool {
	var timerErr *TimerStateError
	return errors.As(err, &timerErr) && timerErr.Reason == reason
}
