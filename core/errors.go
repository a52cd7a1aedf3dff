// Package core holds the ambient abstractions shared by every subsystem of
// the gateway: structured logging, typed errors, configuration, and the
// circuit-breaker contract. Nothing in this package knows about HTTP,
// backends, jobs, or workflows.
package core

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway error the way the HTTP surface and the job
// manager need to react to it: which status code to return, whether the
// router may fall back, whether a job worker should retry.
type Kind string

const (
	KindInputInvalid       Kind = "InputInvalid"
	KindInputEmpty         Kind = "InputEmpty"
	KindVoiceNotFound      Kind = "VoiceNotFound"
	KindModelNotFound      Kind = "ModelNotFound"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindBackendTimeout     Kind = "BackendTimeout"
	KindBackendRejected    Kind = "BackendRejected"
	KindBackendProtocol    Kind = "BackendProtocol"
	KindBackendBusy        Kind = "BackendBusy"
	KindJobAlreadyExists   Kind = "JobAlreadyExists"
	KindJobCancelRefused   Kind = "JobCancelRefused"
	KindJobNotFound        Kind = "JobNotFound"
	KindStepFailed         Kind = "StepFailed"
	KindTimeout            Kind = "Timeout"
	KindCancelled          Kind = "Cancelled"
	KindInternal           Kind = "Internal"
)

// GatewayError is the single error type that crosses package boundaries.
// Op identifies the operation that failed (e.g. "router.Route",
// "jobs.Submit"); Kind drives recovery decisions; Err, when set, is the
// underlying cause and is reachable through Unwrap.
type GatewayError struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// New builds a GatewayError with no wrapped cause.
func New(op string, kind Kind, message string) *GatewayError {
	return &GatewayError{Op: op, Kind: kind, Message: message}
}

// Wrap builds a GatewayError around an existing error.
func Wrap(op string, kind Kind, message string, err error) *GatewayError {
	return &GatewayError{Op: op, Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *GatewayError,
// otherwise returns KindInternal.
func KindOf(err error) Kind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryableByRouter reports whether the Backend Router may try the next
// backend in the policy chain after this error (spec §4.B steps 3-5).
func IsRetryableByRouter(err error) bool {
	switch KindOf(err) {
	case KindBackendUnavailable, KindBackendTimeout, KindBackendProtocol:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err carries one of the not-found kinds
// (JobNotFound, VoiceNotFound, ModelNotFound).
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case KindJobNotFound, KindVoiceNotFound, KindModelNotFound:
		return true
	default:
		return false
	}
}

// Sentinel errors for comparisons with errors.Is where no extra context
// is needed.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobAlreadyExists  = errors.New("job already exists")
	ErrJobCancelRefused  = errors.New("job cancel requires confirm=true")
	ErrSessionInUse      = errors.New("pipeline session already active")
	ErrWorkflowNotFound  = errors.New("workflow execution not found")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)
