// Package faults defines the gateway's error taxonomy.
//
// Every failure that crosses a component boundary is a *Fault carrying one of
// the kinds below. The Resiliency Executor is the only place that classifies
// raw transport errors into kinds; everything upstream passes faults through
// unchanged.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates every failure category the gateway can surface.
type Kind string

const (
	ValidationFailed       Kind = "VALIDATION_FAILED"
	IdempotencyConflict    Kind = "IDEMPOTENCY_CONFLICT"
	TenantInvalid          Kind = "TENANT_INVALID"
	NoRouteAvailable       Kind = "NO_ROUTE_AVAILABLE"
	TransformationRequired Kind = "TRANSFORMATION_REQUIRED"
	AdapterUnavailable     Kind = "ADAPTER_UNAVAILABLE"
	Timeout                Kind = "TIMEOUT"
	SchemeRejected         Kind = "SCHEME_REJECTED"
	ResourceExhausted      Kind = "RESOURCE_EXHAUSTED"
	OrphanResponse         Kind = "ORPHAN_RESPONSE"
	Internal               Kind = "INTERNAL"
)

// HTTPStatus maps a kind to the status code it surfaces as.
func (k Kind) HTTPStatus() int {
	switch k {
	case ValidationFailed, TenantInvalid:
		return http.StatusBadRequest
	case IdempotencyConflict:
		return http.StatusConflict
	case NoRouteAvailable, AdapterUnavailable:
		return http.StatusServiceUnavailable
	case TransformationRequired, SchemeRejected:
		return http.StatusUnprocessableEntity
	case Timeout:
		return http.StatusGatewayTimeout
	case ResourceExhausted:
		return http.StatusTooManyRequests
	case OrphanResponse:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a fault of this kind may be retried by the
// executor. SchemeRejected is a business outcome and never retried;
// ResourceExhausted is retryable by the caller, not by the executor.
func (k Kind) Retryable() bool {
	switch k {
	case AdapterUnavailable, Timeout, ResourceExhausted:
		return true
	default:
		return false
	}
}

// Fault is the typed error used across the gateway.
type Fault struct {
	Kind          Kind
	Message       string
	CorrelationID string
	UETR          string
	cause         error
}

func New(kind Kind, msg string) *Fault {
	return &Fault{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause. The cause is preserved for errors.Is/As chains but
// never serialized across the API boundary.
func Wrap(kind Kind, msg string, cause error) *Fault {
	return &Fault{Kind: kind, Message: msg, cause: cause}
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.cause }

// WithCorrelation tags the fault with the identifiers the client-visible
// failure body must carry.
func (f *Fault) WithCorrelation(correlationID, uetr string) *Fault {
	f.CorrelationID = correlationID
	f.UETR = uetr
	return f
}

// KindOf extracts the kind from any error. Non-fault errors are Internal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return Internal
}

// Is lets errors.Is match faults by kind: errors.Is(err, &Fault{Kind: Timeout}).
func (f *Fault) Is(target error) bool {
	var t *Fault
	if !errors.As(target, &t) {
		return false
	}
	return f.Kind == t.Kind
}

// IsKind reports whether err is a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}

// Body is the client-visible failure payload. Stack traces and causes are
// deliberately absent.
type Body struct {
	Kind          Kind   `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
	UETR          string `json:"uetr,omitempty"`
}

// BodyOf shapes err into the payload written to clients.
func BodyOf(err error) Body {
	var f *Fault
	if errors.As(err, &f) {
		return Body{Kind: f.Kind, Message: f.Message, CorrelationID: f.CorrelationID, UETR: f.UETR}
	}
	return Body{Kind: Internal, Message: "internal error"}
}
