// Package failure classifies collaborator errors raised while generating or
// executing a graph query, so callers can tell a missing credential from a
// malformed query or an exhausted quota.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Stage identifies the pipeline step that failed.
type Stage string

const (
	StageGeneration Stage = "generation"
	StageExecution  Stage = "execution"
)

// Kind is the coarse cause of a failure.
type Kind string

const (
	KindUnconfigured  Kind = "unconfigured"
	KindUnavailable   Kind = "unavailable"
	KindUnauthorized  Kind = "unauthorized"
	KindInvalidInput  Kind = "invalid_input"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindTimeout       Kind = "timeout"
	KindUnknown       Kind = "unknown"
)

var (
	// ErrGeneration matches any generation-stage *Error via errors.Is.
	ErrGeneration = errors.New("query generation failed")

	// ErrExecution matches any execution-stage *Error via errors.Is.
	ErrExecution = errors.New("query execution failed")

	// Cause sentinels wrapped by collaborators so KindOf can recognise them.
	ErrUnconfigured  = errors.New("collaborator not configured")
	ErrUnavailable   = errors.New("collaborator unavailable")
	ErrUnauthorized  = errors.New("collaborator rejected credentials")
	ErrInvalidInput  = errors.New("invalid input")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Error is a classified generation or execution failure.
type Error struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports stage membership so errors.Is(err, ErrGeneration) works
// without the stage sentinel being in the wrapped chain.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrGeneration:
		return e.Stage == StageGeneration
	case ErrExecution:
		return e.Stage == StageExecution
	}
	return false
}

// Generation wraps err as a generation-stage failure. An err that is
// already a classified *Error is returned unchanged.
func Generation(err error) error {
	return wrap(StageGeneration, err)
}

// Execution wraps err as an execution-stage failure.
func Execution(err error) error {
	return wrap(StageExecution, err)
}

func wrap(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Stage: stage, Kind: KindOf(err), Err: err}
}

// statusCoder is implemented by HTTP-backed collaborator errors.
type statusCoder interface {
	HTTPStatus() int
}

// KindOf inspects err's chain and returns the best matching Kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	switch {
	case errors.Is(err, ErrUnconfigured):
		return KindUnconfigured
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return kindForStatus(sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}
	return KindUnknown
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return KindQuotaExceeded
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusNotFound:
		return KindInvalidInput
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	}
	return KindUnknown
}

// HTTPStatus maps a Kind to the status code the HTTP boundary reports.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUnauthorized, KindUnavailable:
		return http.StatusBadGateway
	case KindUnconfigured:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
