package downstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bot-gateway/resilience"
)

// Kind is the uniform failure taxonomy shared by every downstream client.
type Kind int

const (
	KindUnavailable Kind = iota + 1
	KindTimeout
	KindInvalidResponse
	KindRejected
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindInvalidResponse:
		return "invalid_response"
	case KindRejected:
		return "downstream_rejected"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every logical downstream call that did not succeed.
type Error struct {
	Service    string
	Kind       Kind
	StatusCode int // last HTTP status observed, 0 when no response was received
	Retries    int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Service, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind of err.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// StatusError is a completed attempt with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// transientStatus reports statuses worth retrying: 5xx and 408.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout
}

var errEmptyBody = errors.New("empty response body")

// classify maps the final error of a logical call onto the taxonomy.
func classify(service string, err error) *Error {
	e := &Error{Service: service, Retries: resilience.Retries(err), Err: err}

	var se *StatusError
	if errors.As(err, &se) {
		e.StatusCode = se.Code
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, resilience.ErrTimeout):
		e.Kind = KindCanceled
	case errors.Is(err, resilience.ErrTimeout):
		e.Kind = KindTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		e.Kind = KindUnavailable
	case se != nil && !transientStatus(se.Code):
		e.Kind = KindRejected
	default:
		e.Kind = KindUnavailable
	}
	return e
}

func invalidResponse(service string, status int, err error) *Error {
	return &Error{Service: service, Kind: KindInvalidResponse, StatusCode: status, Err: err}
}
