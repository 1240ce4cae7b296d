package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports an attempt aborted by the timeout stage.
	ErrTimeout = errors.New("resilience: attempt timed out")
	// ErrCircuitOpen reports a call rejected without a network attempt.
	ErrCircuitOpen = errors.New("resilience: circuit open")
)

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a qualifying failure. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Qualifies reports whether err should be retried and counted by the breaker.
func Qualifies(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	return errors.As(err, &te) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCircuitOpen)
}

// RetryError is returned when every attempt of a logical call failed with a
// qualifying error.
type RetryError struct {
	Retries int
	Err     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("after %d retries: %v", e.Retries, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Retries returns the number of retries recorded on err, 0 when none.
func Retries(err error) int {
	var re *RetryError
	if errors.As(err, &re) {
		return re.Retries
	}
	return 0
}
