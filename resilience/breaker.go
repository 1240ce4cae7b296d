package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type BreakerSettings struct {
	Name             string
	FailureThreshold int
	OpenDuration     time.Duration
	OnStateChange    func(name string, from, to State)
}

// Breaker counts consecutive qualifying failures and fails fast once they reach
// the threshold. After OpenDuration a single probe call is let through; its
// outcome alone closes or re-opens the circuit.
//
// Attempts cut short by the caller's own context are not outcomes: they leave
// the failure streak untouched, and a cancelled probe keeps the circuit
// half-open for the next caller.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	// probing is held by the single half-open probe in flight.
	probing atomic.Bool
}

func NewBreaker(s BreakerSettings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.OpenDuration <= 0 {
		s.OpenDuration = DefaultOpenDuration
	}
	threshold := uint32(s.FailureThreshold)

	st := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		// Interval 0: closed-state counts are only reset by a success.
		Interval: 0,
		Timeout:  s.OpenDuration,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !Qualifies(err)
		},
	}
	if s.OnStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, fromGobreaker(from), fromGobreaker(to))
		}
	}

	return &Breaker{name: s.Name, cb: gobreaker.NewTwoStepCircuitBreaker[struct{}](st)}
}

// Execute runs fn unless the circuit is open (or the half-open probe is taken),
// in which case it returns ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch b.cb.State() {
	case gobreaker.StateOpen:
		return b.rejected()
	case gobreaker.StateHalfOpen:
		return b.probe(ctx, fn)
	}

	done, err := b.cb.Allow()
	if err != nil {
		return b.rejected()
	}
	err = fn(ctx)
	if !callerCanceled(ctx, err) {
		done(!Qualifies(err))
		return err
	}
	// The circuit moved to half-open under us and gobreaker handed this call
	// the probe slot; it has to be settled or no probe would ever run again.
	if b.cb.State() == gobreaker.StateHalfOpen {
		done(false)
	}
	return err
}

// probe runs the half-open trial call. Only a real outcome is reported to
// gobreaker, so a cancelled probe frees the slot without deciding anything.
func (b *Breaker) probe(ctx context.Context, fn Attempt) error {
	if !b.probing.CompareAndSwap(false, true) {
		return b.rejected()
	}
	defer b.probing.Store(false)

	err := fn(ctx)
	if callerCanceled(ctx, err) {
		return err
	}
	if done, aerr := b.cb.Allow(); aerr == nil {
		done(!Qualifies(err))
	}
	return err
}

func (b *Breaker) rejected() error {
	return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
}

// callerCanceled reports whether err comes from the caller giving up rather
// than from the downstream. Per-attempt timeouts are real failures.
func callerCanceled(ctx context.Context, err error) bool {
	if err == nil || errors.Is(err, ErrTimeout) {
		return false
	}
	return ctx.Err() != nil
}

func (b *Breaker) State() State { return fromGobreaker(b.cb.State()) }

// ConsecutiveFailures reports the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	return int(b.cb.Counts().ConsecutiveFailures)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
