package domain

import (
	"context"
	"time"
)

// Key identifies a rate-limit partition (subject, API key, client IP...).
type Key string

// Policy is a named fixed-window quota: at most Limit requests per Window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed bool
	Policy  string
	Limit   int
	// Remaining requests left in the current window after this decision.
	Remaining int
	// RetryAfter is the time left in the current window when the request is
	// rejected; zero when allowed.
	RetryAfter time.Duration
	// ResetAfter is the time left in the current window.
	ResetAfter time.Duration
}

// Limiter takes one permit from the partition key under its policy.
//
// Implementations must be safe for concurrent use and must count atomically
// per key: two concurrent calls never both observe count < limit for the
// last permit.
type Limiter interface {
	Policy() Policy
	Take(ctx context.Context, key Key) (Decision, error)
}

// Counter is the state of one fixed window for one partition key.
type Counter struct {
	WindowStart time.Time
	Count       int
}

// Admit applies the fixed-window rule at now. The window starts with the
// first request of the partition and resets once Window has elapsed.
func (c *Counter) Admit(now time.Time, p Policy) Decision {
	if c.WindowStart.IsZero() || now.Sub(c.WindowStart) >= p.Window {
		c.WindowStart = now
		c.Count = 0
	}
	reset := p.Window - now.Sub(c.WindowStart)

	dec := Decision{Policy: p.Name, Limit: p.Limit, ResetAfter: reset}
	if c.Count < p.Limit {
		c.Count++
		dec.Allowed = true
		dec.Remaining = p.Limit - c.Count
		return dec
	}
	dec.RetryAfter = reset
	return dec
}
