package domain

import (
	"context"
	"time"
)

// StatsEvent is one rate-limit decision.
//
// Method and Path are plain strings so the event stays transport agnostic.
// Mind cardinality: recording unbounded keys or paths can blow up the number
// of Redis keys or Prometheus series.
type StatsEvent struct {
	Key     Key
	Policy  string
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore persists decision statistics. Callers treat errors as best
// effort and never fail a request because of them.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
