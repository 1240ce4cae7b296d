package application

import (
	"context"
	"time"

	"bot-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService acquires and releases slots without knowing about HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tries to take a slot.
//   - AcquireTimeout <= 0: no waiting, reject at once when the pool is full.
//   - AcquireTimeout > 0: wait up to the timeout (or until ctx is done).
//
// When ok is false no slot was taken.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.TryAcquire()
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
