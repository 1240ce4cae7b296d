package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bot-gateway/middleware/ratelimit/domain"
)

// TokenBucket is an alternative to the fixed window: one x/time/rate bucket
// per key, refilled at Limit/Window and holding up to Limit tokens, with
// periodic cleanup of idle keys.
type TokenBucket struct {
	mu           sync.Mutex
	entries      map[string]*bucketEntry
	policy       domain.Policy
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*TokenBucket)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *TokenBucket) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *TokenBucket) { s.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) StoreOption {
	return func(s *TokenBucket) { s.now = now }
}

func NewTokenBucket(p domain.Policy, opts ...StoreOption) *TokenBucket {
	rps := rate.Inf
	if p.Window > 0 {
		rps = rate.Limit(float64(p.Limit) / p.Window.Seconds())
	}
	s := &TokenBucket{
		entries:      make(map[string]*bucketEntry),
		policy:       p,
		rps:          rps,
		burst:        p.Limit,
		idleTTL:      defaultIdleTTL,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenBucket) Policy() domain.Policy       { return s.policy }
func (s *TokenBucket) RPS() float64                { return float64(s.rps) }
func (s *TokenBucket) Burst() int                  { return s.burst }
func (s *TokenBucket) CleanupEvery() time.Duration { return s.cleanupEvery }

// Take implements domain.Limiter. A rejected reservation is cancelled so it
// does not eat into future tokens.
func (s *TokenBucket) Take(_ context.Context, key domain.Key) (domain.Decision, error) {
	now := s.now()
	lim := s.limiter(string(key), now)

	dec := domain.Decision{Policy: s.policy.Name, Limit: s.burst}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		dec.RetryAfter = s.policy.Window
		return dec, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		dec.RetryAfter = d
		dec.ResetAfter = d
		return dec, nil
	}

	dec.Allowed = true
	dec.Remaining = int(lim.TokensAt(now))
	return dec, nil
}

func (s *TokenBucket) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *TokenBucket) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// Len reports the number of tracked keys.
func (s *TokenBucket) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor starts a goroutine that evicts idle keys periodically.
// Stop it by cancelling ctx.
func (s *TokenBucket) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext is the part of context.Context the janitor needs.
type DoneContext interface {
	Done() <-chan struct{}
}
