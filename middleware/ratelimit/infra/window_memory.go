package infra

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"bot-gateway/middleware/ratelimit/domain"
)

const defaultIdleTTL = 15 * time.Minute

// MemoryWindow keeps one fixed-window counter per partition key in process
// memory. Idle partitions are evicted by the cache once they have not been
// seen for max(idleTTL, window), so an evicted counter could never have held a
// live window.
type MemoryWindow struct {
	policy  domain.Policy
	now     func() time.Time
	entries *ttlcache.Cache[string, *windowEntry]
}

type windowEntry struct {
	mu sync.Mutex
	c  domain.Counter
}

type WindowOption func(*windowConfig)

type windowConfig struct {
	now     func() time.Time
	idleTTL time.Duration
	prefix  string
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) WindowOption {
	return func(c *windowConfig) { c.now = now }
}

func WithWindowIdleTTL(d time.Duration) WindowOption {
	return func(c *windowConfig) { c.idleTTL = d }
}

// WithKeyPrefix sets the Redis key prefix of a RedisWindow.
func WithKeyPrefix(prefix string) WindowOption {
	return func(c *windowConfig) { c.prefix = prefix }
}

func newWindowConfig(p domain.Policy, opts []WindowOption) windowConfig {
	cfg := windowConfig{now: time.Now, idleTTL: defaultIdleTTL, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.idleTTL < p.Window {
		cfg.idleTTL = p.Window
	}
	return cfg
}

func NewMemoryWindow(p domain.Policy, opts ...WindowOption) *MemoryWindow {
	cfg := newWindowConfig(p, opts)
	entries := ttlcache.New[string, *windowEntry](
		ttlcache.WithTTL[string, *windowEntry](cfg.idleTTL),
	)
	go entries.Start()

	return &MemoryWindow{policy: p, now: cfg.now, entries: entries}
}

func (w *MemoryWindow) Policy() domain.Policy { return w.policy }

// Take implements domain.Limiter.
func (w *MemoryWindow) Take(_ context.Context, key domain.Key) (domain.Decision, error) {
	item, _ := w.entries.GetOrSet(string(key), &windowEntry{})
	e := item.Value()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Admit(w.now(), w.policy), nil
}

// Len reports the number of tracked partitions.
func (w *MemoryWindow) Len() int { return w.entries.Len() }

// Stop ends the eviction loop.
func (w *MemoryWindow) Stop() { w.entries.Stop() }
