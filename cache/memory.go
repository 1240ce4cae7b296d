package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

var errClosed = errors.New("memory cache closed")

// Memory is an in-process Store. Strings live in a ttlcache instance (expired
// entries are evicted by its janitor), sets live in a plain map and never expire,
// matching Redis semantics for SADD keys without EXPIRE.
type Memory struct {
	mu      sync.Mutex
	strings *ttlcache.Cache[string, string]
	sets    map[string]map[string]struct{}

	closeOnce sync.Once
	closed    bool
}

func NewMemory() *Memory {
	c := ttlcache.New[string, string](
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()

	return &Memory{
		strings: c,
		sets:    make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", unavailable("get", errClosed)
	}

	item := m.strings.Get(key)
	if item == nil || item.IsExpired() {
		return "", ErrMiss
	}
	return item.Value(), nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("set", errClosed)
	}

	m.strings.Set(key, value, ttl)
	return nil
}

func (m *Memory) Replace(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, unavailable("replace", errClosed)
	}

	item := m.strings.Get(key)
	if item == nil || item.IsExpired() {
		return false, nil
	}
	remaining := time.Until(item.ExpiresAt())
	if remaining <= 0 {
		return false, nil
	}
	m.strings.Set(key, value, remaining)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, unavailable("delete", errClosed)
	}

	existed := false
	if item := m.strings.Get(key); item != nil && !item.IsExpired() {
		existed = true
	}
	m.strings.Delete(key)
	if _, ok := m.sets[key]; ok {
		existed = true
		delete(m.sets, key)
	}
	return existed, nil
}

func (m *Memory) SetAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("sadd", errClosed)
	}
	if len(members) == 0 {
		return nil
	}

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		m.sets[key] = set
	}
	for _, v := range members {
		set[v] = struct{}{}
	}
	return nil
}

func (m *Memory) SetRemove(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("srem", errClosed)
	}

	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, v := range members {
		delete(set, v)
	}
	// Redis drops empty sets.
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, unavailable("smembers", errClosed)
	}

	set := m.sets[key]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) Ping(_ context.Context) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, unavailable("ping", errClosed)
	}
	return 0, nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.strings.Stop()
	})
	return nil
}
