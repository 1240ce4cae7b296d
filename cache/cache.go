// Package cache defines the minimal key/value contract the gateway needs from its
// external cache, plus two implementations:
//
//   - Redis: the production backend (github.com/redis/go-redis/v9)
//   - Memory: an in-process backend (github.com/jellydator/ttlcache/v3) for local runs and tests
//
// The connection handle is created once at startup (see Connect) and injected into every
// component that uses it; nothing in this package keeps global state.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key does not exist (or already expired).
	ErrMiss = errors.New("cache: key not found")
	// ErrInvalidTTL is returned by Set when the TTL is not strictly positive.
	ErrInvalidTTL = errors.New("cache: ttl must be > 0")
	// ErrUnavailable wraps transport failures talking to the backend.
	ErrUnavailable = errors.New("cache: backend unavailable")
)

// Store is the operation set used by the session layer and the health probe.
//
// String values always carry a TTL; sets never expire on their own.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set writes value with the given TTL. A non-positive TTL is rejected with ErrInvalidTTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Replace overwrites an existing key keeping its current TTL. It reports false
	// and writes nothing when the key is absent.
	Replace(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Ping performs a round trip and returns its latency.
	Ping(ctx context.Context) (time.Duration, error)
	Close() error
}
