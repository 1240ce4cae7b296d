package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bot-gateway/middleware/ratelimit/domain"
)

// RedisStatsStore aggregates decisions in Redis hashes shared by all replicas:
// a cumulative total, per-minute buckets, per route, per policy and
// optionally per partition key.
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl applies to minute buckets and per-key hashes only; totals never expire.
	ttl time.Duration

	bucket string // "minute" (default) or "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// counter is one hash field to bump, optionally with an expiry on its hash.
type counter struct {
	key, field string
	expire     bool
}

// counters lists every hash field touched by ev.
func (s *RedisStatsStore) counters(ev domain.StatsEvent, outcome string) []counter {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	out := []counter{{key: s.prefix + ":total", field: outcome}}
	if s.bucket == "minute" {
		out = append(out, counter{key: s.prefix + ":minute:" + at.UTC().Format("200601021504"), field: outcome, expire: true})
	}
	if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
		out = append(out, counter{key: s.prefix + ":route", field: route + ":" + outcome})
	}
	if ev.Policy != "" {
		out = append(out, counter{key: s.prefix + ":policy", field: ev.Policy + ":" + outcome})
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		out = append(out, counter{key: s.prefix + ":key:" + k, field: outcome, expire: true})
	}
	return out
}

// Record bumps all counters for ev in a single round trip.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range s.counters(ev, outcome) {
			pipe.HIncrBy(ctx, c.key, c.field, 1)
			if c.expire && s.ttl > 0 {
				pipe.Expire(ctx, c.key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ratelimit stats: %w", err)
	}
	return nil
}

// Total reads the cumulative counters.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	c.Allowed, _ = strconv.ParseInt(vals["allowed"], 10, 64)
	c.Denied, _ = strconv.ParseInt(vals["denied"], 10, 64)
	return c, nil
}
