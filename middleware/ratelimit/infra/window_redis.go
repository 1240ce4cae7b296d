package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bot-gateway/middleware/ratelimit/domain"
)

// fixedWindowScript increments the partition counter and arms its expiry on
// the first request of a window. Returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisWindow is a fixed-window limiter whose counters live in Redis, so every
// gateway replica shares the same quota. The increment and the expiry are one
// script call, which keeps admission atomic per key.
type RedisWindow struct {
	rdb    redis.Scripter
	policy domain.Policy
	prefix string
}

func NewRedisWindow(rdb redis.Scripter, p domain.Policy, opts ...WindowOption) *RedisWindow {
	cfg := newWindowConfig(p, opts)
	return &RedisWindow{rdb: rdb, policy: p, prefix: strings.Trim(cfg.prefix, ":")}
}

func (w *RedisWindow) Policy() domain.Policy { return w.policy }

func (w *RedisWindow) key(k domain.Key) string {
	return w.prefix + ":" + w.policy.Name + ":" + string(k)
}

// Take implements domain.Limiter.
func (w *RedisWindow) Take(ctx context.Context, key domain.Key) (domain.Decision, error) {
	res, err := fixedWindowScript.Run(ctx, w.rdb, []string{w.key(key)}, w.policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis window: %w", err)
	}
	if len(res) != 2 {
		return domain.Decision{}, fmt.Errorf("redis window: unexpected reply %v", res)
	}

	count, pttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if pttl <= 0 || pttl > w.policy.Window {
		pttl = w.policy.Window
	}

	dec := domain.Decision{Policy: w.policy.Name, Limit: w.policy.Limit, ResetAfter: pttl}
	if count <= w.policy.Limit {
		dec.Allowed = true
		dec.Remaining = w.policy.Limit - count
		return dec, nil
	}
	dec.RetryAfter = pttl
	return dec, nil
}
