package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-gateway/config"
	"bot-gateway/httpapi"
	"bot-gateway/metrics"
	"bot-gateway/middleware/ratelimit/domain"
)

func rateConfig(statsBackend string) config.Config {
	limit := config.Limit{Limit: 5, Window: time.Minute}
	return config.Config{
		Cache: config.Cache{Prefix: "bff:"},
		Rate: config.Rate{
			Enabled:      true,
			Backend:      "memory",
			Algorithm:    "window",
			Global:       limit,
			API:          limit,
			Health:       limit,
			Strict:       limit,
			StatsEnabled: statsBackend != "",
			StatsBackend: statsBackend,
			StatsPrefix:  "bff:stats:",
			StatsTTL:     time.Hour,
			StatsBucket:  "hour",
		},
	}
}

func TestRateLimitOptions_MemoryStatsAreReadable(t *testing.T) {
	ctx := context.Background()
	opts, reader := rateLimitOptions(ctx, rateConfig("memory"), nil, metrics.New())
	require.NotNil(t, reader)
	assert.Len(t, opts.Policies, 3)
	assert.Contains(t, opts.Policies, httpapi.PolicyStrict)

	require.NoError(t, opts.Stats.Record(ctx, domain.StatsEvent{Policy: httpapi.PolicyAPI, Allowed: true, Method: "GET", Path: "/api/x"}))
	assert.Equal(t, int64(1), reader.Total().Allowed)
	assert.Equal(t, int64(1), reader.ByPolicy()[httpapi.PolicyAPI].Allowed)
}

func TestRateLimitOptions_RedisStatsHaveNoReader(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, reader := rateLimitOptions(context.Background(), rateConfig("redis"), rdb, metrics.New())
	assert.Nil(t, reader)

	_, reader = rateLimitOptions(context.Background(), rateConfig(""), nil, metrics.New())
	assert.Nil(t, reader)
}

func TestAlgorithmName(t *testing.T) {
	assert.Equal(t, "token-bucket", algorithmName("token"))
	assert.Equal(t, "fixed-window", algorithmName("window"))
}
