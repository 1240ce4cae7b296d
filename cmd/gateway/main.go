package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bot-gateway/cache"
	"bot-gateway/config"
	"bot-gateway/downstream"
	"bot-gateway/health"
	"bot-gateway/httpapi"
	"bot-gateway/logging"
	"bot-gateway/metrics"
	"bot-gateway/middleware/auth"
	"bot-gateway/middleware/ratelimit"
	"bot-gateway/middleware/ratelimit/domain"
	"bot-gateway/middleware/ratelimit/infra"
	"bot-gateway/session"
)

const serviceName = "bot-gateway"

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.NewWithWriter(os.Stderr, "info", false, serviceName)
		l.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty, serviceName)
	zerolog.DefaultContextLogger = &logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("gateway stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	m := metrics.New()

	var rdb *redis.Client
	needRedis := cfg.Cache.Backend == "redis" ||
		(cfg.Rate.Enabled && cfg.Rate.Backend == "redis") ||
		(cfg.Rate.StatsEnabled && cfg.Rate.StatsBackend == "redis")
	if needRedis {
		var err error
		rdb, err = cache.Connect(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			PoolSize: cfg.Cache.RedisPoolSize,
		})
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	var store cache.Store
	if cfg.Cache.Backend == "redis" {
		store = cache.NewRedis(rdb)
	} else {
		mem := cache.NewMemory()
		defer func() { _ = mem.Close() }()
		store = mem
	}

	sessions := session.New(store,
		session.WithTTL(cfg.SessionTTL),
		session.WithKeyPrefix(cfg.Cache.Prefix),
		session.WithLogger(logger),
		session.WithRecorder(m.SessionRecorder()),
	)

	clients := make(map[string]*downstream.Client, len(config.Services))
	probers := make([]health.Prober, 0, len(config.Services))
	for _, name := range config.Services {
		ds := cfg.Downstreams[name]
		c, err := downstream.New(downstream.Config{
			Name:          name,
			BaseURL:       ds.BaseURL,
			Policy:        ds.Policy,
			HealthTimeout: cfg.Health.ProbeTimeout,
		},
			downstream.WithLogger(logger),
			downstream.WithRecorder(m),
			downstream.WithPipelineOptions(m.PipelineOptions(name)...),
		)
		if err != nil {
			return fmt.Errorf("downstream %s: %w", name, err)
		}
		clients[name] = c
		probers = append(probers, c)
	}

	agg := health.New(store, probers, health.Options{
		CacheSlow:      cfg.Health.CacheSlow,
		DownstreamSlow: cfg.Health.DownstreamSlow,
		ProbeTimeout:   cfg.Health.ProbeTimeout,
		PollInterval:   cfg.Health.PollInterval,
		Logger:         logger,
	})
	go agg.Run(ctx)

	verifier := auth.NewVerifier(auth.Options{
		Secret:         []byte(cfg.Auth.Secret),
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		OnUnauthorized: httpapi.Unauthorized,
	})

	var (
		rl      *ratelimit.Options
		rlStats httpapi.RateLimitStats
	)
	if cfg.Rate.Enabled {
		rl, rlStats = rateLimitOptions(ctx, cfg, rdb, m)
	}

	api := httpapi.New(httpapi.Deps{
		Sessions: sessions,
		Chat:     downstream.NewChatBot(clients[config.ChatBot]),
		FAQ:      downstream.NewFAQBot(clients[config.FAQBot]),
		Quote:    downstream.NewQuoteBot(clients[config.QuoteBot]),
		Speech:   downstream.NewSpeech(clients[config.Speech]),
		Health:   agg,
		Metrics:  m.Handler(),
		Auth:     verifier,

		RateLimit:      rl,
		RateLimitStats: rlStats,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.Timeout,
		},

		Logger: logger,
		Info: httpapi.Info{
			Name:        serviceName,
			Version:     version,
			Environment: cfg.Env,
			StartedAt:   time.Now(),
			Algorithm:   algorithmName(cfg.Rate.Algorithm),
		},
		Development: cfg.Development(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// speech synthesis may take up to its downstream timeout
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("env", cfg.Env).
		Str("version", version).
		Str("cache", cfg.Cache.Backend).
		Dur("session_ttl", cfg.SessionTTL).
		Bool("auth", verifier.Enabled()).
		Msg("gateway listening")
	for _, name := range config.Services {
		ds := cfg.Downstreams[name]
		logger.Info().
			Str("service", name).
			Str("base_url", clients[name].BaseURL()).
			Int("retries", ds.Policy.RetryCount).
			Dur("timeout", ds.Policy.Timeout).
			Msg("downstream registered")
	}
	logger.Info().
		Bool("enabled", cfg.Rate.Enabled).
		Str("backend", cfg.Rate.Backend).
		Str("algorithm", cfg.Rate.Algorithm).
		Int("global", cfg.Rate.Global.Limit).
		Int("api", cfg.Rate.API.Limit).
		Int("strict", cfg.Rate.Strict.Limit).
		Str("key_header", cfg.Rate.KeyHeader).
		Bool("trust_xff", cfg.Rate.TrustXFF).
		Msg("rate limiting")
	logger.Info().
		Int("max", cfg.Concurrency.Max).
		Dur("acquire_timeout", cfg.Concurrency.Timeout).
		Msg("concurrency")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// rateLimitOptions builds the limiters and stats sinks. The reader is non-nil
// only for the in-memory stats backend.
func rateLimitOptions(ctx context.Context, cfg config.Config, rdb *redis.Client, m *metrics.Metrics) (*ratelimit.Options, httpapi.RateLimitStats) {
	rc := cfg.Rate
	limiter := func(name string, l config.Limit) domain.Limiter {
		p := domain.Policy{Name: name, Limit: l.Limit, Window: l.Window}
		switch {
		case rc.Algorithm == "token":
			tb := infra.NewTokenBucket(p)
			tb.StartJanitor(ctx)
			return tb
		case rc.Backend == "redis":
			return infra.NewRedisWindow(rdb, p, infra.WithKeyPrefix(cfg.Cache.Prefix+"ratelimit"))
		default:
			return infra.NewMemoryWindow(p)
		}
	}

	stats := infra.TeeStats{m.RateLimitStats()}
	var reader httpapi.RateLimitStats
	if rc.StatsEnabled {
		if rc.StatsBackend == "redis" {
			stats = append(stats, infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(rc.StatsPrefix),
				infra.WithStatsTTL(rc.StatsTTL),
				infra.WithStatsBucket(rc.StatsBucket),
				infra.WithStatsTrackKeys(rc.StatsTrackKeys),
			))
		} else {
			mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(rc.StatsTrackKeys))
			stats = append(stats, mem)
			reader = mem
		}
	}

	return &ratelimit.Options{
		Global: limiter("global", rc.Global),
		Policies: map[string]domain.Limiter{
			httpapi.PolicyAPI:    limiter(httpapi.PolicyAPI, rc.API),
			httpapi.PolicyHealth: limiter(httpapi.PolicyHealth, rc.Health),
			httpapi.PolicyStrict: limiter(httpapi.PolicyStrict, rc.Strict),
		},
		Stats:               stats,
		KeyHeader:           rc.KeyHeader,
		TrustXForwardedFor:  rc.TrustXFF,
		AddRateLimitHeaders: rc.AddHeaders,
	}, reader
}

func algorithmName(a string) string {
	if a == "token" {
		return "token-bucket"
	}
	return "fixed-window"
}
