// Package config loads the gateway configuration from the environment and an
// optional config.yaml through github.com/spf13/viper.
//
// Every key has a default. Environment variables use the upper-case key, e.g.
// LISTEN_ADDR or CHATBOT_RETRY_COUNT; the YAML file uses the lower-case one.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bot-gateway/resilience"
)

// Downstream service names, also used as metric labels and log fields.
const (
	ChatBot  = "chatbot"
	FAQBot   = "faqbot"
	QuoteBot = "quotebot"
	Speech   = "speech"
)

// Services lists the downstreams in display order.
var Services = []string{ChatBot, FAQBot, QuoteBot, Speech}

type Config struct {
	Env             string
	ListenAddr      string
	LogLevel        string
	LogPretty       bool
	ShutdownTimeout time.Duration

	Cache       Cache
	SessionTTL  time.Duration
	Rate        Rate
	Concurrency Concurrency
	Health      Health
	Auth        Auth

	Downstreams map[string]Downstream
}

// Development enables error detail in responses.
func (c Config) Development() bool { return strings.EqualFold(c.Env, "development") }

type Cache struct {
	Backend       string // redis | memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	Prefix        string
}

type Limit struct {
	Limit  int
	Window time.Duration
}

type Rate struct {
	Enabled   bool
	Backend   string // memory | redis
	Algorithm string // window | token
	Global    Limit
	API       Limit
	Health    Limit
	Strict    Limit

	KeyHeader  string
	TrustXFF   bool
	AddHeaders bool

	StatsEnabled   bool
	StatsBackend   string // memory | redis
	StatsPrefix    string
	StatsTTL       time.Duration
	StatsBucket    string
	StatsTrackKeys bool
}

type Concurrency struct {
	Max     int
	Timeout time.Duration
}

type Health struct {
	ProbeTimeout   time.Duration
	CacheSlow      time.Duration
	DownstreamSlow time.Duration
	PollInterval   time.Duration
}

type Auth struct {
	Secret   string
	Issuer   string
	Audience string
}

type Downstream struct {
	BaseURL string
	Policy  resilience.Policy
}

type serviceDefaults struct {
	baseURL string
	retries int
	timeout time.Duration
}

var downstreamDefaults = map[string]serviceDefaults{
	ChatBot:  {"http://localhost:5266", 3, 10 * time.Second},
	FAQBot:   {"http://localhost:5267", 3, 10 * time.Second},
	QuoteBot: {"http://localhost:5268", 3, 10 * time.Second},
	Speech:   {"http://localhost:7001", 2, 30 * time.Second},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "production")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("shutdown_timeout", "10s")

	v.SetDefault("cache_backend", "redis")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_pool_size", 50)
	v.SetDefault("redis_prefix", "bff:")
	v.SetDefault("session_ttl", "30m")

	v.SetDefault("rate_enabled", true)
	v.SetDefault("rate_backend", "memory")
	v.SetDefault("rate_algorithm", "window")
	v.SetDefault("rate_global_limit", 60)
	v.SetDefault("rate_global_window", "1m")
	v.SetDefault("rate_api_limit", 100)
	v.SetDefault("rate_api_window", "1m")
	v.SetDefault("rate_health_limit", 300)
	v.SetDefault("rate_health_window", "1m")
	v.SetDefault("rate_strict_limit", 10)
	v.SetDefault("rate_strict_window", "1m")
	v.SetDefault("rate_key_header", "")
	v.SetDefault("trust_xff", false)
	v.SetDefault("add_ratelimit_headers", true)
	v.SetDefault("rate_stats_enabled", false)
	v.SetDefault("rate_stats_backend", "memory")
	v.SetDefault("rate_stats_prefix", "ratelimit:stats")
	v.SetDefault("rate_stats_ttl", "24h")
	v.SetDefault("rate_stats_bucket", "minute")
	v.SetDefault("rate_stats_track_keys", false)

	v.SetDefault("concurrency_max", 100)
	v.SetDefault("concurrency_timeout", "0s")

	v.SetDefault("health_probe_timeout", "5s")
	v.SetDefault("health_cache_slow", "100ms")
	v.SetDefault("health_downstream_slow", "1s")
	v.SetDefault("health_poll_interval", "0s")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("jwt_audience", "")

	for name, d := range downstreamDefaults {
		p := name + "_"
		v.SetDefault(p+"base_url", d.baseURL)
		v.SetDefault(p+"retry_count", d.retries)
		v.SetDefault(p+"retry_base", "100ms")
		v.SetDefault(p+"cb_threshold", 5)
		v.SetDefault(p+"cb_duration_seconds", 30)
		v.SetDefault(p+"timeout_seconds", int(d.timeout/time.Second))
	}
}

// Load reads the configuration. It returns an error for values that would
// leave the gateway unable to start; it never exits the process.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/bot-gateway")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:             v.GetString("app_env"),
		ListenAddr:      v.GetString("listen_addr"),
		LogLevel:        v.GetString("log_level"),
		LogPretty:       v.GetBool("log_pretty"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		Cache: Cache{
			Backend:       strings.ToLower(v.GetString("cache_backend")),
			RedisAddr:     v.GetString("redis_addr"),
			RedisPassword: v.GetString("redis_password"),
			RedisDB:       v.GetInt("redis_db"),
			RedisPoolSize: v.GetInt("redis_pool_size"),
			Prefix:        v.GetString("redis_prefix"),
		},
		SessionTTL: v.GetDuration("session_ttl"),
		Rate: Rate{
			Enabled:        v.GetBool("rate_enabled"),
			Backend:        strings.ToLower(v.GetString("rate_backend")),
			Algorithm:      strings.ToLower(v.GetString("rate_algorithm")),
			Global:         Limit{v.GetInt("rate_global_limit"), v.GetDuration("rate_global_window")},
			API:            Limit{v.GetInt("rate_api_limit"), v.GetDuration("rate_api_window")},
			Health:         Limit{v.GetInt("rate_health_limit"), v.GetDuration("rate_health_window")},
			Strict:         Limit{v.GetInt("rate_strict_limit"), v.GetDuration("rate_strict_window")},
			KeyHeader:      v.GetString("rate_key_header"),
			TrustXFF:       v.GetBool("trust_xff"),
			AddHeaders:     v.GetBool("add_ratelimit_headers"),
			StatsEnabled:   v.GetBool("rate_stats_enabled"),
			StatsBackend:   strings.ToLower(v.GetString("rate_stats_backend")),
			StatsPrefix:    v.GetString("rate_stats_prefix"),
			StatsTTL:       v.GetDuration("rate_stats_ttl"),
			StatsBucket:    v.GetString("rate_stats_bucket"),
			StatsTrackKeys: v.GetBool("rate_stats_track_keys"),
		},
		Concurrency: Concurrency{
			Max:     v.GetInt("concurrency_max"),
			Timeout: v.GetDuration("concurrency_timeout"),
		},
		Health: Health{
			ProbeTimeout:   v.GetDuration("health_probe_timeout"),
			CacheSlow:      v.GetDuration("health_cache_slow"),
			DownstreamSlow: v.GetDuration("health_downstream_slow"),
			PollInterval:   v.GetDuration("health_poll_interval"),
		},
		Auth: Auth{
			Secret:   v.GetString("jwt_secret"),
			Issuer:   v.GetString("jwt_issuer"),
			Audience: v.GetString("jwt_audience"),
		},
		Downstreams: map[string]Downstream{},
	}

	for _, name := range Services {
		p := name + "_"
		cfg.Downstreams[name] = Downstream{
			BaseURL: strings.TrimRight(v.GetString(p+"base_url"), "/"),
			Policy: resilience.Policy{
				Name:             name,
				RetryCount:       v.GetInt(p + "retry_count"),
				RetryBase:        v.GetDuration(p + "retry_base"),
				FailureThreshold: v.GetInt(p + "cb_threshold"),
				OpenDuration:     time.Duration(v.GetInt(p+"cb_duration_seconds")) * time.Second,
				Timeout:          time.Duration(v.GetInt(p+"timeout_seconds")) * time.Second,
			},
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ListenAddr != "", "LISTEN_ADDR is required")
	check(c.Cache.Backend == "redis" || c.Cache.Backend == "memory", "CACHE_BACKEND must be redis or memory, got %q", c.Cache.Backend)
	check(c.Cache.Backend != "redis" || strings.TrimSpace(c.Cache.RedisAddr) != "", "REDIS_ADDR is required when CACHE_BACKEND=redis")
	check(c.SessionTTL > 0, "SESSION_TTL must be > 0")

	check(c.Rate.Backend == "memory" || c.Rate.Backend == "redis", "RATE_BACKEND must be memory or redis, got %q", c.Rate.Backend)
	check(c.Rate.Algorithm == "window" || c.Rate.Algorithm == "token", "RATE_ALGORITHM must be window or token, got %q", c.Rate.Algorithm)
	check(c.Rate.Algorithm != "token" || c.Rate.Backend == "memory", "RATE_ALGORITHM=token requires RATE_BACKEND=memory")
	for name, l := range map[string]Limit{"GLOBAL": c.Rate.Global, "API": c.Rate.API, "HEALTH": c.Rate.Health, "STRICT": c.Rate.Strict} {
		check(l.Limit > 0, "RATE_%s_LIMIT must be > 0", name)
		check(l.Window > 0, "RATE_%s_WINDOW must be > 0", name)
	}
	check(c.Rate.StatsBackend == "memory" || c.Rate.StatsBackend == "redis", "RATE_STATS_BACKEND must be memory or redis, got %q", c.Rate.StatsBackend)
	needsRedis := (c.Rate.Enabled && c.Rate.Backend == "redis") || (c.Rate.StatsEnabled && c.Rate.StatsBackend == "redis")
	check(!needsRedis || strings.TrimSpace(c.Cache.RedisAddr) != "", "REDIS_ADDR is required for redis rate limiting or stats")
	check(c.Concurrency.Max >= 0, "CONCURRENCY_MAX must be >= 0")

	check(c.Health.ProbeTimeout > 0, "HEALTH_PROBE_TIMEOUT must be > 0")

	for _, name := range Services {
		d := c.Downstreams[name]
		env := strings.ToUpper(name)
		u, err := url.Parse(d.BaseURL)
		check(d.BaseURL != "" && err == nil && u.Scheme != "" && u.Host != "", "%s_BASE_URL must be an absolute URL, got %q", env, d.BaseURL)
		check(d.Policy.RetryCount >= 0, "%s_RETRY_COUNT must be >= 0", env)
		check(d.Policy.FailureThreshold > 0, "%s_CB_THRESHOLD must be > 0", env)
		check(d.Policy.OpenDuration > 0, "%s_CB_DURATION_SECONDS must be > 0", env)
		check(d.Policy.Timeout > 0, "%s_TIMEOUT_SECONDS must be > 0", env)
	}
	return errors.Join(errs...)
}
