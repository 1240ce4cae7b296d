// Package health reduces the cache round trip and every downstream /health
// probe into one process-wide status.
//
// The cache is the only critical dependency: when it is unhealthy the whole
// gateway is Unhealthy. A degraded or failing downstream only degrades it.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bot-gateway/downstream"
)

type Status string

const (
	Healthy   Status = "Healthy"
	Degraded  Status = "Degraded"
	Unhealthy Status = "Unhealthy"
)

// SelfCheck names the readiness check for the gateway process itself.
const SelfCheck = "self"

const (
	DefaultCacheSlow      = 100 * time.Millisecond
	DefaultDownstreamSlow = time.Second
	DefaultProbeTimeout   = 5 * time.Second
)

// Pinger is the cache round trip. cache.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Prober is a downstream health probe. *downstream.Client satisfies it.
type Prober interface {
	Name() string
	CheckHealth(ctx context.Context) (downstream.HealthReport, error)
}

// Check is the result for one dependency.
type Check struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Critical  bool              `json:"critical"`
	Latency   time.Duration     `json:"-"`
	LatencyMS float64           `json:"latencyMs"`
	Detail    string            `json:"detail,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

type Report struct {
	Status    Status        `json:"status"`
	Checks    []Check       `json:"checks"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"-"`
}

// Check returns the entry named name.
func (r Report) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

type Options struct {
	// CacheName labels the cache check. Default "redis".
	CacheName string
	// CacheSlow: a ping slower than this is Degraded.
	CacheSlow time.Duration
	// DownstreamSlow: a probe slower than this is Degraded.
	DownstreamSlow time.Duration
	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration
	// PollInterval > 0 enables background refresh through Run.
	PollInterval time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

type Aggregator struct {
	cache   Pinger
	probers []Prober
	opts    Options

	mu     sync.RWMutex
	latest Report
	ok     bool
}

func New(cache Pinger, probers []Prober, opts Options) *Aggregator {
	if opts.CacheName == "" {
		opts.CacheName = "redis"
	}
	if opts.CacheSlow <= 0 {
		opts.CacheSlow = DefaultCacheSlow
	}
	if opts.DownstreamSlow <= 0 {
		opts.DownstreamSlow = DefaultDownstreamSlow
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{cache: cache, probers: probers, opts: opts}
}

// Check probes every dependency concurrently and aggregates the result.
// Probe failures never surface as errors; they become check statuses.
func (a *Aggregator) Check(ctx context.Context) Report {
	start := a.opts.Now()
	checks := make([]Check, 1+len(a.probers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		checks[0] = a.checkCache(gctx)
		return nil
	})
	a.probeAll(gctx, g, checks[1:])
	_ = g.Wait()

	rep := a.report(checks, start)
	a.store(rep)

	if rep.Status != Healthy {
		a.opts.Logger.Warn().Str("status", string(rep.Status)).Dur("elapsed", rep.Duration).Msg("health check not healthy")
	}
	return rep
}

// Ready reports whether the gateway itself can serve traffic. It runs the
// "self" check plus the downstream probes and leaves the cache out, so a cache
// outage shows on /health without pulling the instance out of rotation. The
// readiness report is not stored as Latest.
func (a *Aggregator) Ready(ctx context.Context) (Report, bool) {
	start := a.opts.Now()
	checks := make([]Check, 1+len(a.probers))
	checks[0] = Check{Name: SelfCheck, Status: Healthy, Critical: true}

	g, gctx := errgroup.WithContext(ctx)
	a.probeAll(gctx, g, checks[1:])
	_ = g.Wait()

	rep := a.report(checks, start)
	return rep, rep.Status != Unhealthy
}

func (a *Aggregator) probeAll(ctx context.Context, g *errgroup.Group, dst []Check) {
	for i, p := range a.probers {
		g.Go(func() error {
			dst[i] = a.checkDownstream(ctx, p)
			return nil
		})
	}
}

func (a *Aggregator) report(checks []Check, start time.Time) Report {
	return Report{
		Status:    Aggregate(checks),
		Checks:    checks,
		CheckedAt: start.UTC(),
		Duration:  a.opts.Now().Sub(start),
	}
}

// Latest returns the last computed report, if any.
func (a *Aggregator) Latest() (Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest, a.ok
}

// Run refreshes the report every PollInterval until ctx is done.
// It returns immediately when polling is disabled.
func (a *Aggregator) Run(ctx context.Context) {
	if a.opts.PollInterval <= 0 {
		return
	}
	t := time.NewTicker(a.opts.PollInterval)
	defer t.Stop()

	a.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.Check(ctx)
		}
	}
}

func (a *Aggregator) store(rep Report) {
	a.mu.Lock()
	a.latest = rep
	a.ok = true
	a.mu.Unlock()
}

// Aggregate: Unhealthy if a critical check is unhealthy, Degraded if any
// other check is not healthy, Healthy otherwise.
func Aggregate(checks []Check) Status {
	out := Healthy
	for _, c := range checks {
		if c.Status == Healthy {
			continue
		}
		if c.Critical && c.Status == Unhealthy {
			return Unhealthy
		}
		out = Degraded
	}
	return out
}

func (a *Aggregator) checkCache(ctx context.Context) Check {
	c := Check{Name: a.opts.CacheName, Critical: true}
	if a.cache == nil {
		c.Status = Unhealthy
		c.Detail = "cache not configured"
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.ProbeTimeout)
	defer cancel()

	lat, err := a.cache.Ping(ctx)
	c.setLatency(lat)
	switch {
	case err != nil:
		c.Status = Unhealthy
		c.Detail = "cache unreachable: " + err.Error()
	case lat > a.opts.CacheSlow:
		c.Status = Degraded
		c.Detail = fmt.Sprintf("cache responding slowly (%s)", lat.Round(time.Millisecond))
	default:
		c.Status = Healthy
		c.Detail = "cache reachable"
	}
	return c
}

func (a *Aggregator) checkDownstream(ctx context.Context, p Prober) Check {
	c := Check{Name: p.Name()}

	ctx, cancel := context.WithTimeout(ctx, a.opts.ProbeTimeout)
	defer cancel()

	rep, err := p.CheckHealth(ctx)
	c.setLatency(rep.Latency)
	c.Data = reportData(rep)

	if err != nil {
		c.Status = Unhealthy
		var de *downstream.Error
		switch {
		case errors.As(err, &de) && de.Kind == downstream.KindTimeout:
			c.Detail = "health probe timed out"
		case rep.StatusCode != 0:
			c.Detail = fmt.Sprintf("health endpoint returned %d", rep.StatusCode)
		default:
			c.Detail = "unreachable: " + err.Error()
		}
		a.opts.Logger.Debug().Err(err).Str("service", c.Name).Msg("downstream health probe failed")
		return c
	}

	if rep.Latency > a.opts.DownstreamSlow {
		c.Status = Degraded
		c.Detail = fmt.Sprintf("responding slowly (%s)", rep.Latency.Round(time.Millisecond))
		return c
	}
	c.Status = Healthy
	c.Detail = "responding"
	return c
}

func (c *Check) setLatency(d time.Duration) {
	c.Latency = d
	c.LatencyMS = float64(d.Microseconds()) / 1000
}

func reportData(rep downstream.HealthReport) map[string]string {
	data := map[string]string{}
	if rep.Endpoint != "" {
		data["endpoint"] = rep.Endpoint
	}
	if rep.Status != "" {
		data["status"] = rep.Status
	}
	if rep.Version != "" {
		data["version"] = rep.Version
	}
	if rep.Reported != "" {
		data["service"] = rep.Reported
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
