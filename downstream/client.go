// Package downstream talks to the bot services behind the gateway.
//
// Every logical call goes through the service's resilience.Pipeline, so one
// call may produce several physical attempts. Each attempt is logged and
// carries the request's correlation id. Whatever goes wrong, callers receive
// a *Error whose Kind is one of Unavailable, Timeout, InvalidResponse,
// DownstreamRejected or Canceled.
//
// The /health probe is the exception: it is a single bounded request that
// never touches the retry or breaker state of the service.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bot-gateway/logging"
	"bot-gateway/middleware/correlation"
	"bot-gateway/resilience"
)

const (
	DefaultHealthPath    = "/health"
	DefaultHealthTimeout = 5 * time.Second

	maxBodyBytes = 10 << 20
	maxErrorBody = 512
)

// Recorder receives one observation per physical attempt.
type Recorder interface {
	ObserveAttempt(service, outcome string, elapsed time.Duration)
}

type Config struct {
	Name    string
	BaseURL string
	Policy  resilience.Policy

	HealthPath    string
	HealthTimeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.rec = r }
}

// WithPipelineOptions forwards options to the service's resilience pipeline.
func WithPipelineOptions(opts ...resilience.Option) Option {
	return func(c *Client) { c.pipeOpts = append(c.pipeOpts, opts...) }
}

// Client issues calls to one downstream service. Safe for concurrent use.
type Client struct {
	name    string
	baseURL *url.URL

	http     *http.Client
	log      zerolog.Logger
	rec      Recorder
	pipeOpts []resilience.Option
	pipeline *resilience.Pipeline

	healthPath    string
	healthTimeout time.Duration
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("downstream: service name is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("downstream: %s: invalid base url %q", cfg.Name, cfg.BaseURL)
	}

	c := &Client{
		name:          cfg.Name,
		baseURL:       u,
		http:          &http.Client{},
		log:           zerolog.Nop(),
		healthPath:    cfg.HealthPath,
		healthTimeout: cfg.HealthTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.healthPath == "" {
		c.healthPath = DefaultHealthPath
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = DefaultHealthTimeout
	}

	policy := cfg.Policy
	if policy.Name == "" {
		policy.Name = cfg.Name
	}
	c.pipeline = resilience.New(policy, append([]resilience.Option{resilience.WithLogger(c.log)}, c.pipeOpts...)...)
	return c, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) BaseURL() string { return c.baseURL.String() }

func (c *Client) Pipeline() *resilience.Pipeline { return c.pipeline }

// Response is a completed 2xx attempt.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do performs one logical call through the pipeline. body is resent as-is on
// every attempt.
func (c *Client) Do(ctx context.Context, method, path, contentType string, body []byte) (Response, error) {
	var resp Response
	err := c.pipeline.Do(ctx, func(ctx context.Context) error {
		r, err := c.attempt(ctx, method, path, contentType, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		derr := classify(c.name, err)
		c.logger(ctx).Warn().
			Str("downstream", c.name).
			Str("kind", derr.Kind.String()).
			Int("retries", derr.Retries).
			Err(err).
			Msg("downstream call failed")
		return Response{}, derr
	}
	return resp, nil
}

// attempt is a single physical request.
func (c *Client) attempt(ctx context.Context, method, path, contentType string, body []byte) (Response, error) {
	target := c.url(path)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(correlation.Header, correlationID(ctx))

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(ctx, method, target, "error", 0, time.Since(start), err)
		if ctx.Err() != nil {
			return Response{}, err
		}
		return Response{}, resilience.Transient(err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		c.observe(ctx, method, target, "error", res.StatusCode, elapsed, err)
		if ctx.Err() != nil {
			return Response{}, err
		}
		return Response{}, resilience.Transient(fmt.Errorf("read body: %w", err))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		serr := &StatusError{Code: res.StatusCode, Body: truncate(payload, maxErrorBody)}
		if transientStatus(res.StatusCode) {
			c.observe(ctx, method, target, "transient_status", res.StatusCode, elapsed, serr)
			return Response{}, resilience.Transient(serr)
		}
		c.observe(ctx, method, target, "rejected", res.StatusCode, elapsed, serr)
		return Response{}, serr
	}

	c.observe(ctx, method, target, "success", res.StatusCode, elapsed, nil)
	return Response{StatusCode: res.StatusCode, Header: res.Header, Body: payload}, nil
}

func (c *Client) observe(ctx context.Context, method, target, outcome string, status int, elapsed time.Duration, err error) {
	ev := c.logger(ctx).Info()
	if err != nil {
		ev = c.logger(ctx).Warn().Err(err)
	}
	ev.Str("downstream", c.name).
		Str("method", method).
		Str("target", target).
		Int("status", status).
		Dur("elapsed", elapsed).
		Str("outcome", outcome).
		Msg("downstream attempt")
	if c.rec != nil {
		c.rec.ObserveAttempt(c.name, outcome, elapsed)
	}
}

// CheckHealth sends one GET to the health path, bounded by the probe timeout
// and bypassing the pipeline. The report carries the measured latency even
// when err is non-nil.
func (c *Client) CheckHealth(ctx context.Context) (HealthReport, error) {
	target := c.url(c.healthPath)
	rep := HealthReport{Service: c.name, Endpoint: target}

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return rep, &Error{Service: c.name, Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(correlation.Header, correlationID(ctx))

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		rep.Latency = time.Since(start)
		kind := KindUnavailable
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return rep, &Error{Service: c.name, Kind: kind, Err: err}
	}
	defer res.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody*8))
	rep.Latency = time.Since(start)
	rep.StatusCode = res.StatusCode

	var hb healthBody
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") && json.Unmarshal(payload, &hb) == nil {
		rep.Status = hb.Status
		rep.Version = hb.Version
		rep.Reported = hb.Service
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return rep, &Error{
			Service:    c.name,
			Kind:       KindUnavailable,
			StatusCode: res.StatusCode,
			Err:        &StatusError{Code: res.StatusCode, Body: truncate(payload, maxErrorBody)},
		}
	}
	return rep, nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL.String() + path
}

func (c *Client) logger(ctx context.Context) *zerolog.Logger {
	return logging.FromContext(ctx, &c.log)
}

func correlationID(ctx context.Context) string {
	if id := correlation.FromContext(ctx); id != "" {
		return id
	}
	return correlation.NewID()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.TrimSpace(string(b))
}

// postJSON sends req as JSON and decodes a non-empty JSON response into Resp.
func postJSON[Req, Resp any](ctx context.Context, c *Client, path string, req Req) (*Resp, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	res, err := c.Do(ctx, http.MethodPost, path, "application/json", body)
	if err != nil {
		return nil, err
	}
	return decode[Resp](ctx, c, res)
}

func decode[T any](ctx context.Context, c *Client, res Response) (*T, error) {
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return nil, c.invalid(ctx, res.StatusCode, errEmptyBody)
	}
	var out T
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return nil, c.invalid(ctx, res.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

// invalid logs a broken response contract at error level.
func (c *Client) invalid(ctx context.Context, status int, err error) error {
	c.logger(ctx).Error().
		Str("downstream", c.name).
		Int("status", status).
		Err(err).
		Msg("downstream returned an invalid response")
	return invalidResponse(c.name, status, err)
}
