// Package httpapi is the gateway's inbound HTTP surface: routing, request
// validation, the structured error body and the middleware chain that puts
// correlation, authentication, rate limiting and load shedding in front of
// the handlers.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"bot-gateway/downstream"
	"bot-gateway/health"
	"bot-gateway/middleware/auth"
	"bot-gateway/middleware/correlation"
	"bot-gateway/middleware/ratelimit"
	"bot-gateway/middleware/ratelimit/domain"
	"bot-gateway/middleware/ratelimit/infra"
	"bot-gateway/session"
)

// Route policy names.
const (
	PolicyAPI    = "api"
	PolicyHealth = "health"
	PolicyStrict = "strict"
)

type ChatSender interface {
	SendMessage(ctx context.Context, req downstream.ChatRequest) (*downstream.ChatResponse, error)
}

type FAQAnswerer interface {
	GetAnswer(ctx context.Context, req downstream.FAQRequest) (*downstream.FAQResponse, error)
}

type QuoteGenerator interface {
	GetQuote(ctx context.Context, req downstream.QuoteRequest) (*downstream.QuoteResponse, error)
}

type SpeechConverter interface {
	Synthesize(ctx context.Context, req downstream.SynthesizeRequest) (*downstream.Audio, error)
	Recognize(ctx context.Context, audio []byte, contentType string) (*downstream.RecognizeResponse, error)
}

type Sessions interface {
	Create(ctx context.Context, userID string, metadata map[string]string) (session.Session, error)
	Get(ctx context.Context, id string) (session.Session, error)
	Validate(ctx context.Context, id string) (bool, error)
	Extend(ctx context.Context, id string, minutes int) (session.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]session.Session, error)
}

// RateLimitStats exposes in-process decision counters, e.g.
// infra.MemoryStatsStore.
type RateLimitStats interface {
	Total() infra.Counters
	ByPolicy() map[string]infra.Counters
	ByRoute() map[string]infra.Counters
}

type HealthChecker interface {
	Check(ctx context.Context) health.Report
	Ready(ctx context.Context) (health.Report, bool)
}

// Info is reported by GET /api/system/info.
type Info struct {
	Name        string
	Version     string
	Environment string
	StartedAt   time.Time
	Algorithm   string
}

type Deps struct {
	Sessions Sessions
	Chat     ChatSender
	FAQ      FAQAnswerer
	Quote    QuoteGenerator
	Speech   SpeechConverter
	Health   HealthChecker
	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	Auth *auth.Verifier
	// RateLimit is nil when rate limiting is disabled. PolicyFn, KeyFn and
	// OnReject are filled in when empty.
	RateLimit *ratelimit.Options
	// RateLimitStats adds decision counters to the rate limit config
	// endpoint when set.
	RateLimitStats RateLimitStats
	Concurrency    ratelimit.ConcurrencyOptions

	Logger zerolog.Logger
	Info   Info
	// Development exposes panic detail in error bodies.
	Development bool
}

type Server struct {
	d   Deps
	mux *http.ServeMux
}

func New(d Deps) *Server {
	if d.Auth == nil {
		d.Auth = auth.NewVerifier(auth.Options{})
	}
	if d.Info.StartedAt.IsZero() {
		d.Info.StartedAt = time.Now()
	}
	s := &Server{d: d, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	protect := s.d.Auth.Require

	s.mux.Handle("POST /api/sessions", protect(http.HandlerFunc(s.createSession)))
	s.mux.Handle("GET /api/sessions/{sessionId}", protect(http.HandlerFunc(s.getSession)))
	// "/{sessionId}/validate" would conflict with "/user/{userId}" as a route
	s.mux.Handle("GET /api/sessions/{sessionId}/{action}", protect(http.HandlerFunc(s.sessionAction)))
	s.mux.Handle("POST /api/sessions/{sessionId}/extend", protect(http.HandlerFunc(s.extendSession)))
	s.mux.Handle("GET /api/sessions/user/{userId}", protect(http.HandlerFunc(s.listUserSessions)))
	s.mux.Handle("DELETE /api/sessions/{sessionId}", protect(http.HandlerFunc(s.deleteSession)))

	s.mux.Handle("POST /api/chat", protect(http.HandlerFunc(s.chat)))
	s.mux.Handle("POST /api/faq", protect(http.HandlerFunc(s.faq)))
	s.mux.Handle("POST /api/quote/generate", protect(http.HandlerFunc(s.quote)))
	s.mux.Handle("POST /api/speech/tts", protect(http.HandlerFunc(s.textToSpeech)))
	s.mux.Handle("POST /api/speech/stt", protect(http.HandlerFunc(s.speechToText)))

	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("GET /health/ready", s.ready)
	s.mux.HandleFunc("GET /health/live", s.live)

	s.mux.HandleFunc("GET /api/system/info", s.systemInfo)
	s.mux.HandleFunc("GET /api/system/rate-limit-config", s.rateLimitConfig)
	s.mux.HandleFunc("GET /api/system/endpoints", s.endpoints)

	if s.d.Metrics != nil {
		s.mux.Handle("GET /metrics", s.d.Metrics)
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, &APIError{Status: http.StatusNotFound, Code: CodeGeneral, Message: "No route for " + r.Method + " " + r.URL.Path})
	})
}

// Handler returns the mux wrapped in the full middleware chain, outermost
// first: request logger, access log, correlation id, panic recovery, token
// identification, rate limiting, concurrency limiting.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)

	conc := s.d.Concurrency
	if conc.OnReject == nil {
		conc.OnReject = func(w http.ResponseWriter, r *http.Request) {
			writeAPIError(w, r, &APIError{Status: http.StatusServiceUnavailable, Code: CodeBusy, Message: "Server is busy, try again shortly"})
		}
	}
	h = ratelimit.ConcurrencyMiddleware(conc)(h)

	if s.d.RateLimit != nil {
		h = ratelimit.Middleware(s.rateLimitOptions())(h)
	}

	h = s.d.Auth.Identify(h)
	h = Recover(s.d.Development)(h)
	h = correlation.Middleware(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		ev := hlog.FromRequest(r).Info()
		if status >= 500 {
			ev = hlog.FromRequest(r).Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(h)
	h = hlog.NewHandler(s.d.Logger)(h)
	return h
}

func (s *Server) rateLimitOptions() ratelimit.Options {
	opts := *s.d.RateLimit
	if opts.PolicyFn == nil {
		opts.PolicyFn = RoutePolicy
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ratelimit.IdentityKeyFunc(auth.Subject, ratelimit.DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor))
	}
	if opts.OnReject == nil {
		opts.OnReject = func(w http.ResponseWriter, r *http.Request, _ domain.Decision) {
			writeAPIError(w, r, &APIError{
				Status:  http.StatusTooManyRequests,
				Code:    CodeRateLimited,
				Message: "Too many requests, retry after " + w.Header().Get("Retry-After") + "s",
			})
		}
	}
	if opts.OnError == nil {
		opts.OnError = func(r *http.Request, err error) {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable, admitting request")
		}
	}
	return opts
}

// RoutePolicy binds each request to its named rate limit policy.
// Session creation, deletion and extension are strict.
func RoutePolicy(r *http.Request) string {
	p := r.URL.Path
	switch {
	case p == "/health" || strings.HasPrefix(p, "/health/"):
		return PolicyHealth
	case r.Method == http.MethodPost && p == "/api/sessions",
		r.Method == http.MethodDelete && strings.HasPrefix(p, "/api/sessions/"),
		r.Method == http.MethodPost && strings.HasPrefix(p, "/api/sessions/") && strings.HasSuffix(p, "/extend"):
		return PolicyStrict
	case strings.HasPrefix(p, "/api/"):
		return PolicyAPI
	}
	return ""
}
