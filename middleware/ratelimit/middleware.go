package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"bot-gateway/middleware/ratelimit/application"
	"bot-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// PolicyFunc returns the named policy bound to the request's route, or "" for
// global-only routes.
type PolicyFunc func(r *http.Request) string

// RejectFunc writes the rejection response. Retry-After is already set.
type RejectFunc func(w http.ResponseWriter, r *http.Request, dec domain.Decision)

type Options struct {
	Global   domain.Limiter
	Policies map[string]domain.Limiter
	PolicyFn PolicyFunc

	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool

	OnReject RejectFunc
	// OnError is told about limiter failures; the request is still admitted.
	OnError func(r *http.Request, err error)
	Now     func() time.Time
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// first X-Forwarded-For entry is the original client
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		if r.Host != "" {
			return r.Host
		}
		return "unknown"
	}
}

// IdentityKeyFunc partitions by the authenticated caller when identity finds
// one and falls back to the origin key otherwise. Identities and origins
// live in separate key spaces so they can never collide.
func IdentityKeyFunc(identity func(ctx context.Context) string, fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if id := identity(r.Context()); id != "" {
			return "sub:" + id
		}
		return "ip:" + fallback(r)
	}
}

// RetryAfterSeconds rounds d up to whole seconds, at least 1.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnReject == nil {
		status := opts.RejectStatus
		opts.OnReject = func(w http.ResponseWriter, _ *http.Request, _ domain.Decision) {
			http.Error(w, http.StatusText(status), status)
		}
	}

	svc := application.Service{
		Global: opts.Global,
		Named:  opts.Policies,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			policy := ""
			if opts.PolicyFn != nil {
				policy = opts.PolicyFn(r)
			}

			dec, err := svc.Decide(r.Context(), domain.Key(key), policy)
			if err != nil && opts.OnError != nil {
				opts.OnError(r, err)
			}

			if opts.AddRateLimitHeaders {
				setHeaders(w, key, dec, opts.Global)
			}
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Policy:  dec.Policy,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Now(),
				})
			}
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(RetryAfterSeconds(dec.RetryAfter)))
				opts.OnReject(w, r, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, key string, dec domain.Decision, global domain.Limiter) {
	h := w.Header()
	h.Set("X-RateLimit-Key", key)
	if dec.Policy != "" {
		h.Set("X-RateLimit-Policy", dec.Policy)
		h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
		h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
		h.Set("X-RateLimit-Reset", formatInt(RetryAfterSeconds(dec.ResetAfter)))
	}
	if ri, ok := global.(rateInfo); ok {
		h.Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
		h.Set("X-RateLimit-Burst", formatInt(ri.Burst()))
	}
}
