// Package correlation assigns every inbound request a correlation id, exposes it
// through the request context and the response header, and stamps it on the
// request logger so every log line of the request chain can be joined later.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header is both read from inbound requests and propagated to downstream calls.
const Header = "X-Correlation-ID"

const maxIDLen = 128

type ctxKey struct{}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id of ctx, or "" when none was set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// NewID generates a fresh correlation id.
func NewID() string { return uuid.NewString() }

// Middleware reuses a well-formed inbound X-Correlation-ID or generates one.
// It must run after the logger has been attached to the request (hlog.NewHandler).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxIDLen {
			id = NewID()
		}

		w.Header().Set(Header, id)

		ctx := WithID(r.Context(), id)
		l := zerolog.Ctx(ctx).With().Str("correlation_id", id).Logger()
		ctx = l.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
