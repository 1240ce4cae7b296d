package correlation

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func TestMiddleware_PropagatesInboundID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(Header, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if seen != "abc-123" {
		t.Fatalf("expected context id abc-123, got %q", seen)
	}
	if got := w.Header().Get(Header); got != "abc-123" {
		t.Fatalf("expected response header abc-123, got %q", got)
	}
}

func TestMiddleware_GeneratesWhenMissingOrOversized(t *testing.T) {
	var seen []string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, FromContext(r.Context()))
	}))

	r1 := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	h.ServeHTTP(httptest.NewRecorder(), r1)

	r2 := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r2.Header.Set(Header, strings.Repeat("x", maxIDLen+1))
	h.ServeHTTP(httptest.NewRecorder(), r2)

	if len(seen) != 2 || seen[0] == "" || seen[1] == "" {
		t.Fatalf("expected generated ids, got %v", seen)
	}
	if seen[0] == seen[1] {
		t.Fatalf("expected distinct ids, got %q twice", seen[0])
	}
	if len(seen[1]) > maxIDLen {
		t.Fatalf("expected oversized inbound id to be replaced")
	}
}

func TestMiddleware_StampsRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	h := hlog.NewHandler(base)(Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
	})))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(Header, "trace-me")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if !strings.Contains(buf.String(), `"correlation_id":"trace-me"`) {
		t.Fatalf("expected correlation_id on log line, got %s", buf.String())
	}
}
