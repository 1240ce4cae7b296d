package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-gateway/cache"
	"bot-gateway/downstream"
	"bot-gateway/health"
	"bot-gateway/middleware/auth"
	"bot-gateway/middleware/correlation"
	"bot-gateway/middleware/ratelimit"
	"bot-gateway/middleware/ratelimit/domain"
	"bot-gateway/middleware/ratelimit/infra"
	"bot-gateway/resilience"
	"bot-gateway/session"
)

type fakeChat struct {
	got  downstream.ChatRequest
	resp *downstream.ChatResponse
	err  error
}

func (f *fakeChat) SendMessage(_ context.Context, req downstream.ChatRequest) (*downstream.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeFAQ struct {
	got downstream.FAQRequest
	err error
}

func (f *fakeFAQ) GetAnswer(_ context.Context, req downstream.FAQRequest) (*downstream.FAQResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &downstream.FAQResponse{SessionID: req.SessionID, Question: req.Question, Answer: "42"}, nil
}

type fakeQuote struct{ err error }

func (f *fakeQuote) GetQuote(_ context.Context, req downstream.QuoteRequest) (*downstream.QuoteResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &downstream.QuoteResponse{QuoteID: "q-1", SessionID: req.SessionID, Message: "ok", EstimatedPrice: 99.5, Currency: "USD"}, nil
}

type fakeSpeech struct {
	gotText string
	gotCT   string
	gotLen  int
}

func (f *fakeSpeech) Synthesize(_ context.Context, req downstream.SynthesizeRequest) (*downstream.Audio, error) {
	f.gotText = req.Text
	return &downstream.Audio{Data: []byte("RIFF...."), ContentType: "audio/wav"}, nil
}

func (f *fakeSpeech) Recognize(_ context.Context, audio []byte, ct string) (*downstream.RecognizeResponse, error) {
	f.gotLen = len(audio)
	f.gotCT = ct
	return &downstream.RecognizeResponse{Text: "hello", Confidence: 0.9}, nil
}

type fakeHealth struct{ status health.Status }

func (f fakeHealth) Check(context.Context) health.Report {
	return health.Report{Status: f.status, Checks: []health.Check{{Name: "redis", Status: f.status, Critical: true}}}
}

func (f fakeHealth) Ready(ctx context.Context) (health.Report, bool) {
	rep := f.Check(ctx)
	return rep, rep.Status != health.Unhealthy
}

type env struct {
	srv      *Server
	h        http.Handler
	chat     *fakeChat
	faq      *fakeFAQ
	quote    *fakeQuote
	speech   *fakeSpeech
	sessions *session.Store
}

func newEnv(t *testing.T, mutate func(*Deps)) env {
	t.Helper()
	mem := cache.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	e := env{
		chat:     &fakeChat{resp: &downstream.ChatResponse{SessionID: "s1", Message: "hi there"}},
		faq:      &fakeFAQ{},
		quote:    &fakeQuote{},
		speech:   &fakeSpeech{},
		sessions: session.New(mem),
	}
	d := Deps{
		Sessions: e.sessions,
		Chat:     e.chat,
		FAQ:      e.faq,
		Quote:    e.quote,
		Speech:   e.speech,
		Health:   fakeHealth{status: health.Healthy},
		Logger:   zerolog.Nop(),
		Info:     Info{Name: "bot-gateway", Version: "test", Algorithm: "fixed-window"},
	}
	if mutate != nil {
		mutate(&d)
	}
	e.srv = New(d)
	e.h = e.srv.Handler()
	return e
}

func (e env) do(t *testing.T, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestSessions_Lifecycle(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/sessions", `{"userId":"u1","metadata":{"channel":"web"}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[session.Session](t, rr)
	assert.Equal(t, session.StatusActive, created.Status)
	assert.Equal(t, "/api/sessions/"+created.SessionID, rr.Header().Get("Location"))

	rr = e.do(t, http.MethodGet, "/api/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", decodeBody[session.Session](t, rr).UserID)

	rr = e.do(t, http.MethodGet, "/api/sessions/"+created.SessionID+"/validate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[validateResponse](t, rr).IsValid)

	rr = e.do(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/extend", `{"additionalMinutes":15}`)
	require.Equal(t, http.StatusOK, rr.Code)
	ext := decodeBody[extendResponse](t, rr)
	assert.True(t, created.ExpiresAt.Add(15*time.Minute).Equal(ext.ExpiresAt), ext.ExpiresAt)

	rr = e.do(t, http.MethodGet, "/api/sessions/user/u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]session.Session](t, rr), 1)

	rr = e.do(t, http.MethodDelete, "/api/sessions/"+created.SessionID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(t, http.MethodDelete, "/api/sessions/"+created.SessionID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/sessions/"+created.SessionID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, CodeSessionNotFound, decodeBody[errorBody](t, rr).ErrorCode)

	rr = e.do(t, http.MethodGet, "/api/sessions/"+created.SessionID+"/validate", "")
	assert.False(t, decodeBody[validateResponse](t, rr).IsValid)
}

func TestSessions_Validation(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/sessions", `{"metadata":{}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody[errorBody](t, rr)
	assert.Equal(t, CodeValidation, body.ErrorCode)
	assert.Contains(t, body.Details, "userId: is required")

	rr = e.do(t, http.MethodPost, "/api/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/sessions/abc/extend", `{"additionalMinutes":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/sessions/missing/extend", `{"additionalMinutes":5}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/sessions/"+strings.Repeat("x", 101), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/sessions/abc/unknown", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChat(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"s1","botId":"b1","message":"hello"}`, correlation.Header, "trace-123")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "hi there", decodeBody[downstream.ChatResponse](t, rr).Message)
	assert.Equal(t, "hello", e.chat.got.Message)
	assert.Equal(t, "trace-123", rr.Header().Get(correlation.Header))

	rr = e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"`+strings.Repeat("a", 2001)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"s1","botId":"`+strings.Repeat("b", 51)+`","message":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFAQ_DefaultTopK(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/faq", `{"sessionId":"s1","message":"what is covered?"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 7, e.faq.got.TopK)
	assert.Equal(t, "what is covered?", e.faq.got.Question)

	rr = e.do(t, http.MethodPost, "/api/faq", `{"sessionId":"s1","message":"q","topK":3}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, e.faq.got.TopK)
}

func TestQuote(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/quote/generate", `{"sessionId":"s1","query":"car insurance"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeBody[quoteEnvelope](t, rr)
	require.NotNil(t, out.Quote)
	assert.Equal(t, "q-1", out.Quote.QuoteID)
	assert.Equal(t, "s1", out.SessionID)
}

func TestSpeech(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/speech/tts", `{"sessionId":"s1","text":"say this"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "audio/wav", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".wav")
	assert.Equal(t, "RIFF....", rr.Body.String())
	assert.Equal(t, "say this", e.speech.gotText)

	req := httptest.NewRequest(http.MethodPost, "/api/speech/stt?sessionId=s1", bytes.NewReader([]byte{1, 2, 3, 4}))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[sttResponse](t, rec)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, 4, e.speech.gotLen)
	assert.Equal(t, "audio/wav", e.speech.gotCT)

	rr = e.do(t, http.MethodPost, "/api/speech/stt", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDownstreamErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", &downstream.Error{Service: "chatbot", Kind: downstream.KindUnavailable}, http.StatusServiceUnavailable, CodeChatUnavailable},
		{"circuit open", &downstream.Error{Service: "chatbot", Kind: downstream.KindUnavailable, Err: resilience.ErrCircuitOpen}, http.StatusServiceUnavailable, CodeChatUnavailable},
		{"timeout", &downstream.Error{Service: "chatbot", Kind: downstream.KindTimeout}, http.StatusServiceUnavailable, CodeTimeout},
		{"invalid", &downstream.Error{Service: "chatbot", Kind: downstream.KindInvalidResponse}, http.StatusBadGateway, CodeExternal},
		{"rejected", &downstream.Error{Service: "chatbot", Kind: downstream.KindRejected, StatusCode: 422}, http.StatusBadGateway, CodeExternal},
		{"canceled", &downstream.Error{Service: "chatbot", Kind: downstream.KindCanceled}, http.StatusRequestTimeout, CodeCanceled},
		{"other", errors.New("boom"), http.StatusInternalServerError, CodeGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.chat.err = tc.err

			rr := e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"hello"}`)
			assert.Equal(t, tc.status, rr.Code)
			body := decodeBody[errorBody](t, rr)
			assert.Equal(t, tc.code, body.ErrorCode)
			assert.NotEmpty(t, body.TraceID)
			assert.False(t, body.Timestamp.IsZero())
		})
	}
}

func TestToAPIError_PerServiceCodes(t *testing.T) {
	for svc, code := range unavailableCodes {
		got := toAPIError(&downstream.Error{Service: svc, Kind: downstream.KindUnavailable})
		assert.Equal(t, code, got.Code, svc)
	}
	assert.Equal(t, CodeCacheUnavailable, toAPIError(cache.ErrUnavailable).Code)
	assert.Equal(t, CodeCanceled, toAPIError(context.Canceled).Code)
}

func TestHealthEndpoints(t *testing.T) {
	for _, tc := range []struct {
		status      health.Status
		code, ready int
	}{
		{health.Healthy, http.StatusOK, http.StatusOK},
		{health.Degraded, http.StatusOK, http.StatusOK},
		{health.Unhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	} {
		e := newEnv(t, func(d *Deps) { d.Health = fakeHealth{status: tc.status} })

		rr := e.do(t, http.MethodGet, "/health", "")
		assert.Equal(t, tc.code, rr.Code, tc.status)
		assert.Equal(t, tc.status, decodeBody[healthResponse](t, rr).Status)

		rr = e.do(t, http.MethodGet, "/health/ready", "")
		assert.Equal(t, tc.ready, rr.Code, tc.status)

		rr = e.do(t, http.MethodGet, "/health/live", "")
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestSystemEndpoints(t *testing.T) {
	e := newEnv(t, func(d *Deps) {
		d.RateLimit = &ratelimit.Options{
			Global: infra.NewMemoryWindow(domain.Policy{Name: "global", Limit: 60, Window: time.Minute}),
			Policies: map[string]domain.Limiter{
				PolicyStrict: infra.NewMemoryWindow(domain.Policy{Name: PolicyStrict, Limit: 10, Window: time.Minute}),
				PolicyAPI:    infra.NewMemoryWindow(domain.Policy{Name: PolicyAPI, Limit: 100, Window: time.Minute}),
			},
		}
	})

	rr := e.do(t, http.MethodGet, "/api/system/info", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "bot-gateway", decodeBody[systemInfo](t, rr).ApplicationName)

	rr = e.do(t, http.MethodGet, "/api/system/rate-limit-config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cfg := decodeBody[rateLimitConfig](t, rr)
	assert.True(t, cfg.Enabled)
	require.Len(t, cfg.Policies, 3)
	assert.Equal(t, "global", cfg.Policies[0].Name)
	assert.Equal(t, PolicyAPI, cfg.Policies[1].Name)
	assert.Equal(t, PolicyStrict, cfg.Policies[2].Name)
	assert.Equal(t, 10, cfg.Policies[2].PermitLimit)
	assert.Nil(t, cfg.Stats)

	rr = e.do(t, http.MethodGet, "/api/system/endpoints", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeBody[map[string][]endpoint](t, rr), "sessions")

	rr = e.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimitConfig_ReportsDecisionCounters(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	e := newEnv(t, func(d *Deps) {
		d.RateLimit = &ratelimit.Options{
			Global: infra.NewMemoryWindow(domain.Policy{Name: "global", Limit: 100, Window: time.Minute}),
			Policies: map[string]domain.Limiter{
				PolicyStrict: infra.NewMemoryWindow(domain.Policy{Name: PolicyStrict, Limit: 1, Window: time.Minute}),
				PolicyAPI:    infra.NewMemoryWindow(domain.Policy{Name: PolicyAPI, Limit: 100, Window: time.Minute}),
			},
			Stats: stats,
		}
		d.RateLimitStats = stats
	})

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/sessions", `{"userId":"u1"}`).Code)
	require.Equal(t, http.StatusTooManyRequests, e.do(t, http.MethodPost, "/api/sessions", `{"userId":"u1"}`).Code)

	rr := e.do(t, http.MethodGet, "/api/system/rate-limit-config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cfg := decodeBody[rateLimitConfig](t, rr)
	require.NotNil(t, cfg.Stats)
	// the config request itself is counted before the handler runs
	assert.Equal(t, infra.Counters{Allowed: 2, Denied: 1}, cfg.Stats.Total)
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, cfg.Stats.ByRoute["POST /api/sessions"])
	assert.Equal(t, int64(1), cfg.Stats.ByPolicy[PolicyStrict].Denied)
}

func TestRoutePolicy(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/health", PolicyHealth},
		{http.MethodGet, "/health/ready", PolicyHealth},
		{http.MethodPost, "/api/sessions", PolicyStrict},
		{http.MethodDelete, "/api/sessions/abc", PolicyStrict},
		{http.MethodPost, "/api/sessions/abc/extend", PolicyStrict},
		{http.MethodGet, "/api/sessions/abc", PolicyAPI},
		{http.MethodPost, "/api/chat", PolicyAPI},
		{http.MethodGet, "/metrics", ""},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, RoutePolicy(r), tc.method+" "+tc.path)
	}
}

func TestRateLimit_StrictPolicyRejectsWithStructuredBody(t *testing.T) {
	e := newEnv(t, func(d *Deps) {
		d.RateLimit = &ratelimit.Options{
			Global: infra.NewMemoryWindow(domain.Policy{Name: "global", Limit: 100, Window: time.Minute}),
			Policies: map[string]domain.Limiter{
				PolicyStrict: infra.NewMemoryWindow(domain.Policy{Name: PolicyStrict, Limit: 2, Window: time.Minute}),
				PolicyAPI:    infra.NewMemoryWindow(domain.Policy{Name: PolicyAPI, Limit: 100, Window: time.Minute}),
			},
			AddRateLimitHeaders: true,
		}
	})

	for i := 0; i < 2; i++ {
		rr := e.do(t, http.MethodPost, "/api/sessions", `{"userId":"u1"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, PolicyStrict, rr.Header().Get("X-RateLimit-Policy"))
	}

	rr := e.do(t, http.MethodPost, "/api/sessions", `{"userId":"u1"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decodeBody[errorBody](t, rr).ErrorCode)

	// other routes are unaffected
	rr = e.do(t, http.MethodGet, "/api/sessions/user/u1", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	// a different client has its own partition
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"userId":"u2"}`))
	req.RemoteAddr = "10.9.9.9:1234"
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAuth_RequiredWhenSecretSet(t *testing.T) {
	secret := []byte("k")
	e := newEnv(t, func(d *Deps) {
		d.Auth = auth.NewVerifier(auth.Options{Secret: secret, OnUnauthorized: Unauthorized})
	})

	rr := e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"hello"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	assert.Equal(t, CodeUnauthorized, decodeBody[errorBody](t, rr).ErrorCode)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	rr = e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"hello"}`, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, rr.Code)

	// health stays open
	rr = e.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestConcurrencyLimit_ShedsWithStructuredBody(t *testing.T) {
	release := make(chan struct{})
	blocking := &blockingChat{entered: make(chan struct{}, 1), release: release}
	e := newEnv(t, func(d *Deps) {
		d.Chat = blocking
		d.Concurrency = ratelimit.ConcurrencyOptions{Max: 1}
	})

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"sessionId":"s1","message":"hello"}`))
		rr := httptest.NewRecorder()
		e.h.ServeHTTP(rr, req)
		done <- rr.Code
	}()
	<-blocking.entered

	rr := e.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, CodeBusy, decodeBody[errorBody](t, rr).ErrorCode)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

type blockingChat struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingChat) SendMessage(ctx context.Context, req downstream.ChatRequest) (*downstream.ChatResponse, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &downstream.ChatResponse{SessionID: req.SessionID, Message: "done"}, nil
}

func TestRecover(t *testing.T) {
	for _, dev := range []bool{false, true} {
		h := Recover(dev)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("kaboom")
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(correlation.WithID(req.Context(), "trace-9"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		body := decodeBody[errorBody](t, rr)
		assert.Equal(t, CodeInternal, body.ErrorCode)
		assert.Equal(t, "trace-9", body.TraceID)
		if dev {
			assert.Equal(t, "kaboom", body.Message)
			assert.NotEmpty(t, body.Details)
		} else {
			assert.NotContains(t, body.Message, "kaboom")
			assert.Empty(t, body.Details)
		}
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) (time.Duration, error) {
	return 0, errors.New("redis down")
}

func TestReady_IgnoresCacheOutage(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Health = health.New(downPinger{}, nil, health.Options{}) })

	rr := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = e.do(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[healthResponse](t, rr)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, health.SelfCheck, body.Checks[0].Name)
}
