package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-gateway/middleware/ratelimit/domain"
	"bot-gateway/resilience"
)

func TestObserveAttempt(t *testing.T) {
	m := New()
	m.ObserveAttempt("chatbot", "success", 20*time.Millisecond)
	m.ObserveAttempt("chatbot", "success", 30*time.Millisecond)
	m.ObserveAttempt("chatbot", "transient_status", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DownstreamAttempts.WithLabelValues("chatbot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownstreamAttempts.WithLabelValues("chatbot", "transient_status")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DownstreamLatency))
}

func TestPipelineOptions_TrackBreaker(t *testing.T) {
	m := New()
	p := resilience.New(resilience.Policy{
		Name:             "faqbot",
		RetryCount:       0,
		FailureThreshold: 1,
		OpenDuration:     time.Minute,
		Timeout:          time.Second,
	}, m.PipelineOptions("faqbot")...)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("faqbot")))

	_ = p.Do(context.Background(), func(context.Context) error {
		return resilience.Transient(errors.New("502"))
	})

	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.BreakerState.WithLabelValues("faqbot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("faqbot", "open")))
}

func TestPipelineOptions_CountRetries(t *testing.T) {
	m := New()
	p := resilience.New(resilience.Policy{
		Name:             "quotebot",
		RetryCount:       2,
		RetryBase:        time.Millisecond,
		FailureThreshold: 10,
		OpenDuration:     time.Minute,
		Timeout:          time.Second,
	}, m.PipelineOptions("quotebot")...)

	_ = p.Do(context.Background(), func(context.Context) error {
		return resilience.Transient(errors.New("503"))
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DownstreamRetries.WithLabelValues("quotebot")))
}

func TestSessionRecorder(t *testing.T) {
	m := New()
	r := m.SessionRecorder()
	r.SessionCreated()
	r.SessionCreated()
	r.SessionExpired()
	r.SessionDeleted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sessions.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("deleted")))
}

func TestRateLimitStats(t *testing.T) {
	m := New()
	s := m.RateLimitStats()
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Policy: "api", Allowed: true}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Policy: "api", Allowed: false}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Allowed: true}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("api", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("api", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("unknown", "allowed")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveAttempt("speech", "success", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(body), `bff_downstream_attempts_total{outcome="success",service="speech"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRegistry_GathersRecordedSeries(t *testing.T) {
	m := New()
	m.ObserveAttempt("chatbot", "success", time.Millisecond)
	m.ObserveAttempt("faqbot", "timeout", time.Millisecond)
	m.SessionRecorder().SessionCreated()

	n, err := testutil.GatherAndCount(m.Registry(), "bff_downstream_attempts_total", "bff_session_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// vectors without observations export no series
	n, err = testutil.GatherAndCount(m.Registry(), "bff_circuit_breaker_transitions_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}
