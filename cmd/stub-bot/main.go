// Command stub-bot impersonates the downstream bot services for local runs
// and load tests. One process answers every bot route; latency and failure
// rate are tunable so the gateway's retries, breaker and health degradation
// can be observed.
//
//	STUB_SERVICE=chatbot LISTEN_ADDR=:5266 STUB_LATENCY=50ms STUB_FAILURE_RATE=0.1 stub-bot
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/viper"

	"bot-gateway/downstream"
	"bot-gateway/logging"
)

type stubConfig struct {
	ListenAddr  string
	Service     string
	Latency     time.Duration
	FailureRate float64
	FailStatus  int
}

func loadConfig() stubConfig {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("listen_addr", ":5266")
	v.SetDefault("stub_service", "stub-bot")
	v.SetDefault("stub_latency", "0s")
	v.SetDefault("stub_failure_rate", 0.0)
	v.SetDefault("stub_fail_status", http.StatusServiceUnavailable)
	return stubConfig{
		ListenAddr:  v.GetString("listen_addr"),
		Service:     v.GetString("stub_service"),
		Latency:     v.GetDuration("stub_latency"),
		FailureRate: v.GetFloat64("stub_failure_rate"),
		FailStatus:  v.GetInt("stub_fail_status"),
	}
}

func main() {
	cfg := loadConfig()
	logger := logging.New("info", true, cfg.Service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newHandler(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Dur("latency", cfg.Latency).
		Float64("failure_rate", cfg.FailureRate).
		Msg("stub bot listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newHandler(cfg stubConfig, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "Healthy", "service": cfg.Service, "version": "stub"})
	})
	mux.HandleFunc("POST "+downstream.ChatPath, func(w http.ResponseWriter, r *http.Request) {
		var req downstream.ChatRequest
		if !readJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, downstream.ChatResponse{
			SessionID: req.SessionID,
			Message:   "echo: " + req.Message,
			Source:    cfg.Service,
			Timestamp: time.Now().UTC(),
		})
	})
	mux.HandleFunc("POST "+downstream.FAQPath, func(w http.ResponseWriter, r *http.Request) {
		var req downstream.FAQRequest
		if !readJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, downstream.FAQResponse{
			ResponseID:      uuid.NewString(),
			SessionID:       req.SessionID,
			Question:        req.Question,
			Answer:          "This is a canned answer.",
			Category:        req.Category,
			ConfidenceScore: 0.8,
			RespondedAt:     time.Now().UTC(),
		})
	})
	mux.HandleFunc("POST "+downstream.QuotePath, func(w http.ResponseWriter, r *http.Request) {
		var req downstream.QuoteRequest
		if !readJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, downstream.QuoteResponse{
			QuoteID:        uuid.NewString(),
			SessionID:      req.SessionID,
			Message:        "Quote for: " + req.Message,
			EstimatedPrice: 120,
			Currency:       "USD",
			Items:          []downstream.QuoteItem{{ProductName: "Basic", Coverage: "standard", Price: 120}},
			GeneratedAt:    time.Now().UTC(),
		})
	})
	mux.HandleFunc("POST "+downstream.SynthesizePath, func(w http.ResponseWriter, r *http.Request) {
		var req downstream.SynthesizeRequest
		if !readJSON(w, r, &req) {
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(append([]byte("RIFF"), req.Text...))
	})
	mux.HandleFunc("POST "+downstream.RecognizePath, func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK, downstream.RecognizeResponse{
			TranscriptionID: uuid.NewString(),
			Text:            "transcribed audio",
			Confidence:      0.95,
			Language:        "en-US",
			DurationSeconds: float64(n) / 32000,
			ProcessedAt:     time.Now().UTC(),
		})
	})

	h := chaos(cfg, mux)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", d).
			Msg("request")
	})(h)
	return hlog.NewHandler(logger)(h)
}

// chaos delays every bot call by the configured latency and fails a share of
// them. /health is delayed but never failed.
func chaos(cfg stubConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.Latency > 0 {
			select {
			case <-time.After(cfg.Latency):
			case <-r.Context().Done():
				return
			}
		}
		if r.URL.Path != "/health" && cfg.FailureRate > 0 && rand.Float64() < cfg.FailureRate {
			writeJSON(w, cfg.FailStatus, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
