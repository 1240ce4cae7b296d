package httpapi

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"bot-gateway/health"
	"bot-gateway/middleware/ratelimit/application"
	"bot-gateway/middleware/ratelimit/infra"
)

type healthResponse struct {
	Status     health.Status  `json:"status"`
	Checks     []health.Check `json:"checks"`
	DurationMS float64        `json:"totalDurationMs"`
	CheckedAt  time.Time      `json:"checkedAt"`
}

func renderHealth(rep health.Report) healthResponse {
	return healthResponse{
		Status:     rep.Status,
		Checks:     rep.Checks,
		DurationMS: float64(rep.Duration.Microseconds()) / 1000,
		CheckedAt:  rep.CheckedAt,
	}
}

// health answers 200 for Healthy and Degraded, 503 for Unhealthy.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	rep := s.d.Health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, renderHealth(rep))
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.d.Health.Ready(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, renderHealth(rep))
}

func (s *Server) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    health.Healthy,
		"checkedAt": time.Now().UTC(),
	})
}

type systemInfo struct {
	ApplicationName string    `json:"applicationName"`
	Version         string    `json:"version"`
	Environment     string    `json:"environment"`
	MachineName     string    `json:"machineName"`
	OS              string    `json:"os"`
	GoVersion       string    `json:"goVersion"`
	ProcessorCount  int       `json:"processorCount"`
	Uptime          string    `json:"uptime"`
	Timestamp       time.Time `json:"timestamp"`
}

func (s *Server) systemInfo(w http.ResponseWriter, _ *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, systemInfo{
		ApplicationName: s.d.Info.Name,
		Version:         s.d.Info.Version,
		Environment:     s.d.Info.Environment,
		MachineName:     host,
		OS:              runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion:       runtime.Version(),
		ProcessorCount:  runtime.NumCPU(),
		Uptime:          time.Since(s.d.Info.StartedAt).Round(time.Second).String(),
		Timestamp:       time.Now().UTC(),
	})
}

type policyInfo struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	PermitLimit   int     `json:"permitLimit"`
	WindowSeconds float64 `json:"windowSeconds"`
	QueueLimit    int     `json:"queueLimit"`
}

type rateLimitStats struct {
	Total    infra.Counters            `json:"total"`
	ByPolicy map[string]infra.Counters `json:"byPolicy"`
	ByRoute  map[string]infra.Counters `json:"byRoute"`
}

type rateLimitConfig struct {
	Enabled        bool            `json:"enabled"`
	Algorithm      string          `json:"algorithm"`
	HTTPStatusCode int             `json:"httpStatusCode"`
	Policies       []policyInfo    `json:"policies"`
	Stats          *rateLimitStats `json:"stats,omitempty"`
}

var policyDescriptions = map[string]string{
	"global":     "Applied to every request",
	PolicyAPI:    "API endpoints (/api/*)",
	PolicyHealth: "Health checks (/health*)",
	PolicyStrict: "Session creation, extension and deletion",
}

func (s *Server) rateLimitConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := rateLimitConfig{
		Algorithm:      s.d.Info.Algorithm,
		HTTPStatusCode: http.StatusTooManyRequests,
		Policies:       []policyInfo{},
	}
	if rl := s.d.RateLimit; rl != nil {
		cfg.Enabled = true
		if rl.RejectStatus != 0 {
			cfg.HTTPStatusCode = rl.RejectStatus
		}
		svc := application.Service{Global: rl.Global, Named: rl.Policies}
		for _, p := range svc.Policies() {
			cfg.Policies = append(cfg.Policies, policyInfo{
				Name:          p.Name,
				Description:   policyDescriptions[p.Name],
				PermitLimit:   p.Limit,
				WindowSeconds: p.Window.Seconds(),
			})
		}
	}
	if st := s.d.RateLimitStats; st != nil {
		cfg.Stats = &rateLimitStats{Total: st.Total(), ByPolicy: st.ByPolicy(), ByRoute: st.ByRoute()}
	}
	writeJSON(w, http.StatusOK, cfg)
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpointCatalog = map[string][]endpoint{
	"health": {
		{"GET", "/health", "Full health check of every dependency"},
		{"GET", "/health/ready", "Readiness: the gateway can take traffic"},
		{"GET", "/health/live", "Liveness: the process is up"},
	},
	"sessions": {
		{"POST", "/api/sessions", "Create a session"},
		{"GET", "/api/sessions/{sessionId}", "Get a session"},
		{"GET", "/api/sessions/{sessionId}/validate", "Check whether a session is live"},
		{"POST", "/api/sessions/{sessionId}/extend", "Extend a session"},
		{"GET", "/api/sessions/user/{userId}", "List a user's sessions"},
		{"DELETE", "/api/sessions/{sessionId}", "Delete a session"},
	},
	"chat":   {{"POST", "/api/chat", "Send a message to the chat bot"}},
	"faq":    {{"POST", "/api/faq", "Ask the FAQ bot"}},
	"quote":  {{"POST", "/api/quote/generate", "Generate a quote"}},
	"speech": {{"POST", "/api/speech/tts", "Text to speech"}, {"POST", "/api/speech/stt", "Speech to text"}},
	"system": {
		{"GET", "/api/system/info", "Process information"},
		{"GET", "/api/system/rate-limit-config", "Active rate limit policies"},
		{"GET", "/api/system/endpoints", "This list"},
		{"GET", "/metrics", "Prometheus metrics"},
	},
}

func (s *Server) endpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, endpointCatalog)
}
