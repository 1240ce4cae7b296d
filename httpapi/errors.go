package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bot-gateway/cache"
	"bot-gateway/config"
	"bot-gateway/downstream"
	"bot-gateway/middleware/correlation"
	"bot-gateway/session"
)

// Stable error codes returned in the errorCode field.
const (
	CodeGeneral           = "BFF_1000"
	CodeValidation        = "BFF_1001"
	CodeUnauthorized      = "BFF_1002"
	CodeRateLimited       = "BFF_1004"
	CodeCanceled          = "BFF_1005"
	CodeBusy              = "BFF_1006"
	CodeSessionNotFound   = "BFF_2000"
	CodeChatUnavailable   = "BFF_4000"
	CodeFAQUnavailable    = "BFF_4001"
	CodeSpeechUnavailable = "BFF_4002"
	CodeTimeout           = "BFF_4003"
	CodeExternal          = "BFF_4004"
	CodeQuoteUnavailable  = "BFF_4005"
	CodeCacheUnavailable  = "BFF_5000"
	CodeInternal          = "INTERNAL_ERROR"
)

var unavailableCodes = map[string]string{
	config.ChatBot:  CodeChatUnavailable,
	config.FAQBot:   CodeFAQUnavailable,
	config.Speech:   CodeSpeechUnavailable,
	config.QuoteBot: CodeQuoteUnavailable,
}

// APIError is an error with its HTTP rendering.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

type errorBody struct {
	ErrorCode string    `json:"errorCode"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId,omitempty"`
}

func validationError(details ...string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: CodeValidation, Message: "Validation failed", Details: details}
}

func sessionNotFound(id string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: CodeSessionNotFound, Message: "Session " + id + " not found"}
}

// toAPIError maps domain failures onto the response taxonomy.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var de *downstream.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case downstream.KindTimeout:
			return &APIError{Status: http.StatusServiceUnavailable, Code: CodeTimeout, Message: de.Service + " did not answer in time", Err: err}
		case downstream.KindInvalidResponse, downstream.KindRejected:
			return &APIError{Status: http.StatusBadGateway, Code: CodeExternal, Message: de.Service + " returned an unusable response", Err: err}
		case downstream.KindCanceled:
			return &APIError{Status: http.StatusRequestTimeout, Code: CodeCanceled, Message: "The request was cancelled", Err: err}
		default:
			code, ok := unavailableCodes[de.Service]
			if !ok {
				code = CodeExternal
			}
			return &APIError{Status: http.StatusServiceUnavailable, Code: code, Message: de.Service + " is temporarily unavailable", Err: err}
		}
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: CodeSessionNotFound, Message: "Session not found", Err: err}
	case errors.Is(err, session.ErrInvalidUser), errors.Is(err, session.ErrInvalidExtension):
		return &APIError{Status: http.StatusBadRequest, Code: CodeValidation, Message: "Validation failed", Details: []string{err.Error()}, Err: err}
	case errors.Is(err, cache.ErrUnavailable):
		return &APIError{Status: http.StatusServiceUnavailable, Code: CodeCacheUnavailable, Message: "Session storage is unavailable", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusRequestTimeout, Code: CodeCanceled, Message: "The request was cancelled", Err: err}
	}
	return &APIError{Status: http.StatusInternalServerError, Code: CodeGeneral, Message: "An unexpected error occurred", Err: err}
}

// Unauthorized renders a 401 in the gateway's error body. It fits
// auth.Options.OnUnauthorized.
func Unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Info().Err(err).Msg("rejected unauthenticated request")
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeAPIError(w, r, &APIError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "A valid bearer token is required", Err: err})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	l := zerolog.Ctx(r.Context())
	ev := l.Warn()
	if apiErr.Status >= 500 {
		ev = l.Error()
	}
	ev.Err(err).Str("error_code", apiErr.Code).Int("status", apiErr.Status).Msg("request failed")

	writeAPIError(w, r, apiErr)
}

func writeAPIError(w http.ResponseWriter, r *http.Request, e *APIError) {
	writeJSON(w, e.Status, errorBody{
		ErrorCode: e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Timestamp: time.Now().UTC(),
		TraceID:   correlation.FromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
