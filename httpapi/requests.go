package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	maxSessionID    = 100
	maxBotID        = 50
	maxChatMessage  = 2000
	maxFAQMessage   = 2000
	maxQuoteQuery   = 5000
	maxSpeechText   = 5000
	maxUserID       = 100
	maxMetadataKeys = 50
	defaultTopK     = 7
	maxJSONBody     = 1 << 20
	maxAudioBody    = 25 << 20
)

type createSessionRequest struct {
	UserID   string            `json:"userId"`
	Metadata map[string]string `json:"metadata"`
}

func (r createSessionRequest) validate() []string {
	var v validator
	v.required("userId", r.UserID)
	v.maxLen("userId", r.UserID, maxUserID)
	if len(r.Metadata) > maxMetadataKeys {
		v.add("metadata: at most %d entries", maxMetadataKeys)
	}
	return v.errs
}

type extendSessionRequest struct {
	AdditionalMinutes int `json:"additionalMinutes"`
}

func (r extendSessionRequest) validate() []string {
	var v validator
	if r.AdditionalMinutes <= 0 {
		v.add("additionalMinutes: must be greater than 0")
	}
	return v.errs
}

type chatRequest struct {
	SessionID string            `json:"sessionId"`
	BotID     string            `json:"botId"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata"`
}

func (r chatRequest) validate() []string {
	var v validator
	v.required("sessionId", r.SessionID)
	v.maxLen("sessionId", r.SessionID, maxSessionID)
	v.maxLen("botId", r.BotID, maxBotID)
	v.required("message", r.Message)
	v.maxLen("message", r.Message, maxChatMessage)
	return v.errs
}

type faqRequest struct {
	SessionID string `json:"sessionId"`
	BotID     string `json:"botId"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	TopK      int    `json:"topK"`
}

func (r *faqRequest) normalize() {
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
}

func (r faqRequest) validate() []string {
	var v validator
	v.required("sessionId", r.SessionID)
	v.maxLen("sessionId", r.SessionID, maxSessionID)
	v.maxLen("botId", r.BotID, maxBotID)
	v.required("message", r.Message)
	v.maxLen("message", r.Message, maxFAQMessage)
	if r.TopK > 50 {
		v.add("topK: must be between 1 and 50")
	}
	return v.errs
}

type quoteRequest struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

func (r quoteRequest) validate() []string {
	var v validator
	v.maxLen("sessionId", r.SessionID, maxSessionID)
	v.required("query", r.Query)
	v.maxLen("query", r.Query, maxQuoteQuery)
	return v.errs
}

type ttsRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Voice     string `json:"voice"`
}

func (r ttsRequest) validate() []string {
	var v validator
	v.maxLen("sessionId", r.SessionID, maxSessionID)
	v.required("text", r.Text)
	v.maxLen("text", r.Text, maxSpeechText)
	return v.errs
}

type validator struct{ errs []string }

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add("%s: is required", field)
	}
}

func (v *validator) maxLen(field, value string, n int) {
	if utf8.RuneCountInString(value) > n {
		v.add("%s: cannot exceed %d characters", field, n)
	}
}

// decodeJSON reads one JSON object from the request body into dst and
// validates it.
func decodeJSON[T interface{ validate() []string }](w http.ResponseWriter, r *http.Request, dst *T) *APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &APIError{Status: http.StatusRequestEntityTooLarge, Code: CodeValidation, Message: "Request body too large"}
		case errors.Is(err, io.EOF):
			return validationError("body: is required")
		default:
			return validationError("body: " + err.Error())
		}
	}
	if errs := (*dst).validate(); len(errs) > 0 {
		return validationError(errs...)
	}
	return nil
}

func validatePathID(field, value string, n int) *APIError {
	var v validator
	v.required(field, value)
	v.maxLen(field, value, n)
	if len(v.errs) > 0 {
		return validationError(v.errs...)
	}
	return nil
}
