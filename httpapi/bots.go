package httpapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bot-gateway/downstream"
)

type quoteEnvelope struct {
	Quote     *downstream.QuoteResponse `json:"quote"`
	SessionID string                    `json:"sessionId,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

type sttResponse struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("session_id", req.SessionID).Str("bot_id", req.BotID).Msg("relaying chat message")

	resp, err := s.d.Chat.SendMessage(r.Context(), downstream.ChatRequest{
		SessionID: req.SessionID,
		BotID:     req.BotID,
		Message:   req.Message,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) faq(w http.ResponseWriter, r *http.Request) {
	var req faqRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}
	req.normalize()

	var botCtx map[string]string
	if req.BotID != "" {
		botCtx = map[string]string{"botId": req.BotID}
	}
	resp, err := s.d.FAQ.GetAnswer(r.Context(), downstream.FAQRequest{
		SessionID: req.SessionID,
		Question:  req.Message,
		Category:  req.Category,
		TopK:      req.TopK,
		Context:   botCtx,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	resp, err := s.d.Quote.GetQuote(r.Context(), downstream.QuoteRequest{
		SessionID: req.SessionID,
		Message:   req.Query,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteEnvelope{Quote: resp, SessionID: req.SessionID, Timestamp: time.Now().UTC()})
}

func (s *Server) textToSpeech(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	audio, err := s.d.Speech.Synthesize(r.Context(), downstream.SynthesizeRequest{
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="speech_%d%s"`, time.Now().UnixNano(), audioExt(audio.ContentType)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.Data)
}

func (s *Server) speechToText(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if apiErr := validateOptional("sessionId", sessionID, maxSessionID); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		s.writeError(w, r, &APIError{Status: http.StatusRequestEntityTooLarge, Code: CodeValidation, Message: "Audio payload too large", Err: err})
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, validationError("audio: is required"))
		return
	}

	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || !strings.HasPrefix(mt, "audio/") {
		ct = "audio/wav"
	}

	res, err := s.d.Speech.Recognize(r.Context(), data, ct)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sttResponse{
		Text:       res.Text,
		Confidence: res.Confidence,
		Language:   res.Language,
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
	})
}

func validateOptional(field, value string, n int) *APIError {
	var v validator
	v.maxLen(field, value, n)
	if len(v.errs) > 0 {
		return validationError(v.errs...)
	}
	return nil
}

func audioExt(contentType string) string {
	switch {
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".wav"
	}
}
