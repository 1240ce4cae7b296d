package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	ChatPath       = "/api/chat"
	FAQPath        = "/api/faq/answer"
	QuotePath      = "/api/quote/generate"
	SynthesizePath = "/api/speech/tts"
	RecognizePath  = "/api/speech/stt"
)

// ChatBot relays conversation turns.
type ChatBot struct{ *Client }

func NewChatBot(c *Client) *ChatBot { return &ChatBot{c} }

func (b *ChatBot) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := postJSON[ChatRequest, ChatResponse](ctx, b.Client, ChatPath, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Message) == "" {
		return nil, b.invalid(ctx, http.StatusOK, errors.New("chat response has no message"))
	}
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	return resp, nil
}

// FAQBot answers knowledge base questions.
type FAQBot struct{ *Client }

func NewFAQBot(c *Client) *FAQBot { return &FAQBot{c} }

func (b *FAQBot) GetAnswer(ctx context.Context, req FAQRequest) (*FAQResponse, error) {
	resp, err := postJSON[FAQRequest, FAQResponse](ctx, b.Client, FAQPath, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return nil, b.invalid(ctx, http.StatusOK, errors.New("faq response has no answer"))
	}
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	return resp, nil
}

// QuoteBot generates insurance quotes.
type QuoteBot struct{ *Client }

func NewQuoteBot(c *Client) *QuoteBot { return &QuoteBot{c} }

func (b *QuoteBot) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	resp, err := postJSON[QuoteRequest, QuoteResponse](ctx, b.Client, QuotePath, req)
	if err != nil {
		return nil, err
	}
	if resp.QuoteID == "" && strings.TrimSpace(resp.Message) == "" {
		return nil, b.invalid(ctx, http.StatusOK, errors.New("quote response is empty"))
	}
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	return resp, nil
}

// Speech converts between text and audio.
type Speech struct{ *Client }

func NewSpeech(c *Client) *Speech { return &Speech{c} }

// Synthesize returns the audio bytes produced for req.
func (s *Speech) Synthesize(ctx context.Context, req SynthesizeRequest) (*Audio, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", s.name, err)
	}
	res, err := s.Do(ctx, http.MethodPost, SynthesizePath, "application/json", body)
	if err != nil {
		return nil, err
	}
	if len(res.Body) == 0 {
		return nil, s.invalid(ctx, res.StatusCode, errEmptyBody)
	}
	ct := res.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/json") {
		ct = "audio/wav"
	}
	return &Audio{Data: res.Body, ContentType: ct}, nil
}

// Recognize transcribes raw audio. contentType defaults to audio/wav.
func (s *Speech) Recognize(ctx context.Context, audio []byte, contentType string) (*RecognizeResponse, error) {
	if contentType == "" {
		contentType = "audio/wav"
	}
	res, err := s.Do(ctx, http.MethodPost, RecognizePath, contentType, audio)
	if err != nil {
		return nil, err
	}
	return decode[RecognizeResponse](ctx, s.Client, res)
}
