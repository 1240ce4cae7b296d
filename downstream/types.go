package downstream

import "time"

type ChatRequest struct {
	SessionID string            `json:"sessionId"`
	BotID     string            `json:"botId"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type ChatResponse struct {
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type FAQRequest struct {
	SessionID string            `json:"sessionId"`
	Question  string            `json:"question"`
	Category  string            `json:"category,omitempty"`
	TopK      int               `json:"topK,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

type RelatedQuestion struct {
	QuestionID   string `json:"questionId"`
	QuestionText string `json:"questionText"`
	Category     string `json:"category"`
}

type FAQResponse struct {
	ResponseID       string            `json:"responseId"`
	SessionID        string            `json:"sessionId"`
	Question         string            `json:"question"`
	Answer           string            `json:"answer"`
	Category         string            `json:"category,omitempty"`
	ConfidenceScore  float64           `json:"confidenceScore"`
	RelatedQuestions []RelatedQuestion `json:"relatedQuestions,omitempty"`
	RespondedAt      time.Time         `json:"respondedAt"`
}

type QuoteRequest struct {
	SessionID string            `json:"sessionId"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

type QuoteItem struct {
	ProductName string  `json:"productName"`
	Coverage    string  `json:"coverage"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

type QuoteResponse struct {
	QuoteID        string      `json:"quoteId"`
	SessionID      string      `json:"sessionId"`
	Message        string      `json:"message"`
	EstimatedPrice float64     `json:"estimatedPrice"`
	Currency       string      `json:"currency"`
	Items          []QuoteItem `json:"items,omitempty"`
	GeneratedAt    time.Time   `json:"generatedAt"`
}

type SynthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Format   string  `json:"format,omitempty"`
}

// Audio is a synthesized clip as returned by the speech service.
type Audio struct {
	Data        []byte
	ContentType string
}

type RecognizeResponse struct {
	TranscriptionID string    `json:"transcriptionId,omitempty"`
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	Language        string    `json:"language,omitempty"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	ProcessedAt     time.Time `json:"processedAt"`
}

// HealthReport is the outcome of one /health probe.
type HealthReport struct {
	Service    string        `json:"service"`
	Endpoint   string        `json:"endpoint"`
	StatusCode int           `json:"statusCode,omitempty"`
	Latency    time.Duration `json:"-"`
	Status     string        `json:"status,omitempty"`
	Version    string        `json:"version,omitempty"`
	Reported   string        `json:"reportedService,omitempty"`
}

// healthBody is the subset of a downstream /health payload the gateway reads.
type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
