package ai

import "time"

// ProviderName identifies a text-generation backend.
type ProviderName string

const (
	ProviderGemini    ProviderName = "gemini"
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	// ProviderMock is the deterministic development backend. It never fails.
	ProviderMock ProviderName = "mock"
)

// Providers lists every known backend in the stock priority order.
var Providers = []ProviderName{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock}

// Valid reports whether p names a known backend.
func (p ProviderName) Valid() bool {
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock:
		return true
	}
	return false
}

// Attachment is a binary part sent alongside the prompt, e.g. a PDF.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Request is the provider-neutral generation request.
type Request struct {
	Prompt      string
	System      string       // optional system instruction
	Model       string       // empty uses the backend default
	Provider    ProviderName // empty uses the priority order
	Temperature float64
	MaxTokens   int  // zero leaves the backend default
	JSON        bool // ask the backend for a JSON object
	Attachments []Attachment
}

// Usage reports token accounting when the backend returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is what a single backend returns for a successful call.
type Completion struct {
	Content string
	Model   string
	Usage   *Usage
}

// Response is the gateway's uniform envelope. Success is false when no
// backend produced content; Error then describes why.
type Response struct {
	RequestID    string        `json:"request_id"`
	Content      string        `json:"content"`
	ProviderUsed ProviderName  `json:"provider_used"`
	Model        string        `json:"model"`
	Latency      time.Duration `json:"latency"`
	Usage        *Usage        `json:"usage,omitempty"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}
