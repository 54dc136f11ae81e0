package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/poiesic/guidelines/ai"
)

// DefaultModel is the model name reported by the mock backend.
const DefaultModel = "mock-model"

// MockPortfolioID is the portfolio of the canned extraction response.
const MockPortfolioID = "mock_portfolio_001"

var (
	userQueryLine = regexp.MustCompile(`(?m)^User query: "(.*)"\s*$`)
	topNPhrase    = regexp.MustCompile(`(?i)\btop\s+(\d+)\b`)
)

// Backend is the deterministic ai.Backend. It never fails unless GenerateFunc
// says so.
type Backend struct {
	// GenerateFunc, if set, replaces the canned responses.
	GenerateFunc func(ctx context.Context, req *ai.Request) (string, error)

	calls atomic.Int64

	record   bool
	mu       sync.Mutex
	requests []ai.Request
}

var _ ai.Backend = (*Backend)(nil)

// NewBackend creates a mock backend with the canned responses. It only
// counts calls, so a long-running gateway falling back to it holds no
// request data.
func NewBackend() *Backend {
	return &Backend{}
}

// NewRecordingBackend creates a mock backend that also keeps every request
// for Requests. Attachment bytes are not kept.
func NewRecordingBackend() *Backend {
	return &Backend{record: true}
}

// Name returns ai.ProviderMock.
func (b *Backend) Name() ai.ProviderName { return ai.ProviderMock }

// DefaultModel returns DefaultModel.
func (b *Backend) DefaultModel() string { return DefaultModel }

// Generate answers the request from the canned response families.
func (b *Backend) Generate(ctx context.Context, req *ai.Request, model string) (*ai.Completion, error) {
	b.calls.Add(1)
	if b.record {
		b.mu.Lock()
		b.requests = append(b.requests, withoutAttachmentData(req))
		b.mu.Unlock()
	}

	var content string
	if b.GenerateFunc != nil {
		var err error
		content, err = b.GenerateFunc(ctx, req)
		if err != nil {
			return nil, err
		}
	} else {
		content = Respond(req)
	}

	return &ai.Completion{
		Content: content,
		Model:   model,
		Usage:   &ai.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

func withoutAttachmentData(req *ai.Request) ai.Request {
	out := *req
	if len(req.Attachments) > 0 {
		out.Attachments = make([]ai.Attachment, len(req.Attachments))
		for i, a := range req.Attachments {
			out.Attachments[i] = ai.Attachment{Name: a.Name, MIMEType: a.MIMEType}
		}
	}
	return out
}

// Requests returns a copy of every request received so far by a recording
// backend, and nil otherwise.
func (b *Backend) Requests() []ai.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ai.Request(nil), b.requests...)
}

// CallCount returns the number of Generate calls.
func (b *Backend) CallCount() int {
	return int(b.calls.Load())
}

// Respond produces the canned response for a request. It is exported so
// tests overriding GenerateFunc can delegate the families they don't care about.
func Respond(req *ai.Request) string {
	p := req.Prompt
	switch {
	case strings.Contains(p, "is_valid_document"):
		return cannedExtraction
	case strings.Contains(p, "summary_instruction"):
		return cannedPlan(p)
	case strings.Contains(p, "Direct Answer"):
		return cannedSummary(p)
	}
	return "Mock response: this is a simulated answer for development and testing."
}

func cannedPlan(prompt string) string {
	query := "investment guidelines"
	if m := userQueryLine.FindAllStringSubmatch(prompt, -1); len(m) > 0 {
		query = m[len(m)-1][1]
	}
	topK := 7
	if m := topNPhrase.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			topK = n
		}
	}
	out, _ := json.Marshal(map[string]any{
		"search_query":        query,
		"summary_instruction": query,
		"top_k":               topK,
	})
	return string(out)
}

func cannedSummary(prompt string) string {
	var points []string
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if strings.HasPrefix(line, "Guideline: ") {
			points = append(points, line)
		}
	}

	var sb strings.Builder
	sb.WriteString("**Direct Answer:**\n")
	fmt.Fprintf(&sb, "%d relevant guideline(s) address this question.\n\n", len(points))
	sb.WriteString("**Key Points:**\n")
	for _, p := range points {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\n**Notes:**\nGenerated by the mock provider.")
	return sb.String()
}

const cannedExtraction = `{
  "is_valid_document": true,
  "validation_summary": "Mock: valid investment guidelines document detected.",
  "portfolio_id": "mock_portfolio_001",
  "portfolio_name": "Mock Test Portfolio",
  "doc_id": "mock_portfolio_001_2024-01-01",
  "doc_name": "Mock Investment Guidelines",
  "doc_date": "2024-01-01",
  "guidelines": [
    {
      "rule_id": "MOCK_001",
      "part": "Part I",
      "section": "Asset Allocation",
      "subsection": null,
      "text": "Equity allocation must not exceed 60% of portfolio market value.",
      "page": 1,
      "provenance": "Part I, Section 1.1",
      "structured_data": {"max_equity_pct": 60}
    },
    {
      "rule_id": "MOCK_002",
      "part": "Part I",
      "section": "Derivatives",
      "subsection": null,
      "text": "Derivatives may be used only for hedging purposes.",
      "page": 2,
      "provenance": "Part I, Section 2.1",
      "structured_data": null
    },
    {
      "rule_id": "MOCK_003",
      "part": "Part II",
      "section": "Credit Quality",
      "subsection": "Minimum Rating",
      "text": "Fixed income holdings must be rated BBB- or better at purchase.",
      "page": 3,
      "provenance": "Part II, Section 3.2",
      "structured_data": {"min_rating": "BBB-"}
    }
  ],
  "human_readable_digest": "Mock digest: three guidelines covering equity allocation, derivatives and credit quality."
}`
