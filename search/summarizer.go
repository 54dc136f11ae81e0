package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/guidelines/ai"
)

const summaryTemperature = 0.1

// Summarizer writes the cited answer from retrieved guidelines.
type Summarizer struct {
	genConfig
}

// NewSummarizer creates a Summarizer over gen.
func NewSummarizer(gen ai.Generator, opts ...GenOption) (*Summarizer, error) {
	c, err := newGenConfig(gen, "summarizer", opts)
	if err != nil {
		return nil, err
	}
	return &Summarizer{genConfig: c}, nil
}

// Summarize answers question from sources, each formatted by FormatSource.
func (s *Summarizer) Summarize(ctx context.Context, question string, sources []string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuery
	}
	if len(sources) == 0 {
		return "", ErrNoSources
	}

	start := time.Now()
	resp := s.gen.Generate(ctx, ai.Request{
		Prompt:      summaryPrompt(question, sources),
		Provider:    s.provider,
		Model:       s.model,
		Temperature: summaryTemperature,
	})
	if !resp.Success {
		s.logger.Error("summarization call failed", "err", resp.Error)
		return "", fmt.Errorf("%w: %s", ErrSummaryFailed, resp.Error)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty response from %s", ErrSummaryFailed, resp.ProviderUsed)
	}
	s.logger.Info("summary generated",
		"sources", len(sources),
		"provider", resp.ProviderUsed,
		"duration", time.Since(start))
	return text, nil
}
