// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package anthropic provides the Claude generation backend built on
// langchaingo. Anthropic offers no embeddings, so there is no embedder here.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/guidelines/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

var (
	// ErrNoChoices is returned when the model answers without any choice.
	ErrNoChoices = errors.New("anthropic: no choices returned from model")

	// ErrUnsupportedAttachment is returned for non-image attachments, which
	// the langchaingo client can only send as image blocks. The gateway
	// falls back to the next backend.
	ErrUnsupportedAttachment = errors.New("anthropic: unsupported attachment type")
)

// defaultMaxTokens is required by the Messages API.
const defaultMaxTokens = 4096

// Backend implements ai.Backend using the Anthropic Messages API.
type Backend struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

var _ ai.Backend = (*Backend)(nil)

// NewBackend creates an Anthropic backend from config.Anthropic.
func NewBackend(config *ai.Config) (*Backend, error) {
	pc := config.Anthropic
	opts := []anthropic.Option{
		anthropic.WithToken(pc.APIKey),
		anthropic.WithModel(pc.Model),
	}
	if pc.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(pc.BaseURL))
	}
	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Backend{
		client: client,
		model:  pc.Model,
		logger: slog.Default().With("component", "anthropic-backend"),
	}, nil
}

// Name returns ai.ProviderAnthropic.
func (b *Backend) Name() ai.ProviderName { return ai.ProviderAnthropic }

// DefaultModel returns the configured model.
func (b *Backend) DefaultModel() string { return b.model }

// Generate performs one Messages API call.
func (b *Backend) Generate(ctx context.Context, req *ai.Request, model string) (*ai.Completion, error) {
	content, err := buildMessages(req)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	response, err := b.client.GenerateContent(ctx, content,
		llms.WithModel(model),
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		b.logger.Error("failed to generate content", "model", model, "err", err)
		return nil, err
	}
	if len(response.Choices) < 1 {
		return nil, ErrNoChoices
	}

	choice := response.Choices[0]
	var usage *ai.Usage
	in, out := intValue(choice.GenerationInfo["InputTokens"]), intValue(choice.GenerationInfo["OutputTokens"])
	if in > 0 || out > 0 {
		usage = &ai.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
	}
	return &ai.Completion{Content: choice.Content, Model: model, Usage: usage}, nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

func buildMessages(req *ai.Request) ([]llms.MessageContent, error) {
	content := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	parts := make([]llms.ContentPart, 0, len(req.Attachments)+1)
	for _, a := range req.Attachments {
		if !strings.HasPrefix(a.MIMEType, "image/") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAttachment, a.MIMEType)
		}
		parts = append(parts, llms.BinaryPart(a.MIMEType, a.Data))
	}
	parts = append(parts, llms.TextPart(req.Prompt))
	content = append(content, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
	return content, nil
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
