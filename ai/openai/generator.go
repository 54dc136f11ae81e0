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

package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/guidelines/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoChoices is returned when the model answers without any choice.
var ErrNoChoices = errors.New("openai: no choices returned from model")

// Backend implements ai.Backend using OpenAI-compatible chat APIs.
type Backend struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

var _ ai.Backend = (*Backend)(nil)

// NewBackend creates an OpenAI generation backend from the provider settings
// in config. Local OpenAI-compatible servers that need no key get the
// placeholder token "none".
func NewBackend(config *ai.Config) (*Backend, error) {
	pc := config.OpenAI
	token := pc.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(pc.Model),
	}
	if pc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(pc.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Backend{
		client: client,
		model:  pc.Model,
		logger: slog.Default().With("component", "openai-backend"),
	}, nil
}

// Name returns ai.ProviderOpenAI.
func (b *Backend) Name() ai.ProviderName { return ai.ProviderOpenAI }

// DefaultModel returns the configured chat model.
func (b *Backend) DefaultModel() string { return b.model }

// Generate sends the request as a system + human message pair. Attachments
// become binary parts of the human message.
func (b *Backend) Generate(ctx context.Context, req *ai.Request, model string) (*ai.Completion, error) {
	content := buildMessages(req)

	callOpts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	response, err := b.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		b.logger.Error("failed to generate content", "model", model, "err", err)
		return nil, err
	}
	if len(response.Choices) < 1 {
		return nil, ErrNoChoices
	}

	choice := response.Choices[0]
	return &ai.Completion{
		Content: choice.Content,
		Model:   model,
		Usage:   usageFrom(choice.GenerationInfo),
	}, nil
}

// Close is a no-op; the underlying HTTP client needs no cleanup.
func (b *Backend) Close() error {
	b.logger.Debug("closing OpenAI backend")
	return nil
}

func buildMessages(req *ai.Request) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		content = append(content, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}
	parts := []llms.ContentPart{llms.TextPart(req.Prompt)}
	for _, a := range req.Attachments {
		parts = append(parts, llms.BinaryPart(a.MIMEType, a.Data))
	}
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	})
	return content
}

func usageFrom(info map[string]any) *ai.Usage {
	if info == nil {
		return nil
	}
	prompt := intValue(info["PromptTokens"])
	completion := intValue(info["CompletionTokens"])
	total := intValue(info["TotalTokens"])
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &ai.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
