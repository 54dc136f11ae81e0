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

// Package ai provides the provider-neutral contracts for text generation and
// embeddings used by the guidelines agent.
//
// The package defines three interfaces:
//
//   - Backend: one generation vendor (Gemini, OpenAI, Anthropic, mock)
//   - Generator: the gateway contract that never returns a Go error and
//     instead reports failure inside a Response envelope
//   - Embedder: query and document embeddings for semantic search
//
// # Implementation Packages
//
//   - ai/gemini: Google Gemini via google.golang.org/genai
//   - ai/openai: OpenAI and OpenAI-compatible servers via langchaingo
//   - ai/anthropic: Anthropic Claude via langchaingo
//   - ai/mock: deterministic backend and embedder for development and tests
//
// Backends are combined into a failover chain by the gateway package, which
// walks Config.Order until one backend produces content.
//
// # Usage Example
//
//	cfg := ai.NewConfig(
//	    ai.WithGeminiKey(os.Getenv("GEMINI_API_KEY")),
//	    ai.WithPriority(ai.ProviderGemini, ai.ProviderOpenAI),
//	)
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	gw, err := gateway.New(ctx, cfg)
//	resp := gw.Generate(ctx, ai.Request{Prompt: "Summarize the policy"})
//
// Model output that is expected to be JSON should be decoded with DecodeJSON,
// which tolerates markdown fences and surrounding prose.
package ai
