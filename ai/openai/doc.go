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

// Package openai provides the OpenAI generation backend and embedder.
//
// Both are built on the langchaingo library and work against OpenAI itself
// or any OpenAI-compatible server (Ollama, LocalAI, vLLM) when a BaseURL is
// configured.
//
// # Usage
//
//	cfg := ai.NewConfig(ai.WithOpenAIKey(os.Getenv("OPENAI_API_KEY")))
//	backend, err := openai.NewBackend(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	completion, err := backend.Generate(ctx, &ai.Request{Prompt: "hello"}, backend.DefaultModel())
//
//	embedder, err := openai.NewEmbedder(cfg)
//	vector, err := embedder.EmbedText(ctx, "derivatives restrictions")
package openai
