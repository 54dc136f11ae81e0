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

// Package mock provides deterministic AI implementations for development and
// testing without external services.
//
// The Backend is the last entry of the gateway's priority list and never
// fails. It recognizes the three prompt families used by the agent and answers
// each with a well-formed canned response:
//
//   - extraction prompts get a valid extraction JSON document
//   - planning prompts get a plan JSON that honors "top N" in the query
//   - summarization prompts get a Direct Answer / Key Points / Notes answer
//     that cites every source guideline verbatim
//
// Any other prompt gets a short fixed text.
//
// # Usage
//
//	backend := mock.NewBackend()
//	backend.GenerateFunc = func(ctx context.Context, req *ai.Request) (string, error) {
//	    return `{"is_valid_document": false}`, nil
//	}
//
//	embedder := mock.NewEmbedder()
//	vector, _ := embedder.EmbedText(ctx, "derivatives")
//	count := embedder.CallCount()
//
// Both types return concrete pointers so tests can inject behavior through
// the Func fields and assert on call counts.
package mock
