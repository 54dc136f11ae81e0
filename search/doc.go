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

// Package search answers questions about stored investment guidelines.
//
// Answering runs in stages:
//   - The Planner turns the question and any conversation history into a
//     core.Plan: keyword-dense search terms, the instruction for the
//     summarizer and the number of results to retrieve.
//   - The Retriever embeds the search terms and ranks guidelines by cosine
//     similarity. When embedding fails it falls back to keyword matching.
//   - The Summarizer asks the model for a direct answer and key points that
//     cite each guideline's provenance.
//
// A Monitor observes each stage.
package search
