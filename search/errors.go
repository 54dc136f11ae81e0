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

package search

import "errors"

var (
	// ErrRepositoryRequired is returned when a guideline repository is not provided.
	ErrRepositoryRequired = errors.New("guideline repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrGeneratorRequired is returned when a text generator is not provided.
	ErrGeneratorRequired = errors.New("text generator required")

	// ErrPlannerRequired is returned when a query planner is not provided.
	ErrPlannerRequired = errors.New("query planner required")

	// ErrSummarizerRequired is returned when a summarizer is not provided.
	ErrSummarizerRequired = errors.New("summarizer required")

	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrPlanFailed is returned when the planning call itself fails.
	ErrPlanFailed = errors.New("query planning failed")

	// ErrPlanParse is returned when the planner's answer is not a plan.
	ErrPlanParse = errors.New("could not parse query plan")

	// ErrSummaryFailed is returned when the summarization call fails.
	ErrSummaryFailed = errors.New("summarization failed")

	// ErrNoSources is returned when Summarize is given nothing to summarize.
	ErrNoSources = errors.New("no sources to summarize")
)
