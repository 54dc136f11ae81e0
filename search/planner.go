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

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
)

const (
	// DefaultTopK is the result count for a new question.
	DefaultTopK = 7

	// FollowUpTopK is the result count for a question asked with history.
	FollowUpTopK = 10

	// MaxTopK caps any requested result count.
	MaxTopK = 100

	plannerTemperature = 0.1
)

var (
	// "top 5", "give me 10", "about 10", "first 3", "show me 4"
	countBeforeNumber = regexp.MustCompile(`(?i)\b(?:top|give\s+me|about|around|first|show\s+me|list|return)\s+(\d{1,4})\b`)
	// "10 results", "5 guidelines"
	countAfterNumber = regexp.MustCompile(`(?i)\b(\d{1,4})\s+(?:results|guidelines|rules|items|matches|hits)\b`)
)

// ExplicitCount returns the result count the query asks for in words, or 0.
func ExplicitCount(query string) int {
	for _, re := range []*regexp.Regexp{countBeforeNumber, countAfterNumber} {
		if m := re.FindStringSubmatch(query); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return min(n, MaxTopK)
			}
		}
	}
	return 0
}

// genConfig is what the Planner and the Summarizer share.
type genConfig struct {
	gen      ai.Generator
	provider ai.ProviderName
	model    string
	logger   *slog.Logger

	// planner only
	coldTopK     int
	followUpTopK int
}

// GenOption configures a Planner or a Summarizer.
type GenOption func(*genConfig) error

// WithProvider pins the backend to try first.
func WithProvider(p ai.ProviderName) GenOption {
	return func(c *genConfig) error {
		if p != "" && !p.Valid() {
			return fmt.Errorf("unknown provider %q", p)
		}
		c.provider = p
		return nil
	}
}

// WithModel overrides the model of the first backend tried.
func WithModel(model string) GenOption {
	return func(c *genConfig) error {
		c.model = model
		return nil
	}
}

// WithTopKDefaults sets the planner's result counts for a new question and
// for a follow-up. Defaults are DefaultTopK and FollowUpTopK.
func WithTopKDefaults(cold, followUp int) GenOption {
	return func(c *genConfig) error {
		if cold < 1 || cold > MaxTopK || followUp < 1 || followUp > MaxTopK {
			return fmt.Errorf("top_k defaults must be within [1, %d], got %d and %d", MaxTopK, cold, followUp)
		}
		c.coldTopK = cold
		c.followUpTopK = followUp
		return nil
	}
}

// WithGenLogger sets a custom logger.
func WithGenLogger(logger *slog.Logger) GenOption {
	return func(c *genConfig) error {
		c.logger = logger
		return nil
	}
}

func newGenConfig(gen ai.Generator, component string, opts []GenOption) (genConfig, error) {
	c := genConfig{gen: gen, logger: slog.Default(), coldTopK: DefaultTopK, followUpTopK: FollowUpTopK}
	if gen == nil {
		return c, ErrGeneratorRequired
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return c, err
		}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", component)
	return c, nil
}

// Planner turns questions into retrieval plans.
type Planner struct {
	genConfig
}

// NewPlanner creates a Planner over gen.
func NewPlanner(gen ai.Generator, opts ...GenOption) (*Planner, error) {
	c, err := newGenConfig(gen, "planner", opts)
	if err != nil {
		return nil, err
	}
	return &Planner{genConfig: c}, nil
}

// Plan asks the model for a plan and enforces its defaults. history holds
// earlier turns of the conversation, oldest first.
func (p *Planner) Plan(ctx context.Context, query string, history []core.Turn) (*core.Plan, error) {
	return p.PlanWithContext(ctx, query, history, nil)
}

// PlanWithContext is Plan with the session context. The previous search
// query and portfolio scope, when present, are shown to the model.
func (p *Planner) PlanWithContext(ctx context.Context, query string, history []core.Turn, sessionCtx map[string]any) (*core.Plan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	resp := p.gen.Generate(ctx, ai.Request{
		Prompt:      plannerPrompt(query, history, sessionCtx),
		Provider:    p.provider,
		Model:       p.model,
		Temperature: plannerTemperature,
		JSON:        true,
	})
	if !resp.Success {
		p.logger.Error("planning call failed", "query", query, "err", resp.Error)
		return nil, fmt.Errorf("%w: %s", ErrPlanFailed, resp.Error)
	}

	var raw rawPlan
	if err := ai.DecodeJSON(resp.Content, &raw); err != nil {
		p.logger.Error("could not parse plan", "err", err, "content", ai.Truncate(resp.Content, 500))
		return nil, fmt.Errorf("%w: %w", ErrPlanParse, err)
	}

	plan := &core.Plan{
		SearchQuery:        strings.TrimSpace(raw.SearchQuery),
		SummaryInstruction: strings.TrimSpace(raw.SummaryInstruction),
		TopK:               p.resolveTopK(query, int(raw.TopK), len(history) > 0),
	}
	if plan.SearchQuery == "" {
		plan.SearchQuery = query
	}
	if plan.SummaryInstruction == "" {
		plan.SummaryInstruction = query
	}

	p.logger.Info("query planned",
		"query", query,
		"search_query", plan.SearchQuery,
		"top_k", plan.TopK,
		"provider", resp.ProviderUsed,
		"duration", time.Since(start))
	return plan, nil
}

// resolveTopK prefers an explicit count in the query, then the model's
// positive value, then the cold or follow-up default.
func (p *Planner) resolveTopK(query string, modelTopK int, followUp bool) int {
	if n := ExplicitCount(query); n > 0 {
		return n
	}
	if modelTopK > 0 {
		return min(modelTopK, MaxTopK)
	}
	if followUp {
		return p.followUpTopK
	}
	return p.coldTopK
}

type rawPlan struct {
	SearchQuery        string   `json:"search_query"`
	SummaryInstruction string   `json:"summary_instruction"`
	TopK               looseInt `json:"top_k"`
}

// looseInt accepts a JSON number or numeric string. Anything else decodes
// to 0 so the planner's defaults apply.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = clampInt(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = clampInt(f)
			return nil
		}
	}
	*n = 0
	return nil
}

func clampInt(f float64) looseInt {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > MaxTopK {
		return MaxTopK
	}
	return looseInt(f)
}
