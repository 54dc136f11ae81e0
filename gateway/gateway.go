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

// Package gateway implements the provider gateway: a single Generate call
// that walks a priority-ordered list of text-generation backends until one
// produces content.
//
// A backend is available when its credential is configured and it was
// constructed successfully. A request naming an unavailable provider is
// transparently moved to the next available one in priority order, and a
// backend that fails at call time hands the request to the next. Failures
// are reported in the ai.Response envelope, never as Go errors.
//
// Every call is logged under a fresh request id so the request line
// (provider, model, temperature, attachments, truncated prompt) can be
// correlated with the response line (latency, usage, truncated content).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/ai/anthropic"
	"github.com/poiesic/guidelines/ai/gemini"
	"github.com/poiesic/guidelines/ai/mock"
	"github.com/poiesic/guidelines/ai/openai"
	"golang.org/x/time/rate"
)

const (
	promptLogLimit  = 500
	contentLogLimit = 300
)

// Gateway routes generation requests across backends.
type Gateway struct {
	order    []ai.ProviderName
	extra    []ai.ProviderName // WithBackend names, in registration order
	backends map[ai.ProviderName]ai.Backend
	limiters map[ai.ProviderName]*rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

var _ ai.Generator = (*Gateway)(nil)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger.With("component", "gateway")
		return nil
	}
}

// WithBackend registers a backend under its own name, bypassing credential
// checks and construction. Names missing from the priority list are
// appended to it in registration order.
func WithBackend(b ai.Backend) Option {
	return func(g *Gateway) error {
		if b == nil {
			return ErrInvalidBackend
		}
		if _, ok := g.backends[b.Name()]; !ok {
			g.extra = append(g.extra, b.Name())
		}
		g.backends[b.Name()] = b
		return nil
	}
}

// WithTimeout overrides the per-call timeout from the config. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) error {
		if d < 0 {
			return ErrInvalidTimeout
		}
		g.timeout = d
		return nil
	}
}

// WithRateLimit throttles one backend to rps requests per second.
func WithRateLimit(p ai.ProviderName, rps float64, burst int) Option {
	return func(g *Gateway) error {
		if burst < 1 {
			burst = 1
		}
		g.limiters[p] = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// New creates a Gateway from config. Backends with a credential are
// constructed in priority order; a backend that fails to construct is
// logged and treated as unavailable.
func New(ctx context.Context, config *ai.Config, opts ...Option) (*Gateway, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		order:    config.Order(),
		backends: make(map[ai.ProviderName]ai.Backend),
		limiters: make(map[ai.ProviderName]*rate.Limiter),
		timeout:  config.RequestTimeout,
		logger:   slog.Default().With("component", "gateway"),
	}
	for _, p := range g.order {
		if pc := config.Provider(p); pc != nil && pc.RequestsPerSecond > 0 {
			g.limiters[p] = rate.NewLimiter(rate.Limit(pc.RequestsPerSecond), 1)
		}
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	for _, p := range g.order {
		if _, ok := g.backends[p]; ok || !config.HasCredential(p) {
			continue
		}
		b, err := newBackend(ctx, p, config)
		if err != nil {
			g.logger.Warn("backend unavailable", "provider", p, "err", err)
			continue
		}
		g.backends[p] = b
	}
	for _, p := range g.extra {
		if !slices.Contains(g.order, p) {
			g.order = append(g.order, p)
		}
	}

	g.logger.Info("gateway ready", "available", g.Available())
	return g, nil
}

func newBackend(ctx context.Context, p ai.ProviderName, config *ai.Config) (ai.Backend, error) {
	switch p {
	case ai.ProviderGemini:
		return gemini.NewBackend(ctx, config)
	case ai.ProviderOpenAI:
		return openai.NewBackend(config)
	case ai.ProviderAnthropic:
		return anthropic.NewBackend(config)
	case ai.ProviderMock:
		return mock.NewBackend(), nil
	}
	return nil, fmt.Errorf("unknown provider %q", p)
}

// Available lists the usable providers in priority order.
func (g *Gateway) Available() []ai.ProviderName {
	out := make([]ai.ProviderName, 0, len(g.backends))
	for _, p := range g.order {
		if _, ok := g.backends[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// candidates returns the backends to try, in order. The walk starts at the
// requested provider's position in the priority list and wraps around.
// substituted is true when a named provider is not the first candidate.
func (g *Gateway) candidates(requested ai.ProviderName) (out []ai.Backend, substituted bool) {
	start := 0
	if requested != "" {
		if i := slices.Index(g.order, requested); i >= 0 {
			start = i
		}
	}
	for i := range g.order {
		p := g.order[(start+i)%len(g.order)]
		if b, ok := g.backends[p]; ok {
			out = append(out, b)
		}
	}
	substituted = requested != "" && (len(out) == 0 || out[0].Name() != requested)
	return out, substituted
}

// Generate performs the request against the first backend that succeeds.
// It never returns a Go error: failure is reported with Success=false and
// the joined per-backend errors.
func (g *Gateway) Generate(ctx context.Context, req ai.Request) *ai.Response {
	requestID := uuid.NewString()
	start := time.Now()
	logger := g.logger.With("request_id", requestID)

	candidates, substituted := g.candidates(req.Provider)

	logger.Debug("llm request",
		"provider", req.Provider,
		"model", req.Model,
		"temperature", req.Temperature,
		"attachments", len(req.Attachments),
		"prompt", ai.Truncate(req.Prompt, promptLogLimit))

	if substituted && len(candidates) > 0 {
		logger.Warn("provider not available, substituting",
			"requested", req.Provider,
			"using", candidates[0].Name())
	}

	var errs []error
	for i, b := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		model := b.DefaultModel()
		if i == 0 && req.Model != "" && !substituted {
			model = req.Model
		}

		completion, err := g.call(ctx, b, &req, model)
		if err != nil {
			logger.Warn("provider call failed", "provider", b.Name(), "model", model, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		resp := &ai.Response{
			RequestID:    requestID,
			Content:      completion.Content,
			ProviderUsed: b.Name(),
			Model:        completion.Model,
			Latency:      time.Since(start),
			Usage:        completion.Usage,
			Success:      true,
		}
		g.logResponse(logger, resp)
		return resp
	}

	if len(candidates) == 0 {
		errs = append(errs, ErrNoProvider)
	}
	resp := &ai.Response{
		RequestID: requestID,
		Latency:   time.Since(start),
		Error:     errors.Join(errs...).Error(),
	}
	g.logResponse(logger, resp)
	return resp
}

func (g *Gateway) call(ctx context.Context, b ai.Backend, req *ai.Request, model string) (*ai.Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if l := g.limiters[b.Name()]; l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	return b.Generate(ctx, req, model)
}

func (g *Gateway) logResponse(logger *slog.Logger, resp *ai.Response) {
	attrs := []any{
		"success", resp.Success,
		"provider", resp.ProviderUsed,
		"model", resp.Model,
		"latency", resp.Latency,
		"content", ai.Truncate(resp.Content, contentLogLimit),
	}
	if resp.Usage != nil {
		attrs = append(attrs,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
	}
	if !resp.Success {
		logger.Error("llm response", append(attrs, "err", resp.Error)...)
		return
	}
	logger.Debug("llm response", attrs...)
}

// Close releases every backend.
func (g *Gateway) Close() error {
	var errs []error
	for _, p := range g.Available() {
		if err := g.backends[p].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
