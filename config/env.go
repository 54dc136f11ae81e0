package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/gateway"
)

// Environment variable names.
const (
	EnvGeminiKey         = "GEMINI_API_KEY"
	EnvGoogleKey         = "GOOGLE_API_KEY"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvAnthropicKey      = "ANTHROPIC_API_KEY"
	EnvOpenAIBaseURL     = "OPENAI_BASE_URL"
	EnvGeminiModel       = "GEMINI_MODEL"
	EnvOpenAIModel       = "OPENAI_MODEL"
	EnvAnthropicModel    = "ANTHROPIC_MODEL"
	EnvEmbeddingModel    = "EMBEDDING_MODEL"
	EnvEmbeddingProvider = "EMBEDDING_PROVIDER"
	EnvPriority          = "LLM_PROVIDER_PRIORITY"
	EnvDefaultProvider   = "DEFAULT_LLM_PROVIDER"
	EnvRequestTimeout    = "LLM_REQUEST_TIMEOUT"
	EnvRequestsPerSecond = "LLM_REQUESTS_PER_SECOND"
	EnvSessionTimeout    = "SESSION_TIMEOUT"
	EnvMaxSessions       = "MAX_SESSIONS"
	EnvHistoryLimit      = "SESSION_HISTORY_LIMIT"
	EnvBatchSize         = "EMBEDDING_BATCH_SIZE"
	EnvThreshold         = "SIMILARITY_THRESHOLD"
	EnvDefaultTopK       = "DEFAULT_TOP_K"
	EnvFollowUpTopK      = "FOLLOWUP_TOP_K"
	EnvDataDir           = "GUIDELINES_DATA_DIR"
	EnvStorage           = "GUIDELINES_STORAGE"
	EnvWorkerPoolSize    = "WORKER_POOL_SIZE"
)

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) float(key string, bits int) (float64, bool) {
	v, ok := r.get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, bits)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return 0, false
	}
	return f, true
}

// seconds accepts a bare number of seconds or a Go duration string.
func (r *envReader) seconds(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(n * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}

	r.str(EnvGoogleKey, &c.AI.Gemini.APIKey)
	r.str(EnvGeminiKey, &c.AI.Gemini.APIKey)
	r.str(EnvOpenAIKey, &c.AI.OpenAI.APIKey)
	r.str(EnvAnthropicKey, &c.AI.Anthropic.APIKey)
	r.str(EnvOpenAIBaseURL, &c.AI.OpenAI.BaseURL)
	r.str(EnvGeminiModel, &c.AI.Gemini.Model)
	r.str(EnvOpenAIModel, &c.AI.OpenAI.Model)
	r.str(EnvAnthropicModel, &c.AI.Anthropic.Model)

	if v, ok := r.get(EnvPriority); ok {
		var priority []ai.ProviderName
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				priority = append(priority, ai.ProviderName(p))
			}
		}
		c.AI.Priority = priority
	}
	if v, ok := r.get(EnvDefaultProvider); ok {
		c.AI.DefaultProvider = ai.ProviderName(v)
	}
	if v, ok := r.get(EnvEmbeddingProvider); ok {
		c.AI.EmbeddingProvider = ai.ProviderName(strings.ToLower(v))
	}
	r.seconds(EnvRequestTimeout, &c.AI.RequestTimeout)
	if rps, ok := r.float(EnvRequestsPerSecond, 64); ok {
		c.AI.Gemini.RequestsPerSecond = rps
		c.AI.OpenAI.RequestsPerSecond = rps
		c.AI.Anthropic.RequestsPerSecond = rps
	}
	// The embedding model belongs to whichever backend will embed, which
	// depends on the credentials read above.
	if v, ok := r.get(EnvEmbeddingModel); ok {
		if pc := c.AI.Provider(gateway.EmbeddingProvider(&c.AI)); pc != nil {
			pc.EmbeddingModel = v
		}
	}

	r.seconds(EnvSessionTimeout, &c.Session.Timeout)
	r.integer(EnvMaxSessions, &c.Session.Capacity)
	r.integer(EnvHistoryLimit, &c.Session.HistoryLimit)
	r.integer(EnvBatchSize, &c.Embedding.BatchSize)
	if t, ok := r.float(EnvThreshold, 32); ok {
		c.Search.SimilarityThreshold = float32(t)
	}
	r.integer(EnvDefaultTopK, &c.Search.DefaultTopK)
	r.integer(EnvFollowUpTopK, &c.Search.FollowUpTopK)

	r.str(EnvDataDir, &c.DataDir)
	if v, ok := r.get(EnvStorage); ok {
		c.Storage = strings.ToLower(v)
	}
	r.integer(EnvWorkerPoolSize, &c.WorkerPoolSize)

	if len(r.errs) > 0 {
		return fmt.Errorf("config: invalid environment: %w", errors.Join(r.errs...))
	}
	return nil
}
