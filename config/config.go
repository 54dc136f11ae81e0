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

// Package config loads application settings. Values are layered: built-in
// defaults, then an optional YAML file, then a .env file, then the process
// environment. The process environment wins over .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/guidelines/ai"
	"gopkg.in/yaml.v3"
)

// Storage engines.
const (
	EngineBadger = "badger"
	EngineSQLite = "sqlite"
)

// Config is the complete application configuration.
type Config struct {
	// DataDir holds the guideline store.
	// Default: ./guidelines-data
	DataDir string `yaml:"data_dir"`

	// Storage selects the store engine, badger or sqlite.
	// Default: badger
	Storage string `yaml:"storage"`

	// WorkerPoolSize bounds concurrently running entrypoints. Zero uses the
	// number of CPUs.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	AI        ai.Config       `yaml:"ai"`
	Session   SessionConfig   `yaml:"session"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Capacity     int           `yaml:"capacity"`
	HistoryLimit int           `yaml:"history_limit"`
}

// SearchConfig configures planning and retrieval.
type SearchConfig struct {
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
	DefaultTopK         int     `yaml:"default_top_k"`
	FollowUpTopK        int     `yaml:"followup_top_k"`
}

// EmbeddingConfig configures the embedding backfill.
type EmbeddingConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "./guidelines-data",
		Storage: EngineBadger,
		AI:      *ai.DefaultConfig(),
		Session: SessionConfig{
			Timeout:      time.Hour,
			Capacity:     100,
			HistoryLimit: 10,
		},
		Search: SearchConfig{
			SimilarityThreshold: 0.5,
			DefaultTopK:         7,
			FollowUpTopK:        10,
		},
		Embedding: EmbeddingConfig{
			BatchSize: 100,
		},
	}
}

type loader struct {
	envFile string
	lookup  func(string) (string, bool)
}

// Option configures Load.
type Option func(*loader)

// WithEnvFile reads dotenv values from path instead of ./.env. An empty path
// disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithLookup replaces os.LookupEnv as the source of environment values.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(l *loader) {
		l.lookup = lookup
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it. A missing .env file is not an error.
func Load(path string, opts ...Option) (*Config, error) {
	l := &loader{envFile: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	lookup := l.lookup
	if l.envFile != "" {
		dotenv, err := godotenv.Read(l.envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", l.envFile, err)
		}
		lookup = layered(l.lookup, dotenv)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// layered prefers the primary source and falls back to dotenv values.
func layered(primary func(string) (string, bool), dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// Validate checks the configuration, including the AI block.
func (c *Config) Validate() error {
	switch c.Storage {
	case EngineBadger, EngineSQLite:
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage)
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("config: worker_pool_size must not be negative, got %d", c.WorkerPoolSize)
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("config: session timeout must be positive, got %v", c.Session.Timeout)
	}
	if c.Session.Capacity < 1 || c.Session.HistoryLimit < 1 {
		return fmt.Errorf("config: session capacity and history limit must be positive, got %d and %d",
			c.Session.Capacity, c.Session.HistoryLimit)
	}
	if t := c.Search.SimilarityThreshold; t < -1 || t > 1 {
		return fmt.Errorf("config: similarity threshold must be within [-1, 1], got %v", t)
	}
	if c.Search.DefaultTopK < 1 || c.Search.FollowUpTopK < 1 {
		return fmt.Errorf("config: top_k defaults must be positive, got %d and %d",
			c.Search.DefaultTopK, c.Search.FollowUpTopK)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("config: embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}
	return c.AI.Validate()
}
