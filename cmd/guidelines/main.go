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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/guidelines"
	"github.com/poiesic/guidelines/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "guidelines",
		Usage: "Extract, store and query investment guidelines from policy documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"GUIDELINES_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file read below the process environment (empty disables)",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the guideline store",
			},
			&cli.StringFlag{
				Name:  "storage",
				Usage: "Storage engine (badger, sqlite)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest policy documents",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "concurrency",
						Aliases: []string{"j"},
						Usage:   "Number of documents ingested at once",
						Value:   4,
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Ingest every PDF dropped into a directory",
				ArgsUsage: "DIR",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period after the last write before a file is ingested",
						Value: time.Second,
					},
					&cli.BoolFlag{
						Name:  "scan-existing",
						Usage: "Ingest PDFs already in the directory at startup",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Answer one question",
				ArgsUsage: "TEXT",
				Action:    queryCommand,
				Flags:     []cli.Flag{portfolioFlag()},
			},
			{
				Name:   "chat",
				Usage:  "Start an interactive conversation",
				Action: chatCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "Resume this session",
					},
				},
			},
			{
				Name:      "plan",
				Usage:     "Show the plan for a query",
				ArgsUsage: "TEXT",
				Action:    planCommand,
			},
			{
				Name:      "search",
				Usage:     "Retrieve guidelines without summarizing",
				ArgsUsage: "TEXT",
				Action:    searchCommand,
				Flags: []cli.Flag{
					portfolioFlag(),
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results (0 uses the configured default)",
					},
				},
			},
			{
				Name:   "backfill",
				Usage:  "Generate missing guideline embeddings",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of guidelines to embed (0 embeds all)",
					},
				},
			},
			{
				Name:      "portfolios",
				Usage:     "List stored portfolios, or summarize one",
				ArgsUsage: "[PORTFOLIO_ID]",
				Action:    portfoliosCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show store, session and provider statistics",
				Action: statsCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the tool entrypoints over MCP on stdio",
				Action: mcpCommand,
			},
		},
	}
}

func portfolioFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "portfolio",
		Aliases: []string{"p"},
		Usage:   "Restrict the search to this portfolio (repeatable)",
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// stdout carries command output and the MCP stream
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig layers the global flags over the file and environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), config.WithEnvFile(c.String("env-file")))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("storage") {
		cfg.Storage = c.String("storage")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openAgent(ctx context.Context, c *cli.Context, opts ...guidelines.Option) (*guidelines.Agent, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts = append([]guidelines.Option{guidelines.WithLogger(slog.Default())}, opts...)
	agent, err := guidelines.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent: %w", err)
	}
	return agent, nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func argText(c *cli.Context, what string) (string, error) {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return text, nil
}
