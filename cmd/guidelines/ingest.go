package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/guidelines"
	"github.com/poiesic/guidelines/ingestion"
)

// fileResult is one line of ingest output.
type fileResult struct {
	File string `json:"file"`
	guidelines.IngestResult
}

func ingestCommand(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("at least one FILE is required")
	}
	concurrency := c.Int("concurrency")
	if concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}

	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	results := make([]fileResult, len(files))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(concurrency)
	for i, file := range files {
		g.Go(func() error {
			results[i] = fileResult{File: file, IngestResult: agent.IngestFile(ctx, file)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if err := printJSON(c, results); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d documents failed to ingest", failed, len(files)), 1)
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one DIR is required")
	}
	dir := c.Args().First()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := openAgent(ctx, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	fmt.Fprintf(os.Stderr, "Watching %s for PDF documents (Ctrl-C to stop)\n", dir)
	return agent.Watch(ctx, dir,
		ingestion.WithDebounce(c.Duration("debounce")),
		ingestion.WithScanExisting(c.Bool("scan-existing")))
}
