package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/guidelines"
	"github.com/poiesic/guidelines/mcpserver"
)

func backfillCommand(c *cli.Context) error {
	agent, err := openAgent(c.Context, c, guidelines.WithBackfillProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}
	defer agent.Close()

	res := agent.BackfillEmbeddings(c.Context, c.Int("limit"))
	if !res.Success {
		return fmt.Errorf("backfill failed: %s", res.Error)
	}
	return printJSON(c, res.Backfill)
}

func portfoliosCommand(c *cli.Context) error {
	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	if c.NArg() > 0 {
		res := agent.PortfolioSummary(c.Context, c.Args().First())
		if !res.Success {
			return fmt.Errorf("portfolio summary failed: %s", res.Error)
		}
		return printJSON(c, res.Portfolio)
	}

	res := agent.SystemStats(c.Context)
	if !res.Success {
		return fmt.Errorf("listing portfolios failed: %s", res.Error)
	}
	return printJSON(c, res.Stats.Portfolios)
}

func statsCommand(c *cli.Context) error {
	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	res := agent.SystemStats(c.Context)
	if !res.Success {
		return fmt.Errorf("stats failed: %s", res.Error)
	}
	return printJSON(c, res.Stats)
}

func mcpCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := openAgent(ctx, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	server, err := mcpserver.NewServer(agent, mcpserver.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
