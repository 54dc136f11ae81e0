package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func queryCommand(c *cli.Context) error {
	text, err := argText(c, "query TEXT")
	if err != nil {
		return err
	}
	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	res := agent.Query(c.Context, text, c.StringSlice("portfolio"))
	if !res.Success {
		return fmt.Errorf("query failed: %s", res.Error)
	}
	fmt.Fprintln(c.App.Writer, res.Response)
	return nil
}

func planCommand(c *cli.Context) error {
	text, err := argText(c, "query TEXT")
	if err != nil {
		return err
	}
	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	res := agent.PlanQuery(c.Context, text, "")
	if !res.Success {
		return fmt.Errorf("planning failed: %s", res.Error)
	}
	return printJSON(c, res.Plan)
}

func searchCommand(c *cli.Context) error {
	text, err := argText(c, "query TEXT")
	if err != nil {
		return err
	}
	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	res := agent.SearchGuidelines(c.Context, text, c.StringSlice("portfolio"), c.Int("top-k"))
	if !res.Success {
		return fmt.Errorf("search failed: %s", res.Error)
	}
	return printJSON(c, res)
}
