package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/guidelines"
)

const chatHelp = `Commands:
  /new            start a new session
  /history        show this session's turns
  /context k=v    set a session context value (portfolio_ids takes a comma list)
  /stats          show session statistics
  /quit           leave`

// chat is an interactive conversation bound to one session at a time.
type chat struct {
	agent     *guidelines.Agent
	out       io.Writer
	sessionID string
}

func chatCommand(c *cli.Context) error {
	agent, err := openAgent(c.Context, c)
	if err != nil {
		return err
	}
	defer agent.Close()

	ch := &chat{agent: agent, out: c.App.Writer, sessionID: c.String("session")}
	fmt.Fprintln(ch.out, chatHelp)
	return ch.run(c.Context, c.App.Reader)
}

func (ch *chat) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(ch.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(ch.out)
			return scanner.Err()
		}
		if quit := ch.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether the user quit.
func (ch *chat) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		ch.ask(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return true
	case "/new":
		res := ch.agent.CreateSession(nil)
		ch.sessionID = res.SessionID
		fmt.Fprintf(ch.out, "New session %s\n", ch.sessionID)
	case "/history":
		ch.history()
	case "/context":
		ch.setContext(strings.TrimSpace(arg))
	case "/stats":
		ch.printJSON(ch.agent.SessionStats().Stats)
	default:
		fmt.Fprintln(ch.out, chatHelp)
	}
	return false
}

func (ch *chat) ask(ctx context.Context, text string) {
	res := ch.agent.Chat(ctx, text, ch.sessionID)
	if res.SessionID != "" && res.SessionID != ch.sessionID {
		ch.sessionID = res.SessionID
		fmt.Fprintf(ch.out, "(session %s)\n", ch.sessionID)
	}
	if !res.Success {
		fmt.Fprintf(ch.out, "Error: %s\n", res.Error)
		return
	}
	fmt.Fprintln(ch.out, res.Response)
}

func (ch *chat) history() {
	if ch.sessionID == "" {
		fmt.Fprintln(ch.out, "No session yet.")
		return
	}
	res := ch.agent.SessionHistory(ch.sessionID, 0)
	if !res.Success {
		fmt.Fprintf(ch.out, "Error: %s\n", res.Error)
		return
	}
	for i, turn := range res.Interactions {
		fmt.Fprintf(ch.out, "[%d] You: %s\n    Agent: %s\n", i+1, turn.Query, turn.Response)
	}
}

func (ch *chat) setContext(arg string) {
	key, value, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		fmt.Fprintln(ch.out, "Usage: /context key=value")
		return
	}
	if ch.sessionID == "" {
		ch.sessionID = ch.agent.CreateSession(nil).SessionID
	}

	var v any = strings.TrimSpace(value)
	if key == guidelines.ContextPortfolioIDs {
		var ids []any
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		v = ids
	}
	res := ch.agent.UpdateSessionContext(ch.sessionID, map[string]any{key: v})
	if !res.Success {
		fmt.Fprintf(ch.out, "Error: %s\n", res.Error)
		return
	}
	ch.printJSON(res.Context)
}

func (ch *chat) printJSON(v any) {
	enc := json.NewEncoder(ch.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(ch.out, "Error: %v\n", err)
	}
}
