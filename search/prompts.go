package search

import (
	"fmt"
	"strings"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
)

const plannerInstructions = `You turn a user's question about investment guidelines into a plan for a
retrieval and summarization system.

Context awareness:
- "this fund", "the fund", "same portfolio" and similar phrases refer to the
  conversation so far. Treat such a query as a follow-up.
- For a follow-up, keep the search terms on the topic being asked about and
  leave the fund name out; the portfolio filter handles the entity.

Output ONLY a single valid JSON object with exactly these keys:
1. "search_query": a concise, keyword-dense string for semantic vector search.
   For "ESG guidelines of this fund" use "ESG guidelines".
2. "summary_instruction": the question or command for the summarization
   model. Preserve the user's literal intent.
3. "top_k": the number of guidelines to retrieve. If the user names a number
   ("top 5", "give me 10", "about 10 results") use it. Otherwise use 7 for a
   new question and 10 for a follow-up.

Examples:

Query: "what are the rules for emerging markets? give me the top 5"
{"search_query": "emerging market investment rules and restrictions", "summary_instruction": "What are the rules for emerging markets?", "top_k": 5}

Query: "Get me ESG guidelines of this fund" (after discussing a pension fund)
{"search_query": "ESG guidelines", "summary_instruction": "Get me ESG guidelines of this fund.", "top_k": 10}

Query: "summarize the guidelines on private equity"
{"search_query": "private equity guidelines", "summary_instruction": "Summarize the guidelines on private equity.", "top_k": 7}

Query: "tell me about any restrictions on using derivatives, I need about 10 results"
{"search_query": "restrictions on using derivatives", "summary_instruction": "Tell me about any restrictions on using derivatives.", "top_k": 10}
`

// historyTurnLimit bounds how much of each earlier answer goes into a prompt.
const historyTurnLimit = 500

func plannerPrompt(query string, history []core.Turn, sessionCtx map[string]any) string {
	var sb strings.Builder
	sb.WriteString(plannerInstructions)
	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "User: %s\n", oneLine(t.Query))
			fmt.Fprintf(&sb, "Assistant: %s\n", oneLine(ai.Truncate(t.Response, historyTurnLimit)))
		}
	}
	if last, _ := sessionCtx[ContextLastSearchQuery].(string); strings.TrimSpace(last) != "" {
		fmt.Fprintf(&sb, "\nPrevious search query: %s\n", oneLine(last))
	}
	if ids := contextStrings(sessionCtx[ContextLastPortfolioIDs]); len(ids) > 0 {
		fmt.Fprintf(&sb, "Previous portfolio scope: %s\n", strings.Join(ids, ", "))
	}
	sb.WriteString("\nNow plan the following query.\n\n")
	fmt.Fprintf(&sb, "User query: %q\n", oneLine(query))
	return sb.String()
}

const summaryInstructions = `You are a compliance assistant. Answer the user's question using only the
retrieved investment guidelines below. Do not add outside information.

Output structure:

**Direct Answer:**
One or two sentences that directly answer the question.

**Key Points:**
- A finding drawn from the guidelines. (Provenance: [source], page [n])
- One point per relevant guideline, each citing its provenance verbatim.

**Notes:**
Optional. Point out gaps, conflicts or ambiguity in the retrieved guidelines.
`

func summaryPrompt(question string, sources []string) string {
	var sb strings.Builder
	sb.WriteString(summaryInstructions)
	fmt.Fprintf(&sb, "\nQuestion: %s\n", oneLine(question))
	sb.WriteString("\nRetrieved guidelines:\n")
	for _, s := range sources {
		sb.WriteString("- ")
		sb.WriteString(oneLine(s))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSource renders a search result the way the summarizer cites it.
func FormatSource(r *core.SearchResult) string {
	provenance := r.Provenance
	if provenance == "" {
		provenance = "N/A"
	}
	page := "N/A"
	if r.Page > 0 {
		page = fmt.Sprint(r.Page)
	}
	return fmt.Sprintf("Guideline: %s (Provenance: %s, page %s)", r.Text, provenance, page)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// contextStrings reads a string list stored in a session context, which
// holds []string in process and []any after a JSON round trip.
func contextStrings(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
