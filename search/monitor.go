package search

import "github.com/poiesic/guidelines/core"

// Monitor provides hooks to observe an answer being produced.
// Implement it to trace intermediate steps, e.g. in a CLI's verbose mode.
type Monitor interface {
	Start(query string)
	AfterPlan(plan *core.Plan)
	AfterEmbedding(dimensions int, err error)
	AfterSearch(results []*core.SearchResult, textFallback bool)
	AfterSummary(text string)
	Finish(answer *Answer)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                            {}
func (n *noopMonitor) AfterPlan(_ *core.Plan)                    {}
func (n *noopMonitor) AfterEmbedding(_ int, _ error)             {}
func (n *noopMonitor) AfterSearch(_ []*core.SearchResult, _ bool) {}
func (n *noopMonitor) AfterSummary(_ string)                     {}
func (n *noopMonitor) Finish(_ *Answer)                          {}
