package guidelines

import (
	"context"
	"fmt"
)

// PortfolioSummary describes one portfolio with its documents and
// guideline count.
func (a *Agent) PortfolioSummary(ctx context.Context, portfolioID string) PortfolioSummaryResult {
	summary, err := runTask(ctx, a.pool, func(ctx context.Context) (*PortfolioSummary, error) {
		p, err := a.repo.GetPortfolio(ctx, portfolioID)
		if err != nil {
			return nil, fmt.Errorf("portfolio %s: %w", portfolioID, err)
		}
		count, err := a.repo.CountGuidelines(ctx, portfolioID)
		if err != nil {
			return nil, err
		}
		docs, err := a.repo.ListDocuments(ctx, portfolioID)
		if err != nil {
			return nil, err
		}
		s := &PortfolioSummary{
			PortfolioID:     p.ID,
			PortfolioName:   p.Name,
			GuidelinesCount: count,
			DocumentsCount:  len(docs),
			Documents:       make([]DocumentSummary, len(docs)),
		}
		for i, d := range docs {
			s.Documents[i] = DocumentSummary{DocID: d.ID, DocName: d.Name, DocDate: d.Date}
		}
		return s, nil
	})
	if err != nil {
		return PortfolioSummaryResult{Status: failed(err)}
	}
	return PortfolioSummaryResult{Status: ok(), Portfolio: summary}
}

// SystemStats describes every portfolio, the embedding backlog, the session
// store and the available providers.
func (a *Agent) SystemStats(ctx context.Context) SystemStatsResult {
	stats, err := runTask(ctx, a.pool, func(ctx context.Context) (*SystemStats, error) {
		portfolios, err := a.repo.ListPortfolios(ctx)
		if err != nil {
			return nil, err
		}
		missing, err := a.repo.CountMissingEmbeddings(ctx)
		if err != nil {
			return nil, err
		}
		s := &SystemStats{
			TotalPortfolios:   len(portfolios),
			MissingEmbeddings: missing,
			NeedsEmbeddings:   missing > 0,
			Portfolios:        make([]PortfolioCount, len(portfolios)),
			Sessions:          a.sessions.Stats(),
			Providers:         a.providers(),
		}
		for i, p := range portfolios {
			count, err := a.repo.CountGuidelines(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			s.TotalGuidelines += count
			s.Portfolios[i] = PortfolioCount{PortfolioID: p.ID, PortfolioName: p.Name, GuidelinesCount: count}
		}
		return s, nil
	})
	if err != nil {
		return SystemStatsResult{Status: failed(err)}
	}
	return SystemStatsResult{Status: ok(), Stats: stats}
}
