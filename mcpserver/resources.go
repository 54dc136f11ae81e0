package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const uriScheme = "guidelines://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "portfolios",
		Name:        "portfolios",
		Description: "Stored portfolios with their guideline counts",
		MIMEType:    "application/json",
	}, s.handlePortfoliosResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "portfolios/{portfolioId}",
		Name:        "portfolio",
		Description: "Summary of one portfolio and its documents",
		MIMEType:    "application/json",
	}, s.handlePortfolioResource)
}

func (s *Server) handlePortfoliosResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	res := s.agent.SystemStats(ctx)
	if err := statusErr(res.Status); err != nil {
		return nil, fmt.Errorf("listing portfolios: %w", err)
	}
	return jsonResource(req.Params.URI, res.Stats.Portfolios)
}

func (s *Server) handlePortfolioResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	id := extractPortfolioID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	res := s.agent.PortfolioSummary(ctx, id)
	if err := statusErr(res.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, err
	}
	return jsonResource(req.Params.URI, res.Portfolio)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractPortfolioID extracts the id from a URI like guidelines://portfolios/{portfolioId}.
func extractPortfolioID(uri string) string {
	const prefix = uriScheme + "portfolios/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
