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

package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server is the MCP server for the guidelines agent.
type Server struct {
	agent  Agent
	server *mcp.Server
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "mcp")
		return nil
	}
}

// NewServer creates an MCP server over agent.
func NewServer(agent Agent, opts ...Option) (*Server, error) {
	if agent == nil {
		return nil, ErrMissingAgent
	}
	s := &Server{
		agent:  agent,
		logger: slog.Default().With("component", "mcp"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	impl := &mcp.Implementation{
		Name:    "guidelines",
		Version: Version,
	}
	s.server = mcp.NewServer(impl, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "version", Version)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
