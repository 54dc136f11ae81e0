// Package mcpserver exposes the guidelines agent's tool-style entrypoints
// over the Model Context Protocol, so an assistant can plan, search,
// summarize, extract and persist on its own.
package mcpserver

import "errors"

var (
	// ErrMissingAgent is returned when no agent is provided.
	ErrMissingAgent = errors.New("mcpserver: agent is required")

	// ErrToolFailed wraps the error message of a failed entrypoint.
	ErrToolFailed = errors.New("tool failed")

	// ErrNotFound is returned when a session or portfolio does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates tool arguments that cannot be used.
	ErrInvalidInput = errors.New("invalid input")
)
