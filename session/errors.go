package session

import "errors"

var (
	// ErrNotFound is returned for an unknown, deleted or expired session.
	ErrNotFound = errors.New("session not found")

	// ErrJanitorRunning is returned when StartJanitor is called twice.
	ErrJanitorRunning = errors.New("session janitor already running")
)
