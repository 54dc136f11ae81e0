package guidelines

import "errors"

var (
	// ErrTaskPanicked is returned when an entrypoint's task panics.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrEmptyDocument is returned when an ingest or extract call gets no bytes.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrExtractionRequired is returned by Persist without an extraction.
	ErrExtractionRequired = errors.New("extraction result is required")
)
