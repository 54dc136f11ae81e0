package ingestion

import "errors"

var (
	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrPersisterRequired is returned when a persister is not provided.
	ErrPersisterRequired = errors.New("persister required")

	// ErrStamperRequired is returned when an embedding stamper is not provided.
	ErrStamperRequired = errors.New("embedding stamper required")

	// ErrHandlerRequired is returned when a watcher has no file handler.
	ErrHandlerRequired = errors.New("file handler required")
)
