package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when a retry schedule allows no attempts.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrRepositoryRequired is returned when a backfiller has no repository.
	ErrRepositoryRequired = errors.New("guideline repository required")

	// ErrEmbedderRequired is returned when a backfiller has no embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingCountMismatch is returned when the embedder returns a
	// different number of vectors than it was given texts.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrUnusableVector is returned when the embedder returns an empty vector
	// or one containing NaN or Inf.
	ErrUnusableVector = errors.New("unusable embedding vector")
)
