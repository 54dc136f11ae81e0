package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single query string.
	// Backends that distinguish task types embed it as a retrieval query.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple documents in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend is one text-generation vendor behind the gateway.
// Implementations must be thread-safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and responses.
	Name() ProviderName

	// DefaultModel is used when the request does not name a model.
	DefaultModel() string

	// Generate performs one call. model is never empty.
	// Any transport or vendor failure is returned as an error; the gateway
	// decides whether to fall back.
	Generate(ctx context.Context, req *Request, model string) (*Completion, error)

	// Close releases resources held by the backend.
	Close() error
}

// Generator is the gateway contract consumed by planners, summarizers and
// extractors. Generate never fails with a Go error; it reports failure in
// the response envelope.
type Generator interface {
	Generate(ctx context.Context, req Request) *Response
}
