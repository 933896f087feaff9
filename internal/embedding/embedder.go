// Package embedding turns text into vectors for similarity search.
package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// EmbedDocuments returns one vector per input, in input order.
type Embedder interface {
	Name() string
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Factory builds an embedder bound to a caller-supplied API key.
// Implementations that need no key ignore it.
type Factory func(apiKey string) (Embedder, error)
