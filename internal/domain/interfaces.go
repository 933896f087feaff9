package domain

import "context"

// Document is one unit of loaded text: a PDF page or a whole text file.
type Document struct {
	ID      string
	Path    string
	Page    int
	Content string
}

// Chunk is a window of document text used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Page       int
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Loader reads a file into documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
// Chunk indexes are sequential across all documents of one file.
type Chunker interface {
	Chunk(documents []Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	AskDocument(ctx context.Context, filePath, query, apiKey string) (string, error)
	AskDocumentStream(ctx context.Context, filePath, query, apiKey string, onChunk func(string) error) (string, error)
	Summarize(ctx context.Context, filePath, apiKey string) (string, error)
}
