// Package index builds and queries the per-file retrieval index.
package index

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/embedding"
	"pdfqa/internal/errs"
	"pdfqa/internal/vectorstore"
)

// scoreEpsilon is the score under which vector results count as no match.
const scoreEpsilon = 1e-9

// Index is a built, immutable retrieval index over one file.
type Index struct {
	path       string
	chunks     []domain.Chunk
	text       string
	embedder   embedding.Embedder
	store      vectorstore.Storage
	summarizer domain.Summarizer
	logger     *zap.Logger
}

func (ix *Index) Path() string { return ix.path }

// Chunks returns a copy of the indexed chunks in index order.
func (ix *Index) Chunks() []domain.Chunk {
	return append([]domain.Chunk(nil), ix.chunks...)
}

// Search returns up to topK chunks most relevant to query. When the query
// embeds to a zero vector, or no stored chunk scores above zero, chunks are
// ranked by token overlap instead.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.CodeIndexInvalidInput, "query is empty")
	}
	vec, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		ix.logger.Debug("query embedding is zero, using lexical ranking")
		return lexicalSearch(ix.chunks, query, topK), nil
	}
	res, err := ix.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > scoreEpsilon {
			return res, nil
		}
	}
	ix.logger.Debug("no vector match, using lexical ranking", zap.Int("results", len(res)))
	return lexicalSearch(ix.chunks, query, topK), nil
}

// Summary returns an extractive summary of the whole file.
func (ix *Index) Summary(maxSentences int) (string, error) {
	if ix.summarizer == nil {
		return "", errs.New(errs.CodeIndexInvalidInput, "no summarizer configured")
	}
	return ix.summarizer.Summarize(ix.text, maxSentences)
}

// ContextText joins chunk texts with newlines, in result order.
func ContextText(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Text
	}
	return strings.Join(parts, "\n")
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Close releases the index's vector storage.
func (ix *Index) Close(ctx context.Context) error {
	return ix.store.Clear(ctx)
}
