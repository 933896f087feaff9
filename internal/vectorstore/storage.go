// Package vectorstore holds chunk embeddings and answers nearest-neighbour queries.
package vectorstore

import (
	"context"
	"sort"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
)

// DefaultTopK is used when a search asks for zero or fewer results.
const DefaultTopK = 3

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Count() int
	Clear(ctx context.Context) error
}

// Factory opens a storage for one indexed file, identified by name.
type Factory func(name string) (Storage, error)

// ValidateDimension rejects non-positive vector sizes.
func ValidateDimension(dimension int) error {
	if dimension <= 0 {
		return errs.New(errs.CodeStoreInvalidInput, "invalid dimension", errs.Field("dimension", dimension))
	}
	return nil
}

// ValidateUpsert checks batch shape against the initialised dimension.
func ValidateUpsert(dimension int, chunks []domain.Chunk, vectors [][]float32) error {
	if dimension <= 0 {
		return errs.New(errs.CodeStoreInvalidInput, "storage not initialised")
	}
	if len(chunks) != len(vectors) {
		return errs.New(errs.CodeStoreInvalidInput, "chunks and vectors length mismatch",
			errs.Field("chunks", len(chunks)), errs.Field("vectors", len(vectors)))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return errs.New(errs.CodeStoreInvalidInput, "vector dimension mismatch",
				errs.Field("index", i), errs.Field("want", dimension), errs.Field("got", len(v)))
		}
	}
	return nil
}

// ValidateQuery checks a query vector against the initialised dimension.
func ValidateQuery(dimension int, vector []float32) error {
	if dimension <= 0 {
		return errs.New(errs.CodeStoreInvalidInput, "storage not initialised")
	}
	if len(vector) != dimension {
		return errs.New(errs.CodeStoreInvalidInput, "query dimension mismatch",
			errs.Field("want", dimension), errs.Field("got", len(vector)))
	}
	return nil
}

// NormalizeTopK applies the default and clamps to the stored count.
func NormalizeTopK(topK, count int) int {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return min(topK, count)
}

// SortResults orders by score descending, then by chunk index.
func SortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}
