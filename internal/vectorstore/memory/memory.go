// Package memory is a brute-force in-process vector store.
package memory

import (
	"context"
	"math"
	"sync"

	"pdfqa/internal/domain"
	"pdfqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
	byID      map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

// NewFactory returns a factory creating an independent store per name.
func NewFactory() vectorstore.Factory {
	return func(string) (vectorstore.Storage, error) { return NewStorage(), nil }
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if err := vectorstore.ValidateDimension(dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.reset()
	return nil
}

// Upsert stores vectors, replacing entries whose chunk ID already exists.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.ValidateUpsert(s.dimension, chunks, vectors); err != nil {
		return err
	}
	for i, ch := range chunks {
		v := append([]float32(nil), vectors[i]...)
		if j, ok := s.byID[ch.ChunkID]; ok {
			s.chunks[j] = ch
			s.vectors[j] = v
			continue
		}
		s.byID[ch.ChunkID] = len(s.chunks)
		s.chunks = append(s.chunks, ch)
		s.vectors = append(s.vectors, v)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := vectorstore.ValidateQuery(s.dimension, vector); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, len(s.vectors))
	for i := range s.vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = domain.SearchResult{Chunk: s.chunks[i], Score: cosine(s.vectors[i], vector)}
	}
	vectorstore.SortResults(results)
	return results[:vectorstore.NormalizeTopK(topK, len(results))], nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Storage) reset() {
	s.vectors = nil
	s.chunks = nil
	s.byID = make(map[string]int)
}

// cosine returns 0 when either vector has zero length.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
