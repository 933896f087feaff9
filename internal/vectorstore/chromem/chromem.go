// Package chromem stores vectors in an embedded chromem-go database.
package chromem

import (
	"context"
	"runtime"
	"strconv"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
	"pdfqa/internal/vectorstore"
)

const (
	metaDocumentID = "document_id"
	metaPage       = "page"
	metaIndex      = "index"
)

// Storage keeps one chromem collection per indexed file.
// chromem normalises vectors on insert, so all-zero vectors stay out of the
// collection and are reported with a score of zero.
type Storage struct {
	mu         sync.RWMutex
	db         *chromemgo.DB
	name       string
	dimension  int
	collection *chromemgo.Collection
	chunks     map[string]domain.Chunk
}

// NewStorage opens a storage backed by its own collection in db.
func NewStorage(db *chromemgo.DB, name string) *Storage {
	return &Storage{db: db, name: name, chunks: make(map[string]domain.Chunk)}
}

// NewFactory shares one in-memory database across all per-file collections.
func NewFactory() vectorstore.Factory {
	db := chromemgo.NewDB()
	return func(name string) (vectorstore.Storage, error) {
		if name == "" {
			return nil, errs.New(errs.CodeStoreInvalidInput, "collection name required")
		}
		return NewStorage(db, name), nil
	}
}

// noEmbed keeps chromem from calling out to a remote model for documents
// that arrive without a vector.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errs.New(errs.CodeStoreInvalidInput, "documents must carry embeddings")
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if err := vectorstore.ValidateDimension(dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recreate(); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) recreate() error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return errs.Wrap(err, errs.CodeStoreFailure, "dropping collection", errs.Field("collection", s.name))
	}
	coll, err := s.db.CreateCollection(s.name, nil, noEmbed)
	if err != nil {
		return errs.Wrap(err, errs.CodeStoreFailure, "creating collection", errs.Field("collection", s.name))
	}
	s.collection = coll
	s.chunks = make(map[string]domain.Chunk)
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.ValidateUpsert(s.dimension, chunks, vectors); err != nil {
		return err
	}

	docs := make([]chromemgo.Document, 0, len(chunks))
	for i, ch := range chunks {
		if _, ok := s.chunks[ch.ChunkID]; ok {
			if err := s.collection.Delete(ctx, nil, nil, ch.ChunkID); err != nil {
				return errs.Wrap(err, errs.CodeStoreFailure, "replacing document", errs.Field("id", ch.ChunkID))
			}
		}
		s.chunks[ch.ChunkID] = ch
		if isZero(vectors[i]) {
			continue
		}
		docs = append(docs, chromemgo.Document{
			ID:        ch.ChunkID,
			Content:   ch.Text,
			Embedding: append([]float32(nil), vectors[i]...),
			Metadata: map[string]string{
				metaDocumentID: ch.DocumentID,
				metaPage:       strconv.Itoa(ch.Page),
				metaIndex:      strconv.Itoa(ch.Index),
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return errs.Wrap(err, errs.CodeStoreFailure, "adding documents", errs.Field("collection", s.name))
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := vectorstore.ValidateQuery(s.dimension, vector); err != nil {
		return nil, err
	}
	topK = vectorstore.NormalizeTopK(topK, len(s.chunks))
	if topK == 0 {
		return nil, nil
	}

	results := make([]domain.SearchResult, 0, topK)
	seen := make(map[string]struct{}, topK)
	if n := min(topK, s.collection.Count()); n > 0 && !isZero(vector) {
		hits, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeStoreFailure, "querying collection", errs.Field("collection", s.name))
		}
		for _, h := range hits {
			results = append(results, domain.SearchResult{Chunk: s.chunk(h), Score: float64(h.Similarity)})
			seen[h.ID] = struct{}{}
		}
	}
	if len(results) < topK {
		results = append(results, s.unscored(topK-len(results), seen)...)
	}
	vectorstore.SortResults(results)
	return results, nil
}

// unscored returns up to n zero-score chunks not in seen, lowest index first.
func (s *Storage) unscored(n int, seen map[string]struct{}) []domain.SearchResult {
	var out []domain.SearchResult
	for id, ch := range s.chunks {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, domain.SearchResult{Chunk: ch})
	}
	vectorstore.SortResults(out)
	return out[:min(n, len(out))]
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection == nil {
		return nil
	}
	return s.recreate()
}

func (s *Storage) chunk(r chromemgo.Result) domain.Chunk {
	if ch, ok := s.chunks[r.ID]; ok {
		return ch
	}
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	index, _ := strconv.Atoi(r.Metadata[metaIndex])
	return domain.Chunk{
		DocumentID: r.Metadata[metaDocumentID],
		ChunkID:    r.ID,
		Page:       page,
		Text:       r.Content,
		Index:      index,
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
