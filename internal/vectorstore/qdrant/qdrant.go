// Package qdrant stores vectors in a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"strings"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
	"pdfqa/internal/vectorstore"
)

const (
	payloadChunkID    = "chunk_id"
	payloadDocumentID = "document_id"
	payloadPage       = "page"
	payloadIndex      = "index"
	payloadText       = "text"
)

// Config holds connection details for a Qdrant server.
type Config struct {
	Host             string
	Port             int
	APIKey           string
	UseTLS           bool
	CollectionPrefix string
}

// Connect opens a gRPC client. The connection is lazy; errors surface on first use.
func Connect(cfg Config) (*pb.Client, error) {
	client, err := pb.NewClient(&pb.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStoreFailure, "connecting to qdrant",
			errs.Field("host", cfg.Host), errs.Field("port", cfg.Port))
	}
	return client, nil
}

// NewFactory creates one collection per indexed file on a shared client.
func NewFactory(client *pb.Client, prefix string) vectorstore.Factory {
	return func(name string) (vectorstore.Storage, error) {
		if name == "" {
			return nil, errs.New(errs.CodeStoreInvalidInput, "collection name required")
		}
		return NewStorage(client, CollectionName(prefix, name)), nil
	}
}

// CollectionName joins prefix and name, replacing characters Qdrant rejects.
func CollectionName(prefix, name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if prefix == "" {
		return clean
	}
	return prefix + "_" + clean
}

// Storage is a Qdrant-backed vector store using cosine distance.
type Storage struct {
	mu         sync.RWMutex
	client     *pb.Client
	collection string
	dimension  int
	ids        map[string]struct{}
}

func NewStorage(client *pb.Client, collection string) *Storage {
	return &Storage{client: client, collection: collection, ids: make(map[string]struct{})}
}

// Init drops any existing collection with the same name and creates it fresh.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if err := vectorstore.ValidateDimension(dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recreate(ctx, dimension); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) recreate(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return s.wrap(err, "checking collection")
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return s.wrap(err, "dropping collection")
		}
	}
	err = s.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(dimension),
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return s.wrap(err, "creating collection")
	}
	s.ids = make(map[string]struct{})
	return nil
}

// Upsert writes points keyed by chunk index, so re-upserting a chunk replaces it.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.ValidateUpsert(s.dimension, chunks, vectors); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(chunks))
	for i, ch := range chunks {
		points[i] = &pb.PointStruct{
			Id:      pb.NewIDNum(uint64(ch.Index)),
			Vectors: pb.NewVectors(vectors[i]...),
			Payload: pb.NewValueMap(payload(ch)),
		}
	}
	_, err := s.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return s.wrap(err, "upserting points")
	}
	for _, ch := range chunks {
		s.ids[ch.ChunkID] = struct{}{}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := vectorstore.ValidateQuery(s.dimension, vector); err != nil {
		return nil, err
	}
	limit := vectorstore.NormalizeTopK(topK, len(s.ids))
	if limit == 0 {
		return nil, nil
	}
	points, err := s.client.Query(ctx, &pb.QueryPoints{
		CollectionName: s.collection,
		Query:          pb.NewQuery(vector...),
		Limit:          pb.PtrOf(uint64(limit)),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, s.wrap(err, "querying points")
	}
	results := make([]domain.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, domain.SearchResult{Chunk: chunkFromPayload(p.GetPayload()), Score: float64(p.GetScore())})
	}
	vectorstore.SortResults(results)
	return results, nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return nil
	}
	return s.recreate(ctx, s.dimension)
}

func (s *Storage) wrap(err error, msg string) error {
	return errs.Wrap(err, errs.CodeStoreFailure, msg, errs.Field("collection", s.collection))
}

func payload(ch domain.Chunk) map[string]any {
	return map[string]any{
		payloadChunkID:    ch.ChunkID,
		payloadDocumentID: ch.DocumentID,
		payloadPage:       int64(ch.Page),
		payloadIndex:      int64(ch.Index),
		payloadText:       ch.Text,
	}
}

func chunkFromPayload(p map[string]*pb.Value) domain.Chunk {
	return domain.Chunk{
		ChunkID:    p[payloadChunkID].GetStringValue(),
		DocumentID: p[payloadDocumentID].GetStringValue(),
		Page:       int(p[payloadPage].GetIntegerValue()),
		Index:      int(p[payloadIndex].GetIntegerValue()),
		Text:       p[payloadText].GetStringValue(),
	}
}
