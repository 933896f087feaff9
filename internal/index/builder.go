package index

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/embedding"
	"pdfqa/internal/errs"
	"pdfqa/internal/loader"
	"pdfqa/internal/logging"
	"pdfqa/internal/metrics"
	"pdfqa/internal/vectorstore"
)

// Builder runs the load, chunk, embed and store pipeline for one file.
type Builder struct {
	Loader     domain.Loader
	Chunker    domain.Chunker
	Embedders  embedding.Factory
	Stores     vectorstore.Factory
	Summarizer domain.Summarizer
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Build indexes the file at path, embedding with a key-bound embedder.
func (b *Builder) Build(ctx context.Context, path, apiKey string) (*Index, error) {
	logger := logging.OrNop(b.Logger).With(zap.String("path", path))
	start := time.Now()

	docs, err := b.Loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	chunks, err := b.Chunker.Chunk(docs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errs.New(errs.CodeIndexEmpty, "document produced no chunks", errs.FieldPath(path))
	}

	emb, err := b.Embedders(apiKey)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return nil, errs.New(errs.CodeEmbeddingBadResponse, "embedder returned unexpected vectors",
			errs.Field("chunks", len(chunks)), errs.Field("vectors", len(vectors)))
	}

	store, err := b.Stores(loader.DocumentID(path))
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx, len(vectors[0])); err != nil {
		release(ctx, store, logger)
		return nil, err
	}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		release(ctx, store, logger)
		return nil, err
	}

	elapsed := time.Since(start)
	if b.Metrics != nil {
		b.Metrics.IndexBuildDuration.Observe(elapsed.Seconds())
		b.Metrics.ChunksIndexedTotal.Add(float64(len(chunks)))
	}
	logger.Info("index built",
		zap.Int("pages", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", len(vectors[0])),
		zap.String("embedder", emb.Name()),
		zap.Duration("elapsed", elapsed))

	return &Index{
		path:       path,
		chunks:     chunks,
		text:       joinDocuments(docs),
		embedder:   emb,
		store:      store,
		summarizer: b.Summarizer,
		logger:     logger,
	}, nil
}

// release clears a storage whose build failed so no backend state is left behind.
func release(ctx context.Context, store vectorstore.Storage, logger *zap.Logger) {
	if err := store.Clear(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("releasing storage after failed build", zap.Error(err))
	}
}

func joinDocuments(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n")
}
