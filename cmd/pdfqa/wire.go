package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdfqa/internal/chunker"
	"pdfqa/internal/config"
	"pdfqa/internal/domain"
	"pdfqa/internal/embedding"
	"pdfqa/internal/embedding/openai"
	"pdfqa/internal/embedding/tfidf"
	"pdfqa/internal/errs"
	"pdfqa/internal/generator"
	"pdfqa/internal/index"
	"pdfqa/internal/loader"
	"pdfqa/internal/logging"
	"pdfqa/internal/metrics"
	"pdfqa/internal/service"
	"pdfqa/internal/summarizer"
	"pdfqa/internal/vectorstore"
	"pdfqa/internal/vectorstore/chromem"
	"pdfqa/internal/vectorstore/memory"
	"pdfqa/internal/vectorstore/qdrant"
)

// localKey stands in for an API key when the embedder runs locally.
const localKey = "local"

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	cache   *index.Cache
	svc     *service.RAGServiceImpl
	apiKey  string
	closers []func() error
}

func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigInvalid, "building logger")
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.Default()}

	a.apiKey, _ = cmd.Flags().GetString("api-key")
	if a.apiKey == "" {
		a.apiKey = os.Getenv(cfg.EmbedderAPIKeyEnv())
	}
	if a.apiKey == "" && cfg.Embedder.Type == "tfidf" {
		a.apiKey = localKey
	}

	embedders, err := newEmbedderFactory(cfg)
	if err != nil {
		return nil, err
	}
	stores, err := a.newStoreFactory()
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	sum, err := newSummarizer(cfg.Summarizer)
	if err != nil {
		return nil, err
	}

	model, err := generator.NewOpenAIModel(generator.ModelConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLMAPIKey(),
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeConfigInvalid, "chat model (set %s)", cfg.LLM.APIKeyEnv)
	}
	gen := generator.New(model,
		generator.WithTemperature(*cfg.LLM.Temperature),
		generator.WithLogger(logger))

	builder := &index.Builder{
		Loader:     loader.Auto{PDFPassword: cfg.PDFPassword()},
		Chunker:    ch,
		Embedders:  embedders,
		Stores:     stores,
		Summarizer: sum,
		Logger:     logger,
		Metrics:    a.metrics,
	}
	a.cache = index.NewCache(builder, logger, a.metrics)
	a.svc = service.NewRAGService(a.cache, gen, service.Options{
		TopK:             cfg.Retrieval.TopK,
		MaxTopK:          cfg.Retrieval.MaxTopK,
		SummarySentences: cfg.Summarizer.MaxSentences,
		DefaultAPIKey:    a.apiKey,
		Logger:           logger,
	})
	logger.Debug("configured", zap.Stringer("config", cfg))
	return a, nil
}

// Close releases cached indexes and backend connections.
func (a *app) Close(ctx context.Context) {
	a.cache.Purge(ctx)
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("closing backend", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func newEmbedderFactory(cfg *config.AppConfig) (embedding.Factory, error) {
	switch cfg.Embedder.Type {
	case "tfidf":
		return tfidf.NewFactory(), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			return nil, errs.New(errs.CodeConfigInvalid, "openai embedder config missing")
		}
		return openai.NewFactory(openai.Config{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			Dimensions:  o.Dimensions,
			Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
			BatchSize:   o.BatchSize,
			Concurrency: o.Concurrency,
			MaxRetries:  *o.MaxRetries,
		}), nil
	default:
		return nil, errs.Errorf(errs.CodeConfigInvalid, "unknown embedder: %s", cfg.Embedder.Type)
	}
}

func (a *app) newStoreFactory() (vectorstore.Factory, error) {
	vs := a.cfg.VectorStore
	switch vs.Type {
	case "chromem":
		return chromem.NewFactory(), nil
	case "memory":
		return memory.NewFactory(), nil
	case "qdrant":
		if vs.Qdrant == nil {
			return nil, errs.New(errs.CodeConfigInvalid, "qdrant config missing")
		}
		client, err := qdrant.Connect(qdrant.Config{
			Host:   vs.Qdrant.Host,
			Port:   vs.Qdrant.Port,
			APIKey: vs.Qdrant.APIKey,
			UseTLS: vs.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return qdrant.NewFactory(client, vs.Qdrant.CollectionPrefix), nil
	default:
		return nil, errs.Errorf(errs.CodeConfigInvalid, "unknown vector store: %s", vs.Type)
	}
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "recursive":
		return chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, errs.Errorf(errs.CodeConfigInvalid, "unknown chunker: %s", cfg.Type)
	}
}

func newSummarizer(cfg config.SummarizerConfig) (domain.Summarizer, error) {
	switch strings.ToLower(cfg.Type) {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, errs.Errorf(errs.CodeConfigInvalid, "unknown summarizer: %s", cfg.Type)
	}
}
