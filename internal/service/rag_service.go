// Package service answers questions about documents.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfqa/internal/conversation"
	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
	"pdfqa/internal/index"
	"pdfqa/internal/logging"
)

const (
	DefaultTopK             = 3
	DefaultMaxTopK          = 5
	DefaultSummarySentences = 3
)

// IndexProvider returns a ready index for a file, building it when needed.
type IndexProvider interface {
	Get(ctx context.Context, path, apiKey string) (*index.Index, error)
	// Invalidate drops the index for path and reports whether one was held.
	Invalidate(ctx context.Context, path string) bool
}

// Answerer writes an answer from retrieved context.
type Answerer interface {
	Answer(ctx context.Context, contextText, query string) (string, error)
	Stream(ctx context.Context, contextText, query string, onChunk func(string) error) (string, error)
}

// Options tunes retrieval and summaries. Zero values take the defaults.
type Options struct {
	TopK             int
	MaxTopK          int
	SummarySentences int
	// DefaultAPIKey is used when a request carries no key.
	DefaultAPIKey string
	Logger        *zap.Logger
}

// AskRequest is a question about one file with optional chat history.
type AskRequest struct {
	FilePath string
	Query    string
	APIKey   string
	// TopK is the number of chunks to retrieve; 0 means the default.
	TopK    int
	History []conversation.Message
}

// RAGServiceImpl retrieves relevant chunks and asks the model to answer from them.
type RAGServiceImpl struct {
	indexes IndexProvider
	answers Answerer
	opts    Options
	logger  *zap.Logger
}

var _ domain.RAGService = (*RAGServiceImpl)(nil)

func NewRAGService(indexes IndexProvider, answers Answerer, opts Options) *RAGServiceImpl {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = DefaultMaxTopK
	}
	if opts.TopK > opts.MaxTopK {
		opts.TopK = opts.MaxTopK
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = DefaultSummarySentences
	}
	return &RAGServiceImpl{indexes: indexes, answers: answers, opts: opts, logger: logging.OrNop(opts.Logger).Named("service")}
}

// MaxTopK is the largest per-request top k accepted.
func (s *RAGServiceImpl) MaxTopK() int { return s.opts.MaxTopK }

func (s *RAGServiceImpl) AskDocument(ctx context.Context, filePath, query, apiKey string) (string, error) {
	answer, _, err := s.ask(ctx, AskRequest{FilePath: filePath, Query: query, APIKey: apiKey}, nil)
	return answer, err
}

func (s *RAGServiceImpl) AskDocumentStream(ctx context.Context, filePath, query, apiKey string, onChunk func(string) error) (string, error) {
	answer, _, err := s.ask(ctx, AskRequest{FilePath: filePath, Query: query, APIKey: apiKey}, onChunk)
	return answer, err
}

// AskWithOptions answers req, folding its history into the prompt.
func (s *RAGServiceImpl) AskWithOptions(ctx context.Context, req AskRequest) (string, error) {
	answer, _, err := s.ask(ctx, req, nil)
	return answer, err
}

// AskWithOptionsStream is AskWithOptions with the reply streamed to onChunk.
func (s *RAGServiceImpl) AskWithOptionsStream(ctx context.Context, req AskRequest, onChunk func(string) error) (string, error) {
	answer, _, err := s.ask(ctx, req, onChunk)
	return answer, err
}

// AskWithSources is AskWithOptions that also returns the chunks the answer was written from.
func (s *RAGServiceImpl) AskWithSources(ctx context.Context, req AskRequest) (string, []domain.SearchResult, error) {
	return s.ask(ctx, req, nil)
}

// Validate reports whether req would be accepted, without touching the index.
func (s *RAGServiceImpl) Validate(req AskRequest) error {
	return s.validate(&req)
}

// Release drops the cached index of filePath so the next question rebuilds it.
func (s *RAGServiceImpl) Release(ctx context.Context, filePath string) bool {
	released := s.indexes.Invalidate(ctx, strings.TrimSpace(filePath))
	s.logger.Info("index released", zap.String("path", filePath), zap.Bool("cached", released))
	return released
}

// Summarize returns an extractive summary of the file, indexing it if needed.
func (s *RAGServiceImpl) Summarize(ctx context.Context, filePath, apiKey string) (string, error) {
	req := AskRequest{FilePath: filePath, Query: "summary", APIKey: apiKey}
	if err := s.validate(&req); err != nil {
		return "", err
	}
	ix, err := s.indexes.Get(ctx, req.FilePath, req.APIKey)
	if err != nil {
		s.logger.Error("loading index", zap.String("path", req.FilePath), zap.Error(err))
		return "", err
	}
	summary, err := ix.Summary(s.opts.SummarySentences)
	if err != nil {
		s.logger.Error("summarizing", zap.String("path", req.FilePath), zap.Error(err))
		return "", err
	}
	return summary, nil
}

// Retrieve returns the chunks that would be used to answer req.
func (s *RAGServiceImpl) Retrieve(ctx context.Context, req AskRequest) ([]domain.SearchResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	ix, err := s.indexes.Get(ctx, req.FilePath, req.APIKey)
	if err != nil {
		return nil, err
	}
	return ix.Search(ctx, req.Query, req.TopK)
}

func (s *RAGServiceImpl) ask(ctx context.Context, req AskRequest, onChunk func(string) error) (string, []domain.SearchResult, error) {
	start := time.Now()
	logger := s.logger.With(zap.String("path", req.FilePath), zap.Int("history", len(req.History)))

	results, err := s.Retrieve(ctx, req)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		return "", nil, err
	}
	contextText := index.ContextText(results)
	query := conversation.FromMessages(req.History).BuildQuery(strings.TrimSpace(req.Query))

	var answer string
	if onChunk != nil {
		answer, err = s.answers.Stream(ctx, contextText, query, onChunk)
	} else {
		answer, err = s.answers.Answer(ctx, contextText, query)
	}
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		return answer, results, err
	}
	logger.Info("question answered",
		zap.Int("chunks", len(results)),
		zap.Bool("stream", onChunk != nil),
		zap.Duration("elapsed", time.Since(start)))
	return answer, results, nil
}

// validate fills defaults on req and rejects unusable requests.
func (s *RAGServiceImpl) validate(req *AskRequest) error {
	req.FilePath = strings.TrimSpace(req.FilePath)
	if req.FilePath == "" {
		return errs.New(errs.CodeServiceInvalidInput, "file_path is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return errs.New(errs.CodeServiceInvalidInput, "query is required")
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		req.APIKey = s.opts.DefaultAPIKey
	}
	if req.APIKey == "" {
		return errs.New(errs.CodeServiceMissingKey, "api_key is required")
	}
	switch {
	case req.TopK == 0:
		req.TopK = s.opts.TopK
	case req.TopK < 0 || req.TopK > s.opts.MaxTopK:
		return errs.New(errs.CodeServiceInvalidInput, "top_k out of range",
			errs.Field("top_k", req.TopK), errs.Field("max", s.opts.MaxTopK))
	}
	return nil
}
