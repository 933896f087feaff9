// Package openai embeds text through any OpenAI-compatible /embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"golang.org/x/sync/errgroup"

	"pdfqa/internal/embedding"
	"pdfqa/internal/errs"
)

const (
	DefaultBaseURL   = "https://ai.gitee.com/v1"
	DefaultModel     = "Qwen3-Embedding-8B"
	DefaultAPIKeyEnv = "GITEE_AI_API_KEY"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Dimensions  int
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
	MaxRetries  int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client is an embeddings client implementing embedding.Embedder.
type Client struct {
	client openaisdk.Client
	cfg    Config
}

// NewClient creates a client using apiKey, or the key in cfg.APIKeyEnv when
// apiKey is blank.
func NewClient(cfg Config, apiKey string) (*Client, error) {
	cfg = cfg.withDefaults()
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	}
	if key == "" {
		return nil, errs.New(errs.CodeEmbeddingUnauthorized, "missing embedding api key",
			errs.Field("env", cfg.APIKeyEnv))
	}
	client := openaisdk.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	)
	return &Client{client: client, cfg: cfg}, nil
}

// NewFactory returns an embedding.Factory producing clients for cfg.
func NewFactory(cfg Config) embedding.Factory {
	return func(apiKey string) (embedding.Embedder, error) {
		return NewClient(cfg, apiKey)
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.cfg.Model }

// EmbedDocuments embeds texts in batches, running up to Concurrency batches at once.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errs.New(errs.CodeEmbeddingInvalidInput, "no texts to embed")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errs.New(errs.CodeEmbeddingInvalidInput, "empty text", errs.Field("index", i))
		}
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		Model:          openaisdk.EmbeddingModel(c.cfg.Model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.cfg.Dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(c.cfg.Dimensions))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(batch) {
		return nil, errs.New(errs.CodeEmbeddingBadResponse, "embedding count mismatch",
			errs.Field("want", len(batch)), errs.Field("got", len(resp.Data)))
	}

	vecs := make([][]float32, len(batch))
	for pos, d := range resp.Data {
		i := int(d.Index)
		// Some compatible servers leave index at zero for every item.
		if i < 0 || i >= len(batch) || vecs[i] != nil {
			i = pos
		}
		if vecs[i] != nil || len(d.Embedding) == 0 {
			return nil, errs.New(errs.CodeEmbeddingBadResponse, "malformed embedding item", errs.Field("index", pos))
		}
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		vecs[i] = v
	}
	return vecs, nil
}

func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errs.Wrap(err, errs.CodeEmbeddingUnauthorized, "embedding request rejected",
				errs.Field("status", apiErr.StatusCode))
		}
		return errs.Wrap(err, errs.CodeEmbeddingUpstream, "embedding request failed",
			errs.Field("status", apiErr.StatusCode))
	}
	return errs.Wrap(err, errs.CodeEmbeddingUpstream, "embedding request failed")
}
