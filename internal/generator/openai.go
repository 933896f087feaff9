package generator

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"pdfqa/internal/errs"
)

// ModelConfig selects an OpenAI-compatible chat model.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewOpenAIModel connects to any OpenAI-compatible chat completions endpoint.
func NewOpenAIModel(cfg ModelConfig) (llms.Model, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errs.New(errs.CodeLLMUnauthorized, "missing chat model api key")
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeLLMUpstream, "creating chat model")
	}
	return model, nil
}
