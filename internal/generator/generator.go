// Package generator writes answers from retrieved context with a chat model.
package generator

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"pdfqa/internal/errs"
)

const answerTemplate = `You are a document question-answering assistant. Answer the user's question using the document content and the conversation history.

Answer strictly from the document content below and do not add any information that is not in it:

{{.context}}

Conversation history and latest question:
{{.query}}

Answer:`

// DefaultTemperature keeps answers close to the document text.
const DefaultTemperature = 0.1

// Generator fills the answer prompt and calls the chat model.
type Generator struct {
	model       llms.Model
	prompt      prompts.PromptTemplate
	temperature float64
	logger      *zap.Logger
}

type Option func(*Generator)

func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func New(model llms.Model, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		prompt:      prompts.NewPromptTemplate(answerTemplate, []string{"context", "query"}),
		temperature: DefaultTemperature,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Prompt renders the full prompt sent to the model.
func (g *Generator) Prompt(contextText, query string) (string, error) {
	text, err := g.prompt.Format(map[string]any{"context": contextText, "query": query})
	if err != nil {
		return "", errs.Wrap(err, errs.CodeLLMPrompt, "rendering prompt")
	}
	return text, nil
}

// Answer returns the model's complete reply.
func (g *Generator) Answer(ctx context.Context, contextText, query string) (string, error) {
	return g.generate(ctx, contextText, query, nil)
}

// Stream forwards reply fragments to onChunk as they arrive and returns the
// full reply. An error from onChunk stops generation and is returned as is.
func (g *Generator) Stream(ctx context.Context, contextText, query string, onChunk func(string) error) (string, error) {
	return g.generate(ctx, contextText, query, onChunk)
}

func (g *Generator) generate(ctx context.Context, contextText, query string, onChunk func(string) error) (string, error) {
	prompt, err := g.Prompt(contextText, query)
	if err != nil {
		return "", err
	}

	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	var (
		streamed strings.Builder
		cbErr    error
	)
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed.Write(chunk)
			if err := onChunk(string(chunk)); err != nil {
				cbErr = err
				return err
			}
			return nil
		}))
	}

	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := g.model.GenerateContent(ctx, messages, opts...)
	if cbErr != nil {
		return streamed.String(), cbErr
	}
	if err != nil {
		g.logger.Error("llm call failed", zap.Error(err))
		return streamed.String(), errs.Wrap(err, errs.CodeLLMUpstream, "generating answer")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return streamed.String(), errs.New(errs.CodeLLMEmptyResponse, "model returned no choices")
	}

	answer := resp.Choices[0].Content
	if answer == "" && streamed.Len() > 0 {
		answer = streamed.String()
	}
	return answer, nil
}
