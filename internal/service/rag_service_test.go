package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/chunker"
	"pdfqa/internal/conversation"
	"pdfqa/internal/embedding"
	"pdfqa/internal/embedding/tfidf"
	"pdfqa/internal/errs"
	"pdfqa/internal/generator"
	"pdfqa/internal/generator/generatortest"
	"pdfqa/internal/index"
	"pdfqa/internal/loader"
	"pdfqa/internal/loader/pdftest"
	"pdfqa/internal/summarizer"
	"pdfqa/internal/vectorstore/memory"
)

const handbook = `Vacation policy. Employees receive twenty vacation days per year.

Expense policy. Meals during travel are reimbursed up to fifty euros per day.

Security policy. Laptops must use full disk encryption at all times.`

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handbook.txt")
	require.NoError(t, os.WriteFile(path, []byte(handbook), 0o644))
	return path
}

func newService(t *testing.T, model *generatortest.Model, opts Options) *RAGServiceImpl {
	t.Helper()
	return newServiceWith(t, model, opts, tfidf.NewFactory())
}

func newServiceWith(t *testing.T, model *generatortest.Model, opts Options, embedders embedding.Factory) *RAGServiceImpl {
	t.Helper()
	builder := &index.Builder{
		Loader:     loader.Auto{},
		Chunker:    chunker.NewRecursiveChunker(80, 0),
		Embedders:  embedders,
		Stores:     memory.NewFactory(),
		Summarizer: summarizer.NewFrequencySummarizer(),
	}
	cache := index.NewCache(builder, nil, nil)
	return NewRAGService(cache, generator.New(model), opts)
}

func TestAskDocumentUsesRetrievedContext(t *testing.T) {
	model := generatortest.Reply("Twenty days.")
	svc := newService(t, model, Options{TopK: 1})

	got, err := svc.AskDocument(context.Background(), writeDoc(t), "How many vacation days?", "key")
	require.NoError(t, err)
	assert.Equal(t, "Twenty days.", got)

	prompt := model.LastPrompt()
	assert.Contains(t, prompt, "twenty vacation days")
	assert.NotContains(t, prompt, "disk encryption")
	assert.Contains(t, prompt, "How many vacation days?")
}

func TestAskDocumentStream(t *testing.T) {
	model := &generatortest.Model{Chunks: []string{"Fifty ", "euros."}}
	svc := newService(t, model, Options{})

	var parts []string
	full, err := svc.AskDocumentStream(context.Background(), writeDoc(t), "meal reimbursement?", "key", func(s string) error {
		parts = append(parts, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Fifty ", "euros."}, parts)
	assert.Equal(t, "Fifty euros.", full)
}

func TestAskWithOptionsFoldsHistory(t *testing.T) {
	model := generatortest.Reply("Yes.")
	svc := newService(t, model, Options{})

	_, err := svc.AskWithOptions(context.Background(), AskRequest{
		FilePath: writeDoc(t),
		Query:    "Is encryption required?",
		APIKey:   "key",
		TopK:     5,
		History: []conversation.Message{
			{Role: conversation.RoleUser, Content: "Tell me about laptops."},
			{Role: conversation.RoleAssistant, Content: "They are encrypted."},
		},
	})
	require.NoError(t, err)

	prompt := model.LastPrompt()
	assert.Contains(t, prompt, "Previous conversation:\nUser: Tell me about laptops.\nAI: They are encrypted.\n")
	assert.Contains(t, prompt, "answer the latest question:\nIs encryption required?")
	// All three paragraphs fit in five results.
	assert.Contains(t, prompt, "Vacation policy")
	assert.Contains(t, prompt, "Security policy")
}

func TestRetrievalUsesLatestQuestion(t *testing.T) {
	model := generatortest.Reply("Yes.")
	svc := newService(t, model, Options{TopK: 1})

	_, sources, err := svc.AskWithSources(context.Background(), AskRequest{
		FilePath: writeDoc(t),
		Query:    "Is disk encryption required?",
		APIKey:   "key",
		History: []conversation.Message{
			{Role: conversation.RoleUser, Content: "How many vacation days per year? Vacation days matter."},
			{Role: conversation.RoleAssistant, Content: "Twenty vacation days per year."},
		},
	})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Contains(t, sources[0].Chunk.Text, "Security policy")
	assert.Contains(t, model.LastPrompt(), "Twenty vacation days per year.")
}

func TestValidation(t *testing.T) {
	svc := newService(t, generatortest.Reply("x"), Options{})
	ctx := context.Background()
	path := writeDoc(t)

	tests := []struct {
		name string
		req  AskRequest
		code errs.Code
	}{
		{"no path", AskRequest{Query: "q", APIKey: "k"}, errs.CodeServiceInvalidInput},
		{"no query", AskRequest{FilePath: path, Query: "  ", APIKey: "k"}, errs.CodeServiceInvalidInput},
		{"no key", AskRequest{FilePath: path, Query: "q"}, errs.CodeServiceMissingKey},
		{"top k too big", AskRequest{FilePath: path, Query: "q", APIKey: "k", TopK: 6}, errs.CodeServiceInvalidInput},
		{"negative top k", AskRequest{FilePath: path, Query: "q", APIKey: "k", TopK: -1}, errs.CodeServiceInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AskWithOptions(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, errs.CodeOf(err))
		})
	}
}

func TestDefaultAPIKey(t *testing.T) {
	svc := newService(t, generatortest.Reply("ok"), Options{DefaultAPIKey: "from-env"})
	got, err := svc.AskDocument(context.Background(), writeDoc(t), "vacation?", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	svc := newService(t, generatortest.Reply("x"), Options{})
	_, err := svc.AskDocument(ctx, filepath.Join(t.TempDir(), "missing.pdf"), "q", "k")
	assert.True(t, errs.IsNotFound(err))

	svc = newService(t, &generatortest.Model{Err: errors.New("boom")}, Options{})
	_, err = svc.AskDocument(ctx, writeDoc(t), "vacation?", "k")
	assert.True(t, errs.IsUpstream(err))
}

func TestSummarize(t *testing.T) {
	svc := newService(t, generatortest.Reply("x"), Options{SummarySentences: 2})
	summary, err := svc.Summarize(context.Background(), writeDoc(t), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(summary, "."))
}

func TestRetrieveClampsToDocument(t *testing.T) {
	svc := newService(t, generatortest.Reply("x"), Options{})
	res, err := svc.Retrieve(context.Background(), AskRequest{FilePath: writeDoc(t), Query: "policy", APIKey: "k", TopK: 5})
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, 5, svc.MaxTopK())
}

// countingEmbedder counts query embeddings made through it.
type countingEmbedder struct {
	embedding.Embedder
	queries *atomic.Int32
}

func (e countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.queries.Add(1)
	return e.Embedder.EmbedQuery(ctx, text)
}

func countingFactory(queries *atomic.Int32) embedding.Factory {
	return func(string) (embedding.Embedder, error) {
		return countingEmbedder{Embedder: tfidf.NewEmbedder(), queries: queries}, nil
	}
}

func TestAskWithSourcesRetrievesOnce(t *testing.T) {
	var queries atomic.Int32
	model := generatortest.Reply("Fifty euros.")
	svc := newServiceWith(t, model, Options{TopK: 1}, countingFactory(&queries))

	answer, sources, err := svc.AskWithSources(context.Background(), AskRequest{
		FilePath: writeDoc(t),
		Query:    "How much are travel meals reimbursed?",
		APIKey:   "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "Fifty euros.", answer)
	assert.Equal(t, int32(1), queries.Load())

	require.Len(t, sources, 1)
	assert.Contains(t, sources[0].Chunk.Text, "Expense policy")
	assert.Contains(t, model.LastPrompt(), sources[0].Chunk.Text)
}

func TestAskPDF(t *testing.T) {
	path := pdftest.Write(t, "policy.pdf",
		"Vacation policy grants twenty days per year.",
		"",
		"Security policy requires disk encryption.")
	model := generatortest.Reply("Twenty days.")
	svc := newService(t, model, Options{TopK: 1})

	answer, sources, err := svc.AskWithSources(context.Background(), AskRequest{
		FilePath: path,
		Query:    "How many vacation days?",
		APIKey:   "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "Twenty days.", answer)
	require.Len(t, sources, 1)
	assert.Equal(t, 1, sources[0].Chunk.Page)
	assert.Contains(t, model.LastPrompt(), "twenty days per year")

	res, err := svc.Retrieve(context.Background(), AskRequest{FilePath: path, Query: "disk encryption", APIKey: "k"})
	require.NoError(t, err)
	require.Len(t, res, 2, "blank page produces no chunk")
	assert.Equal(t, 3, res[0].Chunk.Page)
}

func TestReleaseRebuildsIndex(t *testing.T) {
	var queries atomic.Int32
	builds := 0
	factory := countingFactory(&queries)
	svc := newServiceWith(t, generatortest.Reply("x"), Options{}, func(key string) (embedding.Embedder, error) {
		builds++
		return factory(key)
	})
	ctx := context.Background()
	path := writeDoc(t)

	_, err := svc.AskDocument(ctx, path, "vacation?", "k")
	require.NoError(t, err)
	_, err = svc.AskDocument(ctx, path, "vacation?", "k")
	require.NoError(t, err)
	assert.Equal(t, 1, builds)

	assert.True(t, svc.Release(ctx, path))
	assert.False(t, svc.Release(ctx, path))

	_, err = svc.AskDocument(ctx, path, "vacation?", "k")
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}

func TestValidateWithoutIndexing(t *testing.T) {
	builds := 0
	svc := newServiceWith(t, generatortest.Reply("x"), Options{}, func(string) (embedding.Embedder, error) {
		builds++
		return tfidf.NewEmbedder(), nil
	})

	err := svc.Validate(AskRequest{FilePath: "doc.pdf", Query: "q"})
	assert.Equal(t, errs.CodeServiceMissingKey, errs.CodeOf(err))
	assert.NoError(t, svc.Validate(AskRequest{FilePath: "doc.pdf", Query: "q", APIKey: "k"}))
	assert.Zero(t, builds)

	svc = newService(t, generatortest.Reply("x"), Options{DefaultAPIKey: "env"})
	assert.NoError(t, svc.Validate(AskRequest{FilePath: "doc.pdf", Query: "q"}))
}
