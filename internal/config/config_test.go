package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Type)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "https://ai.gitee.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "Qwen3-Embedding-8B", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "GITEE_AI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 30, cfg.Embedder.OpenAI.TimeoutSecs)
	assert.Equal(t, "recursive", cfg.Chunker.Type)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, "chromem", cfg.VectorStore.Type)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Equal(t, 0.1, *cfg.LLM.Temperature)
	require.NotNil(t, cfg.Embedder.OpenAI.MaxRetries)
	assert.Equal(t, 2, *cfg.Embedder.OpenAI.MaxRetries)
	assert.Equal(t, "DEEPSEEK_API_KEY", cfg.LLM.APIKeyEnv)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
embedder:
  type: tfidf
chunker:
  chunk_size: 300
vector_store:
  type: memory
retrieval:
  top_k: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Nil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, 300, cfg.Chunker.ChunkSize)
	assert.Equal(t, 0, cfg.Chunker.ChunkOverlap, "explicit chunk size keeps overlap as written")
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"overlap too large": "chunker:\n  chunk_size: 100\n  chunk_overlap: 100\n",
		"unknown store":     "vector_store:\n  type: faiss\n",
		"unknown embedder":  "embedder:\n  type: bert\n",
		"top k too large":   "retrieval:\n  top_k: 9\n",
		"qdrant no host":    "vector_store:\n  type: qdrant\n  qdrant:\n    port: 1\n",
		"bad log level":     "log:\n  level: shouting\n",
		"hot temperature":   "llm:\n  temperature: 3\n",
		"negative retries":  "embedder:\n  openai:\n    max_retries: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "embedder: [unclosed"))
	require.Error(t, err)
	assert.Equal(t, errs.CodeConfigInvalid, errs.CodeOf(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PDFQA_ADDR", "127.0.0.1:9999")
	t.Setenv("DEEPSEEK_BASE_URL", "https://llm.example.com/v1")
	t.Setenv("DEEPSEEK_MODEL", "ep-test")
	t.Setenv("DEEPSEEK_API_KEY", "sk-llm")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "https://llm.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "ep-test", cfg.LLM.Model)
	assert.Equal(t, "sk-llm", cfg.LLMAPIKey())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 4
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Retrieval.TopK)
	assert.Equal(t, cfg.Chunker, loaded.Chunker)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	path := writeConfig(t, `
embedder:
  type: openai
  openai:
    max_retries: 0
llm:
  temperature: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.LLM.Temperature)
	assert.Zero(t, *cfg.LLM.Temperature)
	require.NotNil(t, cfg.Embedder.OpenAI.MaxRetries)
	assert.Zero(t, *cfg.Embedder.OpenAI.MaxRetries)
}

func TestPDFPasswordFromEnv(t *testing.T) {
	path := writeConfig(t, `
loader:
  pdf_password_env: HANDBOOK_PDF_PASSWORD
`)
	t.Setenv("HANDBOOK_PDF_PASSWORD", "s3cret")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.PDFPassword())

	cfg, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "PDFQA_PDF_PASSWORD", cfg.Loader.PDFPasswordEnv)
}
