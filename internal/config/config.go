package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pdfqa/internal/errs"
	"pdfqa/internal/logging"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	// MaxRetries is a pointer so that an explicit 0 disables retries.
	MaxRetries  *int   `yaml:"max_retries,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	APIKey           string `yaml:"api_key"`
	UseTLS           bool   `yaml:"use_tls"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// LLMConfig configures the chat-completion model that writes the answer.
type LLMConfig struct {
	BaseURLEnv  string   `yaml:"base_url_env"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Model       string   `yaml:"model"`
	ModelEnv    string   `yaml:"model_env"`
	// Temperature is a pointer so that an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	TopK    int `yaml:"top_k"`
	MaxTopK int `yaml:"max_top_k"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	UploadDir      string   `yaml:"upload_dir"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	CORSOrigins    []string `yaml:"cors_origins"`
	ShutdownSecs   int      `yaml:"shutdown_secs"`
	RequestTimeout int      `yaml:"request_timeout_secs"`
}

// LoaderConfig configures document loading.
type LoaderConfig struct {
	// PDFPasswordEnv names the variable holding the password of encrypted PDFs.
	PDFPasswordEnv string `yaml:"pdf_password_env"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Server      ServerConfig      `yaml:"server"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Loader      LoaderConfig      `yaml:"loader"`
	Log         logging.Config    `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, errs.Wrap(err, errs.CodeConfigRead, "reading config", errs.FieldPath(path))
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigInvalid, "parsing config", errs.FieldPath(path))
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch c.Chunker.Type {
	case "recursive":
		if c.Chunker.ChunkSize <= 0 {
			return errs.New(errs.CodeConfigInvalid, "chunker.chunk_size must be positive")
		}
		if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			return errs.Errorf(errs.CodeConfigInvalid, "chunker.chunk_overlap must be in [0, %d)", c.Chunker.ChunkSize)
		}
	case "sentence":
		if c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			return errs.Errorf(errs.CodeConfigInvalid, "chunker.overlap_sentences must be in [0, %d)", c.Chunker.SentencesPerChunk)
		}
	default:
		return errs.Errorf(errs.CodeConfigInvalid, "unknown chunker: %s", c.Chunker.Type)
	}
	switch c.Embedder.Type {
	case "openai", "tfidf":
	default:
		return errs.Errorf(errs.CodeConfigInvalid, "unknown embedder: %s", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "chromem", "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.Host == "" {
			return errs.New(errs.CodeConfigInvalid, "qdrant config missing")
		}
	default:
		return errs.Errorf(errs.CodeConfigInvalid, "unknown vector store: %s", c.VectorStore.Type)
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return errs.New(errs.CodeConfigInvalid, "llm.temperature must be in [0, 2]")
	}
	if o := c.Embedder.OpenAI; o != nil && o.MaxRetries != nil && *o.MaxRetries < 0 {
		return errs.New(errs.CodeConfigInvalid, "embedder.openai.max_retries must not be negative")
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopK > c.Retrieval.MaxTopK {
		return errs.Errorf(errs.CodeConfigInvalid, "retrieval.top_k must be in [1, %d]", c.Retrieval.MaxTopK)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errs.Wrap(err, errs.CodeConfigInvalid, "log.level")
	}
	return nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		Chunker:     ChunkerConfig{Type: "recursive"},
		VectorStore: VectorStoreConfig{Type: "chromem"},
		Summarizer:  SummarizerConfig{Type: "frequency"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://ai.gitee.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "GITEE_AI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "Qwen3-Embedding-8B"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.Concurrency == 0 {
			o.Concurrency = 4
		}
		if o.MaxRetries == nil {
			o.MaxRetries = intPtr(2)
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	// An explicit chunk_size with no overlap means overlap 0.
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
		if cfg.Chunker.ChunkOverlap == 0 {
			cfg.Chunker.ChunkOverlap = 50
		}
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Port == 0 {
			q.Port = 6334
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "pdfqa"
		}
	}

	if cfg.LLM.BaseURLEnv == "" {
		cfg.LLM.BaseURLEnv = "DEEPSEEK_BASE_URL"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "DEEPSEEK_API_KEY"
	}
	if cfg.LLM.ModelEnv == "" {
		cfg.LLM.ModelEnv = "DEEPSEEK_MODEL"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek-chat"
	}
	if cfg.LLM.Temperature == nil {
		cfg.LLM.Temperature = floatPtr(0.1)
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 5
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.ShutdownSecs == 0 {
		cfg.Server.ShutdownSecs = 10
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 180
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Loader.PDFPasswordEnv == "" {
		cfg.Loader.PDFPasswordEnv = "PDFQA_PDF_PASSWORD"
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// applyEnvOverrides lets deployment environments win over the file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("PDFQA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PDFQA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(cfg.LLM.BaseURLEnv); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(cfg.LLM.ModelEnv); v != "" {
		cfg.LLM.Model = v
	}
}

// PDFPassword returns the password for encrypted PDFs from the environment.
func (c *AppConfig) PDFPassword() string {
	return os.Getenv(c.Loader.PDFPasswordEnv)
}

// LLMAPIKey returns the chat model key from the environment.
func (c *AppConfig) LLMAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// EmbedderAPIKeyEnv names the variable used when a request carries no key.
func (c *AppConfig) EmbedderAPIKeyEnv() string {
	if c.Embedder.OpenAI != nil {
		return c.Embedder.OpenAI.APIKeyEnv
	}
	return "GITEE_AI_API_KEY"
}

func (c *AppConfig) String() string {
	return fmt.Sprintf("embedder=%s chunker=%s(%d/%d) store=%s model=%s top_k=%d",
		c.Embedder.Type, c.Chunker.Type, c.Chunker.ChunkSize, c.Chunker.ChunkOverlap,
		c.VectorStore.Type, c.LLM.Model, c.Retrieval.TopK)
}
