package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExtractorConfig configures parallel text extraction.
type ExtractorConfig struct {
	// Workers bounds the extraction pool. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// Policy is "degrade" (failed documents contribute their error message)
	// or "strict" (failed documents are skipped, the batch fails only if none succeed).
	Policy string `yaml:"policy"`
}

// ChunkerConfig configures how extracted text is split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GeminiConfig configures the Google Gemini API client.
type GeminiConfig struct {
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                 `yaml:"type"`
	TimeoutSecs int                    `yaml:"timeout_secs"`
	BatchSize   int                    `yaml:"batch_size"`
	Hashing     *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI      *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Ollama      *OllamaConfig          `yaml:"ollama,omitempty"`
	Gemini      *GeminiConfig          `yaml:"gemini,omitempty"`
}

// GeneratorConfig selects and configures the answer generation service.
type GeneratorConfig struct {
	Type        string        `yaml:"type"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
}

// VectorStoreConfig selects and configures the index backend.
type VectorStoreConfig struct {
	Type string `yaml:"type"`
	// Path is the root directory for on-disk backends.
	Path   string        `yaml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrieverConfig configures similarity search.
type RetrieverConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// AssemblerConfig bounds the context handed to the generator.
type AssemblerConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	// KeepTurns is how many recent turns survive verbatim when history is compressed.
	KeepTurns int `yaml:"keep_turns"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	UploadsDir string `yaml:"uploads_dir"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Assembler   AssemblerConfig   `yaml:"assembler"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Server      ServerConfig      `yaml:"server"`
}

// EmbedderTimeout returns the per-call embedding deadline.
func (c *AppConfig) EmbedderTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSecs) * time.Second
}

// GeneratorTimeout returns the per-call generation deadline.
func (c *AppConfig) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSecs) * time.Second
}

// QdrantTimeout returns the Qdrant request deadline, or zero when Qdrant is not configured.
func (c *AppConfig) QdrantTimeout() time.Duration {
	if c.VectorStore.Qdrant == nil {
		return 0
	}
	return time.Duration(c.VectorStore.Qdrant.TimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// DOCQA_* environment variables override file values in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			if err := applyEnv(cfg); err != nil {
				return nil, err
			}
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
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
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
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

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Extractor:   ExtractorConfig{Policy: "degrade"},
		Chunker:     ChunkerConfig{Size: 2000, Overlap: 200},
		Embedder:    EmbedderConfig{Type: "hashing"},
		Generator:   GeneratorConfig{Type: "gemini"},
		VectorStore: VectorStoreConfig{Type: "chromem", Path: "faiss_index"},
		Retriever:   RetrieverConfig{TopK: 3},
		Assembler:   AssemblerConfig{MaxTokens: 24000, KeepTurns: 4},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Server:      ServerConfig{Listen: ":5000", UploadsDir: filepath.Join("uploads", "pdfs")},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Extractor.Policy == "" {
		cfg.Extractor.Policy = "degrade"
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 2000
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 200
		}
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 1024
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	case "ollama":
		cfg.Embedder.Ollama = ollamaDefaults(cfg.Embedder.Ollama, "nomic-embed-text")
	case "gemini":
		cfg.Embedder.Gemini = geminiDefaults(cfg.Embedder.Gemini, "text-embedding-004")
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "gemini"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	switch cfg.Generator.Type {
	case "gemini":
		cfg.Generator.Gemini = geminiDefaults(cfg.Generator.Gemini, "gemini-1.5-flash")
		if cfg.Generator.Gemini.Temperature == 0 {
			cfg.Generator.Gemini.Temperature = 0.3
		}
	case "ollama":
		cfg.Generator.Ollama = ollamaDefaults(cfg.Generator.Ollama, "llama3.2")
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "faiss_index"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "docqa"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 3
	}
	if cfg.Assembler.MaxTokens == 0 {
		cfg.Assembler.MaxTokens = 24000
	}
	if cfg.Assembler.KeepTurns == 0 {
		cfg.Assembler.KeepTurns = 4
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":5000"
	}
	if cfg.Server.UploadsDir == "" {
		cfg.Server.UploadsDir = filepath.Join("uploads", "pdfs")
	}
}

func ollamaDefaults(c *OllamaConfig, model string) *OllamaConfig {
	if c == nil {
		c = &OllamaConfig{}
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

func geminiDefaults(c *GeminiConfig, model string) *GeminiConfig {
	if c == nil {
		c = &GeminiConfig{}
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "GOOGLE_GEMINI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}
