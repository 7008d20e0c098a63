// Package config provides configuration loading and structs for the Tanya server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Vector     VectorConfig     `yaml:"vector"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Web        WebConfig        `yaml:"web"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes"`
}

// StorageConfig holds paths for the ingestion database and the vector index snapshot.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // openai, onnx or mock
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size"`
	ModelPath         string  `yaml:"model_path"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// CompletionConfig configures the chat completion client.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"` // openai or mock
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	IndexType string `yaml:"index_type"` // memory or faiss
}

// ChunkingConfig holds sentence chunking settings. MaxTokens counts whitespace-delimited words,
// Overlap counts sentences carried over into the next chunk.
type ChunkingConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	Overlap   int `yaml:"overlap"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	TopK            int   `yaml:"top_k"`
	MaxTopK         int   `yaml:"max_top_k"`
	PersistOnIngest *bool `yaml:"persist_on_ingest"`
}

// PersistOnIngestOrDefault returns whether to snapshot the index after each ingestion; defaults to true.
func (r *RetrievalConfig) PersistOnIngestOrDefault() bool {
	if r.PersistOnIngest != nil {
		return *r.PersistOnIngest
	}
	return true
}

// WebConfig holds page fetch and crawl settings.
type WebConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
	MaxPageChars      int     `yaml:"max_page_chars"`
	MaxCrawlChars     int     `yaml:"max_crawl_chars"`
	MaxPages          int     `yaml:"max_pages"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays settings taken from the environment. FRONTEND_ORIGIN adds an allowed
// CORS origin; TANYA_DEBUG=true|1 turns on debug logging.
func ApplyEnv(cfg *Config) {
	if origin := strings.TrimSpace(os.Getenv("FRONTEND_ORIGIN")); origin != "" {
		found := false
		for _, o := range cfg.Server.CORSOrigins {
			if o == origin {
				found = true
				break
			}
		}
		if !found {
			cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, origin)
		}
	}
	switch strings.ToLower(os.Getenv("TANYA_DEBUG")) {
	case "1", "true", "yes":
		cfg.Debug = true
	}
}

// APIKey returns the value of the environment variable named by envName.
func APIKey(envName string) string {
	return strings.TrimSpace(os.Getenv(envName))
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
