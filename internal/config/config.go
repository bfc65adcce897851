package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port                int              `json:"port"`
	JWTSecret           string           `json:"jwt_secret"`
	JWTTTLHours         int              `json:"jwt_ttl_hours"`
	CORSOrigins         []string         `json:"cors_origins"`
	UploadDir           string           `json:"upload_dir"`
	MaxUploadMB         int64            `json:"max_upload_mb"`
	AskRateLimitSeconds int              `json:"ask_rate_limit_seconds"`
	LogConfig           logger.LogConfig `json:"log_config"`
	Database            DatabaseConfig   `json:"database"`
	IndexStore          FileStoreConfig  `json:"index_store"`
	Embedding           EmbeddingConfig  `json:"embedding"`
	LLM                 LLMConfig        `json:"llm"`
	Retrieval           RetrievalConfig  `json:"retrieval"`
	Jobs                JobsConfig       `json:"jobs"`
	Extract             ExtractConfig    `json:"extract"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// FileStoreConfig selects where per-user index artifacts live.
type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type EmbeddingConfig struct {
	Dimension int                       `json:"dimension"`
	Providers []EmbeddingProviderConfig `json:"providers"`
	Cache     EmbedCacheConfig          `json:"cache"`
}

type EmbeddingProviderConfig struct {
	Name  string      `json:"name"`
	Model string      `json:"model"`
	Data  interface{} `json:"data"`
}

type EmbedCacheConfig struct {
	LRUSize    int  `json:"lru_size"`
	LRUTTLSecs int  `json:"lru_ttl_seconds"`
	Database   bool `json:"database"`
}

type LLMConfig struct {
	Provider       string       `json:"provider"`
	TimeoutSeconds int          `json:"timeout"`
	OpenAI         OpenAIConfig `json:"openai"`
	Gemini         GeminiConfig `json:"gemini"`
	Guard          GuardConfig  `json:"guard"`
}

type OpenAIConfig struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

type GeminiConfig struct {
	APIKey string   `json:"api_key"`
	Models []string `json:"models"`
}

type GuardConfig struct {
	Enabled            bool    `json:"enabled"`
	RequestsPerMinute  int     `json:"requests_per_minute"`
	Burst              int     `json:"burst"`
	MinRequests        uint32  `json:"min_requests"`
	FailureRatio       float64 `json:"failure_ratio"`
	OpenTimeoutSeconds int     `json:"open_timeout_seconds"`
}

type RetrievalConfig struct {
	TopK         int     `json:"top_k"`
	ChunkSize    int     `json:"chunk_size"`
	ChunkOverlap int     `json:"chunk_overlap"`
	MinScore     float32 `json:"min_score"`
	Rebuild      string  `json:"rebuild"`
}

type JobsConfig struct {
	ChunkCountReconcileSpec string `json:"chunk_count_reconcile_spec"`
	EmbedCacheCleanupSpec   string `json:"embed_cache_cleanup_spec"`
	EmbedCacheMaxAgeHours   int    `json:"embed_cache_max_age_hours"`
}

// ExtractConfig tunes text extraction. Docx files are read with unioffice
// only when a metered license key is configured.
type ExtractConfig struct {
	UniofficeLicenseKey string `json:"unioffice_license_key"`
}

const (
	RebuildReembed = "reembed"
	RebuildCopy    = "copy"
)

var defaultGeminiModels = []string{"gemini-1.5-flash", "gemini-1.5-flash-8b", "gemini-1.5-pro"}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours <= 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 16
	}
	if cfg.AskRateLimitSeconds <= 0 {
		cfg.AskRateLimitSeconds = 2
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if err := cfg.IndexStore.normalize(); err != nil {
		return err
	}
	cfg.Embedding.normalize()
	if err := cfg.LLM.normalize(); err != nil {
		return err
	}
	return cfg.Retrieval.normalize()
}

func (c *FileStoreConfig) normalize() error {
	if c.Type == "" {
		c.Type = "local"
	}
	switch c.Type {
	case "local":
		if c.Dir == "" {
			c.Dir = "faiss_indexes"
		}
	case "s3":
		if c.S3.Bucket == "" || c.S3.SecretID == "" || c.S3.SecretKey == "" {
			return fmt.Errorf("index_store.s3 bucket/secret_id/secret_key are required for s3 store")
		}
		if c.S3.Region == "" {
			c.S3.Region = "us-east-1"
		}
	default:
		return fmt.Errorf("index_store.type must be local or s3")
	}
	return nil
}

func (c *EmbeddingConfig) normalize() {
	if c.Dimension <= 0 {
		c.Dimension = 384
	}
	if len(c.Providers) == 0 {
		c.Providers = []EmbeddingProviderConfig{{Name: "hash", Model: "fnv"}}
	}
}

func (c *LLMConfig) normalize() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Provider != "openai" && c.Provider != "gemini" {
		return fmt.Errorf("llm.provider must be openai or gemini")
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4"
	}
	if c.OpenAI.Temperature == nil {
		t := float32(0.7)
		c.OpenAI.Temperature = &t
	}
	if c.OpenAI.MaxTokens <= 0 {
		c.OpenAI.MaxTokens = 500
	}
	if len(c.Gemini.Models) == 0 {
		c.Gemini.Models = append([]string(nil), defaultGeminiModels...)
	}
	return nil
}

func (c *RetrievalConfig) normalize() error {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 100
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Rebuild == "" {
		c.Rebuild = RebuildReembed
	}
	if c.Rebuild != RebuildReembed && c.Rebuild != RebuildCopy {
		return fmt.Errorf("retrieval.rebuild must be reembed or copy")
	}
	return nil
}
