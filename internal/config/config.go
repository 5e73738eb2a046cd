package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Storage backends for uploaded files.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// LLM providers.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects where uploaded originals are kept.
type StorageConfig struct {
	Backend   string
	UploadDir string
}

// IngestConfig controls parsing, splitting and embedding of uploads.
type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	Workers        int
	EmbedBatchSize int
	// Overwrite replaces the whole index on every upload; false appends.
	Overwrite bool
}

// IndexConfig locates the persisted vector index and sets retrieval depth.
type IndexConfig struct {
	Path string
	TopK int
}

// LLMConfig selects the hosted model used for answers and embeddings.
type LLMConfig struct {
	Provider       string
	Model          string
	EmbeddingModel string
	BaseURL        string
	GeminiAPIKey   string
	OpenAIAPIKey   string
}

// CacheConfig configures the optional Redis answer cache. Empty Addr disables it.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether an answer cache should be created.
func (c CacheConfig) Enabled() bool { return c.Addr != "" }

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	Timezone    string
	LogLevel    string
	MaxUploadMB int
	CORSOrigins string
	Database    DatabaseConfig
	Storage     StorageConfig
	MinIO       MinIOConfig
	Ingest      IngestConfig
	Index       IndexConfig
	LLM         LLMConfig
	Cache       CacheConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}

	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"),
		Timezone:    getEnv("APP_TIMEZONE", "UTC"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 50),
		CORSOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
			UploadDir: getEnv("UPLOAD_DIR", "./uploaded_pdfs"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Ingest: IngestConfig{
			ChunkSize:      getEnvInt("CHUNK_SIZE", 300),
			ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 50),
			Workers:        getEnvInt("INGEST_WORKERS", workers),
			EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 32),
			Overwrite:      getEnvBool("INDEX_OVERWRITE", true),
		},
		Index: IndexConfig{
			Path: getEnv("INDEX_PATH", "./vector_index"),
			TopK: getEnvInt("RETRIEVAL_TOP_K", 15),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderGoogleAI)),
			Model:          getEnv("LLM_MODEL", "gemini-1.5-flash"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			BaseURL:        getEnv("LLM_BASE_URL", ""),
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		},
		Cache: CacheConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("CACHE_TTL_SEC", time.Hour),
		},
	}
}

// Validate reports settings that would make the pipeline misbehave.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Ingest.ChunkOverlap))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.Ingest.Workers))
	}
	if c.Ingest.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.Ingest.EmbedBatchSize))
	}
	if c.Index.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.Index.TopK))
	}
	if c.Index.Path == "" {
		errs = append(errs, errors.New("INDEX_PATH is required"))
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageMinIO:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	switch c.LLM.Provider {
	case ProviderGoogleAI, ProviderOpenAI, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	return errors.Join(errs...)
}

// Location resolves the configured time zone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration reads a whole number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil && i >= 0 {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
