// Package config provides configuration loading for embedq.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the embedq daemon.
type Config struct {
	Redis    RedisConfig    `koanf:"redis"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
	Models   ModelsConfig   `koanf:"models"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Logging  LoggingConfig  `koanf:"logging"`
	HTTP     HTTPConfig     `koanf:"http"`
}

// RedisConfig configures the task queue backend.
type RedisConfig struct {
	// URL is the Redis connection string, e.g. redis://localhost:6379/0.
	URL string `koanf:"url"`
	// Password overrides the password from the URL when set.
	Password Secret `koanf:"password"`
	// KeyPrefix namespaces all queue keys. Default: "embedq".
	KeyPrefix string `koanf:"key_prefix"`
	// MaxRetries is the per-task retry budget before a task is
	// moved to the terminal failed archive.
	MaxRetries int `koanf:"max_retries"`
}

// QdrantConfig configures the vector store backend.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
	// VectorSize is the dimensionality every namespace collection is
	// created with. Must match the embedding model output.
	VectorSize int `koanf:"vector_size"`
}

// ModelsConfig configures the embedding model provider.
type ModelsConfig struct {
	// BaseURL is the OpenAI-compatible provider base URL.
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
	// RequestTimeout bounds individual embeddings calls.
	RequestTimeout Duration `koanf:"request_timeout"`
	// BatchSize is the partition size for batch embedding.
	BatchSize int `koanf:"batch_size"`
	// BatchPause is the throttle between successive batches.
	BatchPause Duration `koanf:"batch_pause"`
}

// PipelineConfig configures the consume loop.
type PipelineConfig struct {
	// WatchTimeout is the blocking-dequeue timeout per iteration.
	WatchTimeout Duration `koanf:"watch_timeout"`
	// ErrorBackoff is the sleep applied after a loop-level failure
	// (e.g. queue unreachable) to avoid a hot failure loop.
	ErrorBackoff Duration `koanf:"error_backoff"`
}

// LoggingConfig configures the daemon logger. The serve command's
// --log-level and --log-format flags take precedence when set.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is json or console.
	Format string `koanf:"format"`
}

// HTTPConfig configures the operational HTTP server.
type HTTPConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if _, err := url.Parse(c.Redis.URL); err != nil {
		return fmt.Errorf("redis.url is invalid: %w", err)
	}
	if c.Redis.MaxRetries < 0 {
		return fmt.Errorf("redis.max_retries must be >= 0, got %d", c.Redis.MaxRetries)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant.host is required")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant.port must be 1-65535, got %d", c.Qdrant.Port)
	}
	if c.Qdrant.VectorSize <= 0 {
		return fmt.Errorf("qdrant.vector_size must be > 0, got %d", c.Qdrant.VectorSize)
	}
	if c.Models.BaseURL == "" {
		return fmt.Errorf("models.base_url is required")
	}
	if c.Models.BatchSize <= 0 {
		return fmt.Errorf("models.batch_size must be > 0, got %d", c.Models.BatchSize)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be 1-65535, got %d", c.HTTP.Port)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "embedq"
	}
	if cfg.Redis.MaxRetries == 0 {
		cfg.Redis.MaxRetries = 3
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 768
	}

	if cfg.Models.BaseURL == "" {
		cfg.Models.BaseURL = "http://localhost:1234"
	}
	if cfg.Models.RequestTimeout == 0 {
		cfg.Models.RequestTimeout = Duration(30 * time.Second)
	}
	if cfg.Models.BatchSize == 0 {
		cfg.Models.BatchSize = 10
	}
	if cfg.Models.BatchPause == 0 {
		cfg.Models.BatchPause = Duration(100 * time.Millisecond)
	}

	if cfg.Pipeline.WatchTimeout == 0 {
		cfg.Pipeline.WatchTimeout = Duration(5 * time.Second)
	}
	if cfg.Pipeline.ErrorBackoff == 0 {
		cfg.Pipeline.ErrorBackoff = Duration(5 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "localhost"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9091
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}
}
