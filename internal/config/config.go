// Package config loads memoryd configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/memoryd/pkg/storage"
)

// Config holds the complete memoryd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    storage.Config   `koanf:"storage"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Events     EventsConfig     `koanf:"events"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Workflow   WorkflowConfig   `koanf:"workflow"`
}

// ServerConfig holds the HTTP API server configuration.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9091".
	Addr string `koanf:"addr"`

	// DefaultScope is assumed for requests that carry no X-Memory-Scope
	// header. Empty means the header is required.
	DefaultScope string `koanf:"default_scope"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// IndexConfig selects and configures the search index.
type IndexConfig struct {
	// Provider is the index backend: "none" (keyword fallback only),
	// "chromem" (embedded, default), "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem index.
type ChromemConfig struct {
	// Path is the persistence directory; empty keeps the index in memory.
	Path string `koanf:"path"`

	// Collection names the chromem collection.
	Collection string `koanf:"collection"`

	// Compress enables gzip compression of persisted segments.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures a remote qdrant index.
type QdrantConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// APIKey authenticates against qdrant cloud deployments.
	APIKey Secret `koanf:"api_key"`

	// Collection names the qdrant collection.
	Collection string `koanf:"collection"`

	// UseTLS enables transport security.
	UseTLS bool `koanf:"use_tls"`

	// Timeout bounds individual qdrant calls.
	Timeout Duration `koanf:"timeout"`
}

// EmbeddingsConfig configures the embedding provider backing the index.
type EmbeddingsConfig struct {
	// Provider is one of "hash" (deterministic, no model), "fastembed"
	// (local ONNX), "openai", "tei" (text-embeddings-inference server).
	Provider string `koanf:"provider"`

	// BaseURL locates remote providers (openai-compatible or TEI).
	BaseURL string `koanf:"base_url"`

	// Model names the embedding model.
	Model string `koanf:"model"`

	// APIKey authenticates remote providers.
	APIKey Secret `koanf:"api_key"`

	// Dimensions is the embedding vector size.
	Dimensions int `koanf:"dimensions"`

	// RequestsPerSecond rate limits remote providers; 0 disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// CacheDir holds downloaded fastembed models.
	CacheDir string `koanf:"cache_dir"`
}

// EventsConfig configures lifecycle event publishing over NATS.
type EventsConfig struct {
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server address.
	URL string `koanf:"url"`

	// SubjectPrefix prefixes published subjects ("memory" by default,
	// yielding memory.stored / memory.deleted).
	SubjectPrefix string `koanf:"subject_prefix"`
}

// SecretsConfig configures secret scrubbing of stored text.
type SecretsConfig struct {
	// ScrubContent scrubs detected secrets from textual payloads before
	// they are persisted.
	ScrubContent bool `koanf:"scrub_content"`

	// AllowlistPath points to a TOML allowlist of rules to skip.
	AllowlistPath string `koanf:"allowlist_path"`
}

// LoggingConfig carries the log settings mapped onto the logging package
// at startup.
type LoggingConfig struct {
	// Level is trace, debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`

	// OTEL forwards logs to the OpenTelemetry collector.
	OTEL bool `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`

	// ServiceName identifies memoryd in traces and metrics.
	ServiceName string `koanf:"service_name"`

	// Endpoint is the OTLP collector address; empty disables export.
	Endpoint string `koanf:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `koanf:"insecure"`

	// SampleRatio is the trace sampling ratio in [0, 1].
	SampleRatio float64 `koanf:"sample_ratio"`
}

// WorkflowConfig configures the Temporal-backed workflow engine.
type WorkflowConfig struct {
	Enabled bool `koanf:"enabled"`

	// HostPort is the Temporal frontend address.
	HostPort string `koanf:"host_port"`

	// Namespace is the Temporal namespace.
	Namespace string `koanf:"namespace"`

	// TaskQueue names the worker task queue.
	TaskQueue string `koanf:"task_queue"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":9091"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	cfg.Storage.ApplyDefaults()

	if cfg.Index.Provider == "" {
		cfg.Index.Provider = "chromem"
	}
	if cfg.Index.Chromem.Collection == "" {
		cfg.Index.Chromem.Collection = "memoryd"
	}
	if cfg.Index.Qdrant.Host == "" {
		cfg.Index.Qdrant.Host = "localhost"
	}
	if cfg.Index.Qdrant.Port == 0 {
		cfg.Index.Qdrant.Port = 6334
	}
	if cfg.Index.Qdrant.Collection == "" {
		cfg.Index.Qdrant.Collection = "memoryd"
	}
	if cfg.Index.Qdrant.Timeout == 0 {
		cfg.Index.Qdrant.Timeout = Duration(30 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "hash"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = 384
	}

	if cfg.Events.URL == "" {
		cfg.Events.URL = "nats://localhost:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "memory"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "memoryd"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1.0
	}

	if cfg.Workflow.HostPort == "" {
		cfg.Workflow.HostPort = "localhost:7233"
	}
	if cfg.Workflow.Namespace == "" {
		cfg.Workflow.Namespace = "default"
	}
	if cfg.Workflow.TaskQueue == "" {
		cfg.Workflow.TaskQueue = "memoryd-workflows"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	switch c.Index.Provider {
	case "none", "chromem":
	case "qdrant":
		if c.Index.Qdrant.Host == "" {
			return errors.New("index: qdrant host is required")
		}
		if c.Index.Qdrant.Port < 1 || c.Index.Qdrant.Port > 65535 {
			return fmt.Errorf("index: invalid qdrant port %d", c.Index.Qdrant.Port)
		}
	default:
		return fmt.Errorf("index: unsupported provider %q (supported: none, chromem, qdrant)", c.Index.Provider)
	}

	switch c.Embeddings.Provider {
	case "hash", "fastembed":
	case "openai", "tei":
		if c.Embeddings.BaseURL == "" {
			return fmt.Errorf("embeddings: %s provider requires base_url", c.Embeddings.Provider)
		}
	default:
		return fmt.Errorf("embeddings: unsupported provider %q (supported: hash, fastembed, openai, tei)", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return errors.New("embeddings: dimensions must be positive")
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return errors.New("embeddings: requests_per_second cannot be negative")
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("events: url required when enabled")
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("telemetry: service name required when enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio %f outside [0, 1]", c.Telemetry.SampleRatio)
	}

	if c.Workflow.Enabled {
		if c.Workflow.HostPort == "" {
			return errors.New("workflow: host_port required when enabled")
		}
		if c.Workflow.TaskQueue == "" {
			return errors.New("workflow: task_queue required when enabled")
		}
	}

	return nil
}
