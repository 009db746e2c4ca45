// Package config loads runtime configuration for the medtutor service from
// environment variables, following the same env-var-first pattern the
// teacher codebase settled on for its current (non-YAML) configuration path.
package config

import "time"

// Config is the root configuration value, constructed once at startup by
// Load and passed to components by value or by reference — no module-level
// singletons except the process-wide connection pool handles built from it.
type Config struct {
	HTTPAddr string
	Workdir  string

	LogLevel string
	LogPath  string

	Store      StoreConfig
	ObjectStore ObjectStoreConfig
	Vector     VectorConfig
	Embedding  EmbeddingConfig
	Orchestrator OrchestratorConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Obs        ObsConfig
	Chat       ChatConfig
	Identity   IdentityConfig
	HTTP       HTTPConfig
}

// StoreConfig selects and configures the relational persistence backend.
type StoreConfig struct {
	Backend string // "memory" or "postgres"
	DSN     string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// ObjectStoreConfig selects and configures Material byte storage.
type ObjectStoreConfig struct {
	Backend string // "memory" or "s3"
	S3      S3Config
}

// S3Config configures the S3-compatible object store backend. Field names
// mirror what internal/objectstore.NewS3Store expects.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	Prefix                string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// S3SSEConfig configures server-side encryption for the S3 backend.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

// VectorConfig selects and configures the vector store adapter.
type VectorConfig struct {
	Backend    string // "memory" or "qdrant"
	DSN        string
	Collection string
	Dimensions int
	Metric     string // "cosine", "dot", "euclid"
}

// EmbeddingConfig configures the HTTP embedding endpoint used by both
// ingestion and retrieval so they stay on the same vector space.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	Dimension int
	Timeout   time.Duration
}

// OrchestratorConfig configures the subprocess-based LLM orchestrator.
type OrchestratorConfig struct {
	Binary              string
	Args                []string
	ModelAllowList      []string
	IdleTimeout         time.Duration
	MaxConcurrent       int
	MaxConcurrentPerUser int
	CancelGrace         time.Duration
}

// KafkaConfig configures the ingestion job queue.
type KafkaConfig struct {
	Brokers       string
	IngestTopic   string
	ConsumerGroup string
}

// RedisConfig configures the optional cross-process duplicate/rate-limit
// staging layer. When Addr is empty, callers fall back to in-process guards.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ObsConfig configures OpenTelemetry tracing/metrics and the ClickHouse
// analytics sink.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	ClickHouseDSN  string
}

// ChatConfig configures defaults for the chat/session broker.
type ChatConfig struct {
	HistoryWindow   int
	BackpressureWait time.Duration
}

// IdentityConfig configures the optional OIDC ID-token verifier. Empty
// Issuer disables the adapter; callers must then install their own
// owner_id-populating middleware.
type IdentityConfig struct {
	Issuer   string
	ClientID string
}

// HTTPConfig configures the JSON/websocket API surface.
type HTTPConfig struct {
	// MaxUploadBytes bounds a POST /materials body; a larger request gets 413.
	MaxUploadBytes int64
}
