package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables, optionally overlaid
// by a local .env file. Values not read from the environment fall back to
// sane defaults applied after parsing, mirroring the teacher's env-var-first
// loader: read raw values with no defaults, then backfill defaults once.
func Load() (Config, error) {
	// Overload so a local .env deterministically controls dev behavior
	// unless the real environment explicitly overrides it.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	cfg.Workdir = strings.TrimSpace(os.Getenv("WORKDIR"))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))

	cfg.Store.Backend = strings.TrimSpace(os.Getenv("STORE_BACKEND"))
	cfg.Store.DSN = firstNonEmpty(os.Getenv("STORE_DSN"), os.Getenv("DATABASE_URL"))
	cfg.Store.MaxConns = int32(envInt("STORE_MAX_CONNS", 0))
	cfg.Store.MinConns = int32(envInt("STORE_MIN_CONNS", 0))
	cfg.Store.MaxConnLifetime = envDuration("STORE_MAX_CONN_LIFETIME", 0)
	cfg.Store.MaxConnIdleTime = envDuration("STORE_MAX_CONN_IDLE_TIME", 0)
	cfg.Store.HealthCheckPeriod = envDuration("STORE_HEALTH_CHECK_PERIOD", 0)

	cfg.ObjectStore.Backend = strings.TrimSpace(os.Getenv("OBJECTSTORE_BACKEND"))
	cfg.ObjectStore.S3.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	cfg.ObjectStore.S3.Region = strings.TrimSpace(os.Getenv("S3_REGION"))
	cfg.ObjectStore.S3.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	cfg.ObjectStore.S3.Prefix = strings.TrimSpace(os.Getenv("S3_PREFIX"))
	cfg.ObjectStore.S3.AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.ObjectStore.S3.SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))
	cfg.ObjectStore.S3.UsePathStyle = envBool("S3_USE_PATH_STYLE", false)
	cfg.ObjectStore.S3.TLSInsecureSkipVerify = envBool("S3_TLS_INSECURE", false)
	cfg.ObjectStore.S3.SSE.Mode = strings.TrimSpace(os.Getenv("S3_SSE_MODE"))
	cfg.ObjectStore.S3.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("S3_SSE_KMS_KEY_ID"))

	cfg.Vector.Backend = strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	cfg.Vector.DSN = strings.TrimSpace(os.Getenv("VECTOR_DSN"))
	cfg.Vector.Collection = strings.TrimSpace(os.Getenv("VECTOR_COLLECTION"))
	cfg.Vector.Dimensions = envInt("VECTOR_DIMENSIONS", 0)
	cfg.Vector.Metric = strings.TrimSpace(os.Getenv("VECTOR_METRIC"))

	cfg.Embedding.BaseURL = strings.TrimSpace(os.Getenv("EMBED_BASE_URL"))
	cfg.Embedding.Path = strings.TrimSpace(os.Getenv("EMBED_PATH"))
	cfg.Embedding.Model = strings.TrimSpace(os.Getenv("EMBED_MODEL"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.APIHeader = strings.TrimSpace(os.Getenv("EMBED_API_HEADER"))
	cfg.Embedding.Dimension = envInt("EMBED_DIMENSION", 0)
	cfg.Embedding.Timeout = envDuration("EMBED_TIMEOUT_SECONDS", 0)

	cfg.Orchestrator.Binary = strings.TrimSpace(os.Getenv("LLM_CLI_BINARY"))
	cfg.Orchestrator.Args = parseCommaSeparatedList(os.Getenv("LLM_CLI_ARGS"))
	cfg.Orchestrator.ModelAllowList = parseCommaSeparatedList(os.Getenv("LLM_MODEL_ALLOWLIST"))
	cfg.Orchestrator.IdleTimeout = envDuration("LLM_IDLE_TIMEOUT_SECONDS", 0)
	cfg.Orchestrator.MaxConcurrent = envInt("LLM_MAX_CONCURRENT", 0)
	cfg.Orchestrator.MaxConcurrentPerUser = envInt("LLM_MAX_CONCURRENT_PER_USER", 0)
	cfg.Orchestrator.CancelGrace = envDuration("LLM_CANCEL_GRACE_SECONDS", 0)

	cfg.Kafka.Brokers = firstNonEmpty(os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BOOTSTRAP_SERVERS"))
	cfg.Kafka.IngestTopic = strings.TrimSpace(os.Getenv("KAFKA_INGEST_TOPIC"))
	cfg.Kafka.ConsumerGroup = strings.TrimSpace(os.Getenv("KAFKA_CONSUMER_GROUP"))

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Obs.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Obs.ClickHouseDSN = strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN"))

	cfg.Chat.HistoryWindow = envInt("CHAT_HISTORY_WINDOW", 0)
	cfg.Chat.BackpressureWait = envDuration("CHAT_BACKPRESSURE_SECONDS", 0)

	cfg.Identity.Issuer = strings.TrimSpace(os.Getenv("OIDC_ISSUER"))
	cfg.Identity.ClientID = strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID"))

	cfg.HTTP.MaxUploadBytes = envInt64("HTTP_MAX_UPLOAD_BYTES", 0)

	applyDefaults(&cfg)

	if cfg.Workdir == "" {
		cfg.Workdir = "."
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8089"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Store.Backend == "" {
		if cfg.Store.DSN != "" {
			cfg.Store.Backend = "postgres"
		} else {
			cfg.Store.Backend = "memory"
		}
	}
	if cfg.Store.MaxConns <= 0 {
		cfg.Store.MaxConns = 20
	}
	if cfg.Store.MinConns <= 0 {
		cfg.Store.MinConns = 0
	}
	if cfg.Store.MaxConnLifetime <= 0 {
		cfg.Store.MaxConnLifetime = time.Hour
	}
	if cfg.Store.MaxConnIdleTime <= 0 {
		cfg.Store.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.Store.HealthCheckPeriod <= 0 {
		cfg.Store.HealthCheckPeriod = 30 * time.Second
	}

	if cfg.ObjectStore.Backend == "" {
		if cfg.ObjectStore.S3.Bucket != "" {
			cfg.ObjectStore.Backend = "s3"
		} else {
			cfg.ObjectStore.Backend = "memory"
		}
	}
	if cfg.ObjectStore.S3.Region == "" {
		cfg.ObjectStore.S3.Region = "us-east-1"
	}

	if cfg.Vector.Backend == "" {
		if cfg.Vector.DSN != "" {
			cfg.Vector.Backend = "qdrant"
		} else {
			cfg.Vector.Backend = "memory"
		}
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "medtutor_chunks"
	}
	if cfg.Vector.Dimensions <= 0 {
		cfg.Vector.Dimensions = 1536
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Path == "" {
		cfg.Embedding.Path = "/v1/embeddings"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = cfg.Vector.Dimensions
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}

	if cfg.Orchestrator.Binary == "" {
		cfg.Orchestrator.Binary = "codex"
	}
	if len(cfg.Orchestrator.ModelAllowList) == 0 {
		cfg.Orchestrator.ModelAllowList = []string{"default"}
	}
	if cfg.Orchestrator.IdleTimeout <= 0 {
		cfg.Orchestrator.IdleTimeout = 35 * time.Second
	}
	if cfg.Orchestrator.MaxConcurrent <= 0 {
		cfg.Orchestrator.MaxConcurrent = 5
	}
	if cfg.Orchestrator.MaxConcurrentPerUser <= 0 {
		cfg.Orchestrator.MaxConcurrentPerUser = 2
	}
	if cfg.Orchestrator.CancelGrace <= 0 {
		cfg.Orchestrator.CancelGrace = 3 * time.Second
	}

	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "localhost:9092"
	}
	if cfg.Kafka.IngestTopic == "" {
		cfg.Kafka.IngestTopic = "ingestion.jobs"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "medtutor-ingestworker"
	}

	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "medtutor"
	}
	if cfg.Obs.Environment == "" {
		cfg.Obs.Environment = "dev"
	}

	if cfg.Chat.HistoryWindow <= 0 {
		cfg.Chat.HistoryWindow = 5
	}
	if cfg.Chat.BackpressureWait <= 0 {
		cfg.Chat.BackpressureWait = 2 * time.Second
	}

	if cfg.HTTP.MaxUploadBytes <= 0 {
		cfg.HTTP.MaxUploadBytes = 50 * 1024 * 1024
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func envDuration(key string, defSeconds int) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		if defSeconds <= 0 {
			return 0
		}
		return time.Duration(defSeconds) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(defSeconds) * time.Second
	}
	return time.Duration(n) * time.Second
}

func parseCommaSeparatedList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateModel checks a requested model name against the configured
// allow-list, returning an error the orchestrator must surface before spawn.
func (c OrchestratorConfig) ValidateModel(model string) error {
	if model == "" {
		return errors.New("model must not be empty")
	}
	for _, m := range c.ModelAllowList {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not in the configured allow-list", model)
}
