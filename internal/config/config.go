// Package config reads service settings from the environment and pipeline
// settings from JSON files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/cutout/internal/segment"
	"github.com/dunamismax/cutout/internal/storage"
	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
	Segmenter SegmenterConfig
	Pipeline  PipelineFileConfig
}

type APIConfig struct {
	Addr              string
	PresignTTL        time.Duration
	ReadHeaderTimeout time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	MaxRetry      int
	TaskTimeout   time.Duration
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveJobs  int
	LocalOutputDir string
	MetricsAddr    string
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
	MaxObjectBytes int64
	OutputPrefix   string
}

type DatabaseConfig struct {
	DSN string
}

type RateLimitConfig struct {
	Enabled      bool
	Capacity     int
	Window       time.Duration
	UserIDHeader string
}

type WebhookConfig struct {
	Secret         string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRatio  float64
}

type SegmenterConfig struct {
	Kind              string
	ModelPath         string
	SharedLibraryPath string
	RemoteURL         string
	RemoteSecret      string
	RemoteTimeout     time.Duration
	RemoteAttempts    int
}

// PipelineFileConfig points at the JSON file holding the default pipeline
// config for jobs that don't carry their own.
type PipelineFileConfig struct {
	File string
}

func Load() Config {
	return Config{
		API: APIConfig{
			Addr:              env("CUTOUT_API_ADDR", ":8080"),
			PresignTTL:        envDuration("CUTOUT_PRESIGN_TTL", 15*time.Minute),
			ReadHeaderTimeout: envDuration("CUTOUT_API_READ_HEADER_TIMEOUT", 5*time.Second),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("CUTOUT_QUEUE", "images"),
			MaxRetry:      envInt("CUTOUT_QUEUE_MAX_RETRY", 5),
			TaskTimeout:   envDuration("CUTOUT_TASK_TIMEOUT", 3*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:    max(1, envInt("CUTOUT_WORKER_CONCURRENCY", 10)),
			MaxActiveJobs:  max(1, envInt("CUTOUT_WORKER_MAX_ACTIVE_JOBS", 4)),
			LocalOutputDir: env("CUTOUT_LOCAL_OUTPUT_DIR", "./tmp/outputs"),
			MetricsAddr:    env("CUTOUT_WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:       env("MINIO_ENDPOINT", "127.0.0.1:9000"),
			AccessKey:      env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:      env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:         env("MINIO_BUCKET", "cutout"),
			Region:         env("MINIO_REGION", ""),
			UseSSL:         envBool("MINIO_USE_SSL", false),
			MaxObjectBytes: int64(envInt("CUTOUT_MAX_OBJECT_BYTES", 50<<20)),
			OutputPrefix:   env("CUTOUT_OUTPUT_PREFIX", "outputs"),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:      envBool("CUTOUT_RATE_LIMIT_ENABLED", true),
			Capacity:     max(1, envInt("CUTOUT_RATE_LIMIT_CAPACITY", 30)),
			Window:       envDuration("CUTOUT_RATE_LIMIT_WINDOW", time.Minute),
			UserIDHeader: env("CUTOUT_RATE_LIMIT_USER_HEADER", "X-User-ID"),
		},
		Webhook: WebhookConfig{
			Secret:         env("CUTOUT_WEBHOOK_SECRET", ""),
			Timeout:        envDuration("CUTOUT_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:    max(1, envInt("CUTOUT_WEBHOOK_MAX_ATTEMPTS", 4)),
			InitialBackoff: envDuration("CUTOUT_WEBHOOK_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     envDuration("CUTOUT_WEBHOOK_MAX_BACKOFF", 5*time.Second),
		},
		Tracing: TracingConfig{
			Exporter:     env("CUTOUT_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  envFloat("CUTOUT_TRACE_SAMPLE_RATIO", 1),
		},
		Segmenter: SegmenterConfig{
			Kind:              env("CUTOUT_SEGMENTER", "auto"),
			ModelPath:         env("CUTOUT_SEGMENTER_MODEL", ""),
			SharedLibraryPath: env("ONNXRUNTIME_SHARED_LIBRARY_PATH", ""),
			RemoteURL:         env("CUTOUT_SEGMENTER_URL", ""),
			RemoteSecret:      env("CUTOUT_SEGMENTER_SECRET", ""),
			RemoteTimeout:     envDuration("CUTOUT_SEGMENTER_TIMEOUT", time.Minute),
			RemoteAttempts:    max(1, envInt("CUTOUT_SEGMENTER_ATTEMPTS", 3)),
		},
		Pipeline: PipelineFileConfig{
			File: env("CUTOUT_PIPELINE_FILE", ""),
		},
	}
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

func env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// envDuration accepts Go duration strings ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (s StorageConfig) ClientConfig() storage.Config {
	return storage.Config{
		Endpoint:       s.Endpoint,
		Access:         s.AccessKey,
		Secret:         s.SecretKey,
		Bucket:         s.Bucket,
		UseSSL:         s.UseSSL,
		Region:         s.Region,
		MaxObjectBytes: s.MaxObjectBytes,
	}
}

func (s SegmenterConfig) Options() segment.Options {
	return segment.Options{
		ModelPath:         s.ModelPath,
		SharedLibraryPath: s.SharedLibraryPath,
		RemoteURL:         s.RemoteURL,
		RemoteSecret:      s.RemoteSecret,
		RemoteTimeout:     s.RemoteTimeout,
		RemoteAttempts:    s.RemoteAttempts,
	}
}
