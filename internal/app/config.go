package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/keyresult-tracker/internal/data/db"
	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	"github.com/yungbote/keyresult-tracker/internal/jobs/worker"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/envutil"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
	"github.com/yungbote/keyresult-tracker/internal/temporalx"
)

type HTTPConfig struct {
	Port        string   `yaml:"port"`
	APIPrefix   string   `yaml:"api_prefix"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// QueueConfig selects the job backend. StaleRunning is how long a claimed job
// may go unacked before the db and redis backends hand it out again.
type QueueConfig struct {
	Backend      string              `yaml:"backend"`
	MaxAttempts  int                 `yaml:"max_attempts"`
	StaleRunning time.Duration       `yaml:"stale_running"`
	Redis        queue.RedisConfig   `yaml:"redis"`
	Emit         queue.EmitterConfig `yaml:"emit"`
}

type WorkerConfig struct {
	Enabled       bool `yaml:"enabled"`
	worker.Config `yaml:",inline"`
}

type WebhookConfig struct {
	ConflictRetries int           `yaml:"conflict_retries"`
	ConflictBackoff time.Duration `yaml:"conflict_backoff"`
	BatchCacheSize  int           `yaml:"batch_cache_size"`
	BatchCacheTTL   time.Duration `yaml:"batch_cache_ttl"`
}

type Config struct {
	Env     string `yaml:"env"`
	LogMode string `yaml:"log_mode"`

	HTTP     HTTPConfig               `yaml:"http"`
	DB       db.Config                `yaml:"db"`
	Queue    QueueConfig              `yaml:"queue"`
	Worker   WorkerConfig             `yaml:"worker"`
	Webhook  WebhookConfig            `yaml:"webhook"`
	Metrics  bool                     `yaml:"metrics_enabled"`
	Otel     observability.OtelConfig `yaml:"otel"`
	Temporal temporalx.Config         `yaml:"-"`

	// CycleDays is the planning cycle used for expected-progress status.
	CycleDays int `yaml:"cycle_days"`
}

func DefaultConfig() Config {
	return Config{
		Env:     "development",
		LogMode: "development",
		HTTP: HTTPConfig{
			Port:      "8042",
			APIPrefix: "/api/v1",
		},
		DB: db.Config{
			Driver:     db.DriverPostgres,
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "keyresult_tracker",
			SQLitePath: "data/keyresult-tracker.db",
		},
		Queue: QueueConfig{
			Backend:      queue.BackendMemory,
			MaxAttempts:  queue.DefaultMaxAttempts,
			StaleRunning: 10 * time.Minute,
			Redis:        queue.RedisConfig{Addr: "localhost:6379", Key: "krt:jobs"},
			Emit:         queue.EmitterConfig{Buffer: 1024, Workers: 2, Timeout: 5 * time.Second},
		},
		Worker: WorkerConfig{
			Enabled: true,
			Config:  worker.Config{Concurrency: 2, Poll: time.Second, Backoff: queue.DefaultBackoff},
		},
		Webhook: WebhookConfig{
			ConflictRetries: 3,
			ConflictBackoff: 10 * time.Millisecond,
			BatchCacheSize:  256,
			BatchCacheTTL:   10 * time.Minute,
		},
		Otel: observability.OtelConfig{
			ServiceName: "keyresult-tracker",
			SampleRatio: 1,
		},
		CycleDays: 90,
	}
}

// LoadConfig layers defaults, the optional CONFIG_FILE yaml and the
// environment, in that order.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
		if log != nil {
			log.Info("config file loaded", "path", path)
		}
	}
	applyEnv(&cfg)
	cfg.Temporal = temporalx.LoadConfig()
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)

	cfg.HTTP.Port = envutil.String("PORT", cfg.HTTP.Port)
	cfg.HTTP.APIPrefix = envutil.String("API_PREFIX", cfg.HTTP.APIPrefix)
	cfg.HTTP.CORSOrigins = envutil.List("CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = envutil.String("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Password = envutil.String("POSTGRES_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)

	cfg.Queue.Backend = envutil.String("QUEUE_BACKEND", cfg.Queue.Backend)
	cfg.Queue.MaxAttempts = envutil.Int("QUEUE_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)
	cfg.Queue.StaleRunning = envutil.Seconds("QUEUE_STALE_RUNNING_SECONDS", cfg.Queue.StaleRunning)
	cfg.Queue.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Queue.Redis.Addr)
	cfg.Queue.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Queue.Redis.Password)
	cfg.Queue.Redis.DB = envutil.Int("REDIS_DB", cfg.Queue.Redis.DB)
	cfg.Queue.Redis.Key = envutil.String("REDIS_QUEUE_KEY", cfg.Queue.Redis.Key)
	cfg.Queue.Emit.Buffer = envutil.Int("EMIT_BUFFER", cfg.Queue.Emit.Buffer)
	cfg.Queue.Emit.Workers = envutil.Int("EMIT_WORKERS", cfg.Queue.Emit.Workers)
	cfg.Queue.Emit.Timeout = envutil.Millis("EMIT_TIMEOUT_MS", cfg.Queue.Emit.Timeout)

	cfg.Worker.Enabled = envutil.Bool("WORKER_ENABLED", cfg.Worker.Enabled)
	cfg.Worker.Concurrency = envutil.Int("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.Poll = envutil.Millis("WORKER_POLL_MS", cfg.Worker.Poll)

	cfg.Webhook.ConflictRetries = envutil.Int("WEBHOOK_CONFLICT_RETRIES", cfg.Webhook.ConflictRetries)
	cfg.Webhook.ConflictBackoff = envutil.Millis("WEBHOOK_CONFLICT_BACKOFF_MS", cfg.Webhook.ConflictBackoff)
	cfg.Webhook.BatchCacheSize = envutil.Int("WEBHOOK_BATCH_CACHE_SIZE", cfg.Webhook.BatchCacheSize)
	cfg.Webhook.BatchCacheTTL = envutil.Seconds("WEBHOOK_BATCH_CACHE_TTL_SECONDS", cfg.Webhook.BatchCacheTTL)

	cfg.Metrics = envutil.Bool("METRICS_ENABLED", cfg.Metrics)
	cfg.CycleDays = envutil.Int("PROGRESS_CYCLE_DAYS", cfg.CycleDays)

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName)
	cfg.Otel.Environment = envutil.String("OTEL_ENVIRONMENT", cfg.Env)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	if h := observability.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); h != nil {
		cfg.Otel.Headers = h
	}
}

func (c Config) validate() error {
	switch strings.ToLower(c.Queue.Backend) {
	case queue.BackendMemory, queue.BackendRedis, queue.BackendDB, queue.BackendTemporal:
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", c.Queue.Backend)
	}
	if c.Queue.Backend == queue.BackendTemporal && !c.Temporal.Enabled() {
		return fmt.Errorf("QUEUE_BACKEND=temporal requires TEMPORAL_ADDRESS")
	}
	if c.CycleDays <= 0 {
		return fmt.Errorf("PROGRESS_CYCLE_DAYS must be positive")
	}
	return nil
}

func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.HTTP.Port, ":")
}

func (c Config) CycleLength() time.Duration {
	return time.Duration(c.CycleDays) * 24 * time.Hour
}
