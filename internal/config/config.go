package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Tito         TitoConfig
	Sync         SyncConfig
	Queue        QueueConfig
	Kafka        KafkaConfig
	HTTP         HTTPConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	URL                   string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret                   string
	AccessTokenTTLMinutes       int
	PasswordResetTTLMinutes     int
	EmailVerificationTTLMinutes int
	BcryptCost                  int
	BootstrapAdminEmail         string
	BootstrapAdminPassword      string
}

// NotificationConfig holds stub notification settings.
type NotificationConfig struct {
	EmailFrom string
}

// TitoConfig holds remote ticketing API credentials.
type TitoConfig struct {
	APIBase       string
	APIKey        string
	Account       string
	Event         string
	WebhookSecret string
	MaxAttempts   int
	RetryDelay    time.Duration
	Timeout       time.Duration
}

// SyncConfig tunes the bulk sync run.
type SyncConfig struct {
	Interval   time.Duration
	RunOnStart bool
	FlagTTL    time.Duration
	PageSize   int
	Throttle   time.Duration
	LockTTL    time.Duration
	LockWait   time.Duration
}

// QueueConfig selects and tunes the work queue.
type QueueConfig struct {
	Driver          string
	SyncQueue       string
	WebhookQueue    string
	SyncWorkers     int
	WebhookWorkers  int
	MaxAttempts     int
	PollTimeout     time.Duration
	WorkerInProcess bool
}

// KafkaConfig holds broker settings for the kafka queue driver.
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// HTTPConfig tunes request throttling.
type HTTPConfig struct {
	ThrottleMax    int
	ThrottleWindow time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sync"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			URL:                   getEnv("APP_URL", "http://localhost:8080"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ticket-sync"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:                   getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:       getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			PasswordResetTTLMinutes:     getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 60),
			EmailVerificationTTLMinutes: getEnvAsInt("AUTH_EMAIL_VERIFICATION_TTL_MINUTES", 60),
			BcryptCost:                  getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:         os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword:      os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Notification: NotificationConfig{
			EmailFrom: getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
		},
		Tito: TitoConfig{
			APIBase:       os.Getenv("TITO_API_BASE"),
			APIKey:        os.Getenv("TITO_API_KEY"),
			Account:       os.Getenv("TITO_ACCOUNT"),
			Event:         os.Getenv("TITO_EVENT"),
			WebhookSecret: os.Getenv("TITO_WEBHOOK_SECRET"),
			MaxAttempts:   getEnvAsInt("TITO_MAX_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("TITO_RETRY_DELAY", time.Second),
			Timeout:       getEnvAsDuration("TITO_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			Interval:   getEnvAsDuration("SYNC_INTERVAL", 6*time.Hour),
			RunOnStart: getEnvAsBool("SYNC_RUN_ON_START", false),
			FlagTTL:    getEnvAsDuration("SYNC_FLAG_TTL", 45*time.Minute),
			PageSize:   getEnvAsInt("SYNC_PAGE_SIZE", 5),
			Throttle:   getEnvAsDuration("SYNC_THROTTLE", time.Second),
			LockTTL:    getEnvAsDuration("SYNC_TICKET_LOCK_TTL", 30*time.Second),
			LockWait:   getEnvAsDuration("SYNC_TICKET_LOCK_WAIT", 10*time.Second),
		},
		Queue: QueueConfig{
			Driver:          getEnv("QUEUE_DRIVER", "redis"),
			SyncQueue:       getEnv("QUEUE_SYNC_NAME", "sync-tickets"),
			WebhookQueue:    getEnv("QUEUE_WEBHOOK_NAME", "webhooks"),
			SyncWorkers:     getEnvAsInt("QUEUE_SYNC_WORKERS", 1),
			WebhookWorkers:  getEnvAsInt("QUEUE_WEBHOOK_WORKERS", 2),
			MaxAttempts:     getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			PollTimeout:     getEnvAsDuration("QUEUE_POLL_TIMEOUT", 5*time.Second),
			WorkerInProcess: getEnvAsBool("WORKER_IN_PROCESS", false),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "ticket-sync-workers"),
		},
		HTTP: HTTPConfig{
			ThrottleMax:    getEnvAsInt("THROTTLE_MAX", 6),
			ThrottleWindow: getEnvAsDuration("THROTTLE_WINDOW", time.Minute),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
