package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	RedisURL string

	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	MigrationsPath string

	ProcessorDefaultURL  string
	ProcessorFallbackURL string

	QueueCapacity int
	WorkerCount   int

	HealthCacheTTL    time.Duration
	ProbeTimeout      time.Duration
	SubmitTimeout     time.Duration
	RetryBackoff      time.Duration
	IdempotencyTTL    time.Duration
	PaymentCacheTTL   time.Duration
	FailureStreakSize int
}

func Load() *Config {
	cfg := &Config{}

	cfg.Port = getEnvOrDefault("PORT", ":8080")
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", "localhost:6379")

	cfg.DB.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DB.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.DB.Password = getEnvOrDefault("DB_PASSWORD", "postgres")
	cfg.DB.Name = getEnvOrDefault("DB_NAME", "payments")
	cfg.DB.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file://migrations")

	cfg.ProcessorDefaultURL = getEnvOrDefault("URL_PROCESSOR_DEFAULT", "http://localhost:8001")
	cfg.ProcessorFallbackURL = getEnvOrDefault("URL_PROCESSOR_FALLBACK", "http://localhost:8002")

	cfg.QueueCapacity = getEnvAsInt("QUEUE_CAPACITY", 1000)
	cfg.WorkerCount = getEnvAsInt("WORKER_COUNT", 4)

	cfg.HealthCacheTTL = getEnvAsDuration("HEALTH_CACHE_TTL", 2*time.Minute)
	cfg.ProbeTimeout = getEnvAsDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second)
	cfg.SubmitTimeout = getEnvAsDuration("SUBMIT_TIMEOUT", 10*time.Second)
	cfg.RetryBackoff = getEnvAsDuration("RETRY_BACKOFF", 2*time.Second)
	cfg.IdempotencyTTL = getEnvAsDuration("IDEMPOTENCY_TTL", 30*time.Minute)
	cfg.PaymentCacheTTL = getEnvAsDuration("PAYMENT_CACHE_TTL", 30*time.Minute)
	cfg.FailureStreakSize = getEnvAsInt("FAILURE_STREAK_SIZE", 3)

	return cfg
}

func (c *Config) DBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) DBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
