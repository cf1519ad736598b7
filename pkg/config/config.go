package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Cache    CacheConfig
	Rollup   RollupConfig
	Alerts   AlertsConfig
	HTTP     HTTPConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string // empty = skip migrations on startup
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers     []string
	TopicAlerts string
}

// Enabled reports whether a broker list was configured at all.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// CacheConfig controls the read-path cache. When Enabled is false the
// read service runs in degraded mode and every query goes straight to
// the rollup store.
type CacheConfig struct {
	Enabled   bool
	BaseTTL   time.Duration
	JitterMax time.Duration
}

// RollupConfig holds the policy parameters handed to the continuous
// aggregate facility: how often each view refreshes, how far behind
// real time each refresh stops (the recency exclusion window), and the
// hypertable chunk interval guidance.
type RollupConfig struct {
	RefreshDevice1m    time.Duration
	RefreshHousehold5m time.Duration
	RefreshDevice1h    time.Duration

	EndOffsetDevice1m    time.Duration
	EndOffsetHousehold5m time.Duration
	EndOffsetDevice1h    time.Duration

	ChunkInterval time.Duration
}

type AlertsConfig struct {
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	TrailingWindow time.Duration
	RulesPath      string
	Notifier       string // "kafka" or "log"
}

type HTTPConfig struct {
	Addr string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "energy_user"),
			Password:      getEnv("DB_PASSWORD", "energy_pass"),
			DBName:        getEnv("DB_NAME", "energy_db"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     splitNonEmpty(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TopicAlerts: getEnv("KAFKA_TOPIC_ALERTS", "energy.alerts"),
		},
		Cache: CacheConfig{
			Enabled:   getEnvAsBool("CACHE_ENABLED", true),
			BaseTTL:   getEnvAsDuration("CACHE_BASE_TTL", 60*time.Second),
			JitterMax: getEnvAsDuration("CACHE_JITTER_MAX", 12*time.Second),
		},
		Rollup: RollupConfig{
			RefreshDevice1m:    getEnvAsDuration("ROLLUP_REFRESH_DEVICE_1M", 30*time.Second),
			RefreshHousehold5m: getEnvAsDuration("ROLLUP_REFRESH_HOUSEHOLD_5M", 2*time.Minute),
			RefreshDevice1h:    getEnvAsDuration("ROLLUP_REFRESH_DEVICE_1H", 10*time.Minute),

			EndOffsetDevice1m:    getEnvAsDuration("ROLLUP_END_OFFSET_DEVICE_1M", time.Minute),
			EndOffsetHousehold5m: getEnvAsDuration("ROLLUP_END_OFFSET_HOUSEHOLD_5M", 5*time.Minute),
			EndOffsetDevice1h:    getEnvAsDuration("ROLLUP_END_OFFSET_DEVICE_1H", time.Hour),

			ChunkInterval: getEnvAsDuration("ROLLUP_CHUNK_INTERVAL", 24*time.Hour),
		},
		Alerts: AlertsConfig{
			PollInterval:   getEnvAsDuration("ALERTS_POLL_INTERVAL", 10*time.Second),
			FetchTimeout:   getEnvAsDuration("ALERTS_FETCH_TIMEOUT", 5*time.Second),
			TrailingWindow: getEnvAsDuration("ALERTS_TRAILING_WINDOW", 5*time.Minute),
			RulesPath:      getEnv("ALERTS_RULES_PATH", "configs/alerts.yaml"),
			Notifier:       getEnv("ALERTS_NOTIFIER", "kafka"),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8090"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "energy-insights@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
