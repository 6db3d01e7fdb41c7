// Package config centralises configuration parsing for the enrollment service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DevJWTSecret is the local-dev signing secret. Load refuses it when AUTH_ENABLED is set.
const DevJWTSecret = "dev-secret-change-me"

// Config captures runtime configuration values for the enrollment service.
type Config struct {
	HTTPAddress     string `env:"HTTP_ADDRESS" envDefault:":8000"`
	CatalogFile     string `env:"CATALOG_FILE"` // Optional TOML seed; the embedded catalog is used when empty.
	EnforceCapacity bool   `env:"ENFORCE_CAPACITY" envDefault:"false"`

	EventsEnabled       bool          `env:"EVENTS_ENABLED" envDefault:"false"`
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envDefault:"kafka:9092" envSeparator:","`
	KafkaTopic          string        `env:"KAFKA_TOPIC" envDefault:"enrollment_events"`
	SchemaRegistryURL   string        `env:"SCHEMA_REGISTRY_URL"` // Empty means the local schema catalog supplies ids.
	OutboxBufferSize    int           `env:"OUTBOX_BUFFER_SIZE" envDefault:"1024"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE" envDefault:"25"`
	OutboxFlushInterval time.Duration `env:"OUTBOX_FLUSH_INTERVAL" envDefault:"1s"`

	AuthEnabled bool   `env:"AUTH_ENABLED" envDefault:"false"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer   string `env:"JWT_ISSUER" envDefault:"mergington.identity"`

	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","` // CIDRs allowed to set X-Forwarded-For.
	RedisAddr      string   `env:"REDIS_ADDR"`
	RedisPassword  string   `env:"REDIS_PASSWORD"`
	RedisDB        int      `env:"REDIS_DB" envDefault:"0"`

	PostgresURL     string   `env:"POSTGRES_URL"` // Empty means the consumer only logs events.
	ConsumerGroupID string   `env:"CONSUMER_GROUP_ID" envDefault:"enrollment-audit"`
	ConsumerTopics  []string `env:"CONSUMER_TOPICS" envSeparator:","`
	MetricsAddress  string   `env:"METRICS_ADDRESS" envDefault:":9195"`
}

// Load reads a .env file when present, then environment variables, applying defaults for local dev.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)
	cfg.TrustedProxies = splitAndTrim(cfg.TrustedProxies)
	cfg.ConsumerTopics = splitAndTrim(cfg.ConsumerTopics)
	if len(cfg.ConsumerTopics) == 0 {
		cfg.ConsumerTopics = []string{cfg.KafkaTopic}
	}
	if cfg.OutboxBatchSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxBufferSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_BUFFER_SIZE must be positive, got %d", cfg.OutboxBufferSize)
	}
	if cfg.AuthEnabled && (cfg.JWTSecret == DevJWTSecret || strings.TrimSpace(cfg.JWTSecret) == "") {
		return Config{}, errors.New("JWT_SECRET must be set to a non-default value when AUTH_ENABLED is true")
	}
	return cfg, nil
}

func splitAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
