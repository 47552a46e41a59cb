// Package config loads server configuration from the environment so main
// stays lean. Every variable is prefixed DUFFEL_.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr     string
	LogLevel string

	JWT      JWTConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// HubQueueSize bounds each subscriber's event queue.
	HubQueueSize int
	// JournalBuffer sizes the async journal worker; 0 journals synchronously.
	JournalBuffer int

	// OpenAccess admits every actor to every list. Development only.
	OpenAccess bool
	// Fingerprints enables device fingerprints in join logs.
	Fingerprints bool

	ShutdownTimeout time.Duration
}

// JWTConfig configures token minting and verification.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// PostgresConfig selects the durable store. An empty URL keeps everything
// in memory.
type PostgresConfig struct {
	URL string
}

// RedisConfig configures the shared ACL store. An empty URL falls back to
// the in-process ACL.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the change export. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:     envStr("DUFFEL_ADDR", ":8080"),
		LogLevel: envStr("DUFFEL_LOG_LEVEL", "info"),
		JWT: JWTConfig{
			// Development default; override in production.
			Secret: envStr("DUFFEL_JWT_SECRET", "dev-secret-change-me"),
			Issuer: envStr("DUFFEL_JWT_ISSUER", "duffel"),
			TTL:    envDur("DUFFEL_JWT_TTL", 24*time.Hour),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("DUFFEL_POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("DUFFEL_REDIS_URL"),
			PoolSize:     envInt("DUFFEL_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("DUFFEL_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDur("DUFFEL_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("DUFFEL_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("DUFFEL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("DUFFEL_KAFKA_BROKERS"),
			Topic:   envStr("DUFFEL_KAFKA_TOPIC", "duffel.changes"),
		},
		HubQueueSize:    envInt("DUFFEL_HUB_QUEUE_SIZE", 64),
		JournalBuffer:   envInt("DUFFEL_JOURNAL_BUFFER", 256),
		OpenAccess:      envBool("DUFFEL_OPEN_ACCESS", false),
		Fingerprints:    envBool("DUFFEL_DEVICE_FINGERPRINTS", true),
		ShutdownTimeout: envDur("DUFFEL_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
