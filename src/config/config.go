// Package config provides configuration management for creek.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendKafka    = "kafka"
)

// Config holds the application configuration.
type Config struct {
	// Addr is the listen address of the HTTP broker.
	Addr string
	// URL is where clients reach the HTTP broker.
	URL string

	// Backend selects where shard logs live: memory, postgres, redis or kafka.
	Backend       string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisPrefix namespaces every Redis key.
	RedisPrefix  string
	KafkaBrokers []string

	SubscriptionTTL time.Duration
	LeaseTTL        time.Duration
	// RenewOnActivity keeps subscriptions alive on reads and commits.
	RenewOnActivity bool
	// ReadLimit is the default per-shard batch size.
	ReadLimit int
	// SessionTimeout closes gateway sessions that stop polling.
	SessionTimeout time.Duration

	// Dispatcher settings.
	PollInterval time.Duration
	IdleTimeout  time.Duration
	AutoCommit   bool
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Addr:            ":8420",
		URL:             "http://localhost:8420",
		Backend:         BackendMemory,
		RedisPrefix:     "creek:",
		SubscriptionTTL: 30 * time.Second,
		LeaseTTL:        10 * time.Second,
		ReadLimit:       100,
		SessionTimeout:  5 * time.Minute,
		PollInterval:    20 * time.Millisecond,
		IdleTimeout:     5 * time.Minute,
		AutoCommit:      true,
	}
}

// LoadFromEnv loads configuration from CREEK_* environment variables on top
// of the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	var err error

	cfg.Addr = stringEnv("CREEK_ADDR", cfg.Addr)
	cfg.URL = stringEnv("CREEK_URL", cfg.URL)
	cfg.Backend = strings.ToLower(stringEnv("CREEK_BACKEND", cfg.Backend))
	cfg.PostgresDSN = stringEnv("CREEK_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = stringEnv("CREEK_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = stringEnv("CREEK_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisPrefix = stringEnv("CREEK_REDIS_PREFIX", cfg.RedisPrefix)
	if v := os.Getenv("CREEK_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}

	if cfg.RedisDB, err = intEnv("CREEK_REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}
	if cfg.ReadLimit, err = intEnv("CREEK_READ_LIMIT", cfg.ReadLimit); err != nil {
		return nil, err
	}
	if cfg.SubscriptionTTL, err = durationEnv("CREEK_SUBSCRIPTION_TTL", cfg.SubscriptionTTL); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = durationEnv("CREEK_LEASE_TTL", cfg.LeaseTTL); err != nil {
		return nil, err
	}
	if cfg.SessionTimeout, err = durationEnv("CREEK_SESSION_TIMEOUT", cfg.SessionTimeout); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("CREEK_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = durationEnv("CREEK_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return nil, err
	}
	if cfg.AutoCommit, err = boolEnv("CREEK_AUTO_COMMIT", cfg.AutoCommit); err != nil {
		return nil, err
	}
	if cfg.RenewOnActivity, err = boolEnv("CREEK_RENEW_ON_ACTIVITY", cfg.RenewOnActivity); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("CREEK_POSTGRES_DSN is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("CREEK_REDIS_ADDR is required for the redis backend")
		}
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("CREEK_KAFKA_BROKERS is required for the kafka backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want memory, postgres, redis or kafka)", c.Backend)
	}

	if c.SubscriptionTTL <= 0 || c.LeaseTTL <= 0 {
		return fmt.Errorf("subscription and lease TTLs must be positive")
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	return nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
