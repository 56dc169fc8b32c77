package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rl1809/stockroom/internal/core/domain"
)

const ServiceName = "stockroom"

type Config struct {
	HTTPAddr string
	GRPCAddr string

	StoreDriver string
	StoreDSN    string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	OtelEndpoint string

	DeletePolicy    domain.DeletePolicy
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads the environment, after applying a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		HTTPAddr:     get("HTTP_ADDR", ":8080"),
		GRPCAddr:     get("GRPC_ADDR", ":50051"),
		StoreDriver:  strings.ToLower(get("STORE_DRIVER", "memory")),
		StoreDSN:     get("STORE_DSN", ""),
		RedisAddr:    get("REDIS_ADDR", ""),
		KafkaTopic:   get("KAFKA_TOPIC", "stock-events"),
		OtelEndpoint: get("OTEL_ENDPOINT", ""),
		DeletePolicy: domain.DeletePolicy(strings.ToLower(get("FACILITY_DELETE_POLICY", string(domain.DeleteOrphan)))),
		LogLevel:     strings.ToLower(get("LOG_LEVEL", "info")),
	}

	if brokers := get("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	timeout, err := time.ParseDuration(get("SHUTDOWN_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("parse SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "memory":
	case "mysql", "postgres", "sqlite":
		if c.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if !c.DeletePolicy.Valid() {
		return fmt.Errorf("unsupported FACILITY_DELETE_POLICY %q", c.DeletePolicy)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
