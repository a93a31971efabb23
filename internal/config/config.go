// Package config loads service configuration from the environment, with an
// optional YAML file overlay for deployments that prefer config files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selectors
const (
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	BusBackendRabbitMQ = "rabbitmq"
	BusBackendMemory   = "memory"

	AuthModeJWT         = "jwt"
	AuthModePassthrough = "passthrough"
)

// Config holds application configuration
type Config struct {
	ServerPort  string `yaml:"server_port"`
	FrontendURL string `yaml:"frontend_url"`

	StoreBackend string `yaml:"store_backend"`
	BusBackend   string `yaml:"bus_backend"`

	RedisURL         string `yaml:"redis_url"`
	DatabaseURL      string `yaml:"database_url"`
	RabbitMQURL      string `yaml:"rabbitmq_url"`
	RabbitMQPrefetch int    `yaml:"rabbitmq_prefetch"`

	AuthMode  string `yaml:"auth_mode"`
	JWKSURL   string `yaml:"jwks_url"`
	JWTIssuer string `yaml:"jwt_issuer"`

	RateLimit      string        `yaml:"rate_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	EnableHSTS     bool          `yaml:"enable_hsts"`

	EventSource string `yaml:"event_source"`

	DebugMode    bool   `yaml:"debug_mode"`
	OTELEnabled  bool   `yaml:"otel_enabled"`
	OTELEndpoint string `yaml:"otel_endpoint"`
}

// Load reads configuration from environment variables. When CONFIG_FILE is
// set, the YAML file is read first and environment variables override it.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:       "8080",
		FrontendURL:      "http://localhost:3000",
		StoreBackend:     StoreBackendRedis,
		BusBackend:       BusBackendRabbitMQ,
		RedisURL:         "redis://localhost:6379/0",
		RabbitMQPrefetch: 1,
		AuthMode:         AuthModePassthrough,
		RateLimit:        "10-S",
		RequestTimeout:   30 * time.Second,
		EventSource:      "taskloop",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.BusBackend = getEnv("BUS_BACKEND", cfg.BusBackend)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.RabbitMQPrefetch = getEnvInt("RABBITMQ_PREFETCH", cfg.RabbitMQPrefetch)
	cfg.AuthMode = getEnv("AUTH_MODE", cfg.AuthMode)
	cfg.JWKSURL = getEnv("JWKS_URL", cfg.JWKSURL)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.RateLimit = getEnv("RATE_LIMIT", cfg.RateLimit)
	cfg.EnableHSTS = getEnvBool("ENABLE_HSTS", cfg.EnableHSTS)
	cfg.EventSource = getEnv("EVENT_SOURCE", cfg.EventSource)
	cfg.DebugMode = getEnvBool("DEBUG_MODE", cfg.DebugMode)
	cfg.OTELEnabled = getEnvBool("OTEL_ENABLED", cfg.OTELEnabled)
	cfg.OTELEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", timeout, err)
		}
		cfg.RequestTimeout = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store backend")
		}
	case StoreBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (redis, postgres, or memory)", c.StoreBackend)
	}

	switch c.BusBackend {
	case BusBackendRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required for the rabbitmq bus backend")
		}
	case BusBackendMemory:
	default:
		return fmt.Errorf("unknown BUS_BACKEND %q (rabbitmq or memory)", c.BusBackend)
	}

	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWKSURL == "" || c.JWTIssuer == "" {
			return fmt.Errorf("JWKS_URL and JWT_ISSUER are required for jwt auth mode")
		}
	case AuthModePassthrough:
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (jwt or passthrough)", c.AuthMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
