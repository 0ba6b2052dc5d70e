package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Store         StoreConfig
	Session       SessionConfig
	Crypto        CryptoConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// StoreConfig selects the session store backend
type StoreConfig struct {
	Backend string // memory, postgres, redis
	Timeout time.Duration
}

// SessionConfig holds lifecycle and sweeper configuration
type SessionConfig struct {
	SweepInterval time.Duration
	IdleThreshold time.Duration
}

// CryptoConfig holds field-encryption configuration
type CryptoConfig struct {
	Enabled bool
	KeyPath string
	KeyBits int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "3500"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "sessiontrack"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "sessiontrack"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: parseInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", BackendMemory),
			Timeout: parseDuration("STORE_TIMEOUT", "5s"),
		},
		Session: SessionConfig{
			SweepInterval: parseDuration("SESSION_SWEEP_INTERVAL", "60s"),
			IdleThreshold: parseDuration("SESSION_IDLE_THRESHOLD", "2m"),
		},
		Crypto: CryptoConfig{
			Enabled: parseBool("CRYPTO_ENABLED", true),
			KeyPath: getEnv("CRYPTO_KEY_PATH", "private_key.pem"),
			KeyBits: parseInt("CRYPTO_KEY_BITS", 2048),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sessiontrack"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendPostgres && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required for the postgres backend")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.Session.IdleThreshold <= 0 {
		return fmt.Errorf("SESSION_IDLE_THRESHOLD must be positive")
	}
	if c.Crypto.Enabled && c.Crypto.KeyBits < 1024 {
		return fmt.Errorf("CRYPTO_KEY_BITS must be at least 1024")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
