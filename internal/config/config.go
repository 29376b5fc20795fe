package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gosplit/internal/errors"
)

// Config represents the complete application configuration. It is built once
// at startup and never mutated afterwards.
type Config struct {
	Environment string
	Database    DatabaseConfig
	Server      ServerConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Realtime    RealtimeConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string `validate:"required"`
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds the long operations (report builds, batch
	// ingest); it propagates as a context deadline.
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// AuthConfig holds the write-gate settings
type AuthConfig struct {
	// AdminTokens are the accepted bearer tokens for mutating endpoints.
	// Empty in development disables the gate.
	AdminTokens []string
}

// RateLimitConfig holds per-client token bucket settings for write traffic
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// RealtimeConfig holds the live report push settings
type RealtimeConfig struct {
	PushInterval time.Duration
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", "8080"),
			ReadTimeout:     getEnvDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvDurationOrDefault("REQUEST_TIMEOUT", 10*time.Second),
			AllowedOrigins:  splitCSV(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		},
		Auth: AuthConfig{
			AdminTokens: splitCSV(os.Getenv("ADMIN_API_TOKENS")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloatOrDefault("RATE_LIMIT_RPS", 10),
			Burst:             getEnvIntOrDefault("RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Realtime: RealtimeConfig{
			PushInterval: getEnvDurationOrDefault("WS_PUSH_INTERVAL", 2*time.Second),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// IsDevelopment reports whether the service runs in the development
// environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// WriteGateEnabled reports whether mutating endpoints require a bearer
// token. Development with zero configured tokens bypasses the gate.
func (c *Config) WriteGateEnabled() bool {
	return len(c.Auth.AdminTokens) > 0 || !c.IsDevelopment()
}

func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	if config.RateLimit.RequestsPerSecond <= 0 {
		return errors.ConfigInvalid("RATE_LIMIT_RPS must be positive")
	}
	if config.RateLimit.Burst < 1 {
		return errors.ConfigInvalid("RATE_LIMIT_BURST must be at least 1")
	}
	if config.Realtime.PushInterval <= 0 {
		return errors.ConfigInvalid("WS_PUSH_INTERVAL must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
