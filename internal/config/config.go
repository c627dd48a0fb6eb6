package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment (with an
// optional .env file for local development).
type Config struct {
	DatabaseURL    string
	ServerPort     string
	AllowedOrigins string

	// Payment gateway credentials. Empty GatewaySecretKey disables the
	// gateway-backed payment flows.
	GatewayBaseURL   string
	GatewaySecretKey string

	// Logging configuration
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", ""),
		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", ""),
		GatewaySecretKey: getEnv("GATEWAY_SECRET_KEY", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.GatewaySecretKey != "" && c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required when GATEWAY_SECRET_KEY is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
