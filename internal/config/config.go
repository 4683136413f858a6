package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the lending service
type Config struct {
	ServiceName   string
	DBDriver      string
	DBDSN         string
	HTTPPort      string
	GRPCPort      string
	RabbitMQURL   string
	LogLevel      string
	StrictLending bool
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		ServiceName:   getEnv("SERVICE_NAME", "lending"),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBDSN:         getEnv("DB_DSN", "library.db"),
		HTTPPort:      getEnv("HTTP_PORT", "8501"),
		GRPCPort:      getEnv("GRPC_PORT", "50051"),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StrictLending: getEnvBool("STRICT_LENDING", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool falls back to defaultValue when the variable is unset or unparsable.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
