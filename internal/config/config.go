// Package config provides configuration for the sync engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the fitsync configuration.
type Config struct {
	// Remote marketplace API
	APIURL     string
	APITimeout time.Duration
	APIRPS     int
	APIBurst   int

	// Persisted session state
	StateDSN string

	// Poll intervals
	ConversationPollInterval time.Duration
	ThreadPollInterval       time.Duration

	// Local bridge server
	BridgePort int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from a .env file, if present, and environment variables.
func Load() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{
		APIURL:                   getEnv("FITSYNC_API_URL", "http://localhost:8001/api"),
		APITimeout:               time.Duration(getEnvInt("API_TIMEOUT_MS", 15000)) * time.Millisecond,
		APIRPS:                   getEnvInt("API_RPS", 10),
		APIBurst:                 getEnvInt("API_BURST", 20),
		StateDSN:                 getEnv("FITSYNC_STATE_DSN", "file:fitsync.db?cache=shared&mode=rwc"),
		ConversationPollInterval: time.Duration(getEnvInt("CONVERSATION_POLL_MS", 5000)) * time.Millisecond,
		ThreadPollInterval:       time.Duration(getEnvInt("THREAD_POLL_MS", 3000)) * time.Millisecond,
		BridgePort:               getEnvInt("BRIDGE_PORT", 8085),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                getEnv("LOG_FORMAT", "json"),
	}
	return cfg
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("FITSYNC_API_URL is required")
	}
	if c.ConversationPollInterval <= 0 {
		return fmt.Errorf("CONVERSATION_POLL_MS must be positive")
	}
	if c.ThreadPollInterval <= 0 {
		return fmt.Errorf("THREAD_POLL_MS must be positive")
	}
	if c.APIRPS <= 0 || c.APIBurst <= 0 {
		return fmt.Errorf("API_RPS and API_BURST must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
