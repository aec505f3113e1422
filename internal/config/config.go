// Package config loads and validates runtime configuration from environment
// variables, plus the YAML project manifest that declares the agents a
// project ships.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AgentTimeout bounds outbound agent-to-agent invocations.
	AgentTimeout time.Duration

	// Cloud service settings. An empty APIKey means the cloud clients
	// (key-value, vector, prompt) are left unconfigured.
	TransportURL string
	APIKey       string

	// Deployment identifiers surfaced on the agent context.
	OrgID        string
	ProjectID    string
	DeploymentID string
	Environment  string
	DevMode      bool

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("ENSO_PORT", 3500),
		ReadTimeout:         envDuration("ENSO_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("ENSO_WRITE_TIMEOUT", 5*time.Minute),
		AgentTimeout:        envDuration("ENSO_AGENT_TIMEOUT", 5*time.Minute),
		TransportURL:        envStr("ENSO_URL", "https://api.enso.dev"),
		APIKey:              envStr("ENSO_API_KEY", ""),
		OrgID:               envStr("ENSO_CLOUD_ORG_ID", "unknown"),
		ProjectID:           envStr("ENSO_CLOUD_PROJECT_ID", "unknown"),
		DeploymentID:        envStr("ENSO_CLOUD_DEPLOYMENT_ID", "unknown"),
		Environment:         envStr("ENSO_ENVIRONMENT", "development"),
		DevMode:             envBool("ENSO_DEVMODE", false),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "enso"),
		LogLevel:            envStr("ENSO_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("ENSO_MAX_REQUEST_BODY_BYTES", 10*1024*1024)), // 10 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: ENSO_PORT must be between 1 and 65535")
	}
	if c.TransportURL == "" {
		return fmt.Errorf("config: ENSO_URL is required")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: ENSO_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

// CloudConfigured reports whether the cloud service clients can be built.
func (c Config) CloudConfigured() bool {
	return c.APIKey != ""
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
