// Package config holds runtime configuration for the sales agent service.
// All values are sourced from the environment with sane defaults so the
// service can boot in a sandbox with nothing but a database URL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig carries the process-level knobs: HTTP surface, background
// worker sizing and the outreach scheduler cadence.
type ServiceConfig struct {
	Port       string `json:"port"`
	Env        string `json:"env"`
	InstanceID string `json:"instance_id"`

	// MasterEncryptionKey unlocks the credential vault. When empty the
	// service still boots but any operation touching sealed provider keys
	// fails with a crypto-not-ready error.
	MasterEncryptionKey string `json:"-"`

	// OperatorAPISecret signs the JWTs expected on operator endpoints.
	// Empty disables operator auth (local development).
	OperatorAPISecret string `json:"-"`

	// CORSAllowedOrigins lists origins allowed on the operator API.
	// Empty means allow all, which is only sensible behind a gateway.
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	SchedulerTickSeconds int `json:"scheduler_tick_seconds"`
	WorkerPoolSize       int `json:"worker_pool_size"`
	JobQueueSize         int `json:"job_queue_size"`

	// OutreachQuietDays suppresses periodic outreach to conversations that
	// already heard from us within the window.
	OutreachQuietDays int `json:"outreach_quiet_days"`

	// EvaluatingStaleAfter is how long a conversation may sit in the
	// transient evaluating state before the recovery sweep reconciles it.
	EvaluatingStaleAfter time.Duration `json:"evaluating_stale_after"`

	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// LoadServiceConfigFromEnv builds the service configuration from environment
// variables, falling back to defaults suitable for local development.
func LoadServiceConfigFromEnv() *ServiceConfig {
	return &ServiceConfig{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		InstanceID:           getDynamicInstanceID(),
		MasterEncryptionKey:  getEnvOrDefault("MASTER_ENCRYPTION_KEY", ""),
		OperatorAPISecret:    getEnvOrDefault("OPERATOR_API_SECRET", ""),
		CORSAllowedOrigins:   splitAndTrim(getEnvOrDefault("CORS_ALLOWED_ORIGINS", ""), ","),
		SchedulerTickSeconds: getEnvAsIntOrDefault("SCHEDULER_TICK_SECONDS", 60),
		WorkerPoolSize:       getEnvAsIntOrDefault("WORKER_POOL_SIZE", 4),
		JobQueueSize:         getEnvAsIntOrDefault("JOB_QUEUE_SIZE", 256),
		OutreachQuietDays:    getEnvAsIntOrDefault("OUTREACH_QUIET_DAYS", 7),
		EvaluatingStaleAfter: time.Duration(getEnvAsIntOrDefault("EVALUATING_STALE_AFTER_MINUTES", 5)) * time.Minute,
		ReadTimeout:          15 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
	}
}

// Validate rejects configurations the service cannot run with.
func (c *ServiceConfig) Validate() error {
	if c.SchedulerTickSeconds <= 0 {
		return fmt.Errorf("SCHEDULER_TICK_SECONDS must be positive, got %d", c.SchedulerTickSeconds)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be positive, got %d", c.JobQueueSize)
	}
	if c.OutreachQuietDays < 0 {
		return fmt.Errorf("OUTREACH_QUIET_DAYS must not be negative, got %d", c.OutreachQuietDays)
	}
	return nil
}

func getDynamicInstanceID() string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return fmt.Sprintf("sales-agent-%d", os.Getpid())
	}
	return hostname
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func splitAndTrim(value, sep string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
