// Package config loads a typed, validated, immutable Config from the
// process environment (C1). Values are coerced from strings with defaults;
// invalid or below-floor values are clamped to safe minimums and a warning
// is surfaced through the returned Warnings slice rather than logged
// directly, so the caller decides how loudly to report them.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config is immutable for the process lifetime once LoadConfig returns.
type Config struct {
	// Server
	Port           string
	Host           string
	DebugMode      bool
	StaticFilesDir string

	// Limits and safety
	MaxRequestsPerMinute int
	MaxCodeLength        int
	MaxOutputLength      int
	ExecutionTimeout     time.Duration
	AllowedOrigins       []string

	// Execution
	RunnerExecutablePath string
	TempDir              string
	CleanupInterval      time.Duration
	SandboxBackend       string // "process" (default) or "docker"

	// Cache
	MaxCacheSize int
	CacheTTL     time.Duration

	// Admission ambient tiers (see SPEC_FULL §4.3)
	IdleBucketTTL time.Duration

	// Worker pool
	WorkerPoolSize int
	QueueCapacity  int

	// Audit (optional; empty AuditDatabaseURL disables the sink)
	AuditDatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Warnings collected during validation, surfaced out-of-band.
	Warnings []string
}

// LoadConfig loads configuration from the environment, applying defaults
// and validation rules from spec.md §4.1.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:           getEnvString("SERVER_PORT", "8080"),
		Host:           getEnvString("SERVER_HOST", "0.0.0.0"),
		DebugMode:      getEnvBool("DEBUG_MODE", false),
		StaticFilesDir: getEnvString("STATIC_FILES_DIR", "/app/build"),

		MaxRequestsPerMinute: getEnvInt("MAX_REQUESTS_PER_MINUTE", 30),
		MaxCodeLength:        getEnvInt("MAX_CODE_LENGTH", 10000),
		MaxOutputLength:      getEnvInt("MAX_OUTPUT_LENGTH", 10000),
		ExecutionTimeout:     time.Duration(getEnvInt("EXECUTION_TIMEOUT_SECONDS", 10)) * time.Second,
		AllowedOrigins:       getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"}),

		RunnerExecutablePath: getEnvString("GO_EXECUTABLE_PATH", "/usr/local/go/bin/go"),
		TempDir:              getEnvString("TEMP_DIR", os.TempDir()),
		CleanupInterval:      time.Duration(getEnvInt("CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute,
		SandboxBackend:       strings.ToLower(getEnvString("SANDBOX_BACKEND", "process")),

		MaxCacheSize: getEnvInt("MAX_CACHE_SIZE", 100),
		CacheTTL:     time.Duration(getEnvInt("CACHE_TTL_MINUTES", 30)) * time.Minute,

		IdleBucketTTL: time.Duration(getEnvInt("IDLE_BUCKET_TTL_MINUTES", 10)) * time.Minute,

		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", defaultWorkerPoolSize()),
		QueueCapacity:  getEnvInt("QUEUE_CAPACITY", 100),

		AuditDatabaseURL: getEnvString("AUDIT_DATABASE_URL", ""),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "json"),
	}

	validate(cfg)

	return cfg, nil
}

func defaultWorkerPoolSize() int {
	n := runtime.NumCPU() * 2
	if n < 4 {
		return 4
	}
	return n
}

func validate(cfg *Config) {
	if cfg.MaxRequestsPerMinute < 1 {
		cfg.MaxRequestsPerMinute = 1
		cfg.warn("MAX_REQUESTS_PER_MINUTE adjusted to minimum value of 1")
	}

	if cfg.MaxCodeLength < 100 {
		cfg.MaxCodeLength = 100
		cfg.warn("MAX_CODE_LENGTH adjusted to minimum value of 100")
	}

	if cfg.ExecutionTimeout < time.Second {
		cfg.ExecutionTimeout = time.Second
		cfg.warn("EXECUTION_TIMEOUT_SECONDS adjusted to minimum value of 1 second")
	}

	if cfg.SandboxBackend != "process" && cfg.SandboxBackend != "docker" {
		cfg.warn("SANDBOX_BACKEND unrecognized, falling back to \"process\"")
		cfg.SandboxBackend = "process"
	}

	if cfg.TempDir != "" {
		if _, err := os.Stat(cfg.TempDir); os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.TempDir, 0o755); mkErr != nil {
				cfg.warn("could not create temp dir " + cfg.TempDir + ": " + mkErr.Error())
				cfg.TempDir = os.TempDir()
			}
		}
	}

	if _, err := os.Stat(cfg.RunnerExecutablePath); os.IsNotExist(err) {
		cfg.warn("runner executable does not exist at " + cfg.RunnerExecutablePath)
	}
}

func (c *Config) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

func getEnvString(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes" || v == "y"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
