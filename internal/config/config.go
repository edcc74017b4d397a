package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all process-level settings. Values come from environment
// variables with the defaults below; the environment catalog itself lives in
// a separate YAML file (see the registry package).
type Config struct {
	// Redis / task broker
	RedisHost string
	RedisPort int
	RedisDB   int
	BrokerURL string

	// Worker pool
	WorkerConcurrency int

	// Docker
	DockerSocket      string
	DockerImagePrefix string

	// Execution limits
	ContainerMemoryLimit string
	ContainerCPULimit    float64
	ContainerPidsLimit   int
	ExecutionTimeout     int // seconds
	SessionTTL           int // seconds

	// Sandbox security
	NetworkDisabled bool
	ReadOnly        bool
	NoNewPrivileges bool
	TmpfsSize       string

	// API
	APIHost string
	APIPort int

	// Environment catalog; empty means probe the default locations.
	EnvironmentsFile string

	LogLevel string
}

// Load builds a Config from defaults overridden by environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		RedisHost:            "redis",
		RedisPort:            6379,
		RedisDB:              0,
		BrokerURL:            "redis://redis:6379/0",
		WorkerConcurrency:    4,
		DockerSocket:         "/var/run/docker.sock",
		DockerImagePrefix:    "code-executor",
		ContainerMemoryLimit: "256m",
		ContainerCPULimit:    0.5,
		ContainerPidsLimit:   50,
		ExecutionTimeout:     30,
		SessionTTL:           3600,
		NetworkDisabled:      true,
		ReadOnly:             false,
		NoNewPrivileges:      true,
		TmpfsSize:            "64m",
		APIHost:              "0.0.0.0",
		APIPort:              8000,
		LogLevel:             "info",
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisPort = n
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("DOCKER_SOCKET"); v != "" {
		cfg.DockerSocket = v
	}
	if v := os.Getenv("DOCKER_IMAGE_PREFIX"); v != "" {
		cfg.DockerImagePrefix = v
	}
	if v := os.Getenv("CONTAINER_MEMORY_LIMIT"); v != "" {
		cfg.ContainerMemoryLimit = v
	}
	if v := os.Getenv("CONTAINER_CPU_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ContainerCPULimit = f
		}
	}
	if v := os.Getenv("CONTAINER_PIDS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContainerPidsLimit = n
		}
	}
	if v := os.Getenv("EXECUTION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionTimeout = n
		}
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTL = n
		}
	}
	if v := os.Getenv("NETWORK_DISABLED"); v != "" {
		if b, err := parseBool(v); err == nil {
			cfg.NetworkDisabled = b
		}
	}
	if v := os.Getenv("READ_ONLY"); v != "" {
		if b, err := parseBool(v); err == nil {
			cfg.ReadOnly = b
		}
	}
	if v := os.Getenv("NO_NEW_PRIVILEGES"); v != "" {
		if b, err := parseBool(v); err == nil {
			cfg.NoNewPrivileges = b
		}
	}
	if v := os.Getenv("TMPFS_SIZE"); v != "" {
		cfg.TmpfsSize = v
	}
	if v := os.Getenv("API_HOST"); v != "" {
		cfg.APIHost = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := os.Getenv("ENVIRONMENTS_FILE"); v != "" {
		cfg.EnvironmentsFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// parseBool accepts the usual strconv spellings plus yes/no and on/off,
// which the deployment configs have historically used.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

func (c *Config) validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.ExecutionTimeout < 1 {
		return fmt.Errorf("execution timeout must be at least 1s, got %d", c.ExecutionTimeout)
	}
	if c.SessionTTL < 1 {
		return fmt.Errorf("session ttl must be at least 1s, got %d", c.SessionTTL)
	}
	if c.ContainerCPULimit <= 0 {
		return fmt.Errorf("container cpu limit must be positive, got %g", c.ContainerCPULimit)
	}
	if c.ContainerPidsLimit < 1 {
		return fmt.Errorf("container pids limit must be at least 1, got %d", c.ContainerPidsLimit)
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		return fmt.Errorf("invalid redis port %d", c.RedisPort)
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api port %d", c.APIPort)
	}
	return nil
}

// RedisAddr returns the host:port pair for the state store connection.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// APIAddr returns the bind address for the HTTP server.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// ExecTimeout returns the per-execution timeout as a duration.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeout) * time.Second
}

// TTL returns the session TTL as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

// SlogLevel maps the configured level name onto a slog level. Unknown
// names fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
