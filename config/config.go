package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	coretypes "github.com/projecteru2/core/types"
)

// Defaults.
const (
	// DefaultMaxWorkers caps the scanner pool even on very wide hosts.
	DefaultMaxWorkers = 8
	// DefaultMaxFileSize: files larger than this are skipped with a warning.
	DefaultMaxFileSize = 1 << 30 // 1 GiB
	// DefaultLockTimeoutSeconds bounds how long a writer waits for the lock.
	DefaultLockTimeoutSeconds = 30
	// DefaultDaemonIntervalSeconds is the periodic-snapshot cadence.
	DefaultDaemonIntervalSeconds = 300
)

// Config holds global Fractyl configuration.
type Config struct {
	// PoolSize is the scanner worker pool size.
	// Defaults to min(NumCPU, 8) if zero.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// MaxFileSize in bytes; larger files are excluded from snapshots.
	MaxFileSize int64 `json:"max_file_size" mapstructure:"max_file_size"`
	// LockTimeoutSeconds is how long writers wait for the repository lock.
	LockTimeoutSeconds int `json:"lock_timeout_seconds" mapstructure:"lock_timeout_seconds"`
	// DaemonIntervalSeconds is the default interval for the snapshot daemon.
	DaemonIntervalSeconds int `json:"daemon_interval_seconds" mapstructure:"daemon_interval_seconds"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:              defaultPoolSize(),
		MaxFileSize:           DefaultMaxFileSize,
		LockTimeoutSeconds:    DefaultLockTimeoutSeconds,
		DaemonIntervalSeconds: DefaultDaemonIntervalSeconds,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize clamps zero or nonsense values back to defaults.
func (c *Config) Normalize() {
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize()
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.LockTimeoutSeconds <= 0 {
		c.LockTimeoutSeconds = DefaultLockTimeoutSeconds
	}
	if c.DaemonIntervalSeconds <= 0 {
		c.DaemonIntervalSeconds = DefaultDaemonIntervalSeconds
	}
}

func defaultPoolSize() int {
	if n := runtime.NumCPU(); n < DefaultMaxWorkers {
		return n
	}
	return DefaultMaxWorkers
}
