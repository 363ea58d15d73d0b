// Package config handles configuration loading, validation, and management
// for circled.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// App identifies the client build writing consent entries.
	App AppConfig `toml:"app" json:"app" yaml:"app"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Permissions configuration for the registry and poller.
	Permissions PermissionsConfig `toml:"permissions" json:"permissions" yaml:"permissions"`

	// Proof configuration for verification orchestration.
	Proof ProofConfig `toml:"proof" json:"proof" yaml:"proof"`

	// Theme configuration defaults.
	Theme ThemeConfig `toml:"theme" json:"theme" yaml:"theme"`

	// Analytics configuration for the event sink.
	Analytics AnalyticsConfig `toml:"analytics" json:"analytics" yaml:"analytics"`

	// Metrics configuration for the scrape endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`
}

// AppConfig identifies the application build.
type AppConfig struct {
	// Version is the app version recorded on consent entries and exports.
	Version string `toml:"version" json:"version" yaml:"version"`

	// UserID is the local account the daemon acts for.
	UserID string `toml:"user_id" json:"user_id" yaml:"user_id"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the service database file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the output format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the log file size before rotation.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// PermissionsConfig holds permission registry configuration.
type PermissionsConfig struct {
	// PollIntervalSec is the foreground re-check cadence in seconds.
	PollIntervalSec int `toml:"poll_interval_sec" json:"poll_interval_sec" yaml:"poll_interval_sec"`

	// ConsentLoadLimit caps how many consent entries are loaded into the
	// in-memory cache. 0 means unlimited.
	ConsentLoadLimit int `toml:"consent_load_limit" json:"consent_load_limit" yaml:"consent_load_limit"`
}

// ProofConfig holds proof orchestration configuration.
type ProofConfig struct {
	// CaptureSeconds is the camera capture session duration budget.
	CaptureSeconds int `toml:"capture_seconds" json:"capture_seconds" yaml:"capture_seconds"`

	// VerifyLatencyMs is the simulated verifier latency. Real capture
	// backends ignore it.
	VerifyLatencyMs int `toml:"verify_latency_ms" json:"verify_latency_ms" yaml:"verify_latency_ms"`

	// RetentionDays is the proof record retention window.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`

	// Attest enables hardware attestation of proof sensor payloads.
	Attest bool `toml:"attest" json:"attest" yaml:"attest"`
}

// ThemeConfig holds theme defaults.
type ThemeConfig struct {
	// Default is the theme applied before any user selection:
	// "system", "light", "dark", or "auto".
	Default string `toml:"default" json:"default" yaml:"default"`

	// Accent is the default accent color hex string.
	Accent string `toml:"accent" json:"accent" yaml:"accent"`
}

// AnalyticsConfig holds analytics sink configuration.
type AnalyticsConfig struct {
	// Enabled toggles the JSON-lines analytics sink.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// FilePath is the analytics event file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	// Enabled toggles the HTTP scrape endpoint.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Addr is the listen address for the scrape endpoint.
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// SocketPath is the unix socket path for circlectl.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides.
// Variables are prefixed with CIRCLED_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CIRCLED_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CIRCLED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CIRCLED_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CIRCLED_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("CIRCLED_POLL_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Permissions.PollIntervalSec = n
		}
	}
	if v := os.Getenv("CIRCLED_PROOF_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Proof.RetentionDays = n
		}
	}
	if v := os.Getenv("CIRCLED_USER_ID"); v != "" {
		c.App.UserID = v
	}
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.Analytics.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
