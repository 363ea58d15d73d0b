// Package config handles configuration loading and validation for circled.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/circled/
//   - Linux:   ~/.local/share/circled/
//   - Windows: %APPDATA%\circled\
//
// Falls back to ~/.circled if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "circled")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "circled")
		}
		return fallbackDataDir()
	case "linux":
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "circled")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "share", "circled")
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Logs", "circled")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "circled", "logs")
	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, "circled")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "circled")
	}
}

func fallbackDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".circled")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformDataDir(), "config.toml")
}

// DefaultSocketPath returns the default control socket path.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\circled`
	}
	return filepath.Join(PlatformDataDir(), "circled.sock")
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	dataDir := PlatformDataDir()
	return &Config{
		Version: Version,
		App: AppConfig{
			Version: "1.0.0",
			UserID:  "local",
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "circled.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "circled.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Permissions: PermissionsConfig{
			PollIntervalSec:  300,
			ConsentLoadLimit: 100,
		},
		Proof: ProofConfig{
			CaptureSeconds:  10,
			VerifyLatencyMs: 2000,
			RetentionDays:   30,
			Attest:          false,
		},
		Theme: ThemeConfig{
			Default: "system",
			Accent:  "#4A90D9",
		},
		Analytics: AnalyticsConfig{
			Enabled:  true,
			FilePath: filepath.Join(dataDir, "analytics.jsonl"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		IPC: IPCConfig{
			SocketPath: DefaultSocketPath(),
		},
	}
}
