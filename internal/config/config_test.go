package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"tiny poll interval", func(c *Config) { c.Permissions.PollIntervalSec = 1 }, "permissions.poll_interval_sec"},
		{"zero capture budget", func(c *Config) { c.Proof.CaptureSeconds = 0 }, "proof.capture_seconds"},
		{"zero retention", func(c *Config) { c.Proof.RetentionDays = 0 }, "proof.retention_days"},
		{"bad theme", func(c *Config) { c.Theme.Default = "sepia" }, "theme.default"},
		{"empty socket path", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			verrs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, ve := range verrs {
				if ve.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope.toml"))
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Permissions.PollIntervalSec != 300 {
		t.Errorf("expected default poll interval, got %d", cfg.Permissions.PollIntervalSec)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[permissions]
poll_interval_sec = 60

[proof]
capture_seconds = 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	l := NewLoader(path)
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Permissions.PollIntervalSec != 60 {
		t.Errorf("PollIntervalSec = %d, want 60", cfg.Permissions.PollIntervalSec)
	}
	if cfg.Proof.CaptureSeconds != 5 {
		t.Errorf("CaptureSeconds = %d, want 5", cfg.Proof.CaptureSeconds)
	}
	// Untouched sections keep defaults.
	if cfg.Proof.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.Proof.RetentionDays)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "version: 1\npermissions:\n  poll_interval_sec: 120\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	l := NewLoader(path)
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Permissions.PollIntervalSec != 120 {
		t.Errorf("PollIntervalSec = %d, want 120", cfg.Permissions.PollIntervalSec)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CIRCLED_POLL_INTERVAL_SEC", "45")
	t.Setenv("CIRCLED_STORAGE_PATH", "/tmp/other.db")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Permissions.PollIntervalSec != 45 {
		t.Errorf("PollIntervalSec = %d, want 45", cfg.Permissions.PollIntervalSec)
	}
	if cfg.Storage.Path != "/tmp/other.db" {
		t.Errorf("Storage.Path = %s", cfg.Storage.Path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Permissions.PollIntervalSec = 90

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Permissions.PollIntervalSec != 90 {
		t.Errorf("round trip lost poll interval: %d", loaded.Permissions.PollIntervalSec)
	}
}
