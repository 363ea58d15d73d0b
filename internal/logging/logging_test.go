package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circled.log")
	l, err := New(&Config{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Info("hello", "answer", 42)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circled.log")
	l, err := New(&Config{
		Level:    "warn",
		Format:   "text",
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Debug("quiet")
	l.Info("quiet too")
	l.Warn("loud")

	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Contains(out, "quiet") {
		t.Error("debug/info should be filtered at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn entry missing")
	}
}

func TestComponentLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circled.log")
	l, err := New(&Config{
		Level:    "info",
		Format:   "text",
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Component("permissions").Info("checked")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "component=permissions") {
		t.Errorf("component attr missing: %s", data)
	}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circled.log")
	r, err := NewFileRotator(path, 1, 2)
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	defer r.Close()

	// Force rotation by shrinking the threshold.
	r.maxSize = 64

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 10; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	matches, _ := filepath.Glob(path + ".*")
	if len(matches) == 0 {
		t.Error("expected rotated backups")
	}
	if len(matches) > 2 {
		t.Errorf("backups not pruned: %d", len(matches))
	}
}
