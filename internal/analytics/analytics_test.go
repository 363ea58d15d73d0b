package analytics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEmitWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.jsonl")
	s, err := NewSink(path, true)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer s.Close()

	s.Emit("permissions", EventPermissionChanged, map[string]any{
		"type": "camera",
		"from": "notDetermined",
		"to":   "granted",
	})
	s.Emit("proof", EventProofVerified, nil)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open analytics file: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Name != EventPermissionChanged || events[0].Component != "permissions" {
		t.Errorf("first event mismatch: %+v", events[0])
	}
	if events[0].Details["type"] != "camera" {
		t.Errorf("details lost: %+v", events[0].Details)
	}
}

func TestDisabledSinkWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.jsonl")
	s, err := NewSink(path, false)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer s.Close()

	s.Emit("theme", EventThemeChanged, nil)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("disabled sink should not create the file")
	}
}
