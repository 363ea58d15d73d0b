// Package analytics provides a JSON-lines event sink for circled.
//
// Managers report domain events (permission transitions, proof outcomes,
// exports) here; the sink appends one JSON object per line. A disabled
// sink discards events.
package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventName identifies an analytics event.
type EventName string

// Analytics event names.
const (
	EventPermissionChanged EventName = "permission_changed"
	EventPermissionDenied  EventName = "permission_denied"
	EventProofRequested    EventName = "proof_requested"
	EventProofVerified     EventName = "proof_verified"
	EventProofRejected     EventName = "proof_rejected"
	EventConsentExported   EventName = "consent_exported"
	EventConsentCleared    EventName = "consent_cleared"
	EventOnboardingStarted EventName = "onboarding_started"
	EventOnboardingSkipped EventName = "onboarding_skipped"
	EventOnboardingDone    EventName = "onboarding_done"
	EventThemeChanged      EventName = "theme_changed"
)

// Event is a single analytics record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Name      EventName      `json:"name"`
	Component string         `json:"component"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink appends events to a JSON-lines file.
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	enabled bool
}

// NewSink creates a sink writing to path. A disabled sink discards events
// without touching the filesystem.
func NewSink(path string, enabled bool) (*Sink, error) {
	s := &Sink{enabled: enabled}
	if !enabled {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create analytics directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open analytics file: %w", err)
	}
	s.file = f
	return s, nil
}

// Emit appends an event. Failures are swallowed: analytics must never
// break a manager operation.
func (s *Sink) Emit(component string, name EventName, details map[string]any) {
	if !s.enabled {
		return
	}

	e := Event{
		Timestamp: time.Now().UTC(),
		Name:      name,
		Component: component,
		Details:   details,
	}

	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	s.file.Write(append(data, '\n'))
}

// Close closes the backing file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
