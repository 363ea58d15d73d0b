package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"circled/internal/store"
)

// CaptureResult is the sensor payload produced by one capture session.
type CaptureResult struct {
	Method     string
	SensorData []byte
	Liveness   float64
}

// Capturer runs the device-side evidence capture for a proof. Capture
// must respect ctx; the orchestrator enforces the capture budget
// through it.
type Capturer interface {
	Capture(ctx context.Context, entity *store.EntityRef) (*CaptureResult, error)
}

// SimulatedCapturer fabricates sensor payloads after a configurable
// delay. It stands in for the camera and motion pipeline on hosts
// without those sensors.
type SimulatedCapturer struct {
	mu       sync.Mutex
	latency  time.Duration
	liveness float64
	err      error
	captures int
}

// NewSimulatedCapturer creates a capturer with the given artificial
// latency. Liveness defaults to 0.95.
func NewSimulatedCapturer(latency time.Duration) *SimulatedCapturer {
	return &SimulatedCapturer{latency: latency, liveness: 0.95}
}

// SetLiveness overrides the reported liveness score.
func (c *SimulatedCapturer) SetLiveness(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveness = v
}

// SetError makes every capture fail.
func (c *SimulatedCapturer) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Captures returns how many captures completed.
func (c *SimulatedCapturer) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// Capture implements Capturer.
func (c *SimulatedCapturer) Capture(ctx context.Context, entity *store.EntityRef) (*CaptureResult, error) {
	c.mu.Lock()
	latency, liveness, err := c.latency, c.liveness, c.err
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("capture aborted: %w", ctx.Err())
		case <-time.After(latency):
		}
	}

	payload := map[string]any{
		"capturedAt": time.Now().UTC().Format(time.RFC3339Nano),
		"frames":     24,
		"liveness":   liveness,
	}
	if entity != nil {
		payload["entityKind"] = string(entity.Kind)
		payload["entityId"] = entity.ID
	}
	data, merr := json.Marshal(payload)
	if merr != nil {
		return nil, fmt.Errorf("marshal sensor payload: %w", merr)
	}

	c.mu.Lock()
	c.captures++
	c.mu.Unlock()

	return &CaptureResult{Method: "simulatedCamera", SensorData: data, Liveness: liveness}, nil
}
