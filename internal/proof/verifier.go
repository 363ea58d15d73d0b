package proof

import (
	"context"
	"fmt"
	"sync"
	"time"

	"circled/internal/store"
)

// Verdict is a verifier's judgement of a captured proof.
type Verdict struct {
	Verified   bool
	Confidence float64
	Notes      string
}

// Verifier judges whether a captured proof is genuine. Implementations
// may block on user confirmation or a remote model; the orchestrator
// passes its request context through.
type Verifier interface {
	Verify(ctx context.Context, p *store.Proof) (*Verdict, error)
}

// SimulatedVerifier approves proofs after a configurable latency,
// modelling the user confirmation step.
type SimulatedVerifier struct {
	mu         sync.Mutex
	latency    time.Duration
	confidence float64
	reject     bool
	rejectNote string
	err        error
}

// NewSimulatedVerifier creates a verifier with the given artificial
// latency. Confidence defaults to 0.9.
func NewSimulatedVerifier(latency time.Duration) *SimulatedVerifier {
	return &SimulatedVerifier{latency: latency, confidence: 0.9}
}

// SetConfidence overrides the verdict confidence.
func (v *SimulatedVerifier) SetConfidence(c float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confidence = c
}

// SetReject makes every verdict a rejection with the given note.
func (v *SimulatedVerifier) SetReject(note string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reject = true
	v.rejectNote = note
}

// SetError makes verification fail outright.
func (v *SimulatedVerifier) SetError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

// Verify implements Verifier.
func (v *SimulatedVerifier) Verify(ctx context.Context, p *store.Proof) (*Verdict, error) {
	v.mu.Lock()
	latency, confidence, reject, note, err := v.latency, v.confidence, v.reject, v.rejectNote, v.err
	v.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("verification aborted: %w", ctx.Err())
		case <-time.After(latency):
		}
	}
	if err != nil {
		return nil, err
	}
	if reject {
		return &Verdict{Verified: false, Confidence: confidence, Notes: note}, nil
	}
	return &Verdict{Verified: true, Confidence: confidence, Notes: "simulated verification passed"}, nil
}
