package proof

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"circled/internal/events"
	"circled/internal/metrics"
	"circled/internal/store"
)

func newTestOrchestrator(t *testing.T, bus *events.Bus) (*Orchestrator, *store.Store, *SimulatedCapturer, *SimulatedVerifier) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "circled.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	capturer := NewSimulatedCapturer(0)
	verifier := NewSimulatedVerifier(0)
	o := NewOrchestrator(st, bus, nil, metrics.NewCircledMetrics(nil), nil, capturer, verifier, nil, Options{
		OwnerUserID: "user-1",
	})
	return o, st, capturer, verifier
}

func TestRequestProofVerifiedFlow(t *testing.T) {
	bus := events.NewBus()
	o, st, _, _ := newTestOrchestrator(t, bus)

	ch, cancel := bus.Subscribe(events.KindProofChallenge)
	defer cancel()

	entity := &store.EntityRef{Kind: store.EntityChallenge, ID: "chal-1"}
	p, err := o.RequestProof(context.Background(), entity)
	if err != nil {
		t.Fatalf("request proof: %v", err)
	}
	if !p.Verified {
		t.Fatal("proof not verified")
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		t.Errorf("confidence = %v, want (0, 1]", p.Confidence)
	}
	if p.OwnerUserID != "user-1" {
		t.Errorf("owner = %q, want user-1", p.OwnerUserID)
	}

	stored, err := st.GetProof(p.ID)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if stored == nil || stored.Entity == nil || stored.Entity.ID != "chal-1" {
		t.Fatalf("persisted proof missing entity: %+v", stored)
	}

	select {
	case ev := <-ch:
		done, ok := ev.Payload.(ProofCompleted)
		if !ok {
			t.Fatalf("payload type %T", ev.Payload)
		}
		if done.Proof.ID != p.ID {
			t.Errorf("event proof id = %q, want %q", done.Proof.ID, p.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no challenge completion event")
	}

	if len(o.InflightSessions()) != 0 {
		t.Error("session still tracked after completion")
	}
}

func TestRequestProofRejection(t *testing.T) {
	o, st, _, verifier := newTestOrchestrator(t, nil)
	verifier.SetReject("face mismatch")

	p, err := o.RequestProof(context.Background(), nil)
	if err != nil {
		t.Fatalf("request proof: %v", err)
	}
	if p.Verified {
		t.Fatal("rejected proof marked verified")
	}
	if p.Notes != "face mismatch" {
		t.Errorf("notes = %q", p.Notes)
	}

	stored, err := st.GetProof(p.ID)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if stored == nil || stored.Verified {
		t.Fatal("rejected proof not persisted as unverified")
	}
}

func TestRequestProofCaptureBudget(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "circled.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	capturer := NewSimulatedCapturer(time.Second)
	o := NewOrchestrator(st, nil, nil, nil, nil, capturer, NewSimulatedVerifier(0), nil, Options{
		CaptureBudget: 20 * time.Millisecond,
	})

	if _, err := o.RequestProof(context.Background(), nil); err == nil {
		t.Fatal("capture exceeding budget did not fail")
	}
}

func TestValidateProofReturnsAllViolations(t *testing.T) {
	p := &store.Proof{
		ID:          uuid.NewString(),
		TimestampNs: time.Now().UnixNano(),
		Method:      "simulatedCamera",
		Confidence:  1.5,
		// SensorData intentionally absent.
	}
	violations := ValidateProof(p)
	if len(violations) != 2 {
		t.Fatalf("violations = %v, want 2", violations)
	}
	joined := strings.Join(violations, "; ")
	if !strings.Contains(joined, "sensor payload") || !strings.Contains(joined, "confidence") {
		t.Errorf("unexpected violations: %v", violations)
	}
}

func TestValidateProofAcceptsWellFormed(t *testing.T) {
	p := &store.Proof{
		ID:          uuid.NewString(),
		TimestampNs: time.Now().UnixNano(),
		Method:      "simulatedCamera",
		SensorData:  []byte(`{"frames":24}`),
		Confidence:  0.9,
		Liveness:    0.95,
	}
	if violations := ValidateProof(p); len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}

func TestCompleteForfeitProofRequiresProof(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil)

	if err := o.CompleteForfeitProof(nil, "forfeit-1"); err == nil {
		t.Fatal("nil proof accepted for forfeit completion")
	}

	unverified := &store.Proof{ID: uuid.NewString(), Verified: false}
	if err := o.CompleteForfeitProof(unverified, "forfeit-1"); err == nil {
		t.Fatal("unverified proof accepted for forfeit completion")
	}
}

func TestCompleteForfeitProofBroadcasts(t *testing.T) {
	bus := events.NewBus()
	o, _, _, _ := newTestOrchestrator(t, bus)

	ch, cancel := bus.Subscribe(events.KindProofForfeit)
	defer cancel()

	p := &store.Proof{ID: uuid.NewString(), Verified: true}
	if err := o.CompleteForfeitProof(p, "forfeit-9"); err != nil {
		t.Fatalf("complete forfeit: %v", err)
	}

	select {
	case ev := <-ch:
		done := ev.Payload.(ProofCompleted)
		if done.Entity == nil || done.Entity.Kind != store.EntityForfeit || done.Entity.ID != "forfeit-9" {
			t.Errorf("unexpected entity: %+v", done.Entity)
		}
	case <-time.After(time.Second):
		t.Fatal("no forfeit completion event")
	}
}

func TestHangoutWithoutAnomalyAutoVerifies(t *testing.T) {
	o, _, capturer, _ := newTestOrchestrator(t, nil)

	o.StartHangoutSession("hang-1")
	p, err := o.EndHangoutSession(context.Background(), "hang-1")
	if err != nil {
		t.Fatalf("end hangout: %v", err)
	}
	if !p.Verified || p.Method != "autoVerified" || p.Confidence != 1.0 {
		t.Fatalf("auto-verified proof wrong: %+v", p)
	}
	if capturer.Captures() != 0 {
		t.Errorf("capture ran %d times for clean hangout", capturer.Captures())
	}

	var payload map[string]any
	if err := json.Unmarshal(p.SensorData, &payload); err != nil {
		t.Fatalf("sensor payload not json: %v", err)
	}
	if payload["autoVerified"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestHangoutWithAnomalyRequiresCapture(t *testing.T) {
	o, _, capturer, _ := newTestOrchestrator(t, nil)

	o.StartHangoutSession("hang-2")
	o.ReportMotionAnomaly("hang-2")
	p, err := o.EndHangoutSession(context.Background(), "hang-2")
	if err != nil {
		t.Fatalf("end hangout: %v", err)
	}
	if p.Method == "autoVerified" {
		t.Fatal("anomalous hangout skipped capture")
	}
	if capturer.Captures() != 1 {
		t.Errorf("captures = %d, want 1", capturer.Captures())
	}
}

func TestEndUnknownHangoutFails(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil)
	if _, err := o.EndHangoutSession(context.Background(), "never-started"); err == nil {
		t.Fatal("unknown hangout session accepted")
	}
}

func TestCleanupExpiredHonorsRetention(t *testing.T) {
	o, st, _, _ := newTestOrchestrator(t, nil)

	now := time.Now()
	old := &store.Proof{
		ID:          uuid.NewString(),
		TimestampNs: now.Add(-31 * 24 * time.Hour).UnixNano(),
		Method:      "simulatedCamera",
		SensorData:  []byte(`{}`),
		Confidence:  0.8,
	}
	recent := &store.Proof{
		ID:          uuid.NewString(),
		TimestampNs: now.Add(-29 * 24 * time.Hour).UnixNano(),
		Method:      "simulatedCamera",
		SensorData:  []byte(`{}`),
		Confidence:  0.8,
	}
	if err := st.InsertProof(old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if err := st.InsertProof(recent); err != nil {
		t.Fatalf("insert recent: %v", err)
	}

	deleted, err := o.CleanupExpired()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	if p, _ := st.GetProof(old.ID); p != nil {
		t.Error("expired proof survived cleanup")
	}
	if p, _ := st.GetProof(recent.ID); p == nil {
		t.Error("recent proof deleted")
	}
}

func TestStateTransitions(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateRequested, StateCaptureStarted},
		{StateCaptureStarted, StateAwaitingVerification},
		{StateAwaitingVerification, StateVerified},
		{StateAwaitingVerification, StateRejected},
		{StateVerified, StateCompleted},
		{StateRejected, StateCompleted},
	}
	for _, tc := range legal {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StateRequested, StateVerified},
		{StateCompleted, StateRequested},
		{StateVerified, StateRejected},
		{StateAwaitingVerification, StateCompleted},
	}
	for _, tc := range illegal {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}
