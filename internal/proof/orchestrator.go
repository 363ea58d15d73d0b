package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"circled/internal/analytics"
	"circled/internal/attest"
	"circled/internal/events"
	"circled/internal/metrics"
	"circled/internal/store"
)

// Options configures the orchestrator.
type Options struct {
	OwnerUserID   string
	CaptureBudget time.Duration // max wall time for evidence capture
	Retention     time.Duration // proofs older than this are deleted
}

// Session is one in-flight proof request.
type Session struct {
	ID        string
	Entity    *store.EntityRef
	State     State
	StartedAt time.Time
}

// ProofCompleted is the bus payload broadcast when a proof finishes.
type ProofCompleted struct {
	Proof  *store.Proof
	Entity *store.EntityRef
}

// Orchestrator drives proofs through capture, verification and
// persistence, and routes completions to the interested domain.
type Orchestrator struct {
	st       *store.Store
	bus      *events.Bus
	sink     *analytics.Sink
	m        *metrics.CircledMetrics
	log      *slog.Logger
	capturer Capturer
	verifier Verifier
	attestor attest.Attestor
	opts     Options

	mu        sync.Mutex
	sessions  map[string]*Session
	hangouts  map[string]bool // session id -> motion anomaly observed
	lastError string
}

// NewOrchestrator wires a proof orchestrator. attestor may be nil.
func NewOrchestrator(st *store.Store, bus *events.Bus, sink *analytics.Sink, m *metrics.CircledMetrics, log *slog.Logger, capturer Capturer, verifier Verifier, attestor attest.Attestor, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.CaptureBudget <= 0 {
		opts.CaptureBudget = 10 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	return &Orchestrator{
		st:       st,
		bus:      bus,
		sink:     sink,
		m:        m,
		log:      log,
		capturer: capturer,
		verifier: verifier,
		attestor: attestor,
		opts:     opts,
		sessions: make(map[string]*Session),
		hangouts: make(map[string]bool),
	}
}

// RequestProof runs the full proof lifecycle for an entity: capture
// within the budget, verification, validation, persistence and
// completion routing. A rejected proof is persisted and returned with
// Verified false; only infrastructure failures return an error.
func (o *Orchestrator) RequestProof(ctx context.Context, entity *store.EntityRef) (*store.Proof, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Entity:    entity,
		State:     StateRequested,
		StartedAt: time.Now(),
	}
	o.trackSession(sess)
	defer o.untrackSession(sess.ID)

	if o.m != nil {
		o.m.ProofsRequestedTotal.Inc()
	}
	if o.sink != nil {
		o.sink.Emit("proof", analytics.EventProofRequested, entityDetails(entity))
	}

	if err := sess.transition(StateCaptureStarted); err != nil {
		return nil, err
	}

	captureCtx, cancel := context.WithTimeout(ctx, o.opts.CaptureBudget)
	captureStart := time.Now()
	result, err := o.capturer.Capture(captureCtx, entity)
	cancel()
	if o.m != nil {
		o.m.CaptureDuration.ObserveDuration(time.Since(captureStart))
	}
	if err != nil {
		sess.transition(StateRejected)
		sess.transition(StateCompleted)
		o.setError(fmt.Sprintf("capture failed: %v", err))
		return nil, fmt.Errorf("capture proof evidence: %w", err)
	}

	p := &store.Proof{
		ID:          sess.ID,
		OwnerUserID: o.opts.OwnerUserID,
		Entity:      entity,
		TimestampNs: time.Now().UnixNano(),
		Method:      result.Method,
		SensorData:  result.SensorData,
		Liveness:    result.Liveness,
	}

	if err := sess.transition(StateAwaitingVerification); err != nil {
		return nil, err
	}

	verifyStart := time.Now()
	verdict, err := o.verifier.Verify(ctx, p)
	if o.m != nil {
		o.m.VerificationDuration.ObserveDuration(time.Since(verifyStart))
	}
	if err != nil {
		sess.transition(StateRejected)
		sess.transition(StateCompleted)
		o.setError(fmt.Sprintf("verification failed: %v", err))
		return nil, fmt.Errorf("verify proof: %w", err)
	}

	p.Verified = verdict.Verified
	p.Confidence = verdict.Confidence
	p.Notes = verdict.Notes

	if violations := ValidateProof(p); len(violations) > 0 {
		sess.transition(StateRejected)
		sess.transition(StateCompleted)
		msg := strings.Join(violations, "; ")
		o.setError(msg)
		return nil, fmt.Errorf("proof validation failed: %s", msg)
	}

	if p.Verified {
		if err := sess.transition(StateVerified); err != nil {
			return nil, err
		}
		if o.attestor != nil {
			if blob, aerr := o.attestationFor(p); aerr != nil {
				o.log.Warn("attestation skipped", "proof", p.ID, "error", aerr)
			} else {
				p.Attestation = blob
			}
		}
	} else {
		if err := sess.transition(StateRejected); err != nil {
			return nil, err
		}
	}

	if err := o.st.InsertProof(p); err != nil {
		o.setError(fmt.Sprintf("persist proof: %v", err))
		return nil, fmt.Errorf("persist proof: %w", err)
	}

	if err := sess.transition(StateCompleted); err != nil {
		return nil, err
	}

	if p.Verified {
		if o.m != nil {
			o.m.ProofsVerifiedTotal.Inc()
		}
		if o.sink != nil {
			o.sink.Emit("proof", analytics.EventProofVerified, proofDetails(p))
		}
	} else {
		if o.m != nil {
			o.m.ProofsRejectedTotal.Inc()
		}
		if o.sink != nil {
			o.sink.Emit("proof", analytics.EventProofRejected, proofDetails(p))
		}
	}

	o.broadcastCompletion(p)
	o.log.Info("proof completed", "proof", p.ID, "verified", p.Verified, "confidence", p.Confidence)
	return p, nil
}

// CompleteForfeitProof finalizes a forfeit. Forfeits always require a
// verified proof; passing nil is a caller contract violation.
func (o *Orchestrator) CompleteForfeitProof(p *store.Proof, forfeitID string) error {
	if p == nil {
		return fmt.Errorf("complete forfeit %s: forfeit completion requires a proof", forfeitID)
	}
	if !p.Verified {
		return fmt.Errorf("complete forfeit %s: proof %s is not verified", forfeitID, p.ID)
	}
	if o.bus != nil {
		o.bus.Publish(events.KindProofForfeit, ProofCompleted{
			Proof:  p,
			Entity: &store.EntityRef{Kind: store.EntityForfeit, ID: forfeitID},
		})
	}
	return nil
}

// StartHangoutSession begins anomaly tracking for a hangout.
func (o *Orchestrator) StartHangoutSession(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hangouts[sessionID] = false
}

// ReportMotionAnomaly flags a hangout session as suspicious. The next
// EndHangoutSession call will demand a captured proof.
func (o *Orchestrator) ReportMotionAnomaly(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.hangouts[sessionID]; ok {
		o.hangouts[sessionID] = true
	}
}

// EndHangoutSession finalizes a hangout. Sessions with a motion anomaly
// run the full capture and verification pipeline; clean sessions are
// auto-verified without capture.
func (o *Orchestrator) EndHangoutSession(ctx context.Context, sessionID string) (*store.Proof, error) {
	o.mu.Lock()
	anomaly, tracked := o.hangouts[sessionID]
	delete(o.hangouts, sessionID)
	o.mu.Unlock()

	if !tracked {
		return nil, fmt.Errorf("end hangout: unknown session %s", sessionID)
	}

	entity := &store.EntityRef{Kind: store.EntityHangout, ID: sessionID}
	if anomaly {
		return o.RequestProof(ctx, entity)
	}
	return o.autoVerify(entity)
}

// HandleChallengeIntegrityFailure requests a proof after a challenge
// integrity check fails.
func (o *Orchestrator) HandleChallengeIntegrityFailure(ctx context.Context, challengeID string) (*store.Proof, error) {
	return o.RequestProof(ctx, &store.EntityRef{Kind: store.EntityChallenge, ID: challengeID})
}

// HandleSuspiciousMotion requests an anti-cheat proof not tied to any
// domain entity.
func (o *Orchestrator) HandleSuspiciousMotion(ctx context.Context) (*store.Proof, error) {
	return o.RequestProof(ctx, nil)
}

// ValidateProof checks a proof's structural invariants and returns every
// violation found, not just the first.
func ValidateProof(p *store.Proof) []string {
	var violations []string
	if p.ID == "" {
		violations = append(violations, "proof id is empty")
	}
	if p.TimestampNs <= 0 {
		violations = append(violations, "timestamp is unset")
	} else if p.TimestampNs > time.Now().Add(time.Minute).UnixNano() {
		violations = append(violations, "timestamp is in the future")
	}
	if p.Method == "" {
		violations = append(violations, "verification method is empty")
	}
	if len(p.SensorData) == 0 {
		violations = append(violations, "sensor payload is missing")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		violations = append(violations, fmt.Sprintf("confidence %.3f outside [0, 1]", p.Confidence))
	}
	if p.Liveness < 0 || p.Liveness > 1 {
		violations = append(violations, fmt.Sprintf("liveness %.3f outside [0, 1]", p.Liveness))
	}
	return violations
}

// CleanupExpired deletes proofs older than the retention window and
// returns how many were removed.
func (o *Orchestrator) CleanupExpired() (int64, error) {
	cutoff := time.Now().Add(-o.opts.Retention).UnixNano()
	deleted, err := o.st.DeleteProofsOlderThan(cutoff)
	if err != nil {
		o.setError(fmt.Sprintf("proof cleanup: %v", err))
		return 0, fmt.Errorf("delete expired proofs: %w", err)
	}
	if deleted > 0 {
		o.log.Info("expired proofs deleted", "count", deleted)
	}
	return deleted, nil
}

// ProofsForEntity returns the persisted proofs for one domain entity.
func (o *Orchestrator) ProofsForEntity(kind store.EntityKind, id string) ([]store.Proof, error) {
	return o.st.GetProofsForEntity(kind, id)
}

// Proof returns one persisted proof by id, nil when absent.
func (o *Orchestrator) Proof(id string) (*store.Proof, error) {
	return o.st.GetProof(id)
}

// InflightSessions returns the in-flight proof sessions.
func (o *Orchestrator) InflightSessions() []Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, *s)
	}
	return out
}

// LastError returns the most recent failure message, if any.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// autoVerify persists a verified proof without running capture.
func (o *Orchestrator) autoVerify(entity *store.EntityRef) (*store.Proof, error) {
	payload, err := json.Marshal(map[string]any{
		"autoVerified": true,
		"entityKind":   string(entity.Kind),
		"entityId":     entity.ID,
		"verifiedAt":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal auto-verification payload: %w", err)
	}

	p := &store.Proof{
		ID:          uuid.NewString(),
		OwnerUserID: o.opts.OwnerUserID,
		Entity:      entity,
		TimestampNs: time.Now().UnixNano(),
		Verified:    true,
		Confidence:  1.0,
		Liveness:    1.0,
		Method:      "autoVerified",
		SensorData:  payload,
		Notes:       "no motion anomaly observed",
	}
	if err := o.st.InsertProof(p); err != nil {
		o.setError(fmt.Sprintf("persist auto-verified proof: %v", err))
		return nil, fmt.Errorf("persist auto-verified proof: %w", err)
	}

	if o.m != nil {
		o.m.ProofsVerifiedTotal.Inc()
	}
	if o.sink != nil {
		o.sink.Emit("proof", analytics.EventProofVerified, proofDetails(p))
	}
	o.broadcastCompletion(p)
	return p, nil
}

// broadcastCompletion routes a finished proof to the interested domain.
func (o *Orchestrator) broadcastCompletion(p *store.Proof) {
	if o.bus == nil {
		return
	}
	kind := events.KindProofAntiCheat
	if p.Entity != nil {
		switch p.Entity.Kind {
		case store.EntityChallenge:
			kind = events.KindProofChallenge
		case store.EntityHangout:
			kind = events.KindProofHangout
		case store.EntityForfeit:
			kind = events.KindProofForfeit
		}
	}
	o.bus.Publish(kind, ProofCompleted{Proof: p, Entity: p.Entity})
}

// attestationFor binds the proof's identity and sensor payload to the
// device.
func (o *Orchestrator) attestationFor(p *store.Proof) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"proofId":     p.ID,
		"timestampNs": p.TimestampNs,
		"method":      p.Method,
		"sensorData":  p.SensorData,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal attestation payload: %w", err)
	}
	return o.attestor.Attest(payload)
}

func (o *Orchestrator) trackSession(s *Session) {
	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()
	if o.m != nil {
		o.m.InflightProofs.Inc()
	}
}

func (o *Orchestrator) untrackSession(id string) {
	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
	if o.m != nil {
		o.m.InflightProofs.Dec()
	}
}

func (o *Orchestrator) setError(msg string) {
	o.mu.Lock()
	o.lastError = msg
	o.mu.Unlock()
	if o.m != nil {
		o.m.ErrorsTotal.Inc()
	}
}

func entityDetails(entity *store.EntityRef) map[string]any {
	if entity == nil {
		return map[string]any{"entityKind": "antiCheat"}
	}
	return map[string]any{"entityKind": string(entity.Kind), "entityId": entity.ID}
}

func proofDetails(p *store.Proof) map[string]any {
	details := entityDetails(p.Entity)
	details["proofId"] = p.ID
	details["confidence"] = p.Confidence
	details["method"] = p.Method
	return details
}
