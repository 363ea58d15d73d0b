package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// SoftwareAttestor signs payload hashes with an ephemeral ed25519 key.
// The key lives for the process lifetime only; attestations from the
// same run share a public key.
type SoftwareAttestor struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

type softwareAttestation struct {
	Method      string `json:"method"`
	PublicKey   string `json:"publicKey"`
	PayloadHash string `json:"payloadHash"`
	Signature   string `json:"signature"`
	SignedAt    string `json:"signedAt"`
}

func newSoftwareAttestor() *SoftwareAttestor {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		// rand.Reader failing means the host is unusable anyway.
		panic(fmt.Sprintf("attest: generate ed25519 key: %v", err))
	}
	return &SoftwareAttestor{pub: pub, priv: priv}
}

// Attest implements Attestor.
func (a *SoftwareAttestor) Attest(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig := ed25519.Sign(a.priv, digest[:])

	blob, err := json.Marshal(softwareAttestation{
		Method:      a.Method(),
		PublicKey:   base64.StdEncoding.EncodeToString(a.pub),
		PayloadHash: base64.StdEncoding.EncodeToString(digest[:]),
		Signature:   base64.StdEncoding.EncodeToString(sig),
		SignedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal software attestation: %w", err)
	}
	return blob, nil
}

// Method implements Attestor.
func (a *SoftwareAttestor) Method() string { return "software-ed25519" }

// Close implements Attestor.
func (a *SoftwareAttestor) Close() error { return nil }

// Verify checks a software attestation against a payload.
func Verify(blob, payload []byte) error {
	var att softwareAttestation
	if err := json.Unmarshal(blob, &att); err != nil {
		return fmt.Errorf("parse attestation: %w", err)
	}
	if att.Method != "software-ed25519" {
		return fmt.Errorf("unsupported attestation method %q", att.Method)
	}
	pub, err := base64.StdEncoding.DecodeString(att.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid attestation public key")
	}
	sig, err := base64.StdEncoding.DecodeString(att.Signature)
	if err != nil {
		return fmt.Errorf("invalid attestation signature encoding")
	}
	digest := sha256.Sum256(payload)
	if got := base64.StdEncoding.EncodeToString(digest[:]); got != att.PayloadHash {
		return fmt.Errorf("attestation payload hash mismatch")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
		return fmt.Errorf("attestation signature invalid")
	}
	return nil
}
