// Package attest binds proof payloads to the device that produced them.
//
// When a TPM 2.0 device is present the attestation is a TPM quote with
// the payload hash as qualifying data. Otherwise a per-process ed25519
// key signs the payload so attestations remain structurally uniform.
package attest

import "log/slog"

// Attestor produces device attestations over arbitrary payloads.
type Attestor interface {
	// Attest returns an opaque attestation blob bound to payload.
	Attest(payload []byte) ([]byte, error)
	// Method names the attestation mechanism for proof records.
	Method() string
	Close() error
}

// New selects the strongest attestor available on this host.
func New(log *slog.Logger) Attestor {
	if log == nil {
		log = slog.Default()
	}
	if a, err := newHardwareAttestor(); err == nil {
		log.Info("hardware attestation enabled", "method", a.Method())
		return a
	} else {
		log.Info("hardware attestation unavailable, using software signer", "reason", err)
	}
	return newSoftwareAttestor()
}
