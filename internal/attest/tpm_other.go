//go:build !linux

package attest

import "fmt"

func newHardwareAttestor() (Attestor, error) {
	return nil, fmt.Errorf("hardware attestation not supported on this platform")
}
