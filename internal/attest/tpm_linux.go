//go:build linux

package attest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// TPM device paths in order of preference.
var tpmDevicePaths = []string{
	"/dev/tpmrm0",
	"/dev/tpm0",
}

// HardwareAttestor quotes payload hashes with a TPM 2.0 attestation key.
type HardwareAttestor struct {
	mu        sync.Mutex
	transport transport.TPMCloser
	akHandle  tpm2.TPMHandle
}

type hardwareAttestation struct {
	Method      string `json:"method"`
	PayloadHash string `json:"payloadHash"`
	Quote       string `json:"quote"`
	Signature   string `json:"signature"`
	SignedAt    string `json:"signedAt"`
}

func newHardwareAttestor() (*HardwareAttestor, error) {
	var devicePath string
	for _, path := range tpmDevicePaths {
		if _, err := os.Stat(path); err == nil {
			devicePath = path
			break
		}
	}
	if devicePath == "" {
		return nil, fmt.Errorf("no tpm device present")
	}

	tpmTransport, err := transport.OpenTPM(devicePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}

	a := &HardwareAttestor{transport: tpmTransport}
	if err := a.createAK(); err != nil {
		tpmTransport.Close()
		return nil, err
	}
	return a, nil
}

// createAK creates a restricted RSA signing key under the endorsement
// hierarchy for quoting.
func (a *HardwareAttestor) createAK() error {
	createAKCmd := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.TPMRHEndorsement,
		InPublic: tpm2.New2B(tpm2.TPMTPublic{
			Type:    tpm2.TPMAlgRSA,
			NameAlg: tpm2.TPMAlgSHA256,
			ObjectAttributes: tpm2.TPMAObject{
				FixedTPM:            true,
				FixedParent:         true,
				SensitiveDataOrigin: true,
				UserWithAuth:        true,
				Restricted:          true,
				SignEncrypt:         true,
			},
			Parameters: tpm2.NewTPMUPublicParms(
				tpm2.TPMAlgRSA,
				&tpm2.TPMSRSAParms{
					Scheme: tpm2.TPMTRSAScheme{
						Scheme: tpm2.TPMAlgRSASSA,
						Details: tpm2.NewTPMUAsymScheme(
							tpm2.TPMAlgRSASSA,
							&tpm2.TPMSSigSchemeRSASSA{HashAlg: tpm2.TPMAlgSHA256},
						),
					},
					KeyBits: 2048,
				},
			),
		}),
	}

	rsp, err := createAKCmd.Execute(a.transport)
	if err != nil {
		return fmt.Errorf("create attestation key: %w", err)
	}
	a.akHandle = rsp.ObjectHandle
	return nil
}

// Attest implements Attestor by producing a TPM quote with the payload
// hash as qualifying data.
func (a *HardwareAttestor) Attest(payload []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	digest := sha256.Sum256(payload)

	quoteCmd := tpm2.Quote{
		SignHandle: tpm2.AuthHandle{
			Handle: a.akHandle,
			Auth:   tpm2.PasswordAuth(nil),
		},
		QualifyingData: tpm2.TPM2BData{Buffer: digest[:]},
		InScheme: tpm2.TPMTSigScheme{
			Scheme: tpm2.TPMAlgRSASSA,
			Details: tpm2.NewTPMUSigScheme(
				tpm2.TPMAlgRSASSA,
				&tpm2.TPMSSchemeHash{HashAlg: tpm2.TPMAlgSHA256},
			),
		},
		PCRSelect: tpm2.TPMLPCRSelection{
			PCRSelections: []tpm2.TPMSPCRSelection{
				{
					Hash:      tpm2.TPMAlgSHA256,
					PCRSelect: tpm2.PCClientCompatible.PCRs(0, 1, 2, 3, 7),
				},
			},
		},
	}

	rsp, err := quoteCmd.Execute(a.transport)
	if err != nil {
		return nil, fmt.Errorf("tpm quote: %w", err)
	}

	quoteData, err := rsp.Quoted.Contents()
	if err != nil {
		return nil, fmt.Errorf("read quote contents: %w", err)
	}
	attestBytes := tpm2.Marshal(quoteData)
	sigBytes := tpm2.Marshal(&rsp.Signature)

	blob, err := json.Marshal(hardwareAttestation{
		Method:      a.Method(),
		PayloadHash: base64.StdEncoding.EncodeToString(digest[:]),
		Quote:       base64.StdEncoding.EncodeToString(attestBytes),
		Signature:   base64.StdEncoding.EncodeToString(sigBytes),
		SignedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal hardware attestation: %w", err)
	}
	return blob, nil
}

// Method implements Attestor.
func (a *HardwareAttestor) Method() string { return "tpm2-quote" }

// Close flushes the attestation key and releases the device.
func (a *HardwareAttestor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.akHandle != 0 {
		flushCmd := tpm2.FlushContext{FlushHandle: a.akHandle}
		flushCmd.Execute(a.transport)
		a.akHandle = 0
	}
	if a.transport != nil {
		return a.transport.Close()
	}
	return nil
}
