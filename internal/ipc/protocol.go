// Package ipc provides local socket communication between the circled
// daemon and client tools.
//
// Messages are a fixed 16-byte header followed by a JSON payload. The
// protocol is strictly request/response; the request id correlates the
// two.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x43495043 // "CIPC"

	// HeaderSize is the size of the wire header in bytes.
	HeaderSize = 16

	// MaxPayload bounds a single message payload.
	MaxPayload = 16 * 1024 * 1024
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	// Status (0x01xx)
	MsgStatus     MessageType = 0x0100
	MsgStatusResp MessageType = 0x0101

	// Permissions (0x02xx)
	MsgCheckAll          MessageType = 0x0200
	MsgCheckAllResp      MessageType = 0x0201
	MsgExportConsent     MessageType = 0x0202
	MsgExportConsentResp MessageType = 0x0203
	MsgClearConsent      MessageType = 0x0204
	MsgClearConsentResp  MessageType = 0x0205
	MsgForeground        MessageType = 0x0206
	MsgForegroundResp    MessageType = 0x0207
	MsgBackground        MessageType = 0x0208
	MsgBackgroundResp    MessageType = 0x0209

	// Proofs (0x03xx)
	MsgCleanupProofs     MessageType = 0x0300
	MsgCleanupProofsResp MessageType = 0x0301

	// Theme (0x04xx)
	MsgThemeGet     MessageType = 0x0400
	MsgThemeGetResp MessageType = 0x0401
	MsgThemeSet     MessageType = 0x0402
	MsgThemeSetResp MessageType = 0x0403

	// Health data (0x05xx)
	MsgHealthRefresh     MessageType = 0x0500
	MsgHealthRefreshResp MessageType = 0x0501
)

// Header is the fixed-size message header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // payload length, not including the header
}

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the message to a writer.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty payload for message type 0x%04x", m.Header.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// Request/response payloads.

// PermissionInfo is the wire form of one permission record.
type PermissionInfo struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	LastChecked string `json:"last_checked"`
}

// StatusResponse describes the daemon's runtime state.
type StatusResponse struct {
	Version        string           `json:"version"`
	Uptime         string           `json:"uptime"`
	Health         string           `json:"health"`
	PollerRunning  bool             `json:"poller_running"`
	InflightProofs int              `json:"inflight_proofs"`
	Permissions    []PermissionInfo `json:"permissions"`
	Theme          string           `json:"theme"`
	Accent         string           `json:"accent"`
	OnboardingDone bool             `json:"onboarding_done"`
}

// CheckAllResponse carries the records after a forced re-check.
type CheckAllResponse struct {
	Permissions []PermissionInfo `json:"permissions"`
}

// ExportConsentResponse carries the sealed consent export document.
type ExportConsentResponse struct {
	Export json.RawMessage `json:"export"`
}

// ClearConsentResponse acknowledges a consent log wipe.
type ClearConsentResponse struct {
	Cleared bool `json:"cleared"`
}

// CleanupProofsResponse reports how many proofs were removed.
type CleanupProofsResponse struct {
	Deleted int64 `json:"deleted"`
}

// ThemeResponse carries the current theme selection.
type ThemeResponse struct {
	Theme  string `json:"theme"`
	Accent string `json:"accent"`
}

// ThemeSetRequest changes the theme selection. Empty fields are left
// unchanged.
type ThemeSetRequest struct {
	Theme  string `json:"theme,omitempty"`
	Accent string `json:"accent,omitempty"`
}

// HealthRefreshResponse carries the refreshed daily snapshot.
type HealthRefreshResponse struct {
	Day            string  `json:"day"`
	Steps          int64   `json:"steps"`
	DistanceMeters float64 `json:"distance_meters"`
	SleepHours     float64 `json:"sleep_hours"`
	WeekSteps      int64   `json:"week_steps"`
	MonthSteps     int64   `json:"month_steps"`
}

// AckResponse is a generic success acknowledgement.
type AckResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrInternalError  = 5
)
