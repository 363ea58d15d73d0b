package permissions

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/crypto/hkdf"

	"circled/internal/analytics"
	"circled/internal/store"
)

const (
	exportSchemaVersion = 1
	exportKeySetting    = "consent_export_key"
	exportKeyInfo       = "circled consent export v1"
)

// exportSchema constrains the serialized consent export. Validation
// runs on every export before the bytes leave the process.
const exportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["metadata", "entries", "seal"],
  "properties": {
    "metadata": {
      "type": "object",
      "required": ["schemaVersion", "appVersion", "deviceInfo", "exportedAt", "entryCount"],
      "properties": {
        "schemaVersion": {"type": "integer", "minimum": 1},
        "appVersion": {"type": "string"},
        "deviceInfo": {"type": "string"},
        "exportedAt": {"type": "string"},
        "entryCount": {"type": "integer", "minimum": 0}
      }
    },
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "permissionType", "currentStatus", "timestamp", "reason", "userAction"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "permissionType": {
            "enum": ["location", "motion", "camera", "notifications", "contacts", "health"]
          },
          "previousStatus": {
            "type": ["string", "null"],
            "enum": ["granted", "denied", "restricted", "notDetermined", "notAvailable", null]
          },
          "currentStatus": {
            "enum": ["granted", "denied", "restricted", "notDetermined", "notAvailable"]
          },
          "timestamp": {"type": "string"},
          "reason": {"type": "string"},
          "userAction": {"type": "string"},
          "appVersion": {"type": "string"},
          "deviceInfo": {"type": "string"}
        }
      }
    },
    "seal": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
  }
}`

var compiledExportSchema = jsonschema.MustCompileString("consent-export.schema.json", exportSchema)

// ExportMetadata describes the export envelope.
type ExportMetadata struct {
	SchemaVersion int    `json:"schemaVersion"`
	AppVersion    string `json:"appVersion"`
	DeviceInfo    string `json:"deviceInfo"`
	ExportedAt    string `json:"exportedAt"`
	EntryCount    int    `json:"entryCount"`
}

// ExportEntry is the wire form of one consent log entry.
type ExportEntry struct {
	ID             string  `json:"id"`
	PermissionType string  `json:"permissionType"`
	PreviousStatus *string `json:"previousStatus"`
	CurrentStatus  string  `json:"currentStatus"`
	Timestamp      string  `json:"timestamp"`
	Reason         string  `json:"reason"`
	UserAction     string  `json:"userAction"`
	AppVersion     string  `json:"appVersion"`
	DeviceInfo     string  `json:"deviceInfo"`
}

// ConsentExport is the full sealed export document.
type ConsentExport struct {
	Metadata ExportMetadata `json:"metadata"`
	Entries  []ExportEntry  `json:"entries"`
	Seal     string         `json:"seal"`
}

// ExportLog serializes the entire consent log as sealed JSON. The seal
// is an HMAC over the document with an empty seal field, keyed by a
// device-local secret derived through HKDF.
func (r *Registry) ExportLog() ([]byte, error) {
	entries, err := r.st.GetConsentEntries(0)
	if err != nil {
		return nil, fmt.Errorf("load consent entries: %w", err)
	}

	doc := ConsentExport{
		Metadata: ExportMetadata{
			SchemaVersion: exportSchemaVersion,
			AppVersion:    r.appVersion,
			DeviceInfo:    r.deviceInfo,
			ExportedAt:    time.Now().UTC().Format(time.RFC3339),
			EntryCount:    len(entries),
		},
		Entries: make([]ExportEntry, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, exportEntry(e))
	}

	key, err := r.exportKey()
	if err != nil {
		return nil, err
	}
	if doc.Seal, err = sealExport(&doc, key); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal consent export: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode consent export for validation: %w", err)
	}
	if err := compiledExportSchema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("consent export failed schema validation: %w", err)
	}

	if r.m != nil {
		r.m.ExportsTotal.Inc()
	}
	if r.sink != nil {
		r.sink.Emit("permissions", analytics.EventConsentExported, map[string]any{"entries": len(entries)})
	}
	return data, nil
}

// VerifyExport recomputes an export's seal with the registry's key.
func (r *Registry) VerifyExport(data []byte) error {
	var doc ConsentExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse consent export: %w", err)
	}
	key, err := r.exportKey()
	if err != nil {
		return err
	}
	want := doc.Seal
	got, err := sealExport(&doc, key)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(got)) {
		return fmt.Errorf("consent export seal mismatch")
	}
	return nil
}

// exportKey loads or creates the device export secret and derives the
// sealing key from it.
func (r *Registry) exportKey() ([]byte, error) {
	secretHex, err := r.st.GetSetting(exportKeySetting)
	if err != nil {
		return nil, fmt.Errorf("load export key: %w", err)
	}
	var secret []byte
	if secretHex == "" {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate export key: %w", err)
		}
		if err := r.st.SetSetting(exportKeySetting, hex.EncodeToString(secret)); err != nil {
			return nil, fmt.Errorf("persist export key: %w", err)
		}
	} else {
		if secret, err = hex.DecodeString(secretHex); err != nil {
			return nil, fmt.Errorf("decode export key: %w", err)
		}
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(exportKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive export seal key: %w", err)
	}
	return key, nil
}

func sealExport(doc *ConsentExport, key []byte) (string, error) {
	unsealed := *doc
	unsealed.Seal = ""
	payload, err := json.Marshal(&unsealed)
	if err != nil {
		return "", fmt.Errorf("marshal export payload: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func exportEntry(e store.ConsentEntry) ExportEntry {
	out := ExportEntry{
		ID:             e.ID,
		PermissionType: string(e.PermissionType),
		CurrentStatus:  string(e.CurrentStatus),
		Timestamp:      time.Unix(0, e.TimestampNs).UTC().Format(time.RFC3339Nano),
		Reason:         e.Reason,
		UserAction:     e.UserAction,
		AppVersion:     e.AppVersion,
		DeviceInfo:     e.DeviceInfo,
	}
	if e.PreviousStatus != nil {
		s := string(*e.PreviousStatus)
		out.PreviousStatus = &s
	}
	return out
}
