// Package store provides SQLite-based persistence for circled.
package store

import "time"

// PermissionType identifies an OS-level capability the app can request.
type PermissionType string

const (
	PermissionLocation      PermissionType = "location"
	PermissionMotion        PermissionType = "motion"
	PermissionCamera        PermissionType = "camera"
	PermissionNotifications PermissionType = "notifications"
	PermissionContacts      PermissionType = "contacts"
	PermissionHealth        PermissionType = "health"
)

// AllPermissionTypes lists every tracked permission type in onboarding order.
func AllPermissionTypes() []PermissionType {
	return []PermissionType{
		PermissionNotifications,
		PermissionLocation,
		PermissionMotion,
		PermissionCamera,
		PermissionContacts,
		PermissionHealth,
	}
}

// PermissionStatus is the live authorization state of a permission type.
type PermissionStatus string

const (
	StatusGranted       PermissionStatus = "granted"
	StatusDenied        PermissionStatus = "denied"
	StatusRestricted    PermissionStatus = "restricted"
	StatusNotDetermined PermissionStatus = "notDetermined"
	StatusNotAvailable  PermissionStatus = "notAvailable"
)

// Terminal reports whether the status can no longer change through a user
// prompt. notAvailable means the device lacks the capability entirely.
func (s PermissionStatus) Terminal() bool {
	return s == StatusGranted || s == StatusRestricted || s == StatusNotAvailable
}

// HealthSnapshot is the persisted daily activity rollup, upserted per
// local calendar day.
type HealthSnapshot struct {
	Day            string // YYYY-MM-DD in the device's local calendar
	Steps          int64
	DistanceMeters float64
	SleepHours     float64
	WeekSteps      int64
	MonthSteps     int64
	UpdatedAtNs    int64
}

// PermissionRecord is the live record for one permission type. The current
// status is always the most recent OS query result.
type PermissionRecord struct {
	Type          PermissionType
	Status        PermissionStatus
	LastCheckedNs int64
}

// ConsentEntry is an immutable append-only record of an observed permission
// status transition. PreviousStatus is nil on first observation.
type ConsentEntry struct {
	ID             string
	PermissionType PermissionType
	PreviousStatus *PermissionStatus
	CurrentStatus  PermissionStatus
	TimestampNs    int64
	Reason         string
	UserAction     string
	AppVersion     string
	DeviceInfo     string
}

// EntityKind identifies the domain entity a proof is associated with.
type EntityKind string

const (
	EntityChallenge EntityKind = "challenge"
	EntityHangout   EntityKind = "hangoutSession"
	EntityForfeit   EntityKind = "forfeit"
)

// EntityRef points at the domain entity that triggered a proof, if any.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// Proof is a persisted verification record. Read-only after creation except
// for age-based cleanup deletion.
type Proof struct {
	ID          string
	OwnerUserID string
	Entity      *EntityRef
	TimestampNs int64
	Verified    bool
	Confidence  float64
	Liveness    float64
	Method      string
	SensorData  []byte
	Attestation []byte
	Notes       string
}

// Timestamp returns the proof creation time.
func (p *Proof) Timestamp() time.Time {
	return time.Unix(0, p.TimestampNs)
}
