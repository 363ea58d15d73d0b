// Package permissions implements the OS permission registry for circled.
//
// The registry mirrors live OS authorization status for each capability
// type and appends an immutable consent log entry on every observed
// transition, including the very first observation. A poller re-checks
// all types on a fixed cadence while the app is foregrounded.
package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"circled/internal/analytics"
	"circled/internal/events"
	"circled/internal/metrics"
	"circled/internal/store"
)

// StatusProvider exposes one permission type's live OS status.
// Status is synchronous; Request may prompt the user.
type StatusProvider interface {
	Status(ctx context.Context) store.PermissionStatus
	Request(ctx context.Context) (bool, error)
}

// PermissionChange is the bus payload for an observed transition.
type PermissionChange struct {
	Type     store.PermissionType
	Previous *store.PermissionStatus
	Current  store.PermissionStatus
}

// Registry tracks permission status and maintains the consent log.
type Registry struct {
	st   *store.Store
	bus  *events.Bus
	sink *analytics.Sink
	m    *metrics.CircledMetrics
	log  *slog.Logger

	appVersion string
	deviceInfo string
	loadLimit  int

	mu        sync.Mutex
	providers map[store.PermissionType]StatusProvider
	records   map[store.PermissionType]store.PermissionRecord
	lastError string
}

// NewRegistry creates a permission registry. loadLimit caps how many
// consent entries RecentEntries returns; 0 means unlimited.
func NewRegistry(st *store.Store, bus *events.Bus, sink *analytics.Sink, m *metrics.CircledMetrics, log *slog.Logger, appVersion string, loadLimit int) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		st:         st,
		bus:        bus,
		sink:       sink,
		m:          m,
		log:        log,
		appVersion: appVersion,
		deviceInfo: deviceInfo(),
		loadLimit:  loadLimit,
		providers:  make(map[store.PermissionType]StatusProvider),
		records:    make(map[store.PermissionType]store.PermissionRecord),
	}
}

// Register attaches a status provider for a permission type.
func (r *Registry) Register(t store.PermissionType, p StatusProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[t] = p
}

// Types returns the registered permission types in onboarding order.
func (r *Registry) Types() []store.PermissionType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.PermissionType
	for _, t := range store.AllPermissionTypes() {
		if _, ok := r.providers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Check re-evaluates a permission type's live status. On any change,
// including the first observation, exactly one consent entry is appended.
func (r *Registry) Check(ctx context.Context, t store.PermissionType) (store.PermissionRecord, error) {
	return r.check(ctx, t, "system_check")
}

func (r *Registry) check(ctx context.Context, t store.PermissionType, userAction string) (store.PermissionRecord, error) {
	r.mu.Lock()
	provider, ok := r.providers[t]
	r.mu.Unlock()
	if !ok {
		return store.PermissionRecord{}, fmt.Errorf("check permission: no provider for %s", t)
	}

	status := provider.Status(ctx)
	now := time.Now().UnixNano()

	if r.m != nil {
		r.m.PermissionChecksTotal.Inc()
	}

	r.mu.Lock()
	prevRecord, seen := r.records[t]
	r.mu.Unlock()

	if !seen {
		// Cold cache: fall back to the persisted record.
		stored, err := r.st.GetPermissionRecord(t)
		if err != nil {
			r.setError(fmt.Sprintf("load permission record: %v", err))
		} else if stored != nil {
			prevRecord = *stored
			seen = true
		}
	}

	record := store.PermissionRecord{Type: t, Status: status, LastCheckedNs: now}

	changed := !seen || prevRecord.Status != status
	if changed {
		var prev *store.PermissionStatus
		if seen {
			p := prevRecord.Status
			prev = &p
		}
		entry := &store.ConsentEntry{
			ID:             uuid.NewString(),
			PermissionType: t,
			PreviousStatus: prev,
			CurrentStatus:  status,
			TimestampNs:    now,
			Reason:         transitionReason(t, prev, status),
			UserAction:     userAction,
			AppVersion:     r.appVersion,
			DeviceInfo:     r.deviceInfo,
		}
		if err := r.st.AppendConsentEntry(entry); err != nil {
			// Persistence failure drops the entry; the live record
			// still updates.
			r.setError(fmt.Sprintf("append consent entry: %v", err))
			r.log.Error("consent entry dropped", "type", t, "error", err)
		} else if r.m != nil {
			r.m.ConsentEntriesTotal.Inc()
		}

		if r.sink != nil {
			name := analytics.EventPermissionChanged
			if status == store.StatusDenied {
				name = analytics.EventPermissionDenied
			}
			details := map[string]any{"type": string(t), "to": string(status)}
			if prev != nil {
				details["from"] = string(*prev)
			}
			r.sink.Emit("permissions", name, details)
		}
		if r.bus != nil {
			r.bus.Publish(events.KindPermissionChanged, PermissionChange{
				Type: t, Previous: prev, Current: status,
			})
		}
	}

	if err := r.st.UpsertPermissionRecord(&record); err != nil {
		r.setError(fmt.Sprintf("persist permission record: %v", err))
		r.log.Error("permission record persist failed", "type", t, "error", err)
	}

	r.mu.Lock()
	r.records[t] = record
	r.mu.Unlock()

	return record, nil
}

// CheckAll re-evaluates every registered permission type.
func (r *Registry) CheckAll(ctx context.Context) {
	for _, t := range r.Types() {
		if _, err := r.Check(ctx, t); err != nil {
			r.log.Warn("permission check failed", "type", t, "error", err)
		}
	}
}

// RequestAccess prompts for a permission and records the outcome with a
// prompt_response user action.
func (r *Registry) RequestAccess(ctx context.Context, t store.PermissionType) bool {
	r.mu.Lock()
	provider, ok := r.providers[t]
	r.mu.Unlock()
	if !ok {
		return false
	}

	granted, err := provider.Request(ctx)
	if err != nil {
		r.setError(fmt.Sprintf("request %s access: %v", t, err))
		r.log.Warn("permission request failed", "type", t, "error", err)
	}

	if _, err := r.check(ctx, t, "prompt_response"); err != nil {
		r.log.Warn("post-request check failed", "type", t, "error", err)
	}
	return granted
}

// Record returns the cached live record for a type.
func (r *Registry) Record(t store.PermissionType) (store.PermissionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[t]
	return rec, ok
}

// Records returns every cached live record.
func (r *Registry) Records() []store.PermissionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.PermissionRecord
	for _, t := range store.AllPermissionTypes() {
		if rec, ok := r.records[t]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// History returns a permission type's consent history, oldest first.
func (r *Registry) History(t store.PermissionType) ([]store.ConsentEntry, error) {
	return r.st.GetConsentEntriesForType(t)
}

// RecentEntries returns the newest consent entries up to the load cap.
func (r *Registry) RecentEntries() ([]store.ConsentEntry, error) {
	return r.st.GetConsentEntries(r.loadLimit)
}

// Clear deletes all persisted consent entries and the in-memory record
// cache.
func (r *Registry) Clear() error {
	if err := r.st.ClearConsentLog(); err != nil {
		return fmt.Errorf("clear consent log: %w", err)
	}
	r.mu.Lock()
	r.records = make(map[store.PermissionType]store.PermissionRecord)
	r.mu.Unlock()

	if r.sink != nil {
		r.sink.Emit("permissions", analytics.EventConsentCleared, nil)
	}
	return nil
}

// LastError returns the most recent failure message, if any.
func (r *Registry) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

func (r *Registry) setError(msg string) {
	r.mu.Lock()
	r.lastError = msg
	r.mu.Unlock()
	if r.m != nil {
		r.m.ErrorsTotal.Inc()
	}
}

// transitionReason synthesizes a human-readable reason for a consent entry.
func transitionReason(t store.PermissionType, prev *store.PermissionStatus, current store.PermissionStatus) string {
	if prev == nil {
		return fmt.Sprintf("initial observation of %s permission as %s", t, current)
	}
	switch current {
	case store.StatusGranted:
		return fmt.Sprintf("%s access granted (was %s)", t, *prev)
	case store.StatusDenied:
		return fmt.Sprintf("%s access denied (was %s)", t, *prev)
	case store.StatusRestricted:
		return fmt.Sprintf("%s access restricted by policy (was %s)", t, *prev)
	case store.StatusNotAvailable:
		return fmt.Sprintf("%s capability no longer available (was %s)", t, *prev)
	default:
		return fmt.Sprintf("%s permission reset to %s (was %s)", t, current, *prev)
	}
}
