package permissions

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"circled/internal/events"
	"circled/internal/metrics"
	"circled/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "circled.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st, nil, nil, metrics.NewCircledMetrics(nil), nil, "1.0.0-test", 100), st
}

func TestFirstObservationAppendsEntryWithNilPrevious(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Register(store.PermissionCamera, NewStaticProvider(store.StatusNotDetermined, store.StatusGranted))

	rec, err := reg.Check(context.Background(), store.PermissionCamera)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if rec.Status != store.StatusNotDetermined {
		t.Fatalf("status = %q, want notDetermined", rec.Status)
	}

	history, err := reg.History(store.PermissionCamera)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].PreviousStatus != nil {
		t.Errorf("first observation previous status = %v, want nil", *history[0].PreviousStatus)
	}
	if history[0].ID == "" {
		t.Error("entry id is empty")
	}
}

func TestTransitionAppendsExactlyOneEntry(t *testing.T) {
	reg, _ := newTestRegistry(t)
	provider := NewStaticProvider(store.StatusNotDetermined, store.StatusGranted)
	reg.Register(store.PermissionLocation, provider)

	ctx := context.Background()
	if _, err := reg.Check(ctx, store.PermissionLocation); err != nil {
		t.Fatalf("first check: %v", err)
	}
	// Re-checking an unchanged status appends nothing.
	if _, err := reg.Check(ctx, store.PermissionLocation); err != nil {
		t.Fatalf("second check: %v", err)
	}

	provider.SetStatus(store.StatusGranted)
	if _, err := reg.Check(ctx, store.PermissionLocation); err != nil {
		t.Fatalf("third check: %v", err)
	}

	history, err := reg.History(store.PermissionLocation)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	last := history[len(history)-1]
	if last.PreviousStatus == nil || *last.PreviousStatus != store.StatusNotDetermined {
		t.Errorf("previous status = %v, want notDetermined", last.PreviousStatus)
	}
	if last.CurrentStatus != store.StatusGranted {
		t.Errorf("current status = %q, want granted", last.CurrentStatus)
	}
}

func TestTransitionPublishesBusEvent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "circled.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus()
	reg := NewRegistry(st, bus, nil, nil, nil, "1.0.0-test", 100)
	reg.Register(store.PermissionMotion, NewStaticProvider(store.StatusGranted, store.StatusGranted))

	ch, cancel := bus.Subscribe(events.KindPermissionChanged)
	defer cancel()

	if _, err := reg.Check(context.Background(), store.PermissionMotion); err != nil {
		t.Fatalf("check: %v", err)
	}

	select {
	case ev := <-ch:
		change, ok := ev.Payload.(PermissionChange)
		if !ok {
			t.Fatalf("payload type %T", ev.Payload)
		}
		if change.Type != store.PermissionMotion || change.Current != store.StatusGranted {
			t.Errorf("unexpected change payload: %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("no permission.changed event received")
	}
}

func TestRequestAccessRecordsPromptResponse(t *testing.T) {
	reg, _ := newTestRegistry(t)
	provider := NewStaticProvider(store.StatusNotDetermined, store.StatusGranted)
	reg.Register(store.PermissionNotifications, provider)

	ctx := context.Background()
	if _, err := reg.Check(ctx, store.PermissionNotifications); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !reg.RequestAccess(ctx, store.PermissionNotifications) {
		t.Fatal("request access = false, want granted")
	}
	if provider.AskCount() != 1 {
		t.Errorf("ask count = %d, want 1", provider.AskCount())
	}

	history, err := reg.History(store.PermissionNotifications)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if got := history[1].UserAction; got != "prompt_response" {
		t.Errorf("user action = %q, want prompt_response", got)
	}
}

func TestCheckAllCoversRegisteredTypes(t *testing.T) {
	reg, _ := newTestRegistry(t)
	for _, typ := range store.AllPermissionTypes() {
		reg.Register(typ, NewStaticProvider(store.StatusDenied, store.StatusDenied))
	}

	reg.CheckAll(context.Background())

	records := reg.Records()
	if len(records) != len(store.AllPermissionTypes()) {
		t.Fatalf("records = %d, want %d", len(records), len(store.AllPermissionTypes()))
	}
	for _, rec := range records {
		if rec.Status != store.StatusDenied {
			t.Errorf("%s status = %q, want denied", rec.Type, rec.Status)
		}
	}
}

func TestClearRemovesEntriesAndCache(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Register(store.PermissionHealth, NewStaticProvider(store.StatusGranted, store.StatusGranted))

	if _, err := reg.Check(context.Background(), store.PermissionHealth); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := reg.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	entries, err := reg.RecentEntries()
	if err != nil {
		t.Fatalf("recent entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after clear = %d, want 0", len(entries))
	}
	if _, ok := reg.Record(store.PermissionHealth); ok {
		t.Error("record cache survived clear")
	}
}

func TestExportLogSealsAndValidates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	provider := NewStaticProvider(store.StatusNotDetermined, store.StatusGranted)
	reg.Register(store.PermissionCamera, provider)

	ctx := context.Background()
	if _, err := reg.Check(ctx, store.PermissionCamera); err != nil {
		t.Fatalf("check: %v", err)
	}
	provider.SetStatus(store.StatusGranted)
	if _, err := reg.Check(ctx, store.PermissionCamera); err != nil {
		t.Fatalf("check: %v", err)
	}

	data, err := reg.ExportLog()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var doc ConsentExport
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if doc.Metadata.EntryCount != 2 || len(doc.Entries) != 2 {
		t.Fatalf("entry count = %d/%d, want 2", doc.Metadata.EntryCount, len(doc.Entries))
	}
	if len(doc.Seal) != 64 {
		t.Fatalf("seal length = %d, want 64 hex chars", len(doc.Seal))
	}
	if err := reg.VerifyExport(data); err != nil {
		t.Fatalf("verify export: %v", err)
	}

	tampered := bytes.Replace(data, []byte("granted"), []byte("denied!"), 1)
	if err := reg.VerifyExport(tampered); err == nil {
		t.Error("verify accepted tampered export")
	}
}

func TestPollerForegroundBackground(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Register(store.PermissionContacts, NewStaticProvider(store.StatusGranted, store.StatusGranted))

	p := NewPoller(reg, time.Minute, nil, nil)
	p.HandleForeground()
	if !p.Running() {
		t.Fatal("poller not running after foreground")
	}

	// The first check is immediate.
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := reg.Record(store.PermissionContacts); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("immediate check never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	p.HandleBackground()
	if p.Running() {
		t.Fatal("poller still running after background")
	}
	p.HandleBackground() // idempotent
}
