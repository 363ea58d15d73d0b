package events

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeFiltered(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(KindProofForfeit)
	defer cancel()

	bus.Publish(KindThemeChanged, nil)
	bus.Publish(KindProofForfeit, "payload")

	e := recv(t, ch)
	if e.Kind != KindProofForfeit {
		t.Errorf("Kind = %s, want proof.completed.forfeit", e.Kind)
	}
	if e.Payload != "payload" {
		t.Errorf("Payload = %v", e.Payload)
	}

	select {
	case e := <-ch:
		t.Errorf("unexpected extra event: %+v", e)
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(KindPermissionChanged, 1)
	bus.Publish(KindThemeChanged, 2)

	if e := recv(t, ch); e.Kind != KindPermissionChanged {
		t.Errorf("first event kind = %s", e.Kind)
	}
	if e := recv(t, ch); e.Kind != KindThemeChanged {
		t.Errorf("second event kind = %s", e.Kind)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(KindThemeChanged, nil)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(KindPermissionChanged, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on full subscriber")
	}
}
