// Package events provides the typed in-process event bus connecting the
// service managers to downstream consumers. It replaces stringly-typed
// broadcast notifications with subscriptions keyed by event kind.
package events

import (
	"sync"
	"time"
)

// Kind identifies an event category.
type Kind string

const (
	// KindPermissionChanged fires on any observed permission status change.
	KindPermissionChanged Kind = "permission.changed"

	// Proof completion events, one per triggering domain.
	KindProofChallenge Kind = "proof.completed.challenge"
	KindProofHangout   Kind = "proof.completed.hangout"
	KindProofForfeit   Kind = "proof.completed.forfeit"
	KindProofAntiCheat Kind = "proof.completed.anticheat"

	// KindThemeChanged fires when the theme selection changes.
	KindThemeChanged Kind = "theme.changed"

	// KindOnboardingDone fires when the startup permission flow completes.
	KindOnboardingDone Kind = "onboarding.done"
)

// Event is an immutable notification delivered to subscribers.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// subscriber is a single registered channel with its kind filter.
type subscriber struct {
	ch    chan Event
	kinds map[Kind]bool // nil means all kinds
}

// Bus is a non-blocking publish/subscribe event bus. Publish never blocks:
// events are dropped for subscribers whose buffers are full.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a buffered subscription for the given kinds. With no
// kinds, every event is delivered. The returned cancel function removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 16)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// Publish delivers an event to matching subscribers without blocking.
func (b *Bus) Publish(kind Kind, payload any) {
	e := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.kinds != nil && !s.kinds[kind] {
			continue
		}
		select {
		case s.ch <- e:
		default:
			// Slow subscriber, drop.
		}
	}
}
