// Package onboarding drives the startup permission flow: an ordered
// walk over every tracked permission type, prompting for each one that
// is still undetermined.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"circled/internal/analytics"
	"circled/internal/events"
	"circled/internal/permissions"
	"circled/internal/store"
)

const doneSetting = "onboarding_done"

// Flow walks the user through permission prompts in a fixed order.
type Flow struct {
	reg  *permissions.Registry
	st   *store.Store
	bus  *events.Bus
	sink *analytics.Sink
	log  *slog.Logger

	mu     sync.Mutex
	steps  []store.PermissionType
	index  int
	active bool
}

// NewFlow creates the startup permission flow.
func NewFlow(reg *permissions.Registry, st *store.Store, bus *events.Bus, sink *analytics.Sink, log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	return &Flow{reg: reg, st: st, bus: bus, sink: sink, log: log}
}

// ShouldRun reports whether the flow must run on this launch: always on
// first launch, and afterwards whenever any permission is still
// undetermined or was denied.
func (f *Flow) ShouldRun(ctx context.Context) bool {
	done, err := f.st.GetSetting(doneSetting)
	if err != nil {
		f.log.Warn("onboarding flag read failed", "error", err)
		return true
	}
	if done != "true" {
		return true
	}

	f.reg.CheckAll(ctx)
	for _, rec := range f.reg.Records() {
		if rec.Status == store.StatusNotDetermined || rec.Status == store.StatusDenied {
			return true
		}
	}
	return false
}

// Start begins the flow over every registered permission type.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return fmt.Errorf("onboarding already in progress")
	}

	f.steps = f.reg.Types()
	if len(f.steps) == 0 {
		return fmt.Errorf("no permission types registered")
	}
	f.index = 0
	f.active = true

	if f.sink != nil {
		f.sink.Emit("onboarding", analytics.EventOnboardingStarted, map[string]any{"steps": len(f.steps)})
	}
	f.log.Info("onboarding started", "steps", len(f.steps))
	return nil
}

// Active reports whether the flow is in progress.
func (f *Flow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Current returns the permission type awaiting a decision.
func (f *Flow) Current() (store.PermissionType, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active || f.index >= len(f.steps) {
		return "", false
	}
	return f.steps[f.index], true
}

// Advance prompts for the current step and moves to the next one. done
// is true once the last step is consumed.
func (f *Flow) Advance(ctx context.Context) (next store.PermissionType, done bool, err error) {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return "", false, fmt.Errorf("onboarding not in progress")
	}
	current := f.steps[f.index]
	f.mu.Unlock()

	// Terminal statuses cannot change through a prompt; skip the ask.
	if rec, ok := f.reg.Record(current); !ok || !rec.Status.Terminal() {
		f.reg.RequestAccess(ctx, current)
	}

	return f.step(true)
}

// Skip dismisses the flow, abandoning the remaining steps. The
// completion flag stays unset so the flow runs again on next launch.
func (f *Flow) Skip() error {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return fmt.Errorf("onboarding not in progress")
	}
	remaining := len(f.steps) - f.index
	f.active = false
	f.mu.Unlock()

	if f.sink != nil {
		f.sink.Emit("onboarding", analytics.EventOnboardingSkipped, map[string]any{"remaining": remaining})
	}
	f.log.Info("onboarding dismissed", "remaining", remaining)
	return nil
}

// SkipStep passes over the current step without prompting and moves on.
// A flow whose last step is skipped ends without the completion flag.
func (f *Flow) SkipStep() (next store.PermissionType, done bool, err error) {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return "", false, fmt.Errorf("onboarding not in progress")
	}
	current := f.steps[f.index]
	f.mu.Unlock()

	if f.sink != nil {
		f.sink.Emit("onboarding", analytics.EventOnboardingSkipped, map[string]any{"type": string(current)})
	}
	return f.step(false)
}

// Completed reports whether the flow has ever finished on this device.
func (f *Flow) Completed() bool {
	done, err := f.st.GetSetting(doneSetting)
	return err == nil && done == "true"
}

// Reset clears the completion flag so the flow runs on next launch.
func (f *Flow) Reset() error {
	return f.st.DeleteSetting(doneSetting)
}

func (f *Flow) step(markDone bool) (store.PermissionType, bool, error) {
	f.mu.Lock()
	f.index++
	if f.index < len(f.steps) {
		next := f.steps[f.index]
		f.mu.Unlock()
		return next, false, nil
	}
	f.active = false
	f.mu.Unlock()

	if !markDone {
		f.log.Info("onboarding ended without completion")
		return "", true, nil
	}

	if err := f.st.SetSetting(doneSetting, "true"); err != nil {
		return "", true, fmt.Errorf("persist onboarding completion: %w", err)
	}
	if f.sink != nil {
		f.sink.Emit("onboarding", analytics.EventOnboardingDone, nil)
	}
	if f.bus != nil {
		f.bus.Publish(events.KindOnboardingDone, nil)
	}
	f.log.Info("onboarding completed")
	return "", true, nil
}
