package permissions

import (
	"context"
	"sync"

	"circled/internal/store"
)

// StaticProvider is an in-process status provider whose status is set
// directly. Used for capabilities the host exposes no query surface
// for, and throughout tests.
type StaticProvider struct {
	mu      sync.Mutex
	status  store.PermissionStatus
	onAsk   store.PermissionStatus
	askErr  error
	asked   int
}

// NewStaticProvider creates a provider reporting the given status.
// Request transitions to onAsk.
func NewStaticProvider(status, onAsk store.PermissionStatus) *StaticProvider {
	return &StaticProvider{status: status, onAsk: onAsk}
}

// SetStatus overrides the reported status.
func (p *StaticProvider) SetStatus(s store.PermissionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// SetRequestError makes Request fail.
func (p *StaticProvider) SetRequestError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.askErr = err
}

// AskCount returns how many times Request was called.
func (p *StaticProvider) AskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asked
}

// Status implements StatusProvider.
func (p *StaticProvider) Status(ctx context.Context) store.PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Request implements StatusProvider.
func (p *StaticProvider) Request(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked++
	if p.askErr != nil {
		return false, p.askErr
	}
	p.status = p.onAsk
	return p.status == store.StatusGranted, nil
}
