package permissions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"circled/internal/metrics"
)

// Poller re-checks all permission types on a fixed cadence while the
// app is foregrounded. Stop abandons the in-flight cycle without
// waiting for it.
type Poller struct {
	registry *Registry
	interval time.Duration
	m        *metrics.CircledMetrics
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewPoller creates a poller over the registry. Intervals below ten
// seconds are clamped.
func NewPoller(registry *Registry, interval time.Duration, m *metrics.CircledMetrics, log *slog.Logger) *Poller {
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{registry: registry, interval: interval, m: m, log: log}
}

// Start begins polling. The first check runs immediately. Calling
// Start while running is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	if p.m != nil {
		p.m.PollerRunning.Set(1)
	}
	p.log.Info("permission poller started", "interval", p.interval)

	go p.loop(ctx)
}

// Stop cancels polling without waiting for the current cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.cancel = nil
	p.running = false
	p.mu.Unlock()

	if p.m != nil {
		p.m.PollerRunning.Set(0)
	}
	p.log.Info("permission poller stopped")
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// HandleForeground starts polling with an immediate full check.
func (p *Poller) HandleForeground() { p.Start() }

// HandleBackground stops polling.
func (p *Poller) HandleBackground() { p.Stop() }

func (p *Poller) loop(ctx context.Context) {
	p.registry.CheckAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.registry.CheckAll(ctx)
		}
	}
}
