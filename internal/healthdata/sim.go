package healthdata

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SimulatedProvider is an in-memory health provider for development and
// tests. Values are keyed by metric kind and calendar day.
type SimulatedProvider struct {
	mu         sync.Mutex
	aggregates map[MetricKind]map[string]float64
	samples    []Sample
	authorized bool
	available  bool
}

// NewSimulatedProvider creates an available, empty provider.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		aggregates: make(map[MetricKind]map[string]float64),
		available:  true,
	}
}

// SetAvailable controls simulated device capability.
func (p *SimulatedProvider) SetAvailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = v
}

// SetAggregate sets the daily total for a metric kind.
func (p *SimulatedProvider) SetAggregate(kind MetricKind, day time.Time, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := day.Format("2006-01-02")
	if p.aggregates[kind] == nil {
		p.aggregates[kind] = make(map[string]float64)
	}
	p.aggregates[kind][key] = value
}

// AddSample appends a provider sample.
func (p *SimulatedProvider) AddSample(s Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, s)
}

// Available implements Provider.
func (p *SimulatedProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// RequestAuthorization implements Provider.
func (p *SimulatedProvider) RequestAuthorization(_ context.Context, _, _ []MetricKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return errors.New("health data unavailable")
	}
	p.authorized = true
	return nil
}

// QueryAggregate implements Provider.
func (p *SimulatedProvider) QueryAggregate(_ context.Context, kind MetricKind, start, _ time.Time) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aggregates[kind][start.Format("2006-01-02")], nil
}

// QuerySamples implements Provider.
func (p *SimulatedProvider) QuerySamples(_ context.Context, kind MetricKind, start, end time.Time) ([]Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Sample
	for _, s := range p.samples {
		if s.Kind != kind {
			continue
		}
		if s.End.Before(start) || !s.Start.Before(end) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Save implements Provider.
func (p *SimulatedProvider) Save(_ context.Context, s Sample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, s)
	return nil
}
