// Package healthdata implements the health metric gateway for circled.
//
// The gateway fronts a platform health provider (step counts, distance,
// sleep samples) and rolls results up into persisted daily snapshots.
// Provider failures are logged and coerced to zero: callers always get a
// number, never an error, and cannot distinguish "no activity" from a
// failed fetch. Authorization is a precondition; unauthorized calls
// short-circuit to zero without touching the provider.
package healthdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"circled/internal/metrics"
	"circled/internal/store"
)

// MetricKind identifies a queryable health metric.
type MetricKind string

const (
	MetricSteps    MetricKind = "steps"
	MetricDistance MetricKind = "distance"
	MetricSleep    MetricKind = "sleep"
)

// Sleep sample categories counted toward time in bed.
const (
	CategoryInBed  = "inBed"
	CategoryAsleep = "asleep"
)

// Sample is a single provider sample with its time extent.
type Sample struct {
	Kind     MetricKind
	Value    float64
	Category string
	Start    time.Time
	End      time.Time
}

// Provider is the platform health data source.
type Provider interface {
	// Available reports whether the device exposes health data at all.
	Available() bool

	// RequestAuthorization prompts for read/write access to the given
	// metric kinds.
	RequestAuthorization(ctx context.Context, read, write []MetricKind) error

	// QueryAggregate sums a quantity metric over [start, end).
	QueryAggregate(ctx context.Context, kind MetricKind, start, end time.Time) (float64, error)

	// QuerySamples returns individual samples overlapping [start, end).
	QuerySamples(ctx context.Context, kind MetricKind, start, end time.Time) ([]Sample, error)

	// Save persists a sample back to the provider.
	Save(ctx context.Context, s Sample) error
}

// Gateway fetches and aggregates health metrics.
type Gateway struct {
	provider Provider
	store    *store.Store
	log      *slog.Logger
	metrics  *metrics.CircledMetrics

	mu         sync.Mutex
	authorized bool
	lastError  string
}

// NewGateway creates a health data gateway.
func NewGateway(provider Provider, st *store.Store, log *slog.Logger, m *metrics.CircledMetrics) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		provider: provider,
		store:    st,
		log:      log,
		metrics:  m,
	}
}

// RequestAuthorization asks the provider for read access to every metric
// kind. Returns false without error when the device has no health data.
func (g *Gateway) RequestAuthorization(ctx context.Context) bool {
	if !g.provider.Available() {
		g.setError("health data not available on this device")
		return false
	}

	read := []MetricKind{MetricSteps, MetricDistance, MetricSleep}
	if err := g.provider.RequestAuthorization(ctx, read, nil); err != nil {
		g.setError(fmt.Sprintf("authorization failed: %v", err))
		g.log.Warn("health authorization failed", "error", err)
		return false
	}

	g.mu.Lock()
	g.authorized = true
	g.mu.Unlock()
	return true
}

// Authorized reports whether the gateway has been granted access.
func (g *Gateway) Authorized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorized
}

// LastError returns the most recent failure message, if any.
func (g *Gateway) LastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastError
}

func (g *Gateway) setError(msg string) {
	g.mu.Lock()
	g.lastError = msg
	g.mu.Unlock()
}

// FetchMetric sums a quantity metric over the local calendar day containing
// day. The window is half-open: start of day to start of the next day.
func (g *Gateway) FetchMetric(ctx context.Context, kind MetricKind, day time.Time) float64 {
	if !g.Authorized() {
		return 0
	}

	start := startOfDay(day)
	end := start.AddDate(0, 0, 1)

	if g.metrics != nil {
		g.metrics.HealthFetchesTotal.Inc()
	}

	v, err := g.provider.QueryAggregate(ctx, kind, start, end)
	if err != nil {
		g.setError(fmt.Sprintf("fetch %s: %v", kind, err))
		g.log.Warn("health fetch failed, reporting zero", "kind", kind, "error", err)
		if g.metrics != nil {
			g.metrics.HealthFetchErrors.Inc()
		}
		return 0
	}
	return v
}

// FetchSleepHours sums the durations of inBed/asleep samples within the
// given day's window and converts to hours.
func (g *Gateway) FetchSleepHours(ctx context.Context, day time.Time) float64 {
	if !g.Authorized() {
		return 0
	}

	start := startOfDay(day)
	end := start.AddDate(0, 0, 1)

	samples, err := g.provider.QuerySamples(ctx, MetricSleep, start, end)
	if err != nil {
		g.setError(fmt.Sprintf("fetch sleep: %v", err))
		g.log.Warn("sleep fetch failed, reporting zero", "error", err)
		if g.metrics != nil {
			g.metrics.HealthFetchErrors.Inc()
		}
		return 0
	}

	var total time.Duration
	for _, s := range samples {
		if s.Category != CategoryInBed && s.Category != CategoryAsleep {
			continue
		}
		total += s.End.Sub(s.Start)
	}
	return total.Hours()
}

// AggregateSteps sums steps per day over [from, to], iterating calendar
// days sequentially. Days are resolved in from's location.
func (g *Gateway) AggregateSteps(ctx context.Context, from, to time.Time) int64 {
	var total int64
	for day := startOfDay(from); !day.After(to); day = day.AddDate(0, 0, 1) {
		total += int64(g.FetchMetric(ctx, MetricSteps, day))
	}
	return total
}

// RefreshAll fetches today's metrics plus week/month step totals and
// upserts the snapshot for today's calendar day.
func (g *Gateway) RefreshAll(ctx context.Context) (*store.HealthSnapshot, error) {
	now := time.Now()
	today := startOfDay(now)

	snap := &store.HealthSnapshot{
		Day:            today.Format("2006-01-02"),
		Steps:          int64(g.FetchMetric(ctx, MetricSteps, now)),
		DistanceMeters: g.FetchMetric(ctx, MetricDistance, now),
		SleepHours:     g.FetchSleepHours(ctx, now),
		WeekSteps:      g.AggregateSteps(ctx, today.AddDate(0, 0, -6), now),
		MonthSteps:     g.AggregateSteps(ctx, today.AddDate(0, -1, 0), now),
		UpdatedAtNs:    now.UnixNano(),
	}

	if err := g.store.UpsertHealthSnapshot(snap); err != nil {
		g.setError(fmt.Sprintf("persist snapshot: %v", err))
		g.log.Error("snapshot persist failed", "error", err)
		return snap, fmt.Errorf("refresh all: %w", err)
	}
	return snap, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
