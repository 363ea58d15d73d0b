package healthdata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"circled/internal/store"
)

func newTestGateway(t *testing.T, p Provider) *Gateway {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewGateway(p, st, nil, nil)
}

func TestUnauthorizedFetchReturnsZero(t *testing.T) {
	g := newTestGateway(t, NewSimulatedProvider())

	if v := g.FetchMetric(context.Background(), MetricSteps, time.Now()); v != 0 {
		t.Errorf("unauthorized FetchMetric = %v, want 0", v)
	}
	if v := g.FetchSleepHours(context.Background(), time.Now()); v != 0 {
		t.Errorf("unauthorized FetchSleepHours = %v, want 0", v)
	}
}

func TestUnavailableProviderDeniesAuthorization(t *testing.T) {
	p := NewSimulatedProvider()
	p.SetAvailable(false)
	g := newTestGateway(t, p)

	if g.RequestAuthorization(context.Background()) {
		t.Error("authorization should fail when device lacks health data")
	}
	if g.LastError() == "" {
		t.Error("expected a last-error message")
	}
}

func TestFetchMetric(t *testing.T) {
	p := NewSimulatedProvider()
	day := time.Date(2026, 8, 30, 14, 0, 0, 0, time.Local)
	p.SetAggregate(MetricSteps, day, 4321)

	g := newTestGateway(t, p)
	if !g.RequestAuthorization(context.Background()) {
		t.Fatal("authorization failed")
	}

	// Any time within the day resolves to the same half-open window.
	if v := g.FetchMetric(context.Background(), MetricSteps, day); v != 4321 {
		t.Errorf("FetchMetric = %v, want 4321", v)
	}
	late := time.Date(2026, 8, 30, 23, 59, 0, 0, time.Local)
	if v := g.FetchMetric(context.Background(), MetricSteps, late); v != 4321 {
		t.Errorf("FetchMetric near midnight = %v, want 4321", v)
	}
}

func TestFetchSleepHours(t *testing.T) {
	p := NewSimulatedProvider()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local)
	p.AddSample(Sample{
		Kind: MetricSleep, Category: CategoryInBed,
		Start: day.Add(1 * time.Hour), End: day.Add(3 * time.Hour),
	})
	p.AddSample(Sample{
		Kind: MetricSleep, Category: CategoryAsleep,
		Start: day.Add(3 * time.Hour), End: day.Add(7*time.Hour + 30*time.Minute),
	})
	// Awake samples do not count.
	p.AddSample(Sample{
		Kind: MetricSleep, Category: "awake",
		Start: day.Add(7 * time.Hour), End: day.Add(8 * time.Hour),
	})

	g := newTestGateway(t, p)
	g.RequestAuthorization(context.Background())

	got := g.FetchSleepHours(context.Background(), day.Add(12*time.Hour))
	if got != 6.5 {
		t.Errorf("FetchSleepHours = %v, want 6.5", got)
	}
}

func TestAggregateStepsMatchesPerDaySum(t *testing.T) {
	p := NewSimulatedProvider()
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.Local)
	var want int64
	for i := 0; i < 7; i++ {
		day := base.AddDate(0, 0, i)
		steps := float64(1000 + i*111)
		p.SetAggregate(MetricSteps, day, steps)
		want += int64(steps)
	}

	g := newTestGateway(t, p)
	g.RequestAuthorization(context.Background())

	got := g.AggregateSteps(context.Background(), base, base.AddDate(0, 0, 6))
	if got != want {
		t.Errorf("AggregateSteps = %d, want %d", got, want)
	}

	// Cross-check against individual fetches.
	var sum int64
	for i := 0; i < 7; i++ {
		sum += int64(g.FetchMetric(context.Background(), MetricSteps, base.AddDate(0, 0, i)))
	}
	if got != sum {
		t.Errorf("AggregateSteps = %d, per-day sum = %d", got, sum)
	}
}

// failingProvider errors on every query.
type failingProvider struct{ SimulatedProvider }

func (f *failingProvider) QueryAggregate(context.Context, MetricKind, time.Time, time.Time) (float64, error) {
	return 0, errors.New("transient query failure")
}

func TestQueryFailureCoercedToZero(t *testing.T) {
	p := &failingProvider{}
	p.available = true
	g := newTestGateway(t, p)
	g.RequestAuthorization(context.Background())

	if v := g.FetchMetric(context.Background(), MetricSteps, time.Now()); v != 0 {
		t.Errorf("failed fetch should coerce to zero, got %v", v)
	}
	if g.LastError() == "" {
		t.Error("failure should set last error")
	}
}

func TestRefreshAllPersistsSnapshot(t *testing.T) {
	p := NewSimulatedProvider()
	now := time.Now()
	p.SetAggregate(MetricSteps, now, 2500)
	p.SetAggregate(MetricDistance, now, 1800.5)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	g := NewGateway(p, st, nil, nil)
	g.RequestAuthorization(context.Background())

	snap, err := g.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if snap.Steps != 2500 || snap.DistanceMeters != 1800.5 {
		t.Errorf("snapshot mismatch: %+v", snap)
	}

	persisted, err := st.GetHealthSnapshot(snap.Day)
	if err != nil {
		t.Fatalf("GetHealthSnapshot failed: %v", err)
	}
	if persisted == nil || persisted.Steps != 2500 {
		t.Errorf("snapshot not persisted: %+v", persisted)
	}
}
