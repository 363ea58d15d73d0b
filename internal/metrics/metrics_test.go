package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("circled")
	c := r.RegisterCounter("checks_total", "checks", nil)
	g := r.RegisterGauge("running", "running", nil)

	c.Inc()
	c.Add(2)
	g.Set(1)
	g.Inc()
	g.Dec()

	if c.Value() != 3 {
		t.Errorf("counter = %d, want 3", c.Value())
	}
	if g.Value() != 1 {
		t.Errorf("gauge = %d, want 1", g.Value())
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry("circled")
	a := r.RegisterCounter("x_total", "x", nil)
	b := r.RegisterCounter("x_total", "x", nil)
	if a != b {
		t.Error("re-registration should return the same counter")
	}
}

func TestHistogramObserve(t *testing.T) {
	r := NewRegistry("circled")
	h := r.RegisterHistogram("dur_seconds", "durations", nil, []float64{0.1, 1, 10})

	h.Observe(0.05)
	h.Observe(0.5)
	h.ObserveDuration(20 * time.Second) // overflow bucket

	if h.Count() != 3 {
		t.Errorf("count = %d, want 3", h.Count())
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("circled")
	c := r.RegisterCounter("proofs_total", "Total proofs", Labels{"kind": "forfeit"})
	c.Add(7)
	g := r.RegisterGauge("poller_running", "Poller state", nil)
	g.Set(1)

	var sb strings.Builder
	if err := r.WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# TYPE circled_proofs_total counter",
		`circled_proofs_total{kind="forfeit"} 7`,
		"# TYPE circled_poller_running gauge",
		"circled_poller_running 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCircledMetricsRegisters(t *testing.T) {
	m := NewCircledMetrics(nil)
	m.ProofsRequestedTotal.Inc()
	m.PollerRunning.Set(1)

	var sb strings.Builder
	if err := m.Registry().WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	if !strings.Contains(sb.String(), "circled_proofs_requested_total 1") {
		t.Errorf("missing proofs counter:\n%s", sb.String())
	}
}
