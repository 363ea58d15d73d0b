// Package metrics provides Prometheus-compatible metrics for circled.
package metrics

// CircledMetrics holds all circled-specific metrics.
type CircledMetrics struct {
	registry *Registry

	// Counters
	PermissionChecksTotal *Counter
	ConsentEntriesTotal   *Counter
	ProofsRequestedTotal  *Counter
	ProofsVerifiedTotal   *Counter
	ProofsRejectedTotal   *Counter
	HealthFetchesTotal    *Counter
	HealthFetchErrors     *Counter
	ExportsTotal          *Counter
	ErrorsTotal           *Counter

	// Gauges
	PollerRunning  *Gauge
	InflightProofs *Gauge

	// Histograms
	CaptureDuration      *Histogram
	VerificationDuration *Histogram
}

// NewCircledMetrics creates and registers all circled metrics.
func NewCircledMetrics(registry *Registry) *CircledMetrics {
	if registry == nil {
		registry = NewRegistry("circled")
	}

	return &CircledMetrics{
		registry: registry,

		PermissionChecksTotal: registry.RegisterCounter(
			"permission_checks_total",
			"Total number of permission status checks",
			nil,
		),
		ConsentEntriesTotal: registry.RegisterCounter(
			"consent_entries_total",
			"Total number of consent log entries appended",
			nil,
		),
		ProofsRequestedTotal: registry.RegisterCounter(
			"proofs_requested_total",
			"Total number of proof verification requests",
			nil,
		),
		ProofsVerifiedTotal: registry.RegisterCounter(
			"proofs_verified_total",
			"Total number of proofs that verified",
			nil,
		),
		ProofsRejectedTotal: registry.RegisterCounter(
			"proofs_rejected_total",
			"Total number of proofs that were rejected",
			nil,
		),
		HealthFetchesTotal: registry.RegisterCounter(
			"health_fetches_total",
			"Total number of health metric fetches",
			nil,
		),
		HealthFetchErrors: registry.RegisterCounter(
			"health_fetch_errors_total",
			"Total number of health fetches coerced to zero",
			nil,
		),
		ExportsTotal: registry.RegisterCounter(
			"exports_total",
			"Total number of consent log exports",
			nil,
		),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total",
			"Total number of manager errors",
			nil,
		),

		PollerRunning: registry.RegisterGauge(
			"permission_poller_running",
			"Whether the permission poller is running (1) or stopped (0)",
			nil,
		),
		InflightProofs: registry.RegisterGauge(
			"inflight_proof_requests",
			"Number of proof requests currently in flight",
			nil,
		),

		CaptureDuration: registry.RegisterHistogram(
			"capture_duration_seconds",
			"Duration of proof capture sessions",
			nil, DurationBuckets,
		),
		VerificationDuration: registry.RegisterHistogram(
			"verification_duration_seconds",
			"Duration of proof verification collection",
			nil, DurationBuckets,
		),
	}
}

// Registry returns the backing registry.
func (m *CircledMetrics) Registry() *Registry {
	return m.registry
}
