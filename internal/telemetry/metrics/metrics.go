// Package metrics defines a small Provider abstraction over Counter/Gauge/
// Histogram/Timer instruments, adapted from engine/internal/telemetry/metrics
// so the orchestrator and its stages never import a concrete backend — only
// cmd/leadpipe wires a real Provider (Prometheus or OTel) at startup.
package metrics

import "context"

type CommonOpts struct {
	Namespace, Subsystem, Name, Help string
	Labels                           []string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

type Counter interface{ Inc(delta float64, labels ...string) }
type Gauge interface {
	Set(v float64, labels ...string)
	Add(delta float64, labels ...string)
}
type Histogram interface{ Observe(v float64, labels ...string) }
type Timer interface{ ObserveDuration(labels ...string) }

// Provider is the factory for instruments. Implementations register each
// instrument once and return the same handle for repeated calls with the
// same fully-qualified name (spec.md DOMAIN STACK: per-stage counters and
// latency histograms, exposed via Prometheus).
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	NewTimer(h HistogramOpts) func() Timer
	Health(ctx context.Context) error
}

type noopProvider struct{}

// Noop is the zero-config Provider used when no backend is configured;
// every instrument call is a cheap no-op.
func Noop() Provider { return noopProvider{} }

func (noopProvider) NewCounter(CounterOpts) Counter           { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge                 { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram     { return noopHistogram{} }
func (noopProvider) NewTimer(HistogramOpts) func() Timer      { return func() Timer { return noopTimer{} } }
func (noopProvider) Health(context.Context) error             { return nil }

type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}
type noopTimer struct{}

func (noopCounter) Inc(float64, ...string)       {}
func (noopGauge) Set(float64, ...string)         {}
func (noopGauge) Add(float64, ...string)         {}
func (noopHistogram) Observe(float64, ...string) {}
func (noopTimer) ObserveDuration(...string)      {}

// LeadPipeMetrics is the fixed set of instruments the orchestrator and its
// stages emit, built once from a Provider at startup (spec.md DOMAIN STACK:
// "fetch/extract/classify/enrich/export counts and latencies, queue
// depths"). Keeping this as a struct of pre-built instruments, rather than
// ad hoc NewCounter calls scattered through the pipeline, mirrors the
// teacher's pattern of building named instruments once in a constructor
// (engine/telemetry/metrics/adapter_business.go).
type LeadPipeMetrics struct {
	FetchAttempts    Counter
	FetchLatency     Histogram
	ExtractCandidates Counter
	ClassifyAccepted Counter
	ClassifyRejected Counter
	EnrichProviderLatency Histogram
	StoreUpserts     Counter
	StoreDuplicates  Counter
	ExportResults    Counter
	QueueDepth       Gauge
}

// New builds the fixed leadpipe instrument set against p.
func New(p Provider) *LeadPipeMetrics {
	if p == nil {
		p = Noop()
	}
	const ns = "leadpipe"
	return &LeadPipeMetrics{
		FetchAttempts: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "fetch", Name: "attempts_total", Help: "fetch attempts by source and outcome", Labels: []string{"source_id", "outcome"}}}),
		FetchLatency:  p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: ns, Subsystem: "fetch", Name: "latency_seconds", Help: "fetch latency by source", Labels: []string{"source_id"}}}),
		ExtractCandidates: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "extract", Name: "candidates_total", Help: "candidates produced by source", Labels: []string{"source_id"}}}),
		ClassifyAccepted: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "classify", Name: "accepted_total", Help: "candidates accepted by sector", Labels: []string{"sector"}}}),
		ClassifyRejected: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "classify", Name: "rejected_total", Help: "candidates rejected by reason", Labels: []string{"reason"}}}),
		EnrichProviderLatency: p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: ns, Subsystem: "enrich", Name: "provider_latency_seconds", Help: "enrichment provider latency", Labels: []string{"provider"}}}),
		StoreUpserts: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "store", Name: "upserts_total", Help: "store upserts by outcome", Labels: []string{"outcome"}}}),
		StoreDuplicates: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "store", Name: "duplicates_total", Help: "duplicate leads found", Labels: []string{}}}),
		ExportResults: p.NewCounter(CounterOpts{CommonOpts{Namespace: ns, Subsystem: "export", Name: "results_total", Help: "export attempts by outcome", Labels: []string{"outcome"}}}),
		QueueDepth:   p.NewGauge(GaugeOpts{CommonOpts{Namespace: ns, Subsystem: "orchestrator", Name: "queue_depth", Help: "current depth of a pipeline stage queue", Labels: []string{"stage"}}}),
	}
}
