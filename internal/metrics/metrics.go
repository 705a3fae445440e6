// Package metrics provides Prometheus metrics for the reload engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "grug"

// Collector holds all engine metrics.
type Collector struct {
	Registry prometheus.Gatherer

	// Reload cycles
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Per-file compile results
	CompilesTotal      *prometheus.CounterVec
	CompileErrorsTotal *prometheus.CounterVec
	BuildDuration      prometheus.Histogram
	CacheHits          prometheus.Counter

	// Libraries and registry
	LibrariesLive     prometheus.Gauge
	LibrariesRetiring prometheus.Gauge
	RegistryFiles     prometheus.Gauge
	ResourceReloads   prometheus.Counter

	// Runtime faults
	FaultsTotal *prometheus.CounterVec
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	c := newCollector(promauto.With(prometheus.DefaultRegisterer))
	c.Registry = prometheus.DefaultGatherer
	return c
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	c := newCollector(promauto.With(reg))
	c.Registry = reg
	return c
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reload_cycles_total",
				Help:      "Total number of reload cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reload_cycle_duration_seconds",
				Help:      "Reload cycle duration in seconds",
				Buckets:   []float64{.001, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		CompilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_total",
				Help:      "Total number of mod file compiles by result",
			},
			[]string{"result"},
		),
		CompileErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_errors_total",
				Help:      "Total number of mod file compile errors by error code",
			},
			[]string{"code"},
		),
		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Toolchain build duration per mod file in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_cache_hits_total",
				Help:      "Total number of builds skipped because an identical artifact existed",
			},
		),
		LibrariesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "libraries_live",
				Help:      "Number of loaded libraries that are current",
			},
		),
		LibrariesRetiring: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "libraries_retiring",
				Help:      "Number of retired libraries waiting for in-flight calls",
			},
		),
		RegistryFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_files",
				Help:      "Number of mod files in the current registry snapshot",
			},
		),
		ResourceReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resource_reloads_total",
				Help:      "Total number of modified mod resources detected",
			},
		),
		FaultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runtime_faults_total",
				Help:      "Total number of runtime faults caught in safe mode by category",
			},
			[]string{"category"},
		),
	}
}

// CycleResult is a summary of one reload cycle.
type CycleResult struct {
	Failed          bool
	Duration        time.Duration
	Compiled        int
	Cached          int
	Failures        []string // error codes, one per failed file
	ResourceReloads int
	RegistryFiles   int
	LibrariesLive   int
	LibrariesRetire int
}

// RecordCycle records the outcome of a reload cycle.
// All Record methods are no-ops on a nil Collector.
func (c *Collector) RecordCycle(r CycleResult) {
	if c == nil {
		return
	}
	result := "ok"
	if r.Failed {
		result = "failed"
	}
	c.CyclesTotal.WithLabelValues(result).Inc()
	c.CycleDuration.Observe(r.Duration.Seconds())

	c.CompilesTotal.WithLabelValues("ok").Add(float64(r.Compiled))
	c.CompilesTotal.WithLabelValues("failed").Add(float64(len(r.Failures)))
	for _, code := range r.Failures {
		c.CompileErrorsTotal.WithLabelValues(code).Inc()
	}
	c.CacheHits.Add(float64(r.Cached))
	c.ResourceReloads.Add(float64(r.ResourceReloads))

	c.RegistryFiles.Set(float64(r.RegistryFiles))
	c.LibrariesLive.Set(float64(r.LibrariesLive))
	c.LibrariesRetiring.Set(float64(r.LibrariesRetire))
}

// RecordBuild records one toolchain invocation.
func (c *Collector) RecordBuild(d time.Duration) {
	if c == nil {
		return
	}
	c.BuildDuration.Observe(d.Seconds())
}

// RecordFault records a runtime fault caught by the call boundary.
func (c *Collector) RecordFault(category string) {
	if c == nil {
		return
	}
	c.FaultsTotal.WithLabelValues(category).Inc()
}
