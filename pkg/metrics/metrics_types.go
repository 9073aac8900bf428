package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Analysis pipeline metrics
	AnalysisRunsTotal    *prometheus.CounterVec
	AnalysisDuration     prometheus.Histogram
	SectionDuration      *prometheus.HistogramVec
	SectionFailuresTotal *prometheus.CounterVec

	// Solver metrics
	SolverIterations    *prometheus.HistogramVec
	SolverOutcomesTotal *prometheus.CounterVec
	MatrixSolveDuration *prometheus.HistogramVec

	// Topology metrics
	TopologyNodesTotal  prometheus.Gauge
	TopologyBusesTotal  prometheus.Gauge
	TopologyLoopsTotal  prometheus.Gauge
	TopologyIssuesTotal *prometheus.GaugeVec

	// Fault study metrics
	BreakerChecksTotal *prometheus.CounterVec
	MaxFaultCurrentKA  prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	// Initialize all metrics
	r.initAnalysisMetrics()
	r.initSolverMetrics()
	r.initTopologyMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
