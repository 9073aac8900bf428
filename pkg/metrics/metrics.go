package metrics

import (
	"runtime"
	"time"
)

// RecordAnalysisRun records one full pipeline run with its duration
func (r *Registry) RecordAnalysisRun(status string, duration time.Duration) {
	r.AnalysisRunsTotal.WithLabelValues(status).Inc()
	r.AnalysisDuration.Observe(duration.Seconds())
}

// RecordSection records one analysis section's outcome and duration
func (r *Registry) RecordSection(section, status string, duration time.Duration) {
	r.SectionDuration.WithLabelValues(section).Observe(duration.Seconds())
	if status != "ok" {
		r.SectionFailuresTotal.WithLabelValues(section, status).Inc()
	}
}

// RecordSolver records a solver run's iteration count and terminal status
func (r *Registry) RecordSolver(solver, status string, iterations int) {
	r.SolverIterations.WithLabelValues(solver).Observe(float64(iterations))
	r.SolverOutcomesTotal.WithLabelValues(solver, status).Inc()
}

// RecordMatrixSolve records one linear system solve
func (r *Registry) RecordMatrixSolve(kind string, duration time.Duration) {
	r.MatrixSolveDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpdateTopology publishes the shape of the last analyzed network
func (r *Registry) UpdateTopology(nodes, buses, loops, warnings, errors int) {
	r.TopologyNodesTotal.Set(float64(nodes))
	r.TopologyBusesTotal.Set(float64(buses))
	r.TopologyLoopsTotal.Set(float64(loops))
	r.TopologyIssuesTotal.WithLabelValues("warning").Set(float64(warnings))
	r.TopologyIssuesTotal.WithLabelValues("error").Set(float64(errors))
}

// RecordBreakerCheck records one breaker adequacy verdict
func (r *Registry) RecordBreakerCheck(pass bool) {
	result := "fail"
	if pass {
		result = "pass"
	}
	r.BreakerChecksTotal.WithLabelValues(result).Inc()
}

// UpdateSystemMetrics refreshes process-level gauges
func (r *Registry) UpdateSystemMetrics(startedAt time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(startedAt).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
