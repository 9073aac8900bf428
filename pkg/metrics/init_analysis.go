package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAnalysisMetrics() {
	r.AnalysisRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercalc_analysis_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	r.AnalysisDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "powercalc_analysis_duration_seconds",
			Help:    "Wall time of a full analysis run",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	r.SectionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powercalc_section_duration_seconds",
			Help:    "Wall time per analysis section",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"section"},
	)

	r.SectionFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercalc_section_failures_total",
			Help: "Analysis sections that failed or degraded",
		},
		[]string{"section", "status"},
	)
}
