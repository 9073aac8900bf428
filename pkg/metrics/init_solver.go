package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSolverMetrics() {
	r.SolverIterations = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powercalc_solver_iterations",
			Help:    "Iterations used per solver run",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"solver"},
	)

	r.SolverOutcomesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercalc_solver_outcomes_total",
			Help: "Solver runs by terminal status",
		},
		[]string{"solver", "status"},
	)

	r.MatrixSolveDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powercalc_matrix_solve_duration_seconds",
			Help:    "Linear system factorization and solve time",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0},
		},
		[]string{"kind"},
	)
}
