package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTopologyMetrics() {
	r.TopologyNodesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "powercalc_topology_nodes",
			Help: "Nodes in the last analyzed network",
		},
	)

	r.TopologyBusesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "powercalc_topology_buses",
			Help: "Electrical buses in the last analyzed network",
		},
	)

	r.TopologyLoopsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "powercalc_topology_loops",
			Help: "Closed rings detected in the last analyzed network",
		},
	)

	r.TopologyIssuesTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powercalc_topology_issues",
			Help: "Structural issues by severity in the last analyzed network",
		},
		[]string{"severity"},
	)

	r.BreakerChecksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercalc_breaker_checks_total",
			Help: "Breaker adequacy checks by result",
		},
		[]string{"result"},
	)

	r.MaxFaultCurrentKA = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "powercalc_max_fault_current_ka",
			Help: "Highest bus fault current in the last analysis",
		},
	)
}
