package metrics

import (
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.AnalysisRunsTotal == nil {
		t.Error("AnalysisRunsTotal not initialized")
	}
	if r.SectionDuration == nil {
		t.Error("SectionDuration not initialized")
	}
	if r.SolverIterations == nil {
		t.Error("SolverIterations not initialized")
	}
	if r.TopologyNodesTotal == nil {
		t.Error("TopologyNodesTotal not initialized")
	}
	if r.BreakerChecksTotal == nil {
		t.Error("BreakerChecksTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	// Should return the same instance
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordAnalysisRun(t *testing.T) {
	r := NewRegistry()

	r.RecordAnalysisRun("ok", 100*time.Millisecond)
	r.RecordAnalysisRun("ok", 200*time.Millisecond)
	r.RecordAnalysisRun("degraded", 50*time.Millisecond)

	counter, err := r.AnalysisRunsTotal.GetMetricWithLabelValues("ok")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2 {
		t.Errorf("Counter value = %v, want 2", metric.Counter.GetValue())
	}
}

func TestRecordSection(t *testing.T) {
	r := NewRegistry()

	r.RecordSection("short_circuit", "ok", 10*time.Millisecond)
	r.RecordSection("load_flow", "degraded", 20*time.Millisecond)

	// Only non-ok outcomes count as failures
	failures, err := r.SectionFailuresTotal.GetMetricWithLabelValues("load_flow", "degraded")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := failures.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Failure counter = %v, want 1", metric.Counter.GetValue())
	}

	okFailures, err := r.SectionFailuresTotal.GetMetricWithLabelValues("short_circuit", "ok")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if err := okFailures.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 0 {
		t.Errorf("ok sections must not count as failures, got %v", metric.Counter.GetValue())
	}
}

func TestRecordSolver(t *testing.T) {
	r := NewRegistry()

	r.RecordSolver("load_flow", "converged", 4)
	r.RecordSolver("load_flow", "converged", 6)
	r.RecordSolver("load_flow", "max_iterations", 20)

	outcome, err := r.SolverOutcomesTotal.GetMetricWithLabelValues("load_flow", "converged")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := outcome.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Outcome counter = %v, want 2", metric.Counter.GetValue())
	}
}

func TestRecordBreakerCheck(t *testing.T) {
	r := NewRegistry()

	r.RecordBreakerCheck(true)
	r.RecordBreakerCheck(true)
	r.RecordBreakerCheck(false)

	pass, err := r.BreakerChecksTotal.GetMetricWithLabelValues("pass")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := pass.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("pass counter = %v, want 2", metric.Counter.GetValue())
	}

	fail, err := r.BreakerChecksTotal.GetMetricWithLabelValues("fail")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if err := fail.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("fail counter = %v, want 1", metric.Counter.GetValue())
	}
}

func TestUpdateTopology(t *testing.T) {
	r := NewRegistry()

	r.UpdateTopology(12, 7, 1, 2, 0)

	var metric dto.Metric
	if err := r.TopologyBusesTotal.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 7 {
		t.Errorf("buses gauge = %v, want 7", metric.Gauge.GetValue())
	}

	warnings, err := r.TopologyIssuesTotal.GetMetricWithLabelValues("warning")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if err := warnings.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 2 {
		t.Errorf("warnings gauge = %v, want 2", metric.Gauge.GetValue())
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdateSystemMetrics(time.Now().Add(-10 * time.Second))

	var metric dto.Metric
	if err := r.UptimeSeconds.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() < 10 {
		t.Errorf("uptime = %v, want >= 10", metric.Gauge.GetValue())
	}

	if err := r.GoRoutines.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() < 1 {
		t.Error("goroutine gauge should be positive")
	}
}

func TestAllMetricNamesPrefixed(t *testing.T) {
	r := NewRegistry()
	// Touch label children so every family gathers
	r.RecordAnalysisRun("ok", time.Millisecond)
	r.RecordSolver("load_flow", "converged", 1)
	r.RecordMatrixSolve("complex", time.Millisecond)
	r.RecordBreakerCheck(true)
	r.UpdateTopology(1, 1, 0, 0, 0)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "powercalc_") {
			t.Errorf("metric %s missing powercalc_ prefix", f.GetName())
		}
	}
}
