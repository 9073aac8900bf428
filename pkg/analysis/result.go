package analysis

import (
	"time"

	"github.com/gridworks/powercalc/pkg/arcflash"
	"github.com/gridworks/powercalc/pkg/loadflow"
	"github.com/gridworks/powercalc/pkg/loopflow"
	"github.com/gridworks/powercalc/pkg/shortcircuit"
	"github.com/gridworks/powercalc/pkg/topology"
)

// SectionStatus is the terminal state of one pipeline section.
type SectionStatus string

const (
	// StatusOK means the section completed with full results.
	StatusOK SectionStatus = "ok"
	// StatusDegraded means the section produced partial results,
	// e.g. some buses unreachable or the iteration not converged.
	StatusDegraded SectionStatus = "degraded"
	// StatusFailed means the section produced no usable result.
	StatusFailed SectionStatus = "failed"
	// StatusSkipped means a prerequisite section failed first.
	StatusSkipped SectionStatus = "skipped"
)

// Section names used in results, logs and metrics.
const (
	SectionTopology     = "topology"
	SectionPerUnit      = "per_unit"
	SectionShortCircuit = "short_circuit"
	SectionLoadFlow     = "load_flow"
	SectionArcFlash     = "arc_flash"
	SectionLoopFlow     = "loop_flow"
)

// Section is the outcome record of one pipeline stage.
type Section struct {
	Status     SectionStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
}

// BusArcFlash pairs one bus with its arc flash study.
type BusArcFlash struct {
	BusIndex  int              `json:"bus_index"`
	BusName   string           `json:"bus_name"`
	VoltageKV float64          `json:"voltage_kv"`
	Study     *arcflash.Result `json:"study,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Summary is the roll-up a caller reads first.
type Summary struct {
	MaxFaultBus   string  `json:"max_fault_bus,omitempty"`
	MaxFaultKA    float64 `json:"max_fault_ka"`
	BreakersPass  int     `json:"breakers_pass"`
	BreakersFail  int     `json:"breakers_fail"`
	Converged     bool    `json:"load_flow_converged"`
	TotalLossMW   float64 `json:"total_loss_mw"`
	WorstPPE      int     `json:"worst_ppe_category"`
	LoopCount     int     `json:"loop_count"`
	IssueWarnings int     `json:"issue_warnings"`
	IssueErrors   int     `json:"issue_errors"`
}

// Result is one full analysis run over a snapshot.
type Result struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`

	Sections map[string]*Section `json:"sections"`

	Issues       []topology.Issue     `json:"issues,omitempty"`
	ShortCircuit *shortcircuit.Result `json:"short_circuit,omitempty"`
	LoadFlow     *loadflow.Result     `json:"load_flow,omitempty"`
	ArcFlash     []BusArcFlash        `json:"arc_flash,omitempty"`
	Loops        *loopflow.Result     `json:"loops,omitempty"`

	Summary Summary `json:"summary"`
}

// Status is the overall run status: the worst section status.
func (r *Result) Status() SectionStatus {
	worst := StatusOK
	rank := map[SectionStatus]int{StatusOK: 0, StatusSkipped: 1, StatusDegraded: 2, StatusFailed: 3}
	for _, s := range r.Sections {
		if rank[s.Status] > rank[worst] {
			worst = s.Status
		}
	}
	return worst
}

func (r *Result) section(name string) *Section {
	if s, ok := r.Sections[name]; ok {
		return s
	}
	s := &Section{Status: StatusSkipped}
	r.Sections[name] = s
	return s
}

func (s *Section) finish(status SectionStatus, err error, started time.Time) {
	s.Status = status
	if err != nil {
		s.Error = err.Error()
	}
	s.Duration = time.Since(started)
	s.DurationMS = float64(s.Duration.Microseconds()) / 1000.0
}
