// Package analysis orchestrates the full study pipeline over one
// network snapshot: topology, per-unit normalization, then the fault
// study and load flow in parallel, then arc flash and ring analysis
// on their results.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridworks/powercalc/pkg/arcflash"
	"github.com/gridworks/powercalc/pkg/loadflow"
	"github.com/gridworks/powercalc/pkg/logging"
	"github.com/gridworks/powercalc/pkg/loopflow"
	"github.com/gridworks/powercalc/pkg/metrics"
	"github.com/gridworks/powercalc/pkg/model"
	"github.com/gridworks/powercalc/pkg/parallel"
	"github.com/gridworks/powercalc/pkg/perunit"
	"github.com/gridworks/powercalc/pkg/shortcircuit"
	"github.com/gridworks/powercalc/pkg/topology"
)

// Options configure a Runner. The zero value is usable.
type Options struct {
	// Workers sizes the internal pool; defaults to 2, enough for the
	// pairwise-parallel pipeline stages.
	Workers int
	Logger  logging.Logger
	Metrics *metrics.Registry
	// WorkingDistanceMM overrides the arc flash working distance.
	WorkingDistanceMM float64
}

// Runner executes analysis runs. It is safe for concurrent use; each
// run is independent.
type Runner struct {
	pool *parallel.WorkerPool
	log  logging.Logger
	met  *metrics.Registry
	opts Options
}

// NewRunner builds a Runner from options.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	pool, err := parallel.NewWorkerPool(opts.Workers)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.DefaultRegistry()
	}
	return &Runner{pool: pool, log: log.With(logging.Component("analysis")), met: met, opts: opts}, nil
}

// Close releases the worker pool.
func (r *Runner) Close() {
	r.pool.Close()
}

// Run executes the full pipeline. Validation and topology failures
// are returned as errors; solver-level problems degrade their section
// and the run carries on, so one bad ring never hides the fault
// study.
func (r *Runner) Run(ctx context.Context, snap *model.Snapshot) (*Result, error) {
	started := time.Now()
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Sections:  make(map[string]*Section),
	}
	log := r.log.With(logging.RunID(res.RunID))
	log.Info("analysis run started",
		logging.Int("nodes", len(snap.Nodes)),
		logging.Int("edges", len(snap.Edges)))

	settings := snap.Settings.Normalized()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	graph, sys, err := r.prepare(res, snap, settings)
	if err != nil {
		r.met.RecordAnalysisRun(string(StatusFailed), time.Since(started))
		return nil, err
	}

	// Inverting the admittance matrix dominates the fault study; do
	// it once here so both parallel stages hit the cache.
	zOp := logging.StartTimer(log, "network matrix factorized")
	if _, zErr := sys.ZBus(perunit.BuildOptions{SourceShunts: true}); zErr != nil {
		zOp.EndError(zErr)
	} else {
		zOp.End()
	}
	r.met.RecordMatrixSolve("zbus", zOp.Elapsed())

	var (
		scRes *shortcircuit.Result
		scErr error
		lfRes *loadflow.Result
		lfErr error
	)
	scStart := time.Now()
	r.pool.Run(
		func() { scRes, scErr = shortcircuit.Run(sys, settings) },
		func() { lfRes, lfErr = loadflow.Run(ctx, sys, settings) },
	)
	r.finishShortCircuit(res, log, scRes, scErr, scStart)
	r.finishLoadFlow(res, log, lfRes, lfErr, scStart)

	var (
		afStart = time.Now()
		loopRes *loopflow.Result
		loopErr error
	)
	r.pool.Run(
		func() { r.runArcFlash(res, graph, scRes) },
		func() { loopRes, loopErr = loopflow.Run(sys, settings, driveCurrents(lfRes)) },
	)
	r.finishArcFlash(res, afStart)
	r.finishLoopFlow(res, loopRes, loopErr, afStart)

	r.summarize(res, graph)
	res.DurationMS = float64(time.Since(started).Microseconds()) / 1000.0
	status := res.Status()
	r.met.RecordAnalysisRun(string(status), time.Since(started))

	log.Info("analysis run finished",
		logging.String("status", string(status)),
		logging.Float64("duration_ms", res.DurationMS),
		logging.KiloAmps(res.Summary.MaxFaultKA))
	return res, nil
}

// prepare runs the serial head of the pipeline: topology derivation
// and per-unit normalization.
func (r *Runner) prepare(res *Result, snap *model.Snapshot, settings model.Settings) (*topology.Graph, *perunit.System, error) {
	topoStart := time.Now()
	sec := res.section(SectionTopology)
	graph, err := topology.Build(snap)
	if err != nil {
		sec.finish(StatusFailed, err, topoStart)
		return nil, nil, fmt.Errorf("analysis: topology: %w", err)
	}
	res.Issues = graph.Issues
	warnings, errs := countIssues(graph.Issues)
	status := StatusOK
	if errs > 0 {
		status = StatusDegraded
	}
	sec.finish(status, nil, topoStart)
	r.met.RecordSection(SectionTopology, string(status), sec.Duration)
	r.met.UpdateTopology(len(snap.Nodes), len(graph.Buses), len(graph.Loops), warnings, errs)

	puStart := time.Now()
	sec = res.section(SectionPerUnit)
	sys, err := perunit.Normalize(graph, settings)
	if err != nil {
		sec.finish(StatusFailed, err, puStart)
		r.met.RecordSection(SectionPerUnit, string(StatusFailed), sec.Duration)
		return nil, nil, fmt.Errorf("analysis: per-unit: %w", err)
	}
	status = StatusOK
	if len(sys.BranchErrors) > 0 {
		status = StatusDegraded
	}
	sec.finish(status, nil, puStart)
	r.met.RecordSection(SectionPerUnit, string(status), sec.Duration)
	return graph, sys, nil
}

func (r *Runner) finishShortCircuit(res *Result, log logging.Logger, scRes *shortcircuit.Result, scErr error, started time.Time) {
	sec := res.section(SectionShortCircuit)
	switch {
	case scErr != nil:
		sec.finish(StatusFailed, scErr, started)
	default:
		res.ShortCircuit = scRes
		status := StatusOK
		for _, b := range scRes.Buses {
			if b.Err != nil || !b.Reachable {
				status = StatusDegraded
				break
			}
		}
		sec.finish(status, nil, started)
		for _, c := range scRes.Breakers {
			r.met.RecordBreakerCheck(c.Pass)
			if !c.Pass {
				log.Warn("breaker underrated",
					logging.NodeID(c.NodeID),
					logging.KiloAmps(c.FaultKA),
					logging.Float64("rated_ka", c.RatedKA))
			}
		}
		r.met.MaxFaultCurrentKA.Set(scRes.MaxFaultKA)
	}
	r.met.RecordSection(SectionShortCircuit, string(sec.Status), sec.Duration)
}

func (r *Runner) finishLoadFlow(res *Result, log logging.Logger, lfRes *loadflow.Result, lfErr error, started time.Time) {
	sec := res.section(SectionLoadFlow)
	switch {
	case lfErr != nil:
		sec.finish(StatusFailed, lfErr, started)
	default:
		res.LoadFlow = lfRes
		status := StatusOK
		if lfRes.Status != loadflow.StatusConverged {
			status = StatusDegraded
			log.Warn("load flow did not converge",
				logging.String("status", lfRes.StatusName),
				logging.Iterations(lfRes.Iterations),
				logging.Float64("max_mismatch_pu", lfRes.MaxMismatchPU))
		}
		sec.finish(status, nil, started)
		r.met.RecordSolver("load_flow", lfRes.Status.String(), lfRes.Iterations)
	}
	r.met.RecordSection(SectionLoadFlow, string(sec.Status), sec.Duration)
}

// runArcFlash studies every reachable bus using the fault study's
// currents and the fastest breaker protecting the bus.
func (r *Runner) runArcFlash(res *Result, graph *topology.Graph, scRes *shortcircuit.Result) {
	if scRes == nil {
		return
	}
	for _, bus := range scRes.Buses {
		if !bus.Reachable || bus.TotalKA <= 0 {
			continue
		}
		in := arcflash.Input{
			BoltedFaultKA:     bus.TotalKA,
			VoltageKV:         bus.VoltageKV,
			ClearingTimeSec:   clearingTime(graph, bus.BusIndex),
			WorkingDistanceMM: r.opts.WorkingDistanceMM,
			Enclosure:         arcflash.EnclosureVCB,
		}
		entry := BusArcFlash{BusIndex: bus.BusIndex, BusName: bus.BusName, VoltageKV: bus.VoltageKV}
		study, err := arcflash.Calculate(in)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Study = study
		}
		res.ArcFlash = append(res.ArcFlash, entry)
	}
}

func (r *Runner) finishArcFlash(res *Result, started time.Time) {
	sec := res.section(SectionArcFlash)
	status := StatusOK
	if res.ShortCircuit == nil {
		status = StatusSkipped
	} else {
		for _, e := range res.ArcFlash {
			if e.Error != "" {
				status = StatusDegraded
				break
			}
		}
	}
	sec.finish(status, nil, started)
	r.met.RecordSection(SectionArcFlash, string(status), sec.Duration)
}

func (r *Runner) finishLoopFlow(res *Result, loopRes *loopflow.Result, loopErr error, started time.Time) {
	sec := res.section(SectionLoopFlow)
	if loopErr != nil {
		sec.finish(StatusFailed, loopErr, started)
	} else {
		res.Loops = loopRes
		sec.finish(StatusOK, nil, started)
	}
	r.met.RecordSection(SectionLoopFlow, string(sec.Status), sec.Duration)
}

func (r *Runner) summarize(res *Result, graph *topology.Graph) {
	s := &res.Summary
	s.IssueWarnings, s.IssueErrors = countIssues(graph.Issues)
	if sc := res.ShortCircuit; sc != nil {
		s.MaxFaultBus = sc.MaxFaultBus
		s.MaxFaultKA = sc.MaxFaultKA
		for _, c := range sc.Breakers {
			if c.Pass {
				s.BreakersPass++
			} else {
				s.BreakersFail++
			}
		}
	}
	if lf := res.LoadFlow; lf != nil {
		s.Converged = lf.Status == loadflow.StatusConverged
		s.TotalLossMW = lf.TotalLossMW
	}
	for _, e := range res.ArcFlash {
		if e.Study != nil && e.Study.PPECategory > s.WorstPPE {
			s.WorstPPE = e.Study.PPECategory
		}
	}
	if res.Loops != nil {
		s.LoopCount = len(res.Loops.Loops)
	}
}

// clearingTime returns the fastest declared breaker clearing time at
// a bus. The arc lasts until the quickest protective device at the
// bus opens, so that device sets the duration.
func clearingTime(graph *topology.Graph, busIndex int) float64 {
	t := 0.0
	for _, bus := range graph.Buses {
		if bus.Index != busIndex {
			continue
		}
		for _, id := range bus.NodeIDs {
			node := graph.Node(id)
			if node.Kind != model.KindBreaker || node.Breaker == nil {
				continue
			}
			if ct := node.Breaker.ClearingTimeSec; ct > 0 && (t == 0 || ct < t) {
				t = ct
			}
		}
	}
	return t
}

// driveCurrents maps load-flow branch currents onto edge ids for the
// ring analysis.
func driveCurrents(lf *loadflow.Result) map[string]complex128 {
	if lf == nil {
		return nil
	}
	drives := make(map[string]complex128, len(lf.Branches))
	for _, b := range lf.Branches {
		drives[b.EdgeID] = b.CurrentPU
	}
	return drives
}

func countIssues(issues []topology.Issue) (warnings, errs int) {
	for _, is := range issues {
		if is.Severity == topology.SeverityError {
			errs++
		} else {
			warnings++
		}
	}
	return warnings, errs
}
