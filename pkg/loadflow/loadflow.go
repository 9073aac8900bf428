// Package loadflow solves the steady-state AC power flow with a full
// Newton-Raphson iteration in polar form.
package loadflow

import (
	"context"
	"errors"
	"math"
	"math/cmplx"

	"github.com/gridworks/powercalc/pkg/matrix"
	"github.com/gridworks/powercalc/pkg/model"
	"github.com/gridworks/powercalc/pkg/perunit"
)

// ErrNoSlack means no source bus exists to hold the voltage
// reference.
var ErrNoSlack = errors.New("no slack bus in network")

// BusType classifies a bus for the iteration.
type BusType int

const (
	// BusPQ has fixed power injection, voltage and angle unknown.
	BusPQ BusType = iota
	// BusSlack holds 1.0 pu at zero angle and absorbs the imbalance.
	BusSlack
)

func (t BusType) String() string {
	if t == BusSlack {
		return "slack"
	}
	return "pq"
}

// Status reports how the iteration ended.
type Status int

const (
	StatusConverged Status = iota
	StatusMaxIterations
	StatusCancelled
	StatusSingular
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusCancelled:
		return "cancelled"
	case StatusSingular:
		return "singular"
	default:
		return "unknown"
	}
}

// BusState is the solved operating point of one bus.
type BusState struct {
	BusIndex  int     `json:"bus_index"`
	BusName   string  `json:"bus_name"`
	Type      BusType `json:"-"`
	TypeName  string  `json:"type"`
	VoltagePU float64 `json:"voltage_pu"`
	AngleDeg  float64 `json:"angle_deg"`
	// Scheduled injection, generation positive, load negative.
	PSchedPU float64 `json:"p_sched_pu"`
	QSchedPU float64 `json:"q_sched_pu"`
}

// BranchFlow is the solved power flow over one series branch.
type BranchFlow struct {
	EdgeID     string  `json:"edge_id"`
	FromBus    int     `json:"from_bus"`
	ToBus      int     `json:"to_bus"`
	FromMW     float64 `json:"from_mw"`
	FromMvar   float64 `json:"from_mvar"`
	ToMW       float64 `json:"to_mw"`
	ToMvar     float64 `json:"to_mvar"`
	CurrentA   float64 `json:"current_a"`
	LoadingPct float64 `json:"loading_pct"`
	LossMW     float64 `json:"loss_mw"`

	// CurrentPU is the complex branch current oriented FromBus to
	// ToBus, kept for downstream mesh analysis.
	CurrentPU complex128 `json:"-"`
}

// BusMismatch is the residual power error at one bus when the
// iteration stops short of convergence.
type BusMismatch struct {
	BusIndex int     `json:"bus_index"`
	BusName  string  `json:"bus_name"`
	DeltaPPU float64 `json:"delta_p_pu"`
	DeltaQPU float64 `json:"delta_q_pu"`
}

// Result is the load-flow solution.
type Result struct {
	Status     Status `json:"-"`
	StatusName string `json:"status"`
	Iterations int    `json:"iterations"`
	// MaxMismatchPU is the largest power mismatch at exit; under
	// tolerance when converged, diagnostic otherwise.
	MaxMismatchPU float64      `json:"max_mismatch_pu"`
	Buses         []BusState   `json:"buses"`
	Branches      []BranchFlow `json:"branches"`
	TotalLossMW   float64      `json:"total_loss_mw"`

	// Mismatches is the final per-bus residual, populated only when
	// the iteration did not converge so callers can see where the
	// solution was stuck.
	Mismatches []BusMismatch `json:"mismatches,omitempty"`
}

// Run solves the power flow on the per-unit system. The context is
// checked once per iteration; on cancellation the best iterate so far
// is returned with StatusCancelled rather than discarded.
func Run(ctx context.Context, sys *perunit.System, settings model.Settings) (*Result, error) {
	n := len(sys.ActiveBuses)
	if n == 0 {
		return nil, ErrNoSlack
	}

	types := classify(sys)
	slackCount := 0
	for _, t := range types {
		if t == BusSlack {
			slackCount++
		}
	}
	if slackCount == 0 {
		return nil, ErrNoSlack
	}

	pSched, qSched := scheduledInjections(sys)
	ybus := sys.YBus(perunit.BuildOptions{})

	// Flat start: 1.0 pu, zero angle everywhere.
	vmag := make([]float64, n)
	vang := make([]float64, n)
	for i := range vmag {
		vmag[i] = 1.0
	}

	// Unknown layout: angles of non-slack buses, then magnitudes of
	// PQ buses.
	var angIdx, magIdx []int
	for i, t := range types {
		if t != BusSlack {
			angIdx = append(angIdx, i)
			magIdx = append(magIdx, i)
		}
	}
	nUnknown := len(angIdx) + len(magIdx)

	res := &Result{Status: StatusMaxIterations}
	tol := settings.Tolerance
	maxIter := settings.MaxIterations

	var mismatch []float64
	for iter := 0; iter <= maxIter; iter++ {
		pCalc, qCalc := injections(ybus, vmag, vang)

		mismatch = make([]float64, nUnknown)
		for k, i := range angIdx {
			mismatch[k] = pSched[i] - pCalc[i]
		}
		for k, i := range magIdx {
			mismatch[len(angIdx)+k] = qSched[i] - qCalc[i]
		}
		res.MaxMismatchPU = maxAbs(mismatch)
		res.Iterations = iter

		if res.MaxMismatchPU < tol {
			res.Status = StatusConverged
			break
		}
		if iter == maxIter {
			break
		}
		if err := ctx.Err(); err != nil {
			res.Status = StatusCancelled
			break
		}

		jac := jacobian(ybus, vmag, vang, pCalc, qCalc, angIdx, magIdx)
		dx, err := matrix.SolveReal(jac, mismatch)
		if err != nil {
			res.Status = StatusSingular
			break
		}
		for k, i := range angIdx {
			vang[i] += dx[k]
		}
		for k, i := range magIdx {
			vmag[i] += dx[len(angIdx)+k]
		}
	}

	fillBuses(res, sys, types, vmag, vang, pSched, qSched)
	fillBranches(res, sys, vmag, vang)
	if res.Status != StatusConverged {
		res.Mismatches = busMismatches(sys, mismatch, angIdx, magIdx)
	}
	res.StatusName = res.Status.String()
	return res, nil
}

// maxAbs returns the largest absolute entry of v.
func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

// busMismatches maps the flat mismatch vector back onto buses, ΔP
// entries first in the angle ordering, then ΔQ in the magnitude
// ordering.
func busMismatches(sys *perunit.System, mismatch []float64, angIdx, magIdx []int) []BusMismatch {
	if len(mismatch) == 0 {
		return nil
	}
	g := sys.Graph
	byPos := make(map[int]*BusMismatch, len(angIdx))
	entry := func(pos int) *BusMismatch {
		if e, ok := byPos[pos]; ok {
			return e
		}
		busIdx := sys.ActiveBuses[pos]
		e := &BusMismatch{BusIndex: busIdx, BusName: g.Buses[busIdx].Name}
		byPos[pos] = e
		return e
	}
	for k, i := range angIdx {
		entry(i).DeltaPPU = mismatch[k]
	}
	for k, i := range magIdx {
		entry(i).DeltaQPU = mismatch[len(angIdx)+k]
	}

	out := make([]BusMismatch, 0, len(byPos))
	for pos := range sys.ActiveBuses {
		if e, ok := byPos[pos]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// classify marks every bus containing a source as slack; the rest are
// PQ.
func classify(sys *perunit.System) []BusType {
	g := sys.Graph
	types := make([]BusType, len(sys.ActiveBuses))
	for pos, busIdx := range sys.ActiveBuses {
		for _, id := range g.Buses[busIdx].NodeIDs {
			if g.Node(id).Kind == model.KindSource {
				types[pos] = BusSlack
				break
			}
		}
	}
	return types
}

// scheduledInjections sums load and motor demand per bus, in pu on
// the system base, load negative.
func scheduledInjections(sys *perunit.System) (p, q []float64) {
	n := len(sys.ActiveBuses)
	p = make([]float64, n)
	q = make([]float64, n)
	g := sys.Graph
	for pos, busIdx := range sys.ActiveBuses {
		for _, id := range g.Buses[busIdx].NodeIDs {
			node := g.Node(id)
			pm, qm := nodeDemandMVA(node)
			p[pos] -= pm / sys.BaseMVA
			q[pos] -= qm / sys.BaseMVA
		}
	}
	return p, q
}

// nodeDemandMVA returns a node's active and reactive demand in
// MW/Mvar.
func nodeDemandMVA(node *model.Node) (p, q float64) {
	switch node.Kind {
	case model.KindLoad:
		if node.Load == nil {
			return 0, 0
		}
		l := node.Load
		pf := l.PowerFactor
		if pf <= 0 || pf > 1 {
			pf = 0.9
		}
		if l.PowerKW > 0 {
			p = l.PowerKW / 1000.0
		} else if l.RatedA > 0 {
			s := math.Sqrt(3) * node.VoltageKV * l.RatedA / 1000.0
			p = s * pf
		}
		q = p * math.Tan(math.Acos(pf))
	case model.KindMotor:
		if node.Motor == nil {
			return 0, 0
		}
		m := node.Motor
		pf := m.PowerFactor
		if pf <= 0 || pf > 1 {
			pf = 0.85
		}
		eff := m.Efficiency
		if eff <= 0 || eff > 1 {
			eff = 0.95
		}
		p = m.RatedKW / eff / 1000.0
		q = p * math.Tan(math.Acos(pf))
	}
	return p, q
}

// injections evaluates the power flow equations at the current
// voltage estimate.
func injections(ybus *matrix.Complex, vmag, vang []float64) (p, q []float64) {
	n := len(vmag)
	p = make([]float64, n)
	q = make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			y := ybus.At(i, j)
			g, b := real(y), imag(y)
			if g == 0 && b == 0 {
				continue
			}
			th := vang[i] - vang[j]
			vv := vmag[i] * vmag[j]
			p[i] += vv * (g*math.Cos(th) + b*math.Sin(th))
			q[i] += vv * (g*math.Sin(th) - b*math.Cos(th))
		}
	}
	return p, q
}

// jacobian builds the full Newton matrix in the mismatch ordering:
// rows are dP over angIdx then dQ over magIdx, columns dθ then dV.
func jacobian(ybus *matrix.Complex, vmag, vang, pCalc, qCalc []float64, angIdx, magIdx []int) *matrix.Real {
	na := len(angIdx)
	nm := len(magIdx)
	jac := matrix.NewReal(na + nm)

	term := func(i, j int) (tc, ts float64) {
		y := ybus.At(i, j)
		th := vang[i] - vang[j]
		tc = real(y)*math.Cos(th) + imag(y)*math.Sin(th)
		ts = real(y)*math.Sin(th) - imag(y)*math.Cos(th)
		return tc, ts
	}

	for r, i := range angIdx {
		for c, j := range angIdx {
			if i == j {
				jac.Set(r, c, -qCalc[i]-imag(ybus.At(i, i))*vmag[i]*vmag[i])
			} else {
				_, ts := term(i, j)
				jac.Set(r, c, vmag[i]*vmag[j]*ts)
			}
		}
		for c, j := range magIdx {
			if i == j {
				jac.Set(r, na+c, pCalc[i]/vmag[i]+real(ybus.At(i, i))*vmag[i])
			} else {
				tc, _ := term(i, j)
				jac.Set(r, na+c, vmag[i]*tc)
			}
		}
	}
	for r, i := range magIdx {
		for c, j := range angIdx {
			if i == j {
				jac.Set(na+r, c, pCalc[i]-real(ybus.At(i, i))*vmag[i]*vmag[i])
			} else {
				tc, _ := term(i, j)
				jac.Set(na+r, c, -vmag[i]*vmag[j]*tc)
			}
		}
		for c, j := range magIdx {
			if i == j {
				jac.Set(na+r, na+c, qCalc[i]/vmag[i]-imag(ybus.At(i, i))*vmag[i])
			} else {
				_, ts := term(i, j)
				jac.Set(na+r, na+c, vmag[i]*ts)
			}
		}
	}
	return jac
}

func fillBuses(res *Result, sys *perunit.System, types []BusType, vmag, vang, pSched, qSched []float64) {
	g := sys.Graph
	for pos, busIdx := range sys.ActiveBuses {
		res.Buses = append(res.Buses, BusState{
			BusIndex:  busIdx,
			BusName:   g.Buses[busIdx].Name,
			Type:      types[pos],
			TypeName:  types[pos].String(),
			VoltagePU: vmag[pos],
			AngleDeg:  vang[pos] * 180.0 / math.Pi,
			PSchedPU:  pSched[pos],
			QSchedPU:  qSched[pos],
		})
	}
}

// fillBranches computes directed power flows and series losses from
// the solved voltages.
func fillBranches(res *Result, sys *perunit.System, vmag, vang []float64) {
	volt := func(pos int) complex128 {
		return cmplx.Rect(vmag[pos], vang[pos])
	}
	edges := make(map[string]*model.Edge, len(sys.Graph.Snapshot.Edges))
	for i := range sys.Graph.Snapshot.Edges {
		e := &sys.Graph.Snapshot.Edges[i]
		edges[e.ID] = e
	}
	for _, br := range sys.Branches {
		i, iok := sys.Pos(br.FromBus)
		j, jok := sys.Pos(br.ToBus)
		if !iok || !jok {
			continue
		}
		vi, vj := volt(i), volt(j)
		y := 1 / br.ZPU
		iij := (vi - vj) * y
		iji := (vj - vi) * y
		sij := vi * cmplx.Conj(iij) * complex(sys.BaseMVA, 0)
		sji := vj * cmplx.Conj(iji) * complex(sys.BaseMVA, 0)

		flow := BranchFlow{
			EdgeID:    br.EdgeID,
			FromBus:   br.FromBus,
			ToBus:     br.ToBus,
			FromMW:    real(sij),
			FromMvar:  imag(sij),
			ToMW:      real(sji),
			ToMvar:    imag(sji),
			LossMW:    real(sij) + real(sji),
			CurrentPU: iij,
		}
		base := sys.Base(sys.Graph.Buses[br.FromBus].VoltageKV)
		flow.CurrentA = cmplx.Abs(iij) * base.IBaseAmps
		if rated := continuousRatingA(sys, edges, br); rated > 0 {
			flow.LoadingPct = flow.CurrentA / rated * 100.0
		}
		res.TotalLossMW += flow.LossMW
		res.Branches = append(res.Branches, flow)
	}
}

// continuousRatingA is the thermal limit used for branch loading: the
// edge's own rating, capped by the continuous current rating of any
// breaker in series at the edge ends.
func continuousRatingA(sys *perunit.System, edges map[string]*model.Edge, br perunit.Branch) float64 {
	rated := br.RatedA
	e := edges[br.EdgeID]
	if e == nil {
		return rated
	}
	for _, id := range []string{e.FromID, e.ToID} {
		node := sys.Graph.Node(id)
		if node == nil || node.Kind != model.KindBreaker || node.Breaker == nil {
			continue
		}
		if c := node.Breaker.RatedContinuousA; c > 0 && (rated == 0 || c < rated) {
			rated = c
		}
	}
	return rated
}
