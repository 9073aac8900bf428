// Package loopflow quantifies circulating currents in closed rings
// with mesh analysis. Each detected loop becomes one mesh; the
// driving EMF of a mesh is the voltage drop its branch drive currents
// leave around the ring, so a perfectly balanced ring circulates
// nothing.
package loopflow

import (
	"fmt"
	"math/cmplx"

	"github.com/gridworks/powercalc/pkg/matrix"
	"github.com/gridworks/powercalc/pkg/model"
	"github.com/gridworks/powercalc/pkg/perunit"
)

// imbalanceRatio is the max/min branch impedance ratio above which a
// ring is flagged as unbalanced.
const imbalanceRatio = 5.0

// significantLossKW flags rings whose series losses warrant opening
// the ring for radial operation.
const significantLossKW = 50.0

// Branch is one series element of a ring, oriented along the
// traversal.
type Branch struct {
	EdgeID   string     `json:"edge_id"`
	FromNode string     `json:"from_node"`
	ToNode   string     `json:"to_node"`
	ZPU      complex128 `json:"-"`
	RatedA   float64    `json:"rated_a,omitempty"`

	// CurrentA is the total branch current, drive plus circulating.
	CurrentA float64 `json:"current_a"`
	// CirculatingA is the mesh current component alone.
	CirculatingA float64 `json:"circulating_a"`
	PowerKW      float64 `json:"power_kw"`
	PowerKvar    float64 `json:"power_kvar"`
	LossKW       float64 `json:"loss_kw"`
	LoadingPct   float64 `json:"loading_pct,omitempty"`
}

// LoopResult is the mesh solution for one ring.
type LoopResult struct {
	LoopID    string   `json:"loop_id"`
	Nodes     []string `json:"nodes"`
	Branches  []Branch `json:"branches"`
	VoltageKV float64  `json:"voltage_kv"`

	TotalImpedancePU complex128 `json:"-"`
	// CirculatingA is the magnitude of the mesh current in amperes.
	CirculatingA float64  `json:"circulating_a"`
	TotalLossKW  float64  `json:"total_loss_kw"`
	Suggestions  []string `json:"suggestions"`
}

// Result is the mesh analysis over all detected rings.
type Result struct {
	Loops []LoopResult `json:"loops"`
}

// Run solves the mesh equations for every ring the topology detected.
// Drive currents, keyed by edge id and oriented along the edge, come
// from a prior load flow; with none given only impedance data is
// reported and circulating currents are zero.
func Run(sys *perunit.System, settings model.Settings, drives map[string]complex128) (*Result, error) {
	g := sys.Graph
	res := &Result{}
	if len(g.Loops) == 0 {
		return res, nil
	}

	zpuOf := make(map[string]perunit.Branch, len(sys.Branches))
	for _, br := range sys.Branches {
		zpuOf[br.EdgeID] = br
	}

	meshes := make([][]meshBranch, 0, len(g.Loops))
	for _, loop := range g.Loops {
		meshes = append(meshes, loopBranches(sys, loop, zpuOf))
	}

	circ, err := solveMeshes(meshes, drives)
	if err != nil {
		return nil, err
	}

	for li, loop := range g.Loops {
		res.Loops = append(res.Loops, buildLoopResult(sys, settings, li, loop, meshes[li], circ[li], drives))
	}
	return res, nil
}

// meshBranch ties a ring step to its per-unit element and traversal
// direction relative to the element's own orientation.
type meshBranch struct {
	edge *model.Edge
	pu   perunit.Branch
	dir  float64 // +1 along FromID→ToID, -1 against
	from string
	to   string
}

// loopBranches resolves consecutive ring nodes to edges. Steps inside
// one electrical bus contribute zero impedance and stay in the list
// so the reported ring is complete.
func loopBranches(sys *perunit.System, loop []string, zpuOf map[string]perunit.Branch) []meshBranch {
	g := sys.Graph
	branches := make([]meshBranch, 0, len(loop))
	used := make(map[string]bool, len(loop))
	for i := range loop {
		from := loop[i]
		to := loop[(i+1)%len(loop)]
		edges := g.EdgesBetween(from, to)
		// A two-node ring closes over parallel edges; each step must
		// take a distinct one.
		var e *model.Edge
		for _, cand := range edges {
			if !used[cand.ID] {
				e = cand
				break
			}
		}
		if e == nil {
			continue
		}
		used[e.ID] = true
		mb := meshBranch{edge: e, from: from, to: to, dir: 1}
		if e.FromID != from {
			mb.dir = -1
		}
		if pu, ok := zpuOf[e.ID]; ok {
			mb.pu = pu
		}
		branches = append(branches, mb)
	}
	return branches
}

// solveMeshes builds and solves the mesh impedance system. The
// right-hand side of mesh i is minus the voltage drop its drive
// currents produce around the ring; shared branches couple meshes
// with sign given by their relative traversal direction.
func solveMeshes(meshes [][]meshBranch, drives map[string]complex128) ([]complex128, error) {
	m := len(meshes)
	z := matrix.NewComplex(m)
	rhs := make([]complex128, m)

	dirIn := func(mesh []meshBranch, edgeID string) (float64, bool) {
		for _, mb := range mesh {
			if mb.edge.ID == edgeID {
				return mb.dir, true
			}
		}
		return 0, false
	}

	for i, mesh := range meshes {
		for _, mb := range mesh {
			z.Add(i, i, mb.pu.ZPU)
			rhs[i] -= complex(mb.dir, 0) * mb.pu.ZPU * drives[mb.edge.ID]
			for j := i + 1; j < m; j++ {
				if dj, shared := dirIn(meshes[j], mb.edge.ID); shared {
					coupling := complex(mb.dir*dj, 0) * mb.pu.ZPU
					z.Add(i, j, coupling)
					z.Add(j, i, coupling)
				}
			}
		}
	}

	// A ring collapsed entirely inside one bus has zero mesh
	// impedance; pin its current to zero instead of failing the
	// solve.
	for i := 0; i < m; i++ {
		if cmplx.Abs(z.At(i, i)) == 0 {
			z.Set(i, i, 1)
			rhs[i] = 0
		}
	}

	circ, err := matrix.SolveComplex(z, rhs)
	if err != nil {
		return nil, fmt.Errorf("loopflow: mesh system: %w", err)
	}
	return circ, nil
}

func buildLoopResult(sys *perunit.System, settings model.Settings, index int, loop []string, mesh []meshBranch, circ complex128, drives map[string]complex128) LoopResult {
	lr := LoopResult{
		LoopID: fmt.Sprintf("LOOP-%d", index+1),
		Nodes:  loop,
	}
	if len(loop) > 0 {
		if n := sys.Graph.Node(loop[0]); n != nil {
			lr.VoltageKV = n.VoltageKV
		}
	}
	base := sys.Base(lr.VoltageKV)
	lr.CirculatingA = cmplx.Abs(circ) * base.IBaseAmps

	maxZ, minZ := 0.0, 0.0
	for _, mb := range mesh {
		lr.TotalImpedancePU += mb.pu.ZPU

		total := drives[mb.edge.ID] + complex(mb.dir, 0)*circ
		s := total * mb.pu.ZPU * cmplx.Conj(total) * complex(sys.BaseMVA, 0)

		b := Branch{
			EdgeID:       mb.edge.ID,
			FromNode:     mb.from,
			ToNode:       mb.to,
			ZPU:          mb.pu.ZPU,
			RatedA:       mb.edge.RatedA,
			CurrentA:     cmplx.Abs(total) * base.IBaseAmps,
			CirculatingA: cmplx.Abs(circ) * base.IBaseAmps,
			PowerKW:      real(s) * 1000.0,
			PowerKvar:    imag(s) * 1000.0,
			LossKW:       cmplx.Abs(total) * cmplx.Abs(total) * real(mb.pu.ZPU) * sys.BaseMVA * 1000.0,
		}
		if b.RatedA > 0 {
			b.LoadingPct = b.CurrentA / b.RatedA * 100.0
		}
		lr.TotalLossKW += b.LossKW
		lr.Branches = append(lr.Branches, b)

		if zm := cmplx.Abs(mb.pu.ZPU); zm > 0 {
			if zm > maxZ {
				maxZ = zm
			}
			if minZ == 0 || zm < minZ {
				minZ = zm
			}
		}
	}

	lr.Suggestions = suggest(lr, settings, maxZ, minZ)
	return lr
}

// suggest produces the operational advisories for one ring.
func suggest(lr LoopResult, settings model.Settings, maxZ, minZ float64) []string {
	var out []string
	if lr.TotalLossKW > significantLossKW {
		out = append(out, fmt.Sprintf(
			"ring losses of %.1f kW are significant, consider opening the ring for radial operation",
			lr.TotalLossKW))
	}
	threshold := settings.LoopLoadingThreshold * 100.0
	for _, b := range lr.Branches {
		if b.RatedA > 0 && b.LoadingPct > threshold {
			out = append(out, fmt.Sprintf(
				"branch %s carries %.0f%% of its rating, consider a parallel path or larger conductor",
				b.EdgeID, b.LoadingPct))
		}
	}
	if minZ > 0 && maxZ/minZ > imbalanceRatio {
		out = append(out, "branch impedances in this ring are unbalanced, expect circulating current under load")
	}
	if len(out) == 0 {
		out = append(out, "ring operation acceptable, monitor loading")
	}
	return out
}
