package topology

import (
	"errors"
	"testing"

	"github.com/gridworks/powercalc/pkg/model"
)

// radialSnapshot is an 11kV infeed through a transformer onto a LV
// switchboard: source -> tx -> main breaker == panel -> load.
func radialSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Nodes: []model.Node{
			{ID: "grid", Kind: model.KindSource, VoltageKV: 11,
				Source: &model.SourceParams{ShortCircuitMVA: 500}},
			{ID: "tx1", Kind: model.KindTransformer, VoltageKV: 0.4,
				Transformer: &model.TransformerParams{RatedMVA: 1, ZPercent: 6, PrimaryKV: 11, SecondaryKV: 0.4}},
			{ID: "cb1", Kind: model.KindBreaker, VoltageKV: 0.4,
				Breaker: &model.BreakerParams{RatedKA: 22, ClearingTimeSec: 0.1}},
			{ID: "panel", Kind: model.KindBus, VoltageKV: 0.4},
			{ID: "load1", Kind: model.KindLoad, VoltageKV: 0.4,
				Load: &model.LoadParams{PowerKW: 200, PowerFactor: 0.9}},
		},
		Edges: []model.Edge{
			{ID: "e1", FromID: "grid", ToID: "tx1"},
			{ID: "e2", FromID: "tx1", ToID: "cb1", LengthM: 50, RPerKM: 0.161, XPerKM: 0.086, RatedA: 250},
			{ID: "e3", FromID: "cb1", ToID: "panel", BusLink: true},
			{ID: "e4", FromID: "panel", ToID: "load1", LengthM: 20, RPerKM: 0.2, XPerKM: 0.08},
		},
		Settings: model.DefaultSettings(),
	}
}

func TestBuildLevels(t *testing.T) {
	g, err := Build(radialSnapshot())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	want := map[string]int{"grid": 0, "tx1": 1, "cb1": 2, "panel": 3, "load1": 4}
	for id, lvl := range want {
		if g.Levels[id] != lvl {
			t.Errorf("level[%s] = %d, want %d", id, g.Levels[id], lvl)
		}
	}
	if err := g.Validate(); err != nil {
		t.Errorf("radial network should validate: %v", err)
	}
}

func TestBusIdentification(t *testing.T) {
	g, err := Build(radialSnapshot())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// cb1 and panel share a bus-bar link; everything else stands
	// alone. The transformer never merges.
	cbBus, _ := g.BusOf("cb1")
	panelBus, _ := g.BusOf("panel")
	if cbBus != panelBus {
		t.Errorf("cb1 bus %d != panel bus %d", cbBus, panelBus)
	}
	txBus, _ := g.BusOf("tx1")
	gridBus, _ := g.BusOf("grid")
	if txBus == gridBus || txBus == cbBus {
		t.Error("transformer must form its own bus")
	}
	if len(g.Buses) != 4 {
		t.Fatalf("got %d buses, want 4", len(g.Buses))
	}
	if v := g.Buses[cbBus].VoltageKV; v != 0.4 {
		t.Errorf("LV bus voltage = %g", v)
	}
}

func TestUnreachableNodeIssue(t *testing.T) {
	snap := radialSnapshot()
	snap.Nodes = append(snap.Nodes, model.Node{ID: "orphanA", Kind: model.KindBus, VoltageKV: 0.4})
	snap.Nodes = append(snap.Nodes, model.Node{ID: "orphanB", Kind: model.KindLoad, VoltageKV: 0.4,
		Load: &model.LoadParams{PowerKW: 10}})
	snap.Edges = append(snap.Edges, model.Edge{ID: "e9", FromID: "orphanA", ToID: "orphanB", LengthM: 5, RPerKM: 0.2})

	g, err := Build(snap)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if g.Levels["orphanA"] != Unreached {
		t.Errorf("orphanA level = %d, want unreached", g.Levels["orphanA"])
	}
	if err := g.Validate(); !errors.Is(err, ErrDisconnectedNetwork) {
		t.Errorf("got %v, want ErrDisconnectedNetwork", err)
	}

	found := false
	for _, is := range g.Issues {
		if is.Code == IssueUnreachable {
			found = true
			if is.Severity != SeverityError {
				t.Error("unreachable issue should be an error")
			}
		}
	}
	if !found {
		t.Error("expected an unreachable issue")
	}
}

func TestNoSourceIssue(t *testing.T) {
	snap := radialSnapshot()
	snap.Nodes = snap.Nodes[1:] // drop the source
	snap.Edges = snap.Edges[1:]

	g, err := Build(snap)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	found := false
	for _, is := range g.Issues {
		if is.Code == IssueNoSource {
			found = true
		}
	}
	if !found {
		t.Error("expected a no-source issue")
	}
}

func TestEdgesBetween(t *testing.T) {
	g, err := Build(radialSnapshot())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if es := g.EdgesBetween("tx1", "cb1"); len(es) != 1 || es[0].ID != "e2" {
		t.Errorf("EdgesBetween(tx1, cb1) = %v", es)
	}
	if es := g.EdgesBetween("cb1", "tx1"); len(es) != 1 {
		t.Error("EdgesBetween should be direction independent")
	}
	if es := g.EdgesBetween("grid", "panel"); len(es) != 0 {
		t.Errorf("unexpected edges: %v", es)
	}
}

func TestFindPathAndImpedance(t *testing.T) {
	g, err := Build(radialSnapshot())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	path := g.FindPath("grid", "load1")
	want := []string{"grid", "tx1", "cb1", "panel", "load1"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}

	// Series cable impedance along the path: e2 plus e4.
	z := g.PathImpedance(path)
	wantR := 0.161*0.05 + 0.2*0.02
	wantX := 0.086*0.05 + 0.08*0.02
	if r := real(z); r < wantR-1e-9 || r > wantR+1e-9 {
		t.Errorf("path R = %g, want %g", r, wantR)
	}
	if x := imag(z); x < wantX-1e-9 || x > wantX+1e-9 {
		t.Errorf("path X = %g, want %g", x, wantX)
	}

	if p := g.FindPath("load1", "grid"); p != nil {
		t.Errorf("directed path upstream should not exist, got %v", p)
	}
}

func TestShortestPathWeights(t *testing.T) {
	snap := radialSnapshot()
	// Parallel route to the load: short but high-impedance.
	snap.Nodes = append(snap.Nodes, model.Node{ID: "joint", Kind: model.KindCableJoint, VoltageKV: 0.4})
	snap.Edges = append(snap.Edges,
		model.Edge{ID: "p1", FromID: "panel", ToID: "joint", LengthM: 1, RPerKM: 50, XPerKM: 10},
		model.Edge{ID: "p2", FromID: "joint", ToID: "load1", LengthM: 1, RPerKM: 50, XPerKM: 10},
	)

	g, err := Build(snap)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	byZ, _ := g.ShortestPath("panel", "load1", WeightImpedance)
	if len(byZ) != 2 {
		t.Errorf("impedance route = %v, want direct cable", byZ)
	}
	byLen, dist := g.ShortestPath("panel", "load1", WeightLength)
	if len(byLen) != 3 {
		t.Errorf("length route = %v, want via joint", byLen)
	}
	if dist != 2 {
		t.Errorf("length distance = %g, want 2", dist)
	}
}

func TestUpstreamDownstream(t *testing.T) {
	g, err := Build(radialSnapshot())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	up := g.Upstream("panel")
	hasGrid := false
	for _, id := range up {
		if id == "grid" {
			hasGrid = true
		}
	}
	if !hasGrid {
		t.Errorf("upstream of panel = %v, want to include grid", up)
	}

	down := g.Downstream("tx1")
	hasLoad := false
	for _, id := range down {
		if id == "load1" {
			hasLoad = true
		}
	}
	if !hasLoad {
		t.Errorf("downstream of tx1 = %v, want to include load1", down)
	}
}
