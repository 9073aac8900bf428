// Package topology builds the derived graph view of a network
// snapshot: source-distance levels, electrically-common bus groups,
// loop detection and structural validation diagnostics. Everything in
// here is read-only once built; solvers consume it without locking.
package topology

import (
	"errors"
	"fmt"
	"math/cmplx"

	"golang.org/x/exp/slices"

	"github.com/gridworks/powercalc/pkg/model"
)

// ErrDisconnectedNetwork reports nodes that no source reaches. It is
// a diagnostic: analysis continues for the reachable sub-network.
var ErrDisconnectedNetwork = errors.New("network has nodes unreachable from any source")

// Unreached is the level assigned to nodes no source reaches.
const Unreached = -1

// edgeRef is one adjacency entry: the edge and the node on its far
// side.
type edgeRef struct {
	Edge  *model.Edge
	Other string
}

// Bus is a maximal group of nodes connected through zero-impedance
// links, treated as one electrical node by the solvers.
type Bus struct {
	Index     int
	Name      string
	VoltageKV float64
	NodeIDs   []string
}

// Graph is the derived, immutable topology view over one snapshot.
type Graph struct {
	Snapshot *model.Snapshot

	nodes map[string]*model.Node
	out   map[string][]edgeRef // directed, editor order
	in    map[string][]edgeRef
	und   map[string][]edgeRef // both directions

	Sources []string
	Levels  map[string]int
	Buses   []Bus
	busOf   map[string]int
	Loops   [][]string
	Issues  []Issue
}

// Build derives the topology graph from a snapshot. Structural
// problems become Issues on the graph rather than errors; only a
// malformed snapshot (edge to a missing node) fails.
func Build(snap *model.Snapshot) (*Graph, error) {
	g := &Graph{
		Snapshot: snap,
		nodes:    make(map[string]*model.Node, len(snap.Nodes)),
		out:      make(map[string][]edgeRef),
		in:       make(map[string][]edgeRef),
		und:      make(map[string][]edgeRef),
		Levels:   make(map[string]int, len(snap.Nodes)),
		busOf:    make(map[string]int, len(snap.Nodes)),
	}

	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("topology: duplicate node id %q", n.ID)
		}
		g.nodes[n.ID] = n
		if n.Kind == model.KindSource {
			g.Sources = append(g.Sources, n.ID)
		}
	}
	slices.Sort(g.Sources)

	for i := range snap.Edges {
		e := &snap.Edges[i]
		if g.nodes[e.FromID] == nil || g.nodes[e.ToID] == nil {
			return nil, fmt.Errorf("topology: edge %q references unknown node", e.ID)
		}
		g.out[e.FromID] = append(g.out[e.FromID], edgeRef{Edge: e, Other: e.ToID})
		g.in[e.ToID] = append(g.in[e.ToID], edgeRef{Edge: e, Other: e.FromID})
		g.und[e.FromID] = append(g.und[e.FromID], edgeRef{Edge: e, Other: e.ToID})
		g.und[e.ToID] = append(g.und[e.ToID], edgeRef{Edge: e, Other: e.FromID})
	}

	g.assignLevels()
	g.identifyBuses()
	g.detectLoops()
	g.validate()
	return g, nil
}

// Node returns a node by id, or nil.
func (g *Graph) Node(id string) *model.Node { return g.nodes[id] }

// NodeIDs returns all node identifiers in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EdgesBetween returns every edge joining two nodes, in either
// direction. Parallel edges are all returned.
func (g *Graph) EdgesBetween(a, b string) []*model.Edge {
	var edges []*model.Edge
	for _, ref := range g.und[a] {
		if ref.Other == b {
			edges = append(edges, ref.Edge)
		}
	}
	return edges
}

// BusOf returns the bus index a node belongs to.
func (g *Graph) BusOf(nodeID string) (int, bool) {
	idx, ok := g.busOf[nodeID]
	return idx, ok
}

// assignLevels runs BFS downstream from every source. A node's level
// is the minimum hop count over all sources; sources are visited in
// ascending id order so equal-distance ties resolve to the
// lowest-numbered source deterministically.
func (g *Graph) assignLevels() {
	for id := range g.nodes {
		g.Levels[id] = Unreached
	}
	for _, src := range g.Sources {
		g.Levels[src] = 0
		queue := []string{src}
		level := map[string]int{src: 0}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, ref := range g.out[cur] {
				if _, seen := level[ref.Other]; seen {
					continue
				}
				level[ref.Other] = level[cur] + 1
				queue = append(queue, ref.Other)
			}
		}
		for id, l := range level {
			if g.Levels[id] == Unreached || l < g.Levels[id] {
				g.Levels[id] = l
			}
		}
	}
}

// conductive reports whether an edge merges its endpoints into one
// electrical bus: an explicit bus-bar link, or a zero-impedance edge
// between same-voltage non-transformer nodes. Transformers always
// separate buses, their impedance lives on the node.
func (g *Graph) conductive(e *model.Edge) bool {
	if g.nodes[e.FromID].Kind == model.KindTransformer || g.nodes[e.ToID].Kind == model.KindTransformer {
		return false
	}
	if e.BusLink {
		return true
	}
	if cmplx.Abs(e.ImpedanceOhms()) != 0 || e.LengthM != 0 {
		return false
	}
	return g.nodes[e.FromID].VoltageKV == g.nodes[e.ToID].VoltageKV
}

// identifyBuses merges nodes across conductive edges with union-find
// and numbers the groups deterministically by their smallest member.
func (g *Graph) identifyBuses() {
	ids := g.NodeIDs()
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Keep the lexically smaller root so grouping is stable.
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for i := range g.Snapshot.Edges {
		e := &g.Snapshot.Edges[i]
		if g.conductive(e) {
			union(e.FromID, e.ToID)
		}
	}

	groups := make(map[string][]string)
	for _, id := range ids {
		root := find(id)
		groups[root] = append(groups[root], id)
	}
	roots := make([]string, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	slices.Sort(roots)

	g.Buses = make([]Bus, 0, len(roots))
	counter := make(map[float64]int)
	for _, root := range roots {
		members := groups[root]
		slices.Sort(members)
		kv := g.nodes[members[0]].VoltageKV
		counter[kv]++
		bus := Bus{
			Index:     len(g.Buses),
			Name:      fmt.Sprintf("BUS-%gkV-%02d", kv, counter[kv]),
			VoltageKV: kv,
			NodeIDs:   members,
		}
		for _, id := range members {
			g.busOf[id] = bus.Index
		}
		g.Buses = append(g.Buses, bus)
	}
}

// Validate returns ErrDisconnectedNetwork if any node is unreachable.
// Callers that treat disconnection as fatal can check this; the
// orchestrator reports it and keeps going.
func (g *Graph) Validate() error {
	for _, issue := range g.Issues {
		if issue.Code == IssueUnreachable {
			return fmt.Errorf("%w: node %s", ErrDisconnectedNetwork, issue.NodeID)
		}
	}
	return nil
}
