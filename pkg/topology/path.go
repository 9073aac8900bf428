package topology

import (
	"math/cmplx"
)

// FindPath returns a directed path between two nodes using BFS, or
// nil if none exists.
func (g *Graph) FindPath(fromID, toID string) []string {
	if g.nodes[fromID] == nil || g.nodes[toID] == nil {
		return nil
	}
	if fromID == toID {
		return []string{fromID}
	}

	queue := []string{fromID}
	parent := map[string]string{fromID: fromID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ref := range g.out[cur] {
			if _, seen := parent[ref.Other]; seen {
				continue
			}
			parent[ref.Other] = cur
			if ref.Other == toID {
				return reconstruct(parent, fromID, toID)
			}
			queue = append(queue, ref.Other)
		}
	}
	return nil
}

func reconstruct(parent map[string]string, fromID, toID string) []string {
	path := []string{toID}
	for node := toID; node != fromID; {
		node = parent[node]
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Weight selects the edge weight for shortest-path queries.
type Weight int

const (
	// WeightImpedance uses |Z| of the edge (the default for
	// electrical-distance queries).
	WeightImpedance Weight = iota
	// WeightLength uses physical length in meters.
	WeightLength
)

func (g *Graph) edgeWeight(ref edgeRef, w Weight) float64 {
	switch w {
	case WeightLength:
		return ref.Edge.LengthM
	default:
		return cmplx.Abs(ref.Edge.ImpedanceOhms())
	}
}

// ShortestPath finds the minimum-weight undirected path between two
// nodes with Dijkstra's algorithm. The priority queue is a plain
// slice with linear extraction; networks here are small enough that
// simplicity wins over a heap.
func (g *Graph) ShortestPath(fromID, toID string, w Weight) ([]string, float64) {
	if g.nodes[fromID] == nil || g.nodes[toID] == nil {
		return nil, 0
	}

	type pqItem struct {
		nodeID   string
		distance float64
	}

	distances := map[string]float64{fromID: 0}
	parent := map[string]string{fromID: fromID}
	done := map[string]bool{}
	pq := []pqItem{{fromID, 0}}

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].distance < pq[minIdx].distance {
				minIdx = i
			}
		}
		current := pq[minIdx]
		pq = append(pq[:minIdx], pq[minIdx+1:]...)
		if done[current.nodeID] {
			continue
		}
		done[current.nodeID] = true

		if current.nodeID == toID {
			return reconstruct(parent, fromID, toID), distances[toID]
		}

		for _, ref := range g.und[current.nodeID] {
			newDist := current.distance + g.edgeWeight(ref, w)
			if old, visited := distances[ref.Other]; !visited || newDist < old {
				distances[ref.Other] = newDist
				parent[ref.Other] = current.nodeID
				pq = append(pq, pqItem{ref.Other, newDist})
			}
		}
	}
	return nil, 0
}

// Upstream returns every node from which the given node can be
// reached, walking reverse edges breadth-first.
func (g *Graph) Upstream(nodeID string) []string {
	return g.collect(nodeID, g.in)
}

// Downstream returns every node reachable from the given node.
func (g *Graph) Downstream(nodeID string) []string {
	return g.collect(nodeID, g.out)
}

func (g *Graph) collect(nodeID string, adj map[string][]edgeRef) []string {
	if g.nodes[nodeID] == nil {
		return nil
	}
	var result []string
	queue := []string{nodeID}
	visited := map[string]bool{nodeID: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ref := range adj[cur] {
			if visited[ref.Other] {
				continue
			}
			visited[ref.Other] = true
			result = append(result, ref.Other)
			queue = append(queue, ref.Other)
		}
	}
	return result
}

// PathImpedance sums the series impedance in ohms along a node path.
// Edges are matched in either direction; missing segments contribute
// nothing.
func (g *Graph) PathImpedance(path []string) complex128 {
	var total complex128
	for i := 0; i+1 < len(path); i++ {
		for _, ref := range g.und[path[i]] {
			if ref.Other == path[i+1] {
				total += ref.Edge.ImpedanceOhms()
				break
			}
		}
	}
	return total
}
