package topology

import (
	"golang.org/x/exp/slices"
)

// detectLoops finds cycles in the undirected graph with an iterative
// DFS. An explicit frame stack plus an on-stack index set keeps the
// walk bounded on pathological topologies; a visited neighbor that is
// still on the stack closes a loop. The edge we arrived by is skipped
// by id, so parallel edges between two nodes still count as a loop.
func (g *Graph) detectLoops() {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	onStack := make(map[string]int) // node -> position in stack
	seen := make(map[string]bool)   // canonical loop keys

	type frame struct {
		node    string
		viaEdge string
		next    int
	}

	for _, start := range g.NodeIDs() {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		path := []string{}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next == 0 {
				color[f.node] = gray
				onStack[f.node] = len(path)
				path = append(path, f.node)
			}

			refs := g.und[f.node]
			advanced := false
			for f.next < len(refs) {
				ref := refs[f.next]
				f.next++
				if ref.Edge.ID == f.viaEdge {
					continue
				}
				switch color[ref.Other] {
				case white:
					stack = append(stack, frame{node: ref.Other, viaEdge: ref.Edge.ID})
					advanced = true
				case gray:
					// Back edge: the cycle runs from the neighbor's
					// stack position to the current node.
					pos := onStack[ref.Other]
					loop := make([]string, len(path)-pos)
					copy(loop, path[pos:])
					if key := canonicalLoopKey(loop); !seen[key] {
						seen[key] = true
						g.Loops = append(g.Loops, loop)
					}
				}
				if advanced {
					break
				}
			}
			if !advanced {
				color[f.node] = black
				delete(onStack, f.node)
				path = path[:len(path)-1]
				stack = stack[:len(stack)-1]
			}
		}
	}
}

// canonicalLoopKey produces an orientation- and rotation-independent
// key so the same cycle found from two directions is recorded once.
func canonicalLoopKey(loop []string) string {
	sorted := make([]string, len(loop))
	copy(sorted, loop)
	slices.Sort(sorted)
	key := ""
	for _, id := range sorted {
		key += id + "|"
	}
	return key
}
