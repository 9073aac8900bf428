package topology

import (
	"fmt"

	"github.com/gridworks/powercalc/pkg/model"
)

// Severity classifies a structural issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// String returns the display name of a severity.
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue codes.
const (
	IssueDangling        = "dangling-node"
	IssueUnreachable     = "unreachable-node"
	IssueNoSource        = "no-source"
	IssueSplitSources    = "split-sources"
	IssueVoltageMismatch = "voltage-mismatch"
)

// Issue is one structured validation diagnostic. Issues never abort
// the run; downstream solvers degrade the affected entries instead.
type Issue struct {
	Severity Severity
	Code     string
	NodeID   string
	Message  string
}

// validate records structural problems: dangling nodes, nodes no
// source reaches, missing or mutually disconnected sources, and
// same-edge voltage mismatches outside transformers.
func (g *Graph) validate() {
	if len(g.Sources) == 0 {
		g.Issues = append(g.Issues, Issue{
			Severity: SeverityError,
			Code:     IssueNoSource,
			Message:  "network has no source node",
		})
	}

	for _, id := range g.NodeIDs() {
		node := g.nodes[id]
		degree := len(g.und[id])
		if degree == 0 && node.Kind != model.KindSource {
			g.Issues = append(g.Issues, Issue{
				Severity: SeverityWarning,
				Code:     IssueDangling,
				NodeID:   id,
				Message:  fmt.Sprintf("node %s has no connections", displayName(node)),
			})
		}
		if node.Kind != model.KindSource && g.Levels[id] == Unreached {
			g.Issues = append(g.Issues, Issue{
				Severity: SeverityError,
				Code:     IssueUnreachable,
				NodeID:   id,
				Message:  fmt.Sprintf("node %s is not connected to any source", displayName(node)),
			})
		}
	}

	// Two sources that cannot reach a common node are separate
	// islands; flag every source beyond the first island.
	if len(g.Sources) > 1 {
		reach := make([]map[string]bool, len(g.Sources))
		for i, src := range g.Sources {
			reach[i] = map[string]bool{src: true}
			for _, id := range g.Downstream(src) {
				reach[i][id] = true
			}
			for _, id := range g.Upstream(src) {
				reach[i][id] = true
			}
		}
		for i := 1; i < len(g.Sources); i++ {
			if !overlaps(reach[0], reach[i]) {
				g.Issues = append(g.Issues, Issue{
					Severity: SeverityWarning,
					Code:     IssueSplitSources,
					NodeID:   g.Sources[i],
					Message:  fmt.Sprintf("source %s shares no nodes with source %s", g.Sources[i], g.Sources[0]),
				})
			}
		}
	}

	for i := range g.Snapshot.Edges {
		e := &g.Snapshot.Edges[i]
		from, to := g.nodes[e.FromID], g.nodes[e.ToID]
		if from.Kind == model.KindTransformer || to.Kind == model.KindTransformer {
			continue
		}
		if from.VoltageKV != to.VoltageKV {
			g.Issues = append(g.Issues, Issue{
				Severity: SeverityWarning,
				Code:     IssueVoltageMismatch,
				NodeID:   e.FromID,
				Message:  fmt.Sprintf("edge %s joins %gkV and %gkV without a transformer", e.ID, from.VoltageKV, to.VoltageKV),
			})
		}
	}
}

func overlaps(a, b map[string]bool) bool {
	for id := range b {
		if a[id] {
			return true
		}
	}
	return false
}

func displayName(n *model.Node) string {
	if n.Tag != "" {
		return n.Tag
	}
	return n.ID
}
