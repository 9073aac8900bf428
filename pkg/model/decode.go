package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeSnapshot parses a serialized project into an immutable
// Snapshot. Component kinds are resolved, defaults applied and the
// settings validated; a snapshot that decodes successfully is ready
// to analyze.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	seen := make(map[string]bool, len(snap.Nodes))
	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("decode snapshot: node %d has no id", i)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("decode snapshot: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true

		kind, ok := ParseKind(n.KindName)
		if !ok {
			return nil, fmt.Errorf("decode snapshot: node %q has unknown kind %q", n.ID, n.KindName)
		}
		n.Kind = kind
	}

	for i := range snap.Edges {
		e := &snap.Edges[i]
		if e.ID == "" {
			e.ID = fmt.Sprintf("e%d", i+1)
		}
		if !seen[e.FromID] || !seen[e.ToID] {
			return nil, fmt.Errorf("decode snapshot: edge %q references unknown node", e.ID)
		}
	}

	snap.Settings = snap.Settings.Normalized()
	if err := snap.Settings.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}
