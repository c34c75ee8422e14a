package engine

import (
	"fmt"
	"sort"

	"github.com/fluxline/fluxline/internal/domain"
)

// BuildStages turns the connection graph into an ordered list of stages by
// Kahn-style layering: each stage holds every not-yet-placed node whose
// dependencies were all placed in strictly earlier stages. Node order within
// a stage carries no meaning; stage members run concurrently.
func BuildStages(def *domain.WorkflowDefinition) ([][]string, error) {
	known := make(map[string]bool, len(def.Nodes))
	for _, node := range def.Nodes {
		if known[node.ID] {
			return nil, domain.NewValidationError(def.ID, fmt.Sprintf("duplicate node id %q", node.ID))
		}
		known[node.ID] = true
	}

	deps := make(map[string][]string, len(def.Nodes))
	for _, conn := range def.Connections {
		if !known[conn.SourceNode] {
			return nil, domain.NewValidationError(def.ID, fmt.Sprintf("connection references unknown source node %q", conn.SourceNode))
		}
		if !known[conn.TargetNode] {
			return nil, domain.NewValidationError(def.ID, fmt.Sprintf("connection references unknown target node %q", conn.TargetNode))
		}
		deps[conn.TargetNode] = append(deps[conn.TargetNode], conn.SourceNode)
	}

	placed := make(map[string]bool, len(def.Nodes))
	var stages [][]string

	for len(placed) < len(def.Nodes) {
		var stage []string
		for _, node := range def.Nodes {
			if placed[node.ID] {
				continue
			}
			ready := true
			for _, dep := range deps[node.ID] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				stage = append(stage, node.ID)
			}
		}

		if len(stage) == 0 {
			remaining := make([]string, 0, len(def.Nodes)-len(placed))
			for _, node := range def.Nodes {
				if !placed[node.ID] {
					remaining = append(remaining, node.ID)
				}
			}
			sort.Strings(remaining)
			return nil, domain.NewValidationError(def.ID, fmt.Sprintf("circular dependency among nodes %v", remaining))
		}

		for _, id := range stage {
			placed[id] = true
		}
		stages = append(stages, stage)
	}

	return stages, nil
}
