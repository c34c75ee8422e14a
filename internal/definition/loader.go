// Package definition decodes workflow definitions from YAML or JSON and
// performs structural validation before a definition reaches the engine.
package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/xjson"
)

// Load reads a definition file, choosing the codec by extension.
func Load(path string) (*domain.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	default:
		return ParseYAML(data)
	}
}

func ParseYAML(data []byte) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func ParseJSON(data []byte) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := xjson.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural invariants a definition must hold before
// planning: non-empty ids, unique node ids, connections referencing only
// declared nodes. Cycle detection happens later, in the stage planner.
func Validate(def *domain.WorkflowDefinition) error {
	if def.ID == "" {
		return domain.NewValidationError("", "workflow id is required")
	}
	if len(def.Nodes) == 0 {
		return domain.NewValidationError(def.ID, "workflow has no nodes")
	}

	seen := make(map[string]bool, len(def.Nodes))
	for _, node := range def.Nodes {
		if node.ID == "" {
			return domain.NewValidationError(def.ID, "node id is required")
		}
		if node.Type == "" {
			return domain.NewValidationError(def.ID, fmt.Sprintf("node %q has no type", node.ID))
		}
		if seen[node.ID] {
			return domain.NewValidationError(def.ID, fmt.Sprintf("duplicate node id %q", node.ID))
		}
		seen[node.ID] = true
	}

	for _, conn := range def.Connections {
		if !seen[conn.SourceNode] {
			return domain.NewValidationError(def.ID, fmt.Sprintf("connection references unknown source node %q", conn.SourceNode))
		}
		if !seen[conn.TargetNode] {
			return domain.NewValidationError(def.ID, fmt.Sprintf("connection references unknown target node %q", conn.TargetNode))
		}
	}

	return nil
}
