package nodes

import (
	"fmt"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

func setVariableType() domain.NodeType {
	return domain.NodeType{
		Name:          "core.set_variable",
		Version:       "1",
		Kind:          domain.NodeKindAction,
		Active:        true,
		SupportsRetry: false,
	}
}

// variableWriter is the capability the run context exposes beyond the
// read-only view handed to executors.
type variableWriter interface {
	SetVariable(name string, value interface{})
}

// SetVariableNode writes a workflow variable for downstream nodes. The
// variable name comes from config; the value comes from the "value" input,
// falling back to a literal in config.
type SetVariableNode struct{}

func (SetVariableNode) Execute(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	name := configString(config, "name")
	if name == "" {
		return nil, fmt.Errorf("config %q is required", "name")
	}

	value, ok := input["value"]
	if !ok || value == nil {
		value, ok = config["value"]
		if !ok {
			return nil, fmt.Errorf("no value supplied via input or config")
		}
	}

	writer, ok := env.Context.(variableWriter)
	if !ok {
		return nil, fmt.Errorf("run context does not support variable writes")
	}
	writer.SetVariable(name, value)

	return map[string]interface{}{domain.DefaultPort: value}, nil
}
