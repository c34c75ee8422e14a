package domain

import (
	"dario.cat/mergo"
)

// MergeVariables folds trigger input into the definition's variable
// defaults: input wins on conflicting keys, defaults fill the rest.
func MergeVariables(defaults, input map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(defaults)+len(input))
	for k, v := range input {
		merged[k] = v
	}

	if err := mergo.Merge(&merged, defaults); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeNodeConfig layers a node instance's configuration over the node
// type's declared config defaults.
func MergeNodeConfig(config, typeDefaults map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(config)+len(typeDefaults))
	for k, v := range config {
		merged[k] = v
	}

	if err := mergo.Merge(&merged, typeDefaults); err != nil {
		return nil, err
	}
	return merged, nil
}
