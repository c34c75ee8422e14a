package domain

import (
	"sync"
	"time"
)

// ExecutionContext is the mutable per-run state shared by every node of one
// workflow run. Node outputs are write-once under disjoint "nodeId.port"
// keys, so concurrent writers within a stage never collide on a key.
// Variables have no such guarantee: two nodes in the same stage that set the
// same variable name race, and the last write wins with no defined order.
type ExecutionContext struct {
	WorkflowID     string
	ExecutionID    string
	OrganizationID string
	UserID         string
	InputData      map[string]interface{}
	Metadata       map[string]string
	StartedAt      time.Time

	mu        sync.RWMutex
	variables map[string]interface{}
	outputs   map[string]interface{}
}

func NewExecutionContext(workflowID, executionID string, variables map[string]interface{}) *ExecutionContext {
	vars := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	return &ExecutionContext{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		StartedAt:   time.Now(),
		Metadata:    make(map[string]string),
		variables:   vars,
		outputs:     make(map[string]interface{}),
	}
}

func OutputKey(nodeID, port string) string {
	if port == "" {
		port = DefaultPort
	}
	return nodeID + "." + port
}

func (c *ExecutionContext) GetVariable(name string, def interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.variables[name]; ok {
		return v
	}
	return def
}

func (c *ExecutionContext) SetVariable(name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = value
}

func (c *ExecutionContext) HasVariable(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.variables[name]
	return ok
}

func (c *ExecutionContext) GetNodeOutput(nodeID, port string, def interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.outputs[OutputKey(nodeID, port)]; ok {
		return v
	}
	return def
}

func (c *ExecutionContext) LookupOutput(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.outputs[key]
	return v, ok
}

func (c *ExecutionContext) SetNodeOutput(nodeID, port string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[OutputKey(nodeID, port)] = value
}

// Outputs returns a copy of the accumulated node outputs keyed "nodeId.port".
func (c *ExecutionContext) Outputs() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.outputs))
	for k, v := range c.outputs {
		out[k] = v
	}
	return out
}

// Variables returns a copy of the current variable map.
func (c *ExecutionContext) Variables() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vars := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		vars[k] = v
	}
	return vars
}
