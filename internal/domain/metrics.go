package domain

import (
	"sync/atomic"
)

type ExecutionMetrics struct {
	WorkflowsStarted   int64 `json:"workflows_started"`
	WorkflowsCompleted int64 `json:"workflows_completed"`
	WorkflowsFailed    int64 `json:"workflows_failed"`
	WorkflowsCancelled int64 `json:"workflows_cancelled"`
	WorkflowsTimedOut  int64 `json:"workflows_timed_out"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`
	NodesTimedOut  int64 `json:"nodes_timed_out"`
	NodesRetried   int64 `json:"nodes_retried"`
}

func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{}
}

func (m *ExecutionMetrics) IncrementWorkflowsStarted() {
	atomic.AddInt64(&m.WorkflowsStarted, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsCompleted() {
	atomic.AddInt64(&m.WorkflowsCompleted, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsFailed() {
	atomic.AddInt64(&m.WorkflowsFailed, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsCancelled() {
	atomic.AddInt64(&m.WorkflowsCancelled, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsTimedOut() {
	atomic.AddInt64(&m.WorkflowsTimedOut, 1)
}

func (m *ExecutionMetrics) IncrementNodesExecuted() {
	atomic.AddInt64(&m.NodesExecuted, 1)
}

func (m *ExecutionMetrics) IncrementNodesSucceeded() {
	atomic.AddInt64(&m.NodesSucceeded, 1)
}

func (m *ExecutionMetrics) IncrementNodesFailed() {
	atomic.AddInt64(&m.NodesFailed, 1)
}

func (m *ExecutionMetrics) IncrementNodesTimedOut() {
	atomic.AddInt64(&m.NodesTimedOut, 1)
}

func (m *ExecutionMetrics) IncrementNodesRetried() {
	atomic.AddInt64(&m.NodesRetried, 1)
}

// Snapshot returns a consistent-enough copy for reporting; individual
// counters are loaded atomically, cross-counter skew is acceptable.
func (m *ExecutionMetrics) Snapshot() ExecutionMetrics {
	return ExecutionMetrics{
		WorkflowsStarted:   atomic.LoadInt64(&m.WorkflowsStarted),
		WorkflowsCompleted: atomic.LoadInt64(&m.WorkflowsCompleted),
		WorkflowsFailed:    atomic.LoadInt64(&m.WorkflowsFailed),
		WorkflowsCancelled: atomic.LoadInt64(&m.WorkflowsCancelled),
		WorkflowsTimedOut:  atomic.LoadInt64(&m.WorkflowsTimedOut),
		NodesExecuted:      atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:     atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:        atomic.LoadInt64(&m.NodesFailed),
		NodesTimedOut:      atomic.LoadInt64(&m.NodesTimedOut),
		NodesRetried:       atomic.LoadInt64(&m.NodesRetried),
	}
}
