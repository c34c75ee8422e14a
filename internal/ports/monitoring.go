package ports

// Monitor receives per-execution instrumentation. Implementations must be
// cheap and non-blocking; the engine calls IncrementUsage fire-and-forget
// on the node hot path.
type Monitor interface {
	StartExecutionMonitoring(executionID string)
	StopExecutionMonitoring(executionID string)
	IncrementUsage(nodeTypeName string)
}

// NoopMonitor satisfies Monitor for embedders that do not instrument.
type NoopMonitor struct{}

func (NoopMonitor) StartExecutionMonitoring(string) {}
func (NoopMonitor) StopExecutionMonitoring(string)  {}
func (NoopMonitor) IncrementUsage(string)           {}
