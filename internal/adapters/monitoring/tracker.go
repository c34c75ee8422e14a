// Package monitoring is the in-process Monitor implementation: an
// active-run registry plus per-node-type usage counters.
package monitoring

import (
	"log/slog"
	"sync"
	"time"
)

type Tracker struct {
	logger *slog.Logger

	mu     sync.RWMutex
	active map[string]time.Time
	usage  map[string]int64
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		logger: logger.With("component", "monitoring"),
		active: make(map[string]time.Time),
		usage:  make(map[string]int64),
	}
}

func (t *Tracker) StartExecutionMonitoring(executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[executionID] = time.Now()
}

func (t *Tracker) StopExecutionMonitoring(executionID string) {
	t.mu.Lock()
	started, ok := t.active[executionID]
	delete(t.active, executionID)
	t.mu.Unlock()

	if ok {
		t.logger.Debug("execution monitoring stopped",
			"execution_id", executionID,
			"duration", time.Since(started),
		)
	}
}

func (t *Tracker) IncrementUsage(nodeTypeName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage[nodeTypeName]++
}

// ActiveExecutions lists runs that started monitoring but have not stopped.
func (t *Tracker) ActiveExecutions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	return ids
}

// UsageSnapshot copies the per-type usage counters.
func (t *Tracker) UsageSnapshot() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int64, len(t.usage))
	for name, count := range t.usage {
		out[name] = count
	}
	return out
}
