package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerActiveExecutions(t *testing.T) {
	tr := NewTracker(nil)

	assert.Empty(t, tr.ActiveExecutions())

	tr.StartExecutionMonitoring("exec-1")
	tr.StartExecutionMonitoring("exec-2")
	assert.ElementsMatch(t, []string{"exec-1", "exec-2"}, tr.ActiveExecutions())

	tr.StopExecutionMonitoring("exec-1")
	assert.Equal(t, []string{"exec-2"}, tr.ActiveExecutions())

	// stopping an unknown id is a no-op
	tr.StopExecutionMonitoring("ghost")
	assert.Equal(t, []string{"exec-2"}, tr.ActiveExecutions())
}

func TestTrackerUsageCounters(t *testing.T) {
	tr := NewTracker(nil)

	tr.IncrementUsage("http.request")
	tr.IncrementUsage("http.request")
	tr.IncrementUsage("core.noop")

	usage := tr.UsageSnapshot()
	assert.EqualValues(t, 2, usage["http.request"])
	assert.EqualValues(t, 1, usage["core.noop"])

	// the snapshot is a copy
	usage["http.request"] = 99
	assert.EqualValues(t, 2, tr.UsageSnapshot()["http.request"])
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.StartExecutionMonitoring("exec")
				tr.IncrementUsage("core.noop")
				tr.StopExecutionMonitoring("exec")
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 800, tr.UsageSnapshot()["core.noop"])
}
