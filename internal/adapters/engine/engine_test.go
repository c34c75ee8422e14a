package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxline/fluxline/internal/adapters/registry"
	"github.com/fluxline/fluxline/internal/adapters/storage"
	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

type funcExecutor struct {
	fn func(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error)
}

func (f funcExecutor) Execute(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	return f.fn(input, config, env)
}

type asyncFuncExecutor struct {
	fn func(ctx context.Context, input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error)
}

func (f asyncFuncExecutor) Execute(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	return f.fn(context.Background(), input, config, env)
}

func (f asyncFuncExecutor) ExecuteAsync(ctx context.Context, input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	return f.fn(ctx, input, config, env)
}

type harness struct {
	engine   *Engine
	registry *registry.Registry
	store    *storage.MemoryStore
}

func newHarness(t *testing.T, cfg domain.EngineConfig) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 5 * time.Millisecond
	}
	if cfg.NodeTimeout == 0 {
		cfg.NodeTimeout = time.Second
	}
	if cfg.ExecutionTimeout == 0 {
		cfg.ExecutionTimeout = 10 * time.Second
	}

	reg := registry.New(logger)
	store := storage.NewMemoryStore()
	eng := NewEngine(domain.Config{Engine: cfg, Logger: logger}, store, store, reg, nil, nil, logger)

	return &harness{engine: eng, registry: reg, store: store}
}

func (h *harness) register(t *testing.T, typ domain.NodeType, exec ports.NodeExecutor) {
	t.Helper()
	require.NoError(t, h.registry.Register(typ, exec))
}

func (h *harness) registerTrigger(t *testing.T) {
	h.register(t, domain.NodeType{
		Name:   "test.trigger",
		Kind:   domain.NodeKindTrigger,
		Active: true,
	}, funcExecutor{fn: func(input, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
		return map[string]interface{}{"main": input}, nil
	}})
}

func (h *harness) registerOK(t *testing.T, name string) *int64 {
	var calls int64
	h.register(t, domain.NodeType{Name: name, Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		funcExecutor{fn: func(_, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			atomic.AddInt64(&calls, 1)
			return map[string]interface{}{"main": name + "-output"}, nil
		}})
	return &calls
}

func (h *harness) nodeLogsFor(t *testing.T, executionID, nodeID string) []*domain.NodeExecutionRecord {
	t.Helper()

	logs, err := h.store.ListNodeLogs(context.Background(), executionID)
	require.NoError(t, err)

	var out []*domain.NodeExecutionRecord
	for _, log := range logs {
		if log.NodeID == nodeID {
			out = append(out, log)
		}
	}
	return out
}

func linearDef(ids ...string) *domain.WorkflowDefinition {
	def := &domain.WorkflowDefinition{ID: "wf-linear"}
	for i, id := range ids {
		typeName := "test.trigger"
		if i > 0 {
			typeName = "node." + id
		}
		def.Nodes = append(def.Nodes, domain.NodeSpec{ID: id, Type: typeName})
		if i > 0 {
			def.Connections = append(def.Connections, domain.Connection{SourceNode: ids[i-1], TargetNode: id})
		}
	}
	return def
}

func TestExecuteWorkflow_LinearSuccess(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerTrigger(t)
	h.registerOK(t, "node.B")
	h.registerOK(t, "node.C")

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    linearDef("A", "B", "C"),
		TriggerSource: "webhook",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, 3, record.NodesExecuted)
	assert.Equal(t, 0, record.NodesFailed)
	assert.Equal(t, "node.B-output", record.Outputs["B.main"])
	assert.Equal(t, "node.C-output", record.Outputs["C.main"])
	require.NotNil(t, record.CompletedAt)

	persisted, err := h.store.GetExecution(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, persisted.Status)
}

func TestExecuteWorkflow_LinearFailureStopsRun(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerTrigger(t)
	h.register(t, domain.NodeType{Name: "node.B", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		funcExecutor{fn: func(_, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			return nil, domain.NewNodeError(domain.KindConfiguration, "B", "node.B", "bad configuration", nil)
		}})
	cCalls := h.registerOK(t, "node.C")

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    linearDef("A", "B", "C"),
		TriggerSource: "webhook",
	})
	require.Error(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, record.Status)
	assert.Equal(t, 1, record.NodesExecuted)
	assert.Equal(t, 1, record.NodesFailed)
	assert.Equal(t, string(domain.KindConfiguration), record.ErrorKind)

	assert.Zero(t, atomic.LoadInt64(cCalls), "C must never be attempted")
	assert.Empty(t, h.nodeLogsFor(t, record.ID, "C"))
	assert.Len(t, h.nodeLogsFor(t, record.ID, "B"), 1, "configuration error must not be retried")
}

func TestExecuteWorkflow_ParallelSiblingsNotCancelled(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerTrigger(t)

	var bFinished atomic.Bool
	h.register(t, domain.NodeType{Name: "node.B", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		asyncFuncExecutor{fn: func(ctx context.Context, _, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			select {
			case <-time.After(80 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			bFinished.Store(true)
			return map[string]interface{}{"main": "slow-but-steady"}, nil
		}})
	h.register(t, domain.NodeType{Name: "node.D", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		funcExecutor{fn: func(_, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			return nil, domain.NewNodeError(domain.KindConfiguration, "D", "node.D", "boom", nil)
		}})

	def := &domain.WorkflowDefinition{
		ID: "wf-parallel",
		Nodes: []domain.NodeSpec{
			{ID: "A", Type: "test.trigger"},
			{ID: "B", Type: "node.B"},
			{ID: "D", Type: "node.D"},
		},
		Connections: []domain.Connection{
			{SourceNode: "A", TargetNode: "B"},
			{SourceNode: "A", TargetNode: "D"},
		},
	}

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: "webhook",
	})
	require.Error(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, record.Status)
	assert.True(t, bFinished.Load(), "B must run to completion despite D failing")

	bLogs := h.nodeLogsFor(t, record.ID, "B")
	require.Len(t, bLogs, 1)
	assert.Equal(t, domain.NodeStatusCompleted, bLogs[0].Status)
	assert.Equal(t, "slow-but-steady", bLogs[0].Output["main"])

	dLogs := h.nodeLogsFor(t, record.ID, "D")
	require.Len(t, dLogs, 1)
	assert.Equal(t, domain.NodeStatusFailed, dLogs[0].Status)
}

func TestExecuteWorkflow_DeadlineCheckedBetweenStages(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerTrigger(t)

	sleeper := func(d time.Duration) ports.NodeExecutor {
		return asyncFuncExecutor{fn: func(ctx context.Context, _, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			select {
			case <-time.After(d):
				return map[string]interface{}{"main": "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}}
	}
	h.register(t, domain.NodeType{Name: "node.B", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true}, sleeper(50*time.Millisecond))
	h.register(t, domain.NodeType{Name: "node.C", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true}, sleeper(100*time.Millisecond))

	def := linearDef("A", "B", "C")
	def.ExecutionTimeout = domain.Duration(120 * time.Millisecond)

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: "webhook",
	})
	require.Error(t, err)

	assert.Equal(t, domain.ExecutionStatusTimeout, record.Status)
	assert.Equal(t, string(domain.KindTimeout), record.ErrorKind)

	// the deadline is only checked after the stage barrier, so the node
	// that overran it still finished
	cLogs := h.nodeLogsFor(t, record.ID, "C")
	require.Len(t, cLogs, 1)
	assert.Equal(t, domain.NodeStatusCompleted, cLogs[0].Status)
}

func TestExecuteWorkflow_RetryThenSuccess(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerTrigger(t)

	var attempts int64
	h.register(t, domain.NodeType{Name: "node.B", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		funcExecutor{fn: func(_, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			if atomic.AddInt64(&attempts, 1) == 1 {
				return nil, errors.New("transient failure")
			}
			return map[string]interface{}{"main": "recovered"}, nil
		}})

	def := linearDef("A", "B")
	def.Nodes[1].Retry = &domain.RetryOverride{BaseDelay: domain.Duration(10 * time.Millisecond)}

	start := time.Now()
	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: "webhook",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond, "retry must wait out the backoff delay")
	assert.EqualValues(t, 2, atomic.LoadInt64(&attempts))

	bLogs := h.nodeLogsFor(t, record.ID, "B")
	require.Len(t, bLogs, 2, "each attempt gets its own record")

	assert.Equal(t, domain.NodeStatusFailed, bLogs[0].Status)
	assert.Equal(t, 0, bLogs[0].RetryCount)
	assert.False(t, bLogs[0].IsRetry)

	assert.Equal(t, domain.NodeStatusCompleted, bLogs[1].Status)
	assert.Equal(t, 1, bLogs[1].RetryCount)
	assert.True(t, bLogs[1].IsRetry)
}

func TestExecuteWorkflow_RetriesExhausted(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{MaxRetries: 2, RetryBaseDelay: time.Millisecond})
	h.registerTrigger(t)

	var attempts int64
	h.register(t, domain.NodeType{Name: "node.B", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		funcExecutor{fn: func(_, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			atomic.AddInt64(&attempts, 1)
			return nil, errors.New("always failing")
		}})

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    linearDef("A", "B"),
		TriggerSource: "webhook",
	})
	require.Error(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, record.Status)
	assert.EqualValues(t, 3, atomic.LoadInt64(&attempts), "initial attempt plus maxRetries")
	assert.Len(t, h.nodeLogsFor(t, record.ID, "B"), 3)
}

func TestExecuteWorkflow_CycleFailsValidation(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerTrigger(t)

	def := &domain.WorkflowDefinition{
		ID: "wf-cycle",
		Nodes: []domain.NodeSpec{
			{ID: "A", Type: "test.trigger"},
			{ID: "B", Type: "test.trigger"},
		},
		Connections: []domain.Connection{
			{SourceNode: "A", TargetNode: "B"},
			{SourceNode: "B", TargetNode: "A"},
		},
	}

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: "webhook",
	})

	assert.Nil(t, record, "no execution record may be created for an invalid graph")

	var wfErr *domain.WorkflowError
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, domain.KindValidation, wfErr.Kind)
}

func TestExecuteWorkflow_TriggerRequiredUnlessManual(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerOK(t, "node.B")

	def := &domain.WorkflowDefinition{
		ID:    "wf-no-trigger",
		Nodes: []domain.NodeSpec{{ID: "B", Type: "node.B"}},
	}

	_, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: "webhook",
	})
	var wfErr *domain.WorkflowError
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, domain.KindValidation, wfErr.Kind)

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: TriggerSourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
}

func TestExecuteWorkflow_VariablesSeedInputOverDefaults(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})

	var seen interface{}
	h.register(t, domain.NodeType{Name: "node.B", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		funcExecutor{fn: func(input, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			seen = input["region"]
			return map[string]interface{}{"main": "ok"}, nil
		}})

	def := &domain.WorkflowDefinition{
		ID:        "wf-vars",
		Variables: map[string]interface{}{"region": "eu", "limit": 10},
		Nodes: []domain.NodeSpec{
			{ID: "B", Type: "node.B", Inputs: map[string]domain.InputMapping{
				"region": {Source: "region"},
			}},
		},
	}

	_, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		InputData:     map[string]interface{}{"region": "us"},
		TriggerSource: TriggerSourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, "us", seen)
}

func TestCancelExecution(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})

	started := make(chan struct{})
	h.register(t, domain.NodeType{Name: "node.slow", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		asyncFuncExecutor{fn: func(ctx context.Context, _, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			close(started)
			select {
			case <-time.After(5 * time.Second):
				return map[string]interface{}{"main": "too late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}})

	def := &domain.WorkflowDefinition{
		ID:    "wf-cancel",
		Nodes: []domain.NodeSpec{{ID: "S", Type: "node.slow"}},
	}

	type result struct {
		record *domain.ExecutionRecord
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
			Definition:    def,
			TriggerSource: TriggerSourceManual,
		})
		resultCh <- result{record, err}
	}()

	<-started
	var executionID string
	require.Eventually(t, func() bool {
		ids := h.engine.ActiveExecutions()
		if len(ids) == 0 {
			return false
		}
		executionID = ids[0]
		return true
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.CancelExecution(executionID))

	res := <-resultCh
	require.Error(t, res.err)
	assert.Equal(t, domain.ExecutionStatusCancelled, res.record.Status)
	assert.Empty(t, h.engine.ActiveExecutions())

	assert.ErrorIs(t, h.engine.CancelExecution(executionID), domain.ErrNotFound)
}

func TestExecuteWorkflow_ActiveExecutionLimit(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{MaxActiveExecutions: 1})

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	h.register(t, domain.NodeType{Name: "node.gate", Kind: domain.NodeKindAction, Active: true, SupportsRetry: true},
		asyncFuncExecutor{fn: func(ctx context.Context, _, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
			started <- struct{}{}
			select {
			case <-release:
				return map[string]interface{}{"main": "ok"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}})

	def := &domain.WorkflowDefinition{
		ID:    "wf-gate",
		Nodes: []domain.NodeSpec{{ID: "G", Type: "node.gate"}},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
			Definition:    def,
			TriggerSource: TriggerSourceManual,
		})
	}()
	<-started

	_, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: TriggerSourceManual,
	})
	assert.ErrorIs(t, err, domain.ErrEngineBusy)

	close(release)
	<-done

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: TriggerSourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
}

func TestExecuteWorkflow_MissingDefinitionAndRepository(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	eng := NewEngine(domain.Config{Engine: domain.EngineConfig{}, Logger: logger}, nil, store, registry.New(logger), nil, nil, logger)

	_, err := eng.ExecuteWorkflow(context.Background(), ExecuteRequest{WorkflowID: "ghost"})
	var wfErr *domain.WorkflowError
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, domain.KindValidation, wfErr.Kind)
}

func TestExecuteWorkflow_ResolvesDefinitionFromRepository(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerOK(t, "node.B")

	def := &domain.WorkflowDefinition{
		ID:    "wf-stored",
		Nodes: []domain.NodeSpec{{ID: "B", Type: "node.B"}},
	}
	require.NoError(t, h.store.SaveDefinition(context.Background(), def))

	record, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		WorkflowID:    "wf-stored",
		TriggerSource: TriggerSourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
}

func TestEngineMetrics(t *testing.T) {
	h := newHarness(t, domain.EngineConfig{})
	h.registerOK(t, "node.B")

	def := &domain.WorkflowDefinition{
		ID:    "wf-metrics",
		Nodes: []domain.NodeSpec{{ID: "B", Type: "node.B"}},
	}

	_, err := h.engine.ExecuteWorkflow(context.Background(), ExecuteRequest{
		Definition:    def,
		TriggerSource: TriggerSourceManual,
	})
	require.NoError(t, err)

	m := h.engine.Metrics()
	assert.EqualValues(t, 1, m.WorkflowsStarted)
	assert.EqualValues(t, 1, m.WorkflowsCompleted)
	assert.EqualValues(t, 1, m.NodesExecuted)
	assert.EqualValues(t, 1, m.NodesSucceeded)
}
