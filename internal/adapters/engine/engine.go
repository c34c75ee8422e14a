package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// TriggerSourceManual skips the trigger-node validation requirement; a
// manually started run needs no trigger-class node in its graph.
const TriggerSourceManual = "manual"

type ExecuteRequest struct {
	WorkflowID     string
	Definition     *domain.WorkflowDefinition
	InputData      map[string]interface{}
	TriggeredBy    string
	TriggerSource  string
	OrganizationID string
	UserID         string
}

// Engine drives a workflow run: validation, stage planning, stage-by-stage
// barrier execution, deadline enforcement, and terminal status persistence.
type Engine struct {
	config     domain.EngineConfig
	production bool
	workflows  ports.WorkflowRepository
	store      ports.ExecutionStore
	dispatcher *Dispatcher
	monitor    ports.Monitor
	metrics    *domain.ExecutionMetrics
	logger     *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewEngine(
	config domain.Config,
	workflows ports.WorkflowRepository,
	store ports.ExecutionStore,
	registry ports.NodeTypeRegistry,
	credentials ports.CredentialStore,
	monitor ports.Monitor,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if monitor == nil {
		monitor = ports.NoopMonitor{}
	}

	metrics := domain.NewExecutionMetrics()
	dispatcher := NewDispatcher(config.Engine, registry, credentials, store, monitor, metrics, logger)

	return &Engine{
		config:     config.Engine,
		production: config.Production,
		workflows:  workflows,
		store:      store,
		dispatcher: dispatcher,
		monitor:    monitor,
		metrics:    metrics,
		logger:     logger.With("component", "engine"),
	}
}

func (e *Engine) Metrics() domain.ExecutionMetrics {
	return e.metrics.Snapshot()
}

// ActiveExecutions lists the ids of runs currently in flight.
func (e *Engine) ActiveExecutions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	return ids
}

// CancelExecution cancels a running execution's orchestrating context.
// In-flight node calls that do not check cancellation run to completion;
// the run stops at the next suspension point.
func (e *Engine) CancelExecution(executionID string) error {
	e.mu.Lock()
	cancel, ok := e.active[executionID]
	e.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	cancel()
	return nil
}

// ExecuteWorkflow runs a workflow to a terminal status. The returned record
// reflects the final state; the same record is persisted on every exit
// path, including panics inside the engine.
func (e *Engine) ExecuteWorkflow(ctx context.Context, req ExecuteRequest) (*domain.ExecutionRecord, error) {
	def := req.Definition
	if def == nil {
		if e.workflows == nil {
			return nil, domain.NewValidationError(req.WorkflowID, "no definition supplied and no workflow repository configured")
		}
		loaded, err := e.workflows.GetDefinition(ctx, req.WorkflowID)
		if err != nil {
			return nil, domain.NewValidationError(req.WorkflowID, fmt.Sprintf("workflow not found: %v", err))
		}
		def = loaded
	}

	stages, err := e.validate(ctx, def, req.TriggerSource)
	if err != nil {
		return nil, err
	}

	variables, err := domain.MergeVariables(def.Variables, req.InputData)
	if err != nil {
		return nil, domain.NewValidationError(def.ID, fmt.Sprintf("merging input into variables: %v", err))
	}

	record := &domain.ExecutionRecord{
		ID:             uuid.NewString(),
		WorkflowID:     def.ID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Status:         domain.ExecutionStatusRunning,
		TriggeredBy:    req.TriggeredBy,
		TriggerSource:  req.TriggerSource,
		InputData:      req.InputData,
		StartedAt:      time.Now(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := e.register(record.ID, cancel); err != nil {
		cancel()
		return nil, err
	}

	if err := e.store.CreateExecution(ctx, record); err != nil {
		cancel()
		e.release(record.ID)
		return nil, fmt.Errorf("creating execution record: %w", err)
	}

	ectx := domain.NewExecutionContext(def.ID, record.ID, variables)
	ectx.OrganizationID = req.OrganizationID
	ectx.UserID = req.UserID
	ectx.InputData = req.InputData
	ectx.StartedAt = record.StartedAt

	e.monitor.StartExecutionMonitoring(record.ID)
	e.metrics.IncrementWorkflowsStarted()

	e.logger.Info("workflow execution started",
		"workflow_id", def.ID,
		"execution_id", record.ID,
		"stages", len(stages),
		"trigger_source", req.TriggerSource,
	)

	var counts runCounts
	runErr := e.runStages(runCtx, def, stages, ectx, &counts)

	e.finalize(ctx, record, ectx, &counts, runErr)

	cancel()
	e.release(record.ID)
	e.monitor.StopExecutionMonitoring(record.ID)

	if runErr != nil {
		return record, runErr
	}
	return record, nil
}

type runCounts struct {
	executed int64
	failed   int64
}

func (c *runCounts) tally(err error) {
	if err != nil {
		atomic.AddInt64(&c.failed, 1)
		return
	}
	atomic.AddInt64(&c.executed, 1)
}

// runStages drives stage-by-stage execution. A multi-node stage launches
// one task per node and joins all of them before looking at errors: a
// failing node does not cancel its stage siblings. The workflow deadline is
// checked only between stages, never preemptively inside a running node.
func (e *Engine) runStages(ctx context.Context, def *domain.WorkflowDefinition, stages [][]string, ectx *domain.ExecutionContext, counts *runCounts) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.WorkflowError{
				Kind:       domain.KindExecution,
				WorkflowID: def.ID,
				Message:    fmt.Sprintf("engine panic: %v", r),
				Stack:      domain.CaptureStack(1),
			}
		}
	}()

	specs := make(map[string]domain.NodeSpec, len(def.Nodes))
	for _, node := range def.Nodes {
		specs[node.ID] = node
	}

	deadline := def.ExecutionTimeout.Std()
	if deadline <= 0 {
		deadline = e.config.ExecutionTimeout
	}

	for i, stage := range stages {
		if cerr := ctx.Err(); cerr != nil {
			return domain.NewCancelledError(def.ID)
		}

		e.logger.Debug("executing stage",
			"execution_id", ectx.ExecutionID,
			"stage", i,
			"nodes", len(stage),
		)

		if len(stage) == 1 {
			nerr := e.dispatcher.ExecuteNode(ctx, ectx, specs[stage[0]])
			counts.tally(nerr)
			if nerr != nil {
				if domain.IsCancelled(nerr) && ctx.Err() != nil {
					return domain.NewCancelledError(def.ID)
				}
				return nerr
			}
		} else {
			var g errgroup.Group
			for _, nodeID := range stage {
				spec := specs[nodeID]
				g.Go(func() error {
					nerr := e.dispatcher.ExecuteNode(ctx, ectx, spec)
					counts.tally(nerr)
					return nerr
				})
			}
			if nerr := g.Wait(); nerr != nil {
				if domain.IsCancelled(nerr) && ctx.Err() != nil {
					return domain.NewCancelledError(def.ID)
				}
				return nerr
			}
		}

		if deadline > 0 && time.Since(ectx.StartedAt) > deadline {
			return domain.NewWorkflowTimeoutError(def.ID,
				fmt.Sprintf("execution exceeded %s after stage %d", deadline, i))
		}
	}

	return nil
}

// finalize persists the terminal status. This is the single exit funnel for
// success, failure, timeout and cancellation; callers never observe a run
// stuck in running.
func (e *Engine) finalize(ctx context.Context, record *domain.ExecutionRecord, ectx *domain.ExecutionContext, counts *runCounts, runErr error) {
	completed := time.Now()
	record.CompletedAt = &completed
	record.NodesExecuted = int(atomic.LoadInt64(&counts.executed))
	record.NodesFailed = int(atomic.LoadInt64(&counts.failed))

	update := ports.ExecutionUpdate{
		NodesExecuted: record.NodesExecuted,
		NodesFailed:   record.NodesFailed,
	}

	switch {
	case runErr == nil:
		record.Status = domain.ExecutionStatusCompleted
		record.Outputs = ectx.Outputs()
		update.Outputs = record.Outputs
		e.metrics.IncrementWorkflowsCompleted()

	case domain.IsCancelled(runErr):
		record.Status = domain.ExecutionStatusCancelled
		record.Error = runErr.Error()
		record.ErrorKind = string(domain.KindCancelled)
		e.metrics.IncrementWorkflowsCancelled()

	case isWorkflowTimeout(runErr):
		record.Status = domain.ExecutionStatusTimeout
		record.Error = runErr.Error()
		record.ErrorKind = string(domain.KindTimeout)
		e.metrics.IncrementWorkflowsTimedOut()

	default:
		record.Status = domain.ExecutionStatusFailed
		record.Error = runErr.Error()
		record.ErrorKind = string(domain.ErrorKindOf(runErr))
		if !e.production {
			record.StackTrace = domain.StackOf(runErr)
		}
		e.metrics.IncrementWorkflowsFailed()
	}

	update.Error = record.Error
	update.ErrorKind = record.ErrorKind
	update.StackTrace = record.StackTrace

	if err := e.store.UpdateExecutionStatus(ctx, record.ID, record.Status, update); err != nil {
		e.logger.Error("failed to persist terminal execution status",
			"execution_id", record.ID,
			"status", record.Status,
			"error", err,
		)
	}

	e.logger.Info("workflow execution finished",
		"workflow_id", record.WorkflowID,
		"execution_id", record.ID,
		"status", record.Status,
		"nodes_executed", record.NodesExecuted,
		"nodes_failed", record.NodesFailed,
		"duration", completed.Sub(record.StartedAt),
	)
}

// isWorkflowTimeout distinguishes the workflow deadline from a node-level
// timeout, which surfaces as a failed run, not a timed-out one.
func isWorkflowTimeout(err error) bool {
	var wfErr *domain.WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Kind == domain.KindTimeout
	}
	return false
}

// validate checks the graph before any node runs: the dependency DAG must
// be acyclic with no dangling connections, and a non-manual trigger source
// requires at least one trigger-class node.
func (e *Engine) validate(ctx context.Context, def *domain.WorkflowDefinition, triggerSource string) ([][]string, error) {
	if def.ID == "" {
		return nil, domain.NewValidationError(def.ID, "workflow id is empty")
	}
	if len(def.Nodes) == 0 {
		return nil, domain.NewValidationError(def.ID, "workflow has no nodes")
	}

	stages, err := BuildStages(def)
	if err != nil {
		return nil, err
	}

	if triggerSource != TriggerSourceManual {
		hasTrigger := false
		for _, node := range def.Nodes {
			typ, terr := e.dispatcher.registry.ResolveActiveType(ctx, node.Type)
			if terr != nil {
				continue
			}
			if typ.Kind == domain.NodeKindTrigger {
				hasTrigger = true
				break
			}
		}
		if !hasTrigger {
			return nil, domain.NewValidationError(def.ID, "workflow has no trigger node and trigger source is not manual")
		}
	}

	return stages, nil
}

// register admits a run into the active set, enforcing the configured cap
// on concurrent executions.
func (e *Engine) register(executionID string, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		e.active = make(map[string]context.CancelFunc)
	}
	if e.config.MaxActiveExecutions > 0 && len(e.active) >= e.config.MaxActiveExecutions {
		return fmt.Errorf("active execution limit %d reached: %w",
			e.config.MaxActiveExecutions, domain.ErrEngineBusy)
	}

	e.active[executionID] = cancel
	return nil
}

func (e *Engine) release(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, executionID)
}
