package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/fluxline/fluxline/internal/adapters/mapping"
	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// Dispatcher executes a single node: type resolution, input preparation,
// executor invocation under the per-node timeout, output validation, and
// the local retry loop.
type Dispatcher struct {
	config      domain.EngineConfig
	registry    ports.NodeTypeRegistry
	credentials ports.CredentialStore
	store       ports.ExecutionStore
	monitor     ports.Monitor
	mapper      *mapping.Resolver
	syncPool    *semaphore.Weighted
	metrics     *domain.ExecutionMetrics
	logger      *slog.Logger
}

func NewDispatcher(
	config domain.EngineConfig,
	registry ports.NodeTypeRegistry,
	credentials ports.CredentialStore,
	store ports.ExecutionStore,
	monitor ports.Monitor,
	metrics *domain.ExecutionMetrics,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if monitor == nil {
		monitor = ports.NoopMonitor{}
	}

	limit := config.SyncWorkerLimit
	if limit <= 0 {
		limit = domain.DefaultSyncWorkerLimit
	}

	return &Dispatcher{
		config:      config,
		registry:    registry,
		credentials: credentials,
		store:       store,
		monitor:     monitor,
		mapper:      mapping.NewResolver(logger),
		syncPool:    semaphore.NewWeighted(limit),
		metrics:     metrics,
		logger:      logger.With("component", "dispatcher"),
	}
}

// ExecuteNode runs one node to a terminal outcome, retrying failed attempts
// per the node's retry policy. Each attempt produces its own
// NodeExecutionRecord; exhausted retries propagate the last error.
func (d *Dispatcher) ExecuteNode(ctx context.Context, ectx *domain.ExecutionContext, spec domain.NodeSpec) error {
	retryCount := 0
	for {
		err := d.executeAttempt(ctx, ectx, spec, retryCount)
		if err == nil {
			return nil
		}

		typ, _ := d.registry.ResolveActiveType(ctx, spec.Type)
		policy := d.policyFor(spec, typ)
		if !policy.shouldRetry(err, retryCount) {
			return err
		}

		retryCount++
		d.metrics.IncrementNodesRetried()
		delay := policy.delay(retryCount)

		d.logger.Debug("retrying node after backoff",
			"execution_id", ectx.ExecutionID,
			"node_id", spec.ID,
			"retry_count", retryCount,
			"delay", delay,
		)

		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func (d *Dispatcher) executeAttempt(ctx context.Context, ectx *domain.ExecutionContext, spec domain.NodeSpec, retryCount int) error {
	record := &domain.NodeExecutionRecord{
		ID:          uuid.NewString(),
		ExecutionID: ectx.ExecutionID,
		NodeID:      spec.ID,
		NodeType:    spec.Type,
		Status:      domain.NodeStatusRunning,
		RetryCount:  retryCount,
		IsRetry:     retryCount > 0,
		StartedAt:   time.Now(),
	}

	if err := d.store.CreateNodeLog(ctx, record); err != nil {
		d.logger.Warn("failed to persist node log",
			"execution_id", ectx.ExecutionID,
			"node_id", spec.ID,
			"error", err,
		)
	}

	d.metrics.IncrementNodesExecuted()

	output, err := d.runNode(ctx, ectx, spec, record)

	completed := time.Now()
	record.CompletedAt = &completed

	if err != nil {
		record.Error = err.Error()
		record.ErrorKind = string(domain.ErrorKindOf(err))
		record.StackTrace = domain.StackOf(err)
		if domain.IsTimeout(err) {
			record.Status = domain.NodeStatusTimeout
			d.metrics.IncrementNodesTimedOut()
		} else {
			record.Status = domain.NodeStatusFailed
		}
		d.metrics.IncrementNodesFailed()

		if uerr := d.store.UpdateNodeLog(ctx, record); uerr != nil {
			d.logger.Warn("failed to update node log",
				"execution_id", ectx.ExecutionID,
				"node_id", spec.ID,
				"error", uerr,
			)
		}

		d.logger.Error("node execution failed",
			"execution_id", ectx.ExecutionID,
			"node_id", spec.ID,
			"node_type", spec.Type,
			"retry_count", retryCount,
			"error_kind", record.ErrorKind,
			"error", err,
		)
		return err
	}

	record.Status = domain.NodeStatusCompleted
	record.Output = output
	d.metrics.IncrementNodesSucceeded()

	if uerr := d.store.UpdateNodeLog(ctx, record); uerr != nil {
		d.logger.Warn("failed to update node log",
			"execution_id", ectx.ExecutionID,
			"node_id", spec.ID,
			"error", uerr,
		)
	}

	d.logger.Debug("node execution completed",
		"execution_id", ectx.ExecutionID,
		"node_id", spec.ID,
		"node_type", spec.Type,
		"duration", completed.Sub(record.StartedAt),
	)
	return nil
}

func (d *Dispatcher) runNode(ctx context.Context, ectx *domain.ExecutionContext, spec domain.NodeSpec, record *domain.NodeExecutionRecord) (map[string]interface{}, error) {
	typ, err := d.registry.ResolveActiveType(ctx, spec.Type)
	if err != nil {
		return nil, domain.NewNodeError(domain.KindNotFound, spec.ID, spec.Type, "node type not available", err)
	}

	input, err := d.mapper.Resolve(ectx, spec.Inputs)
	if err != nil {
		return nil, domain.NewNodeError(domain.KindConfiguration, spec.ID, spec.Type, "input mapping failed", err)
	}
	record.Input = input

	config, err := domain.MergeNodeConfig(spec.Config, typ.ConfigDefaults)
	if err != nil {
		return nil, domain.NewNodeError(domain.KindConfiguration, spec.ID, spec.Type, "merging config defaults", err)
	}

	credentials, err := d.resolveCredentials(ctx, ectx, spec, typ, config)
	if err != nil {
		return nil, err
	}

	executor, err := d.registry.ResolveExecutor(ctx, typ)
	if err != nil {
		return nil, domain.NewNodeError(domain.KindNotFound, spec.ID, spec.Type, "executor not available", err)
	}

	env := ports.ExecutionEnv{
		ExecutionID:    ectx.ExecutionID,
		WorkflowID:     ectx.WorkflowID,
		NodeID:         spec.ID,
		OrganizationID: ectx.OrganizationID,
		UserID:         ectx.UserID,
		Credentials:    credentials,
		Context:        ectx,
		Logger:         d.logger.With("node_id", spec.ID),
	}

	timeout := d.nodeTimeout(spec, typ)
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := d.invoke(nodeCtx, spec, executor, input, config, env)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.NewNodeTimeoutError(spec.ID, spec.Type, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, domain.NewNodeError(domain.KindCancelled, spec.ID, spec.Type, "execution cancelled", domain.ErrCancelled)
		}
		var nodeErr *domain.NodeError
		if errors.As(err, &nodeErr) {
			return nil, err
		}
		return nil, domain.NewNodeError(domain.KindExecution, spec.ID, spec.Type, "executor failed", err)
	}

	output, err := coerceOutputs(spec.ID, spec.Type, typ.OutputSchema, raw)
	if err != nil {
		return nil, err
	}

	for port, value := range output {
		ectx.SetNodeOutput(spec.ID, port, value)
	}

	d.monitor.IncrementUsage(typ.Name)
	return output, nil
}

// nodeTimeout applies the override chain: node spec, then node type
// default, then the engine-wide default.
func (d *Dispatcher) nodeTimeout(spec domain.NodeSpec, typ *domain.NodeType) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout.Std()
	}
	if typ != nil && typ.DefaultTimeout > 0 {
		return typ.DefaultTimeout
	}
	if d.config.NodeTimeout > 0 {
		return d.config.NodeTimeout
	}
	return domain.DefaultNodeTimeout
}

// resolveCredentials decrypts every credential kind the node type declares.
// The merged node config names the credential per kind under "credentials",
// so a type's config defaults can carry the mapping when the node does not.
func (d *Dispatcher) resolveCredentials(ctx context.Context, ectx *domain.ExecutionContext, spec domain.NodeSpec, typ *domain.NodeType, config map[string]interface{}) (map[string]map[string]interface{}, error) {
	if len(typ.RequiredCredentialKinds) == 0 {
		return nil, nil
	}
	if d.credentials == nil {
		return nil, domain.NewNodeError(domain.KindConfiguration, spec.ID, spec.Type,
			"node type requires credentials but no credential store is configured", nil)
	}

	names, _ := config["credentials"].(map[string]interface{})
	resolved := make(map[string]map[string]interface{}, len(typ.RequiredCredentialKinds))

	for _, kind := range typ.RequiredCredentialKinds {
		name, _ := names[kind].(string)
		if name == "" {
			return nil, domain.NewNodeError(domain.KindConfiguration, spec.ID, spec.Type,
				fmt.Sprintf("no credential configured for required kind %q", kind), nil)
		}

		payload, err := d.credentials.Resolve(ctx, name, ectx.OrganizationID)
		if err != nil {
			return nil, domain.NewNodeError(domain.KindConfiguration, spec.ID, spec.Type,
				fmt.Sprintf("credential %q unavailable", name), err)
		}
		resolved[kind] = payload
	}

	return resolved, nil
}

type invokeResult struct {
	output map[string]interface{}
	err    error
}

// invoke runs the executor, preferring the asynchronous entry point when the
// implementation exposes one. Synchronous executors are hosted on the
// bounded worker pool so a blocking plugin cannot stall the scheduler.
// Either way the caller's deadline is enforced here; an executor that does
// not cooperate keeps running, orphaned, until it returns on its own.
func (d *Dispatcher) invoke(ctx context.Context, spec domain.NodeSpec, executor ports.NodeExecutor, input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	resultCh := make(chan invokeResult, 1)

	if async, ok := executor.(ports.AsyncNodeExecutor); ok {
		go func() {
			defer d.recoverInvoke(spec, resultCh)
			out, err := async.ExecuteAsync(ctx, input, config, env)
			resultCh <- invokeResult{output: out, err: err}
		}()
	} else {
		if err := d.syncPool.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func() {
			defer d.syncPool.Release(1)
			defer d.recoverInvoke(spec, resultCh)
			out, err := executor.Execute(input, config, env)
			resultCh <- invokeResult{output: out, err: err}
		}()
	}

	select {
	case res := <-resultCh:
		return res.output, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) recoverInvoke(spec domain.NodeSpec, resultCh chan<- invokeResult) {
	if r := recover(); r != nil {
		err := domain.NewNodeError(domain.KindExecution, spec.ID, spec.Type,
			fmt.Sprintf("executor panic: %v", r), nil)
		resultCh <- invokeResult{err: err}
	}
}
