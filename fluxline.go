// Package fluxline executes workflows defined as graphs of typed nodes.
//
// A workflow definition lists nodes, the data-flow connections between
// them, and workflow-level variables. Fluxline layers the graph into
// stages, runs each stage's nodes concurrently behind a barrier, and
// applies per-node timeout and retry policy plus a workflow-level deadline
// checked between stages.
//
// Basic usage:
//
//	client, err := fluxline.New(fluxline.DefaultConfig())
//	if err != nil { ... }
//	defer client.Close()
//
//	client.RegisterNodeType(myType, myExecutor)
//
//	record, err := client.Execute(ctx, fluxline.ExecuteRequest{
//	    Definition:    def,
//	    InputData:     map[string]interface{}{"order_id": "42"},
//	    TriggerSource: "manual",
//	})
package fluxline

import (
	"context"
	"fmt"

	"github.com/fluxline/fluxline/internal/adapters/credentials"
	"github.com/fluxline/fluxline/internal/adapters/engine"
	"github.com/fluxline/fluxline/internal/adapters/monitoring"
	"github.com/fluxline/fluxline/internal/adapters/registry"
	"github.com/fluxline/fluxline/internal/adapters/storage"
	"github.com/fluxline/fluxline/internal/definition"
	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
	"github.com/fluxline/fluxline/nodes"
)

// Client owns an engine instance and the adapters behind it. Construct with
// New, register node types, then execute workflows. There is no ambient
// global; every Client is independent.
type Client struct {
	engine    *engine.Engine
	registry  *registry.Registry
	store     ports.ExecutionStore
	workflows ports.WorkflowRepository
	monitor   *monitoring.Tracker
	badger    *storage.BadgerStore
}

func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		registry: registry.New(cfg.Logger),
		monitor:  monitoring.NewTracker(cfg.Logger),
	}

	var settings clientSettings
	for _, opt := range opts {
		opt(&settings)
	}

	switch {
	case settings.store != nil:
		c.store = settings.store
		c.workflows = settings.workflows
	case cfg.DataDir != "":
		badgerStore, err := storage.OpenBadger(cfg.DataDir, cfg.Logger)
		if err != nil {
			return nil, err
		}
		c.badger = badgerStore
		c.store = badgerStore
		c.workflows = badgerStore
	default:
		mem := storage.NewMemoryStore()
		c.store = mem
		c.workflows = mem
	}

	if settings.workflows != nil {
		c.workflows = settings.workflows
	}

	var credentialStore ports.CredentialStore
	if settings.credentialSource != nil {
		credentialStore = credentials.NewStore(settings.credentialSource, cfg.Logger)
	}

	var monitor ports.Monitor = c.monitor
	if settings.monitor != nil {
		monitor = settings.monitor
	}

	c.engine = engine.NewEngine(cfg, c.workflows, c.store, c.registry, credentialStore, monitor, cfg.Logger)
	return c, nil
}

// RegisterNodeType installs a node type and its executor. Unversioned types
// are allowed; versions participate in executor cache keys.
func (c *Client) RegisterNodeType(typ NodeType, executor NodeExecutor) error {
	return c.registry.Register(typ, executor)
}

// RegisterBuiltinNodes installs the builtin node types shipped in the
// nodes package: triggers, flow-control helpers, HTTP and LLM nodes.
func (c *Client) RegisterBuiltinNodes(opts ...nodes.Option) error {
	return nodes.RegisterBuiltins(c.registry, opts...)
}

// RegisterTypeSource attaches a backing source for node types not
// registered statically. Resolutions are cached without invalidation.
func (c *Client) RegisterTypeSource(source TypeSource) {
	c.registry.WithSource(source)
}

// Execute runs a workflow to a terminal status and returns its execution
// record. Supply either a Definition inline or a WorkflowID resolvable
// through the workflow repository.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecutionRecord, error) {
	return c.engine.ExecuteWorkflow(ctx, req)
}

// Cancel requests cancellation of a running execution.
func (c *Client) Cancel(executionID string) error {
	return c.engine.CancelExecution(executionID)
}

// GetExecution fetches a persisted execution record.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	return c.store.GetExecution(ctx, executionID)
}

// NodeLogs lists the per-attempt node records of an execution.
func (c *Client) NodeLogs(ctx context.Context, executionID string) ([]*NodeExecutionRecord, error) {
	return c.store.ListNodeLogs(ctx, executionID)
}

// SaveDefinition persists a workflow definition when the configured store
// supports it.
func (c *Client) SaveDefinition(ctx context.Context, def *WorkflowDefinition) error {
	saver, ok := c.workflows.(interface {
		SaveDefinition(ctx context.Context, def *domain.WorkflowDefinition) error
	})
	if !ok {
		return fmt.Errorf("configured workflow repository is read-only")
	}

	if err := definition.Validate(def); err != nil {
		return err
	}
	return saver.SaveDefinition(ctx, def)
}

// LoadDefinition reads and validates a YAML or JSON definition file.
func LoadDefinition(path string) (*WorkflowDefinition, error) {
	return definition.Load(path)
}

// ParseDefinition decodes and validates a YAML definition document.
func ParseDefinition(data []byte) (*WorkflowDefinition, error) {
	return definition.ParseYAML(data)
}

func (c *Client) Metrics() ExecutionMetrics {
	return c.engine.Metrics()
}

// ActiveExecutions lists runs currently in flight on this client.
func (c *Client) ActiveExecutions() []string {
	return c.engine.ActiveExecutions()
}

// UsageSnapshot copies the per-node-type usage counters.
func (c *Client) UsageSnapshot() map[string]int64 {
	return c.monitor.UsageSnapshot()
}

// Close releases owned resources. Executions still running keep their
// cancellation semantics; Close does not wait for them.
func (c *Client) Close() error {
	if c.badger != nil {
		return c.badger.Close()
	}
	return nil
}
