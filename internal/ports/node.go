package ports

import (
	"context"
	"log/slog"

	"github.com/fluxline/fluxline/internal/domain"
)

// ContextReader is the read-only view of run state handed to executors.
type ContextReader interface {
	GetVariable(name string, def interface{}) interface{}
	GetNodeOutput(nodeID, port string, def interface{}) interface{}
}

// ExecutionEnv carries everything an executor may need beyond its prepared
// input: decrypted credentials keyed by kind, a read-only context handle,
// and the identity of the run.
type ExecutionEnv struct {
	ExecutionID    string
	WorkflowID     string
	NodeID         string
	OrganizationID string
	UserID         string
	Credentials    map[string]map[string]interface{}
	Context        ContextReader
	Logger         *slog.Logger
}

// NodeExecutor is the synchronous plugin entry point. Implementations that
// block on IO should also implement AsyncNodeExecutor; plain Execute runs on
// a bounded worker pool so it cannot stall the scheduler.
type NodeExecutor interface {
	Execute(input, config map[string]interface{}, env ExecutionEnv) (map[string]interface{}, error)
}

// AsyncNodeExecutor is the preferred entry point when exposed. The context
// carries the per-node deadline and run cancellation.
type AsyncNodeExecutor interface {
	ExecuteAsync(ctx context.Context, input, config map[string]interface{}, env ExecutionEnv) (map[string]interface{}, error)
}

// NodeTypeRegistry resolves node-type definitions and their executor
// implementations. Resolutions are cached per engine instance with no
// invalidation; a type updated behind a long-lived engine is not observed
// until restart.
type NodeTypeRegistry interface {
	ResolveActiveType(ctx context.Context, name string) (*domain.NodeType, error)
	ResolveExecutor(ctx context.Context, typ *domain.NodeType) (NodeExecutor, error)
}
