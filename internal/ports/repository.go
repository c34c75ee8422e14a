package ports

import (
	"context"

	"github.com/fluxline/fluxline/internal/domain"
)

// WorkflowRepository resolves workflow definitions by id. The engine never
// issues ad hoc queries; this narrow method is its entire read surface.
type WorkflowRepository interface {
	GetDefinition(ctx context.Context, workflowID string) (*domain.WorkflowDefinition, error)
}

// ExecutionUpdate carries the terminal fields persisted alongside a status
// transition.
type ExecutionUpdate struct {
	Outputs       map[string]interface{}
	Error         string
	ErrorKind     string
	StackTrace    string
	NodesExecuted int
	NodesFailed   int
}

// ExecutionStore persists execution records and per-attempt node logs.
// UpdateExecutionStatus is called on every exit path; a run must never be
// left observable as running.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, record *domain.ExecutionRecord) error
	UpdateExecutionStatus(ctx context.Context, executionID string, status domain.ExecutionStatus, update ExecutionUpdate) error
	GetExecution(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)

	CreateNodeLog(ctx context.Context, record *domain.NodeExecutionRecord) error
	UpdateNodeLog(ctx context.Context, record *domain.NodeExecutionRecord) error
	ListNodeLogs(ctx context.Context, executionID string) ([]*domain.NodeExecutionRecord, error)
}
