package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// MemoryStore is the in-process implementation of the workflow repository
// and execution store, used by tests and embedders that do not persist.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*domain.WorkflowDefinition
	executions map[string]*domain.ExecutionRecord
	nodeLogs   map[string][]*domain.NodeExecutionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]*domain.WorkflowDefinition),
		executions: make(map[string]*domain.ExecutionRecord),
		nodeLogs:   make(map[string][]*domain.NodeExecutionRecord),
	}
}

func (s *MemoryStore) SaveDefinition(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[def.ID] = def
	return nil
}

func (s *MemoryStore) GetDefinition(_ context.Context, workflowID string) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, domain.ErrNotFound)
	}
	return def, nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, record *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.executions[record.ID] = &copied
	return nil
}

func (s *MemoryStore) UpdateExecutionStatus(_ context.Context, executionID string, status domain.ExecutionStatus, update ports.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("execution %q: %w", executionID, domain.ErrNotFound)
	}

	record.Status = status
	record.Outputs = update.Outputs
	record.Error = update.Error
	record.ErrorKind = update.ErrorKind
	record.StackTrace = update.StackTrace
	record.NodesExecuted = update.NodesExecuted
	record.NodesFailed = update.NodesFailed
	if status.Terminal() && record.CompletedAt == nil {
		now := time.Now()
		record.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, executionID string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %q: %w", executionID, domain.ErrNotFound)
	}

	copied := *record
	return &copied, nil
}

func (s *MemoryStore) CreateNodeLog(_ context.Context, record *domain.NodeExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.nodeLogs[record.ExecutionID] = append(s.nodeLogs[record.ExecutionID], &copied)
	return nil
}

func (s *MemoryStore) UpdateNodeLog(_ context.Context, record *domain.NodeExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := s.nodeLogs[record.ExecutionID]
	for i, existing := range logs {
		if existing.ID == record.ID {
			copied := *record
			logs[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("node log %q: %w", record.ID, domain.ErrNotFound)
}

func (s *MemoryStore) ListNodeLogs(_ context.Context, executionID string) ([]*domain.NodeExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.nodeLogs[executionID]
	out := make([]*domain.NodeExecutionRecord, len(logs))
	for i, record := range logs {
		copied := *record
		out[i] = &copied
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
