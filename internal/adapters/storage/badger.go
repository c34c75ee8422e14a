// Package storage persists workflow definitions, execution records and
// per-attempt node logs. The badger implementation keys records by prefix:
// workflow:<id>, execution:<id>, nodelog:<executionID>:<recordID>.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
	"github.com/fluxline/fluxline/internal/xjson"
)

const (
	workflowPrefix  = "workflow:"
	executionPrefix = "execution:"
	nodeLogPrefix   = "nodelog:"
)

type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	closed atomic.Bool
}

// OpenBadger opens (or creates) a badger database at dir.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", dir, err)
	}

	return &BadgerStore{
		db:     db,
		logger: logger.With("component", "badger-store"),
	}, nil
}

func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &BadgerStore{
		db:     db,
		logger: logger.With("component", "badger-store"),
	}
}

func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) put(key string, value interface{}) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}

	data, err := xjson.Marshal(value)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) get(key string, out interface{}) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}

	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			return xjson.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) SaveDefinition(_ context.Context, def *domain.WorkflowDefinition) error {
	return s.put(workflowPrefix+def.ID, def)
}

func (s *BadgerStore) GetDefinition(_ context.Context, workflowID string) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := s.get(workflowPrefix+workflowID, &def); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, err)
	}
	return &def, nil
}

func (s *BadgerStore) CreateExecution(_ context.Context, record *domain.ExecutionRecord) error {
	return s.put(executionPrefix+record.ID, record)
}

func (s *BadgerStore) UpdateExecutionStatus(ctx context.Context, executionID string, status domain.ExecutionStatus, update ports.ExecutionUpdate) error {
	record, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return err
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

	return s.put(executionPrefix+executionID, record)
}

func (s *BadgerStore) GetExecution(_ context.Context, executionID string) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	if err := s.get(executionPrefix+executionID, &record); err != nil {
		return nil, fmt.Errorf("execution %q: %w", executionID, err)
	}
	return &record, nil
}

func nodeLogKey(executionID, recordID string) string {
	return nodeLogPrefix + executionID + ":" + recordID
}

func (s *BadgerStore) CreateNodeLog(_ context.Context, record *domain.NodeExecutionRecord) error {
	return s.put(nodeLogKey(record.ExecutionID, record.ID), record)
}

func (s *BadgerStore) UpdateNodeLog(_ context.Context, record *domain.NodeExecutionRecord) error {
	return s.put(nodeLogKey(record.ExecutionID, record.ID), record)
}

func (s *BadgerStore) ListNodeLogs(_ context.Context, executionID string) ([]*domain.NodeExecutionRecord, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}

	prefix := []byte(nodeLogPrefix + executionID + ":")
	var out []*domain.NodeExecutionRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record domain.NodeExecutionRecord
			err := it.Item().Value(func(val []byte) error {
				return xjson.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			out = append(out, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
