// Package registry maps node-type names to their definitions and executor
// implementations. Registration is static at startup; resolutions against a
// backing source are cached for the life of the instance with no
// invalidation, so a type updated behind a long-lived engine is not seen
// until restart.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// TypeSource is an optional backing store consulted for types that were not
// registered statically.
type TypeSource interface {
	FetchType(ctx context.Context, name string) (*domain.NodeType, ports.NodeExecutor, error)
}

type Registry struct {
	source TypeSource
	logger *slog.Logger

	mu        sync.RWMutex
	types     map[string]*domain.NodeType
	executors map[string]ports.NodeExecutor
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:    logger.With("component", "node-registry"),
		types:     make(map[string]*domain.NodeType),
		executors: make(map[string]ports.NodeExecutor),
	}
}

// WithSource attaches a backing type source consulted on cache misses.
func (r *Registry) WithSource(source TypeSource) *Registry {
	r.source = source
	return r
}

func (r *Registry) Register(typ domain.NodeType, executor ports.NodeExecutor) error {
	if typ.Name == "" {
		return fmt.Errorf("node type name cannot be empty: %w", domain.ErrInvalidConfig)
	}
	if executor == nil {
		return fmt.Errorf("node type %q has no executor: %w", typ.Name, domain.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[typ.Name]; exists {
		return fmt.Errorf("node type %q already registered: %w", typ.Name, domain.ErrInvalidConfig)
	}

	r.types[typ.Name] = &typ
	r.executors[typ.CacheKey()] = executor

	r.logger.Debug("node type registered",
		"node_type", typ.Name,
		"version", typ.Version,
		"total_types", len(r.types),
	)
	return nil
}

func (r *Registry) ResolveActiveType(ctx context.Context, name string) (*domain.NodeType, error) {
	r.mu.RLock()
	typ, ok := r.types[name]
	r.mu.RUnlock()

	if !ok && r.source != nil {
		fetched, executor, err := r.source.FetchType(ctx, name)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if cached, exists := r.types[name]; exists {
			typ = cached
		} else {
			r.types[name] = fetched
			r.executors[fetched.CacheKey()] = executor
			typ = fetched
		}
		r.mu.Unlock()
		ok = true
	}

	if !ok {
		return nil, fmt.Errorf("node type %q: %w", name, domain.ErrNotFound)
	}
	if !typ.Active {
		return nil, fmt.Errorf("node type %q: %w", name, domain.ErrTypeInactive)
	}
	return typ, nil
}

func (r *Registry) ResolveExecutor(_ context.Context, typ *domain.NodeType) (ports.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[typ.CacheKey()]
	if !ok {
		return nil, fmt.Errorf("executor for node type %q: %w", typ.Name, domain.ErrNotFound)
	}
	return executor, nil
}

func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}
