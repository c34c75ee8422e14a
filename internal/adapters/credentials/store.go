// Package credentials caches decrypted credential payloads per engine
// instance. The cache has no TTL and no invalidation: a rotated credential
// keeps serving its stale payload until the engine restarts.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

type Store struct {
	source ports.CredentialSource
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.Credential
}

func NewStore(source ports.CredentialSource, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		source: source,
		logger: logger.With("component", "credential-store"),
		cache:  make(map[string]*domain.Credential),
	}
}

func cacheKey(name, organizationID string) string {
	return organizationID + "/" + name
}

func (s *Store) Resolve(ctx context.Context, name, organizationID string) (map[string]interface{}, error) {
	key := cacheKey(name, organizationID)

	s.mu.RLock()
	cred, ok := s.cache[key]
	s.mu.RUnlock()

	if !ok {
		if s.source == nil {
			return nil, fmt.Errorf("credential %q: %w", name, domain.ErrCredentialNotFound)
		}

		fetched, err := s.source.Fetch(ctx, name, organizationID)
		if err != nil {
			return nil, err
		}
		if fetched == nil {
			return nil, fmt.Errorf("credential %q: %w", name, domain.ErrCredentialNotFound)
		}

		s.mu.Lock()
		s.cache[key] = fetched
		s.mu.Unlock()
		cred = fetched

		s.logger.Debug("credential cached",
			"credential", name,
			"organization_id", organizationID,
		)
	}

	if cred.Expired(time.Now()) {
		return nil, fmt.Errorf("credential %q: %w", name, domain.ErrCredentialExpired)
	}
	return cred.Payload, nil
}
