package ports

import (
	"context"

	"github.com/fluxline/fluxline/internal/domain"
)

// CredentialSource fetches and decrypts a credential record. It is the
// backing collaborator behind the engine's caching CredentialStore.
type CredentialSource interface {
	Fetch(ctx context.Context, name, organizationID string) (*domain.Credential, error)
}

// CredentialStore resolves a decrypted credential payload for a node about
// to execute. Returns domain.ErrCredentialNotFound or
// domain.ErrCredentialExpired on the corresponding conditions.
type CredentialStore interface {
	Resolve(ctx context.Context, name, organizationID string) (map[string]interface{}, error)
}
