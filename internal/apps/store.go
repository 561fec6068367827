package apps

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store persists applications and provider configs. SaveProvider owns the
// at-most-one-default invariant: when the record sets IsDefault the write
// and the demotion of any prior default happen atomically.
type Store interface {
	InsertApplication(ctx context.Context, app Application) error
	FindApplicationByID(ctx context.Context, id string) (*Application, error)
	ApplicationsByAccount(ctx context.Context, accountID string) ([]Application, error)

	// SaveProvider inserts or fully replaces the record keyed by ID.
	SaveProvider(ctx context.Context, p OidcProviderConfig) error
	FindProviderByID(ctx context.Context, id string) (*OidcProviderConfig, error)
	FindProviderByClientID(ctx context.Context, clientID string) (*OidcProviderConfig, error)
	ProvidersByApplication(ctx context.Context, applicationID string) ([]OidcProviderConfig, error)
}
