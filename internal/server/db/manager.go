// Package db selects the account storage of the identity provider:
// PostgreSQL with goose migrations when a DSN is configured, process memory
// otherwise.
package db

import (
	"context"

	"github.com/dmitrijs2005/atlasmessenger/internal/server/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Close() error
}

// New returns a PostgreSQL manager for dsn, or an in-memory one when dsn is
// empty.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewInMemoryRepositoryManager(), nil
	}
	return NewPostgresRepositoryManager(ctx, dsn)
}
