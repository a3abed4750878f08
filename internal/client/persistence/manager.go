// Package persistence stores the authenticated Session between launches.
//
// Three Managers are provided and chosen by configuration through New:
// FileManager (a JSON file replaced atomically), SQLiteManager (a row in a
// goose-migrated SQLite key/value table) and MemoryManager (process-local,
// used by tests). All of them share one record format, see Encode.
package persistence

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// Manager persists at most one Session.
//
// Load returns (nil, nil) when nothing is stored. Delete is idempotent.
// Every error wraps common.ErrPersistence.
type Manager interface {
	Save(ctx context.Context, s *models.Session) error
	Load(ctx context.Context) (*models.Session, error)
	Delete(ctx context.Context) error
	Close() error
}

// Storage modes accepted by New.
const (
	ModeFile   = "file"
	ModeSQLite = "sqlite"
	ModeMemory = "memory"
)

// Options selects and configures a Manager.
type Options struct {
	Mode string
	// Dir is the data directory for the file and sqlite modes.
	Dir string
}

// New builds the Manager named by opts.Mode.
func New(ctx context.Context, opts Options) (Manager, error) {
	switch opts.Mode {
	case ModeFile:
		return NewFileManager(opts.Dir)
	case ModeSQLite:
		return NewSQLiteManager(ctx, opts.Dir)
	case ModeMemory:
		return NewMemoryManager(), nil
	default:
		return nil, fmt.Errorf("%w: unknown persistence mode %q", common.ErrConfiguration, opts.Mode)
	}
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrPersistence, op, err)
}
