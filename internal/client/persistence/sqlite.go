package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/migrations"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/dbx"
	"github.com/dmitrijs2005/atlasmessenger/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	databaseFileName = "atlas.db"
	sessionKey       = "session"
)

// SQLiteManager stores the Session under the "session" key of the metadata
// table in a local SQLite database.
type SQLiteManager struct {
	db *sql.DB
}

var _ Manager = (*SQLiteManager)(nil)

// NewSQLiteManager opens (creating if needed) the database in dir and
// migrates it.
func NewSQLiteManager(ctx context.Context, dir string) (*SQLiteManager, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, wrap("data dir", err)
	}
	return OpenSQLite(ctx, filepath.Join(abs, databaseFileName))
}

// OpenSQLite opens the database at dsn and applies pending migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteManager, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, wrap("migrate", err)
	}
	return &SQLiteManager{db: db}, nil
}

// RunMigrations applies the embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

func (m *SQLiteManager) Save(ctx context.Context, s *models.Session) error {
	data, err := Encode(s)
	if err != nil {
		return wrap("encode", err)
	}

	err = dbx.WithTx(ctx, m.db, func(ctx context.Context, tx dbx.DBTX) error {
		return metadataTable{db: tx}.set(ctx, sessionKey, data)
	})
	if err != nil {
		return wrap("save", err)
	}
	return nil
}

func (m *SQLiteManager) Load(ctx context.Context) (*models.Session, error) {
	data, err := metadataTable{db: m.db}.get(ctx, sessionKey)
	if err != nil {
		return nil, wrap("load", err)
	}
	if data == nil {
		return nil, nil
	}

	s, err := Decode(data)
	if err != nil {
		return nil, wrap("decode", err)
	}
	return s, nil
}

func (m *SQLiteManager) Delete(ctx context.Context) error {
	err := dbx.WithTx(ctx, m.db, func(ctx context.Context, tx dbx.DBTX) error {
		return metadataTable{db: tx}.delete(ctx, sessionKey)
	})
	if err != nil {
		return wrap("delete", err)
	}
	return nil
}

func (m *SQLiteManager) Close() error {
	return m.db.Close()
}
