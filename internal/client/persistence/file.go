package persistence

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/filex"
)

const sessionFileName = "session.json"

// FileManager keeps the Session in a single owner-readable JSON file.
type FileManager struct {
	path string
}

var _ Manager = (*FileManager)(nil)

func NewFileManager(dir string) (*FileManager, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, wrap("data dir", err)
	}
	return &FileManager{path: filepath.Join(abs, sessionFileName)}, nil
}

// Path returns the location of the session file.
func (m *FileManager) Path() string { return m.path }

func (m *FileManager) Save(_ context.Context, s *models.Session) error {
	data, err := Encode(s)
	if err != nil {
		return wrap("encode", err)
	}
	if err := filex.WriteFileAtomic(m.path, data, 0o600); err != nil {
		return wrap("write", err)
	}
	return nil
}

func (m *FileManager) Load(_ context.Context) (*models.Session, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("read", err)
	}

	s, err := Decode(data)
	if err != nil {
		return nil, wrap("decode", err)
	}
	return s, nil
}

func (m *FileManager) Delete(_ context.Context) error {
	if err := filex.RemoveIfExists(m.path); err != nil {
		return wrap("delete", err)
	}
	return nil
}

func (m *FileManager) Close() error { return nil }
