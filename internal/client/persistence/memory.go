package persistence

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
)

// MemoryManager holds the encoded record in memory. Nothing survives the
// process.
type MemoryManager struct {
	mu   sync.Mutex
	data []byte
}

var _ Manager = (*MemoryManager)(nil)

func NewMemoryManager() *MemoryManager { return &MemoryManager{} }

func (m *MemoryManager) Save(_ context.Context, s *models.Session) error {
	data, err := Encode(s)
	if err != nil {
		return wrap("encode", err)
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryManager) Load(_ context.Context) (*models.Session, error) {
	m.mu.Lock()
	data := m.data
	m.mu.Unlock()

	if data == nil {
		return nil, nil
	}
	s, err := Decode(data)
	if err != nil {
		return nil, wrap("decode", err)
	}
	return s, nil
}

func (m *MemoryManager) Delete(_ context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// SetRaw stores data as is, bypassing Encode.
func (m *MemoryManager) SetRaw(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
}

func (m *MemoryManager) Close() error { return nil }
