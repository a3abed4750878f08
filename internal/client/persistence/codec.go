package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// ErrCorruptRecord marks a stored record that cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt session record")

// Encode serializes s in the current schema version.
func Encode(s *models.Session) ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: session is incomplete", ErrCorruptRecord)
	}
	rec := *s
	rec.Version = models.SessionSchemaVersion
	return json.Marshal(&rec)
}

// Decode parses a stored record. Records written by another schema version
// fail with common.ErrUnsupportedSchema.
func Decode(data []byte) (*models.Session, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if head.Version != models.SessionSchemaVersion {
		return nil, fmt.Errorf("%w: version %d", common.ErrUnsupportedSchema, head.Version)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: missing token or user", ErrCorruptRecord)
	}
	return &s, nil
}
