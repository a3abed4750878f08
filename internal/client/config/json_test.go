package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestParseResource(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"app_id":"layer:///apps/staging/1","identity_provider_url":"https://foo.bar"}`},
		{name: "invalid JSON", body: `{ this is not valid json`, wantErr: true},
		{name: "missing app id", body: `{"identity_provider_url":"https://foo.bar"}`, wantErr: true},
		{name: "missing url", body: `{"app_id":"a"}`, wantErr: true},
		{name: "relative url", body: `{"app_id":"a","identity_provider_url":"/idp"}`, wantErr: true},
		{name: "unknown key", body: `{"app_id":"a","identity_provider_url":"https://foo.bar","extra":1}`, wantErr: true},
		{name: "root element", body: `{"config":{"app_id":"a","identity_provider_url":"https://foo.bar"}}`, wantErr: true},
		{name: "trailing data", body: `{"app_id":"a","identity_provider_url":"https://foo.bar"} {}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseResource([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "layer:///apps/staging/1", r.AppID)
			assert.Equal(t, "https://foo.bar", r.IdentityProviderURL)
		})
	}
}

func TestLoadResource_FromFile(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"app_id":                "layer:///apps/staging/9",
		"identity_provider_url": "http://localhost:8081",
	})

	r, err := LoadResource(path)
	require.NoError(t, err)
	assert.Equal(t, "layer:///apps/staging/9", r.AppID)
	assert.Equal(t, "http://localhost:8081", r.IdentityProviderURL)
}
