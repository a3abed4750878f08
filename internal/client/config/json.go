package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// Resource is the configuration resource shipped with the application. The
// JSON document has exactly two keys and no root element:
//
//	{
//	  "app_id": "layer:///apps/staging/00000000-0000-0000-0000-000000000000",
//	  "identity_provider_url": "https://foo.bar"
//	}
type Resource struct {
	AppID               string `json:"app_id"`
	IdentityProviderURL string `json:"identity_provider_url"`
}

// LoadResource reads and validates the configuration resource at path.
func LoadResource(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", common.ErrConfiguration, path, err)
	}
	return ParseResource(data)
}

// ParseResource decodes and validates a configuration resource. Unknown keys,
// trailing data, empty values and non-absolute URLs are rejected.
func ParseResource(data []byte) (*Resource, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var r Resource
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", common.ErrConfiguration, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after configuration object", common.ErrConfiguration)
	}

	if r.AppID == "" {
		return nil, fmt.Errorf("%w: app_id is required", common.ErrConfiguration)
	}
	if r.IdentityProviderURL == "" {
		return nil, fmt.Errorf("%w: identity_provider_url is required", common.ErrConfiguration)
	}
	u, err := url.Parse(r.IdentityProviderURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: identity_provider_url %q is not an absolute URL", common.ErrConfiguration, r.IdentityProviderURL)
	}

	return &r, nil
}
