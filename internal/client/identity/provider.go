// Package identity implements the client side of the identity provider
// handshake: credentials plus a messaging nonce are exchanged for an identity
// token over HTTP, and a previously established identity can be refreshed
// with a new nonce.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
)

const (
	authenticatePath = "/authenticate"
	refreshPath      = "/refresh"
	usersPath        = "/users"

	nonceKey         = "nonce"
	identityTokenKey = "identity_token"

	defaultTimeout = 15 * time.Second
	maxBodySize    = 1 << 20
)

// Authenticator is the contract the controller relies on. Implementations
// must not touch persisted state; the caller owns persistence.
type Authenticator interface {
	// Authenticate exchanges credentials and a nonce for an identity token.
	Authenticate(ctx context.Context, creds models.Credentials, nonce string) (string, error)
	// Refresh obtains a new identity token for the established identity.
	Refresh(ctx context.Context, nonce string) (string, error)
	// Register creates an account at the identity provider.
	Register(ctx context.Context, creds models.Credentials) error
	// UpdateAppID sets the application identifier once.
	UpdateAppID(appID string) error
	// AdoptIdentity makes token the identity used by Refresh, e.g. after a
	// persisted session was resumed.
	AdoptIdentity(token string)
	// ForgetIdentity drops the identity used by Refresh.
	ForgetIdentity()
}

// Provider talks to the identity provider over HTTP. The base URL is fixed at
// construction; the app ID may be supplied later but only once.
type Provider struct {
	baseURL *url.URL
	http    *http.Client
	logger  logging.Logger

	mu       sync.RWMutex
	appID    string
	identity string
}

var _ Authenticator = (*Provider)(nil)

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds every call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.http = c }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.http = &http.Client{Timeout: d} }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider builds a Provider for the identity provider at baseURL. appID
// may be empty and set later with UpdateAppID.
func NewProvider(baseURL, appID string, opts ...Option) (*Provider, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid identity provider url %q", common.ErrConfiguration, baseURL)
	}

	p := &Provider{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logging.Nop(),
		appID:   appID,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// BaseURL returns the identity provider root.
func (p *Provider) BaseURL() string { return p.baseURL.String() }

// AppID returns the configured application identifier.
func (p *Provider) AppID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.appID
}

// UpdateAppID sets the application identifier. Changing an already set
// identifier fails with common.ErrAppIDAlreadySet; repeating the same value
// is a no-op.
func (p *Provider) UpdateAppID(appID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.appID != "" && p.appID != appID {
		return fmt.Errorf("%w: provider bound to %s", common.ErrAppIDAlreadySet, p.appID)
	}
	p.appID = appID
	return nil
}

func (p *Provider) AdoptIdentity(token string) {
	p.mu.Lock()
	p.identity = token
	p.mu.Unlock()
}

func (p *Provider) ForgetIdentity() {
	p.AdoptIdentity("")
}

// Authenticate posts the credentials and nonce to /authenticate and returns
// the identity token. On success the token becomes the identity used by
// Refresh.
func (p *Provider) Authenticate(ctx context.Context, creds models.Credentials, nonce string) (string, error) {
	body := creds.AsMap()
	body[nonceKey] = nonce

	token, err := p.requestToken(ctx, authenticatePath, body, "")
	if err != nil {
		return "", err
	}

	p.AdoptIdentity(token)
	return token, nil
}

// Refresh posts the nonce to /refresh, authenticated with the current
// identity token. Without an identity it fails with common.ErrNoIdentity.
func (p *Provider) Refresh(ctx context.Context, nonce string) (string, error) {
	p.mu.RLock()
	identity := p.identity
	p.mu.RUnlock()

	if identity == "" {
		return "", common.ErrNoIdentity
	}

	token, err := p.requestToken(ctx, refreshPath, map[string]any{nonceKey: nonce}, identity)
	if err != nil {
		return "", err
	}

	p.AdoptIdentity(token)
	return token, nil
}

// Register creates an account. The identity provider answers 201 on success
// and 409 when the email is taken, which is a rejection like 401/403/422.
func (p *Provider) Register(ctx context.Context, creds models.Credentials) error {
	resp, err := p.post(ctx, usersPath, creds.AsMap(), "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: account exists: %s", common.ErrAuthenticationRejected, readErrorReason(resp.Body))
	}
	if err := p.checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return nil
}

func (p *Provider) requestToken(ctx context.Context, path string, body map[string]any, bearer string) (string, error) {
	resp, err := p.post(ctx, path, body, bearer)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := p.checkStatus(resp); err != nil {
		return "", err
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode body: %w", common.ErrInvalidResponse, err)
	}

	token, _ := payload[identityTokenKey].(string)
	if token == "" {
		return "", fmt.Errorf("%w: %s missing from response", common.ErrInvalidResponse, identityTokenKey)
	}
	return token, nil
}

func (p *Provider) post(ctx context.Context, path string, body map[string]any, bearer string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := p.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if appID := p.AppID(); appID != "" {
		req.Header.Set(common.AppIDHeaderName, appID)
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+bearer)
	}

	p.logger.Debug(ctx, "identity provider request", "url", endpoint)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNetwork, err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses to the error taxonomy. The error payload,
// when present, is folded into the message.
func (p *Provider) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	reason := readErrorReason(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", common.ErrAuthenticationRejected, reason)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: identity provider returned %d: %s", common.ErrNetwork, resp.StatusCode, reason)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", common.ErrInvalidResponse, resp.StatusCode, reason)
	}
}

func readErrorReason(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return "no details"
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(b))
}

// IsRetryable reports whether err is a transport-level failure the UI may
// offer to retry with the same credentials.
func IsRetryable(err error) bool {
	return errors.Is(err, common.ErrNetwork)
}
