package layer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	defaultSyncTimeout = 10 * time.Second
	maxBodySize        = 1 << 20
)

// RESTClient implements Client over the messaging platform REST API.
type RESTClient struct {
	appID       string
	baseURL     *url.URL
	http        *http.Client
	syncTimeout time.Duration
	logger      logging.Logger
	now         func() time.Time

	mu          sync.RWMutex
	observer    Observer
	connected   bool
	session     *Session
	deviceToken []byte
}

var _ Client = (*RESTClient)(nil)

// RESTOption customizes a RESTClient.
type RESTOption func(*RESTClient)

func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *RESTClient) { r.http = c }
}

func WithTimeout(d time.Duration) RESTOption {
	return func(r *RESTClient) { r.http = &http.Client{Timeout: d} }
}

// WithSyncTimeout bounds the synchronization run for a remote notification.
func WithSyncTimeout(d time.Duration) RESTOption {
	return func(r *RESTClient) { r.syncTimeout = d }
}

func WithLogger(l logging.Logger) RESTOption {
	return func(r *RESTClient) { r.logger = l }
}

// WithClock overrides the time source used for session expiry checks.
func WithClock(now func() time.Time) RESTOption {
	return func(r *RESTClient) { r.now = now }
}

// NewRESTClient builds a client for appID against the platform at baseURL.
func NewRESTClient(baseURL, appID string, opts ...RESTOption) (*RESTClient, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: app id is required", common.ErrConfiguration)
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid messaging endpoint %q", common.ErrConfiguration, baseURL)
	}

	c := &RESTClient{
		appID:       appID,
		baseURL:     u,
		http:        &http.Client{Timeout: defaultHTTPTimeout},
		syncTimeout: defaultSyncTimeout,
		logger:      logging.Nop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("app_id", appID)
	return c, nil
}

// NewRESTFactory returns a Factory producing RESTClients for baseURL.
func NewRESTFactory(baseURL string, opts ...RESTOption) Factory {
	return func(appID string) (Client, error) {
		return NewRESTClient(baseURL, appID, opts...)
	}
}

func (c *RESTClient) AppID() string { return c.appID }

func (c *RESTClient) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

func (c *RESTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// CurrentSession returns a copy of the active session, or nil.
func (c *RESTClient) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *RESTClient) emit(ev Event) {
	c.mu.RLock()
	o := c.observer
	c.mu.RUnlock()
	if o != nil {
		o.ClientEvent(ev)
	}
}

// Connect pings the platform and reports the outcome as events.
func (c *RESTClient) Connect(ctx context.Context) error {
	c.emit(Event{Kind: EventConnecting})

	if _, err := c.do(ctx, http.MethodGet, "/ping", nil, false, nil); err != nil {
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.emit(Event{Kind: EventConnected})
	return nil
}

func (c *RESTClient) Disconnect() {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()

	if was {
		c.emit(Event{Kind: EventDisconnected})
	}
}

func (c *RESTClient) RequestNonce(ctx context.Context) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/nonces", struct{}{}, false, &out); err != nil {
		return "", fmt.Errorf("request nonce: %w", err)
	}
	if out.Nonce == "" {
		return "", fmt.Errorf("%w: nonce missing from response", common.ErrInvalidResponse)
	}
	return out.Nonce, nil
}

type sessionResponse struct {
	SessionToken string    `json:"session_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (c *RESTClient) EstablishSession(ctx context.Context, identityToken string) (*Session, error) {
	req := map[string]string{"identity_token": identityToken, "app_id": c.appID}

	var out sessionResponse
	status, err := c.do(ctx, http.MethodPost, "/sessions", req, false, &out)
	if err != nil {
		if isRefusal(status) {
			return nil, fmt.Errorf("%w: %w", common.ErrSDKSession, err)
		}
		return nil, fmt.Errorf("establish session: %w", err)
	}
	if out.SessionToken == "" {
		return nil, fmt.Errorf("%w: session_token missing from response", common.ErrInvalidResponse)
	}

	s := &Session{Token: out.SessionToken, UserID: out.UserID, ExpiresAt: out.ExpiresAt}
	c.adopt(ctx, s)
	return s, nil
}

// ResumeSession adopts a persisted session token without a network round
// trip. The token is decoded, not verified; the platform verifies it on the
// next authenticated call.
func (c *RESTClient) ResumeSession(ctx context.Context, sessionToken string) (*Session, error) {
	if sessionToken == "" {
		return nil, fmt.Errorf("%w: empty session token", common.ErrSDKSession)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(sessionToken, claims); err != nil {
		return nil, fmt.Errorf("%w: decode session token: %w", common.ErrSDKSession, err)
	}

	s := &Session{Token: sessionToken, UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
		if !c.now().Before(s.ExpiresAt) {
			return nil, fmt.Errorf("%w: %w", common.ErrSDKSession, common.ErrSessionExpired)
		}
	}

	c.adopt(ctx, s)
	return s, nil
}

func (c *RESTClient) adopt(ctx context.Context, s *Session) {
	c.mu.Lock()
	c.session = s
	pending := c.deviceToken
	c.mu.Unlock()

	c.logger.Info(ctx, "messaging session active", "user_id", s.UserID)

	if pending != nil {
		if err := c.pushDeviceToken(ctx, pending); err != nil {
			c.logger.Warn(ctx, "device token upload failed", "error", err)
		}
	}
}

// Deauthenticate revokes the session remotely and always drops it locally.
func (c *RESTClient) Deauthenticate(ctx context.Context) error {
	c.mu.RLock()
	active := c.session != nil
	c.mu.RUnlock()
	if !active {
		return nil
	}

	_, err := c.do(ctx, http.MethodDelete, "/sessions/current", nil, true, nil)

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (c *RESTClient) UpdateRemoteNotificationDeviceToken(ctx context.Context, token []byte) error {
	c.mu.Lock()
	c.deviceToken = append([]byte(nil), token...)
	active := c.session != nil
	c.mu.Unlock()

	if !active || token == nil {
		return nil
	}
	return c.pushDeviceToken(ctx, token)
}

func (c *RESTClient) pushDeviceToken(ctx context.Context, token []byte) error {
	body := map[string]string{"device_token": hex.EncodeToString(token)}
	if _, err := c.do(ctx, http.MethodPost, "/push_tokens", body, true, nil); err != nil {
		return fmt.Errorf("push device token: %w", err)
	}
	return nil
}

// HandleRemoteNotification looks up the message a push payload refers to.
// Payloads without a layer section, or pointing at objects the platform no
// longer has, are reported as not recognized without an error.
func (c *RESTClient) HandleRemoteNotification(ctx context.Context, payload map[string]any) (*NotificationResult, error) {
	ref, ok := ParseNotification(payload)
	if !ok {
		return &NotificationResult{}, nil
	}

	c.mu.RLock()
	active := c.session != nil
	c.mu.RUnlock()
	if !active {
		return nil, fmt.Errorf("%w: no active session", common.ErrSDKSession)
	}

	ctx, cancel := context.WithTimeout(ctx, c.syncTimeout)
	defer cancel()

	path := "/conversations/" + url.PathEscape(ref.ConversationID) + "/messages/" + url.PathEscape(ref.MessageID)

	var msg Message
	status, err := c.do(ctx, http.MethodGet, path, nil, true, &msg)
	switch {
	case err == nil:
	case status == http.StatusNotFound:
		return &NotificationResult{}, nil
	case status == http.StatusUnauthorized:
		c.challenge(ctx)
		return nil, fmt.Errorf("%w: %w", common.ErrSDKSession, common.ErrSessionExpired)
	default:
		return nil, fmt.Errorf("synchronize notification: %w", err)
	}

	return &NotificationResult{
		Recognized:   true,
		Conversation: &Conversation{ID: ref.ConversationID},
		Message:      &msg,
		ResponseText: ref.ResponseText,
	}, nil
}

// challenge asks for a fresh nonce and hands it to the observer so the
// session can be re-established.
func (c *RESTClient) challenge(ctx context.Context) {
	nonce, err := c.RequestNonce(ctx)
	if err != nil {
		c.emit(Event{Kind: EventError, Err: err})
		return
	}
	c.emit(Event{Kind: EventAuthenticationChallenge, Nonce: nonce})
}

// do sends a JSON request and decodes a JSON reply into out. It returns the
// HTTP status (0 on transport failure) alongside any error.
func (c *RESTClient) do(ctx context.Context, method, path string, body any, authed bool, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.AppIDHeaderName, c.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.mu.RLock()
		s := c.session
		c.mu.RUnlock()
		if s != nil {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+s.Token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.lost(err)
		return 0, fmt.Errorf("%w: %w", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode body: %w", common.ErrInvalidResponse, err)
	}
	return resp.StatusCode, nil
}

// lost flips a connected client to disconnected after a transport failure.
func (c *RESTClient) lost(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()

	if was {
		c.emit(Event{Kind: EventConnectionLost, Err: err})
	}
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	reason := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		reason = payload.Error
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: platform returned %d: %s", common.ErrNetwork, resp.StatusCode, reason)
	}
	return fmt.Errorf("%w: platform returned %d: %s", common.ErrInvalidResponse, resp.StatusCode, reason)
}

func isRefusal(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusUnprocessableEntity
}
