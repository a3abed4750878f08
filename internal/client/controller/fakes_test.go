package controller

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/layer"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/persistence"
)

type fakeProvider struct {
	mu sync.Mutex

	Token        string
	AuthErr      error
	RefreshToken string
	RefreshErr   error
	RegisterErr  error
	AppIDErr     error

	AuthCalls        int
	LastCreds        models.Credentials
	LastNonce        string
	LastRefreshNonce string
	LastRegistered   models.Credentials
	LastAppID        string
	Identity         string
	Forgotten        int

	refreshGate *gate
}

// gate pauses a call: entered fires when the call arrives and the call
// resumes once release is closed.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *fakeProvider) Authenticate(_ context.Context, creds models.Credentials, nonce string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AuthCalls++
	p.LastCreds = creds
	p.LastNonce = nonce
	if p.AuthErr != nil {
		return "", p.AuthErr
	}
	p.Identity = p.Token
	return p.Token, nil
}

func (p *fakeProvider) Refresh(_ context.Context, nonce string) (string, error) {
	p.mu.Lock()
	g := p.refreshGate
	p.mu.Unlock()
	if g != nil {
		g.entered <- struct{}{}
		<-g.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastRefreshNonce = nonce
	if p.RefreshErr != nil {
		return "", p.RefreshErr
	}
	p.Identity = p.RefreshToken
	return p.RefreshToken, nil
}

func (p *fakeProvider) Register(_ context.Context, creds models.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastRegistered = creds
	return p.RegisterErr
}

func (p *fakeProvider) UpdateAppID(appID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AppIDErr != nil {
		return p.AppIDErr
	}
	p.LastAppID = appID
	return nil
}

func (p *fakeProvider) AdoptIdentity(token string) {
	p.mu.Lock()
	p.Identity = token
	p.mu.Unlock()
}

func (p *fakeProvider) ForgetIdentity() {
	p.mu.Lock()
	p.Identity = ""
	p.Forgotten++
	p.mu.Unlock()
}

func (p *fakeProvider) snapshot() fakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fakeProvider{
		AuthCalls:        p.AuthCalls,
		LastCreds:        p.LastCreds,
		LastNonce:        p.LastNonce,
		LastRefreshNonce: p.LastRefreshNonce,
		LastRegistered:   p.LastRegistered,
		LastAppID:        p.LastAppID,
		Identity:         p.Identity,
		Forgotten:        p.Forgotten,
	}
}

type fakeClient struct {
	mu       sync.Mutex
	appID    string
	observer layer.Observer

	Nonce           string
	NonceErr        error
	ConnectErr      error
	EstablishUserID string
	EstablishErr    error
	ResumeErr       error
	Notification    *layer.NotificationResult
	NotificationErr error
	DeauthErr       error

	Connected         bool
	NonceCalls        int
	LastIdentityToken string
	LastSessionToken  string
	LastPayload       map[string]any
	LastDeviceToken   []byte
	DeauthCalls       int
}

var _ layer.Client = (*fakeClient)(nil)

func (c *fakeClient) AppID() string { return c.appID }

func (c *fakeClient) SetObserver(o layer.Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

func (c *fakeClient) emit(ev layer.Event) {
	c.mu.Lock()
	o := c.observer
	c.mu.Unlock()
	o.ClientEvent(ev)
}

func (c *fakeClient) Connect(context.Context) error {
	if c.ConnectErr != nil {
		c.emit(layer.Event{Kind: layer.EventError, Err: c.ConnectErr})
		return c.ConnectErr
	}
	c.mu.Lock()
	c.Connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	c.Connected = false
	c.mu.Unlock()
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Connected
}

func (c *fakeClient) RequestNonce(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NonceCalls++
	if c.NonceErr != nil {
		return "", c.NonceErr
	}
	return c.Nonce, nil
}

func (c *fakeClient) EstablishSession(_ context.Context, identityToken string) (*layer.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastIdentityToken = identityToken
	if c.EstablishErr != nil {
		return nil, c.EstablishErr
	}
	return &layer.Session{Token: "sess-" + identityToken, UserID: c.EstablishUserID}, nil
}

func (c *fakeClient) ResumeSession(_ context.Context, sessionToken string) (*layer.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastSessionToken = sessionToken
	if c.ResumeErr != nil {
		return nil, c.ResumeErr
	}
	return &layer.Session{Token: sessionToken, UserID: "u-resumed"}, nil
}

func (c *fakeClient) Deauthenticate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeauthCalls++
	return c.DeauthErr
}

func (c *fakeClient) HandleRemoteNotification(_ context.Context, payload map[string]any) (*layer.NotificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastPayload = payload
	if c.NotificationErr != nil {
		return nil, c.NotificationErr
	}
	if c.Notification == nil {
		return &layer.NotificationResult{}, nil
	}
	return c.Notification, nil
}

func (c *fakeClient) UpdateRemoteNotificationDeviceToken(_ context.Context, token []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastDeviceToken = token
	return nil
}

func (c *fakeClient) deauthCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DeauthCalls
}

// failingStore wraps a MemoryManager and fails selected operations.
type failingStore struct {
	*persistence.MemoryManager
	SaveErr   error
	LoadErr   error
	DeleteErr error
}

func (s *failingStore) Save(ctx context.Context, sess *models.Session) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	return s.MemoryManager.Save(ctx, sess)
}

func (s *failingStore) Load(ctx context.Context) (*models.Session, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.MemoryManager.Load(ctx)
}

func (s *failingStore) Delete(ctx context.Context) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.MemoryManager.Delete(ctx)
}

// recorder implements every observer capability.
type recorder struct {
	mu            sync.Mutex
	transitions   [][2]models.State
	connection    []layer.EventKind
	errs          []error
	notifications []*layer.NotificationResult
}

func (r *recorder) StateChanged(from, to models.State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, [2]models.State{from, to})
	r.mu.Unlock()
}

func (r *recorder) ConnectionChanged(ev layer.Event) {
	r.mu.Lock()
	r.connection = append(r.connection, ev.Kind)
	r.mu.Unlock()
}

func (r *recorder) ControllerError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) NotificationReceived(res *layer.NotificationResult) {
	r.mu.Lock()
	r.notifications = append(r.notifications, res)
	r.mu.Unlock()
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) states() [][2]models.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]models.State(nil), r.transitions...)
}

// stateOnly implements a single capability.
type stateOnly struct {
	mu   sync.Mutex
	last models.State
}

func (s *stateOnly) StateChanged(_, to models.State) {
	s.mu.Lock()
	s.last = to
	s.mu.Unlock()
}

func (c *fakeClient) snapshotIdentityToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastIdentityToken
}
