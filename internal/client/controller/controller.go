// Package controller drives the authentication lifecycle of the messenger:
// it owns the messaging client, exchanges credentials for identity tokens
// through the identity provider, establishes and restores messaging sessions,
// and keeps the persisted Session in step with the current state.
//
// The state machine is
//
//	AppIDNotSet --SetAppID--> CredentialsRequired --Authenticate--> Authenticated
//	                                 ^                                   |
//	                                 +-----------Deauthenticate----------+
//
// SetAppID may also land directly in Authenticated when a persisted Session
// can be resumed.
//
// Every asynchronous operation runs on its own goroutine and reports through
// exactly one completion callback. Callbacks and observer notifications are
// delivered on the controller's Dispatcher, a SerialDispatcher unless
// WithDispatcher says otherwise, so UI code sees them in order on one
// goroutine.
//
// Authentication is single-flight by contract: the UI must not start a
// second Authenticate or Register while one is pending. Concurrent calls are
// undefined behaviour and are not guarded. A session renewal triggered by
// the messaging client never outlives a logout or a newer login: its result
// is dropped without being persisted.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/identity"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/layer"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/persistence"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
)

const (
	defaultNotificationTimeout = 30 * time.Second
	reauthenticationTimeout    = 30 * time.Second
)

// errSuperseded reports a renewal overtaken by a logout or a new login.
var errSuperseded = errors.New("session superseded")

// LayerController is the application/messaging controller.
type LayerController struct {
	provider   identity.Authenticator
	store      persistence.Manager
	factory    layer.Factory
	logger     logging.Logger
	dispatcher Dispatcher
	now        func() time.Time

	notificationTimeout time.Duration
	initialAppID        string

	mu           sync.Mutex
	state        models.State
	appIDClaimed bool
	appID        string
	client       layer.Client
	session      *models.Session
	layerSession *layer.Session
	// epoch advances whenever a Session is installed or dropped. Background
	// renewals commit only while it is unchanged.
	epoch uint64

	obsMu          sync.RWMutex
	observers      []subscription
	nextObserverID int
}

type Option func(*LayerController)

// WithAppID bootstraps the controller with appID during construction, so
// that it starts in CredentialsRequired or Authenticated.
func WithAppID(appID string) Option {
	return func(c *LayerController) { c.initialAppID = appID }
}

func WithLogger(l logging.Logger) Option {
	return func(c *LayerController) { c.logger = l }
}

// WithDispatcher sets where callbacks and observer notifications run.
func WithDispatcher(d Dispatcher) Option {
	return func(c *LayerController) { c.dispatcher = d }
}

// WithNotificationTimeout bounds HandleRemoteNotification as a whole.
func WithNotificationTimeout(d time.Duration) Option {
	return func(c *LayerController) { c.notificationTimeout = d }
}

// WithClock overrides the time source stamped into new Sessions.
func WithClock(now func() time.Time) Option {
	return func(c *LayerController) { c.now = now }
}

// NewLayerController wires the controller to its collaborators. With
// WithAppID the bootstrap of SetAppID runs before NewLayerController returns
// and its configuration errors are returned here.
func NewLayerController(ctx context.Context, provider identity.Authenticator, store persistence.Manager, factory layer.Factory, opts ...Option) (*LayerController, error) {
	c := &LayerController{
		provider:            provider,
		store:               store,
		factory:             factory,
		logger:              logging.Nop(),
		now:                 time.Now,
		notificationTimeout: defaultNotificationTimeout,
		state:               models.StateAppIDNotSet,
	}
	for _, o := range opts {
		o(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewSerialDispatcher()
	}

	if c.initialAppID != "" {
		if _, err := c.bootstrap(ctx, c.initialAppID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// State returns the current state.
func (c *LayerController) State() models.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current Session, or nil when not
// authenticated.
func (c *LayerController) Session() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// MessagingSession returns the active messaging session, or nil.
func (c *LayerController) MessagingSession() *layer.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layerSession == nil {
		return nil
	}
	ls := *c.layerSession
	return &ls
}

// Client returns the messaging client, nil until the app ID is set.
func (c *LayerController) Client() layer.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

func (c *LayerController) AppID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appID
}

// SetAppID builds the messaging client for appID, connects it and tries to
// resume the persisted Session. done receives the resulting state. It fails
// with common.ErrAppIDAlreadySet when an app ID was already accepted.
func (c *LayerController) SetAppID(ctx context.Context, appID string, done func(models.State, error)) {
	go func() {
		st, err := c.bootstrap(ctx, appID)
		c.complete(func() {
			if done != nil {
				done(st, err)
			}
		})
	}()
}

// Authenticate exchanges creds for an identity token, establishes the
// messaging session with it and persists the resulting Session. Any failing
// step aborts the sequence and is reported as is; the state stays
// CredentialsRequired and nothing is persisted.
func (c *LayerController) Authenticate(ctx context.Context, creds models.Credentials, done func(*layer.Session, error)) {
	go func() {
		s, err := c.authenticate(ctx, creds, false)
		c.complete(func() {
			if done != nil {
				done(s, err)
			}
		})
	}()
}

// Register creates the account at the identity provider and then
// authenticates with the same credentials.
func (c *LayerController) Register(ctx context.Context, creds models.Credentials, done func(*layer.Session, error)) {
	go func() {
		s, err := c.authenticate(ctx, creds, true)
		c.complete(func() {
			if done != nil {
				done(s, err)
			}
		})
	}()
}

// Deauthenticate drops the Session everywhere and returns to
// CredentialsRequired. It is safe to call without a Session.
func (c *LayerController) Deauthenticate(ctx context.Context, done func(error)) {
	go func() {
		err := c.deauthenticate(ctx)
		c.complete(func() {
			if done != nil {
				done(err)
			}
		})
	}()
}

// HandleRemoteNotification hands payload to the messaging client for a
// bounded synchronization. done is called exactly once: (true, nil) when the
// payload was recognized, (false, nil) when it was not, and (false, err)
// wrapping common.ErrFailedHandlingRemoteNotification when the
// synchronization failed.
func (c *LayerController) HandleRemoteNotification(ctx context.Context, payload map[string]any, done func(bool, error)) {
	go func() {
		ok, err := c.handleRemoteNotification(ctx, payload)
		c.complete(func() {
			if done != nil {
				done(ok, err)
			}
		})
	}()
}

// UpdateRemoteNotificationDeviceToken forwards the push device token to the
// messaging client.
func (c *LayerController) UpdateRemoteNotificationDeviceToken(ctx context.Context, token []byte, done func(error)) {
	go func() {
		err := c.updateDeviceToken(ctx, token)
		c.complete(func() {
			if done != nil {
				done(err)
			}
		})
	}()
}

// Close disconnects the messaging client. The store and the dispatcher are
// owned by the caller.
func (c *LayerController) Close() {
	if client := c.Client(); client != nil {
		client.Disconnect()
	}
}

func (c *LayerController) complete(fn func()) {
	c.dispatcher.Dispatch(fn)
}

func (c *LayerController) bootstrap(ctx context.Context, appID string) (models.State, error) {
	if appID == "" {
		return c.State(), fmt.Errorf("%w: empty app id", common.ErrConfiguration)
	}

	c.mu.Lock()
	if c.appIDClaimed {
		st := c.state
		c.mu.Unlock()
		return st, common.ErrAppIDAlreadySet
	}
	c.appIDClaimed = true
	c.mu.Unlock()

	client, err := c.factory(appID)
	if err == nil {
		err = c.provider.UpdateAppID(appID)
	}
	if err != nil {
		c.mu.Lock()
		c.appIDClaimed = false
		st := c.state
		c.mu.Unlock()
		return st, fmt.Errorf("set app id: %w", err)
	}

	client.SetObserver(layer.ObserverFunc(c.clientEvent))

	c.mu.Lock()
	c.appID = appID
	c.client = client
	c.mu.Unlock()

	log := c.logger.With("app_id", appID)
	log.Info(ctx, "app id set")

	// The client reports connection failures as events.
	if err := client.Connect(ctx); err != nil {
		log.Warn(ctx, "connect failed", "error", err)
	}

	st := c.restore(ctx, client)
	c.setState(st)
	return st, nil
}

// restore resumes the persisted Session when there is a usable one. Stale or
// unreadable records are deleted.
func (c *LayerController) restore(ctx context.Context, client layer.Client) models.State {
	epoch := c.currentEpoch()

	s, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn(ctx, "load session failed", "error", err)
		c.notifyError(err)
		if errors.Is(err, common.ErrUnsupportedSchema) || errors.Is(err, persistence.ErrCorruptRecord) {
			c.discardRecord(ctx)
		}
		return models.StateCredentialsRequired
	}
	if s == nil {
		return models.StateCredentialsRequired
	}
	if s.SessionToken == "" {
		c.discardRecord(ctx)
		return models.StateCredentialsRequired
	}

	ls, err := client.ResumeSession(ctx, s.SessionToken)
	if errors.Is(err, common.ErrSessionExpired) {
		c.provider.AdoptIdentity(s.AuthenticationToken)
		ls, err = c.renew(ctx, client, s, "", epoch)
	} else if err == nil {
		c.provider.AdoptIdentity(s.AuthenticationToken)
		err = c.install(epoch, s, ls)
	}
	if err != nil {
		c.logger.Info(ctx, "persisted session not resumable", "error", err)
		c.provider.ForgetIdentity()
		if !errors.Is(err, errSuperseded) {
			c.discardRecord(ctx)
		}
		return models.StateCredentialsRequired
	}

	c.logger.Info(ctx, "session resumed", "user_id", ls.UserID)
	return models.StateAuthenticated
}

func (c *LayerController) discardRecord(ctx context.Context) {
	if err := c.store.Delete(ctx); err != nil {
		c.logger.Warn(ctx, "delete stale session failed", "error", err)
	}
}

func (c *LayerController) authenticate(ctx context.Context, creds models.Credentials, register bool) (*layer.Session, error) {
	c.mu.Lock()
	st, client := c.state, c.client
	c.mu.Unlock()

	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if st != models.StateCredentialsRequired {
		return nil, fmt.Errorf("%w: authenticate in state %s", common.ErrInvalidState, st)
	}

	if register {
		if err := c.provider.Register(ctx, creds); err != nil {
			return nil, err
		}
	}

	nonce, err := client.RequestNonce(ctx)
	if err != nil {
		return nil, err
	}

	token, err := c.provider.Authenticate(ctx, creds, nonce)
	if err != nil {
		return nil, err
	}

	ls, err := client.EstablishSession(ctx, token)
	if err != nil {
		c.provider.ForgetIdentity()
		return nil, err
	}

	user := creds.User()
	user.UserID = ls.UserID
	s := models.NewSession(token, ls.Token, user, c.now())

	c.mu.Lock()
	err = c.store.Save(ctx, s)
	if err == nil {
		c.epoch++
		c.session = s
		c.layerSession = ls
	}
	c.mu.Unlock()

	if err != nil {
		if derr := client.Deauthenticate(ctx); derr != nil {
			c.logger.Warn(ctx, "drop unsaved session failed", "error", derr)
		}
		c.provider.ForgetIdentity()
		return nil, err
	}

	c.logger.Info(ctx, "authenticated", "user_id", ls.UserID)
	c.setState(models.StateAuthenticated)
	return ls, nil
}

func (c *LayerController) deauthenticate(ctx context.Context) error {
	return c.endSession(ctx, 0, false)
}

// endSession drops the Session. With onlyAt set it does nothing and returns
// errSuperseded unless the epoch still equals epoch.
func (c *LayerController) endSession(ctx context.Context, epoch uint64, onlyAt bool) error {
	c.mu.Lock()
	if onlyAt && c.epoch != epoch {
		c.mu.Unlock()
		return errSuperseded
	}
	st, client := c.state, c.client
	c.epoch++
	c.session = nil
	c.layerSession = nil
	c.mu.Unlock()

	if st == models.StateAppIDNotSet {
		return nil
	}

	err := c.store.Delete(ctx)
	if err != nil {
		c.logger.Warn(ctx, "delete session failed", "error", err)
	}

	if derr := client.Deauthenticate(ctx); derr != nil {
		c.logger.Warn(ctx, "messaging deauthentication failed", "error", derr)
	}
	c.provider.ForgetIdentity()

	c.setState(models.StateCredentialsRequired)
	return err
}

func (c *LayerController) handleRemoteNotification(ctx context.Context, payload map[string]any) (bool, error) {
	client := c.Client()
	if client == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.notificationTimeout)
	defer cancel()

	res, err := client.HandleRemoteNotification(ctx, payload)
	if err != nil {
		c.logger.Warn(ctx, "remote notification failed", "error", err)
		return false, fmt.Errorf("%w: %w", common.ErrFailedHandlingRemoteNotification, err)
	}
	if res == nil || !res.Recognized {
		return false, nil
	}

	c.notifyNotification(res)
	return true, nil
}

func (c *LayerController) updateDeviceToken(ctx context.Context, token []byte) error {
	client := c.Client()
	if client == nil {
		return fmt.Errorf("%w: app id not set", common.ErrInvalidState)
	}
	return client.UpdateRemoteNotificationDeviceToken(ctx, token)
}

// clientEvent is the messaging client observer. It runs on the client's
// goroutine and must not block.
func (c *LayerController) clientEvent(ev layer.Event) {
	switch ev.Kind {
	case layer.EventError:
		c.notifyError(ev.Err)
	case layer.EventAuthenticationChallenge:
		go c.reauthenticate(ev.Nonce)
	default:
		c.notifyConnection(ev)
	}
}

// reauthenticate answers an authentication challenge by refreshing the
// identity token. Failure ends the session.
func (c *LayerController) reauthenticate(nonce string) {
	ctx, cancel := context.WithTimeout(context.Background(), reauthenticationTimeout)
	defer cancel()

	c.mu.Lock()
	st, client, s, epoch := c.state, c.client, c.session.Clone(), c.epoch
	c.mu.Unlock()

	if st != models.StateAuthenticated || s == nil {
		return
	}

	ls, err := c.renew(ctx, client, s, nonce, epoch)
	switch {
	case errors.Is(err, errSuperseded):
		c.logger.Info(ctx, "renewal dropped, session changed meanwhile")
	case err != nil:
		c.logger.Warn(ctx, "re-authentication failed", "error", err)
		derr := c.endSession(ctx, epoch, true)
		if errors.Is(derr, errSuperseded) {
			return
		}
		c.notifyError(err)
		if derr != nil {
			c.notifyError(derr)
		}
	default:
		c.logger.Info(ctx, "session renewed", "user_id", ls.UserID)
	}
}

// renew obtains a fresh identity token for s, re-establishes the messaging
// session and commits the updated Session, persisted and in memory, as long
// as no logout or login happened since epoch. Otherwise the new messaging
// session is dropped and errSuperseded returned. An empty nonce is requested
// from the client first.
func (c *LayerController) renew(ctx context.Context, client layer.Client, s *models.Session, nonce string, epoch uint64) (*layer.Session, error) {
	if nonce == "" {
		var err error
		if nonce, err = client.RequestNonce(ctx); err != nil {
			return nil, err
		}
	}

	token, err := c.provider.Refresh(ctx, nonce)
	if err != nil {
		return nil, err
	}

	ls, err := client.EstablishSession(ctx, token)
	if err != nil {
		return nil, err
	}

	renewed := s.Clone()
	renewed.AuthenticationToken = token
	renewed.SessionToken = ls.Token
	if ls.UserID != "" {
		renewed.User.UserID = ls.UserID
	}

	c.mu.Lock()
	if c.epoch != epoch {
		current := c.session.Clone()
		c.mu.Unlock()
		// Refresh replaced the provider identity; hand it back to whoever won.
		if current != nil {
			c.provider.AdoptIdentity(current.AuthenticationToken)
		} else {
			c.provider.ForgetIdentity()
			if derr := client.Deauthenticate(ctx); derr != nil {
				c.logger.Warn(ctx, "drop superseded session failed", "error", derr)
			}
		}
		return nil, errSuperseded
	}
	err = c.store.Save(ctx, renewed)
	if err == nil {
		c.session = renewed
		c.layerSession = ls
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return ls, nil
}

// install makes s the current Session unless the epoch moved on.
func (c *LayerController) install(epoch uint64, s *models.Session, ls *layer.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return errSuperseded
	}
	c.session = s
	c.layerSession = ls
	return nil
}

func (c *LayerController) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *LayerController) setState(to models.State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from != to {
		c.logger.Debug(context.Background(), "state changed", "from", from.String(), "to", to.String())
		c.notifyState(from, to)
	}
}
