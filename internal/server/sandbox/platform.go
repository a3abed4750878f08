// Package sandbox emulates the messaging platform for development: it hands
// out one-time nonces, exchanges identity tokens for session tokens, revokes
// sessions, records push tokens and serves messages by conversation.
package sandbox

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/auth"
	"github.com/google/uuid"
)

const (
	defaultNonceTTL   = 5 * time.Minute
	defaultSessionTTL = time.Hour
	nonceBytes        = 16
)

// Message mirrors the message representation returned to clients.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sent_at"`
}

// Grant is the outcome of a successful session establishment.
type Grant struct {
	SessionToken string    `json:"session_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Option func(*Platform)

func WithNonceTTL(d time.Duration) Option { return func(p *Platform) { p.nonceTTL = d } }

func WithSessionTTL(d time.Duration) Option { return func(p *Platform) { p.sessionTTL = d } }

func WithClock(now func() time.Time) Option { return func(p *Platform) { p.now = now } }

// Platform is safe for concurrent use.
type Platform struct {
	appID      string
	issuer     *auth.Issuer
	nonceTTL   time.Duration
	sessionTTL time.Duration
	now        func() time.Time

	mu         sync.Mutex
	nonces     map[string]time.Time
	revoked    map[string]time.Time
	pushTokens map[string]string
	messages   map[string]map[string]Message
}

// New returns a platform accepting sessions for appID only. Identity tokens
// are verified and session tokens signed with issuer.
func New(appID string, issuer *auth.Issuer, opts ...Option) *Platform {
	p := &Platform{
		appID:      appID,
		issuer:     issuer,
		nonceTTL:   defaultNonceTTL,
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
		nonces:     make(map[string]time.Time),
		revoked:    make(map[string]time.Time),
		pushTokens: make(map[string]string),
		messages:   make(map[string]map[string]Message),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Platform) AppID() string { return p.appID }

// IssueNonce returns a fresh nonce valid for a single session establishment.
func (p *Platform) IssueNonce() (string, error) {
	nonce, err := common.MakeRandHexString(nonceBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrInternal, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked()
	p.nonces[nonce] = p.now().Add(p.nonceTTL)
	return nonce, nil
}

// EstablishSession verifies identityToken and exchanges it for a session
// token. The token must be signed by the identity provider, issued for this
// app and carry a nonce that was issued here and not used yet.
func (p *Platform) EstablishSession(identityToken, appID string) (*Grant, error) {
	if appID != p.appID {
		return nil, fmt.Errorf("%w: unknown app id %q", common.ErrUnauthorized, appID)
	}

	claims, err := p.issuer.ParseIdentityToken(identityToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if !slices.Contains(claims.Audience, p.appID) {
		return nil, fmt.Errorf("%w: identity token issued for another app", common.ErrUnauthorized)
	}
	if err := p.consumeNonce(claims.Nonce); err != nil {
		return nil, err
	}

	token, exp, err := p.issuer.IssueSessionToken(claims.Subject, p.appID, p.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInternal, err)
	}
	return &Grant{SessionToken: token, UserID: claims.Subject, ExpiresAt: exp}, nil
}

func (p *Platform) consumeNonce(nonce string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	exp, ok := p.nonces[nonce]
	if !ok {
		return fmt.Errorf("%w: unknown or used nonce", common.ErrUnauthorized)
	}
	delete(p.nonces, nonce)

	if p.now().After(exp) {
		return fmt.Errorf("%w: nonce expired", common.ErrUnauthorized)
	}
	return nil
}

// Authorize verifies a session token presented as a bearer credential.
// Revoked and expired tokens fail with common.ErrUnauthorized.
func (p *Platform) Authorize(sessionToken string) (*auth.SessionClaims, error) {
	claims, err := p.issuer.ParseSessionToken(sessionToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if claims.AppID != p.appID {
		return nil, fmt.Errorf("%w: session belongs to another app", common.ErrUnauthorized)
	}

	p.mu.Lock()
	_, revoked := p.revoked[claims.ID]
	p.mu.Unlock()

	if revoked {
		return nil, fmt.Errorf("%w: session revoked", common.ErrUnauthorized)
	}
	return claims, nil
}

// Revoke invalidates the session described by claims and forgets the push
// token of its user.
func (p *Platform) Revoke(claims *auth.SessionClaims) {
	exp := p.now().Add(p.sessionTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.revoked[claims.ID] = exp
	delete(p.pushTokens, claims.Subject)
}

// RegisterPushToken records the hex encoded device token of userID.
func (p *Platform) RegisterPushToken(userID, deviceToken string) error {
	if deviceToken == "" {
		return fmt.Errorf("%w: empty device token", common.ErrInvalidInput)
	}
	if _, err := hex.DecodeString(deviceToken); err != nil {
		return fmt.Errorf("%w: device token is not hex: %w", common.ErrInvalidInput, err)
	}

	p.mu.Lock()
	p.pushTokens[userID] = strings.ToLower(deviceToken)
	p.mu.Unlock()
	return nil
}

func (p *Platform) PushToken(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.pushTokens[userID]
	return t, ok
}

// PostMessage appends a message to a conversation, creating it on first use.
func (p *Platform) PostMessage(conversationID, senderID, text string) (Message, error) {
	if conversationID == "" {
		return Message{}, fmt.Errorf("%w: empty conversation id", common.ErrInvalidInput)
	}

	m := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		SentAt:         p.now().UTC(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.messages[conversationID]
	if !ok {
		conv = make(map[string]Message)
		p.messages[conversationID] = conv
	}
	conv[m.ID] = m
	return m, nil
}

// Message returns one message, or common.ErrNotFound.
func (p *Platform) Message(conversationID, messageID string) (Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.messages[conversationID][messageID]
	if !ok {
		return Message{}, common.ErrNotFound
	}
	return m, nil
}

// pruneLocked drops expired nonces and revocations of expired sessions.
func (p *Platform) pruneLocked() {
	now := p.now()
	for n, exp := range p.nonces {
		if now.After(exp) {
			delete(p.nonces, n)
		}
	}
	for id, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, id)
		}
	}
}
