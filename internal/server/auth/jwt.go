// Package auth issues and verifies the JWTs of the development back end:
// identity tokens minted by the identity provider and session tokens minted
// by the messaging sandbox. Both are HS256 and carry a kind claim so one can
// never be accepted as the other.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	kindIdentity = "identity"
	kindSession  = "session"

	issuer = "atlas-dev"
)

// IdentityClaims are carried by identity tokens. The audience is the app ID
// the token was issued for.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"kind"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Nonce     string `json:"nonce"`
}

// SessionClaims are carried by messaging session tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Kind  string `json:"kind"`
	AppID string `json:"app_id"`
}

// Subject describes the user an identity token is issued for.
type Subject struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
}

type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret, now: time.Now}
}

// WithClock returns a copy of i using now as its time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	return &Issuer{secret: i.secret, now: now}
}

func (i *Issuer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) registered(subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

// IssueIdentityToken mints an identity token binding s to appID and nonce.
func (i *Issuer) IssueIdentityToken(s Subject, appID, nonce string, ttl time.Duration) (string, error) {
	return i.sign(IdentityClaims{
		RegisteredClaims: i.registered(s.UserID, appID, ttl),
		Kind:             kindIdentity,
		Email:            s.Email,
		FirstName:        s.FirstName,
		LastName:         s.LastName,
		Nonce:            nonce,
	})
}

// ParseIdentityToken verifies signature and expiry of an identity token.
func (i *Issuer) ParseIdentityToken(token string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	if err := i.parse(token, claims, false); err != nil {
		return nil, err
	}
	if claims.Kind != kindIdentity {
		return nil, fmt.Errorf("%w: not an identity token", common.ErrInvalidToken)
	}
	return claims, nil
}

// ParseExpiredIdentityToken verifies the signature of an identity token and
// accepts it up to window past its expiry. Used by refresh.
func (i *Issuer) ParseExpiredIdentityToken(token string, window time.Duration) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	if err := i.parse(token, claims, true); err != nil {
		return nil, err
	}
	if claims.Kind != kindIdentity {
		return nil, fmt.Errorf("%w: not an identity token", common.ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", common.ErrInvalidToken)
	}
	if i.now().After(claims.ExpiresAt.Add(window)) {
		return nil, common.ErrTokenExpired
	}
	return claims, nil
}

// IssueSessionToken mints a messaging session token for userID.
func (i *Issuer) IssueSessionToken(userID, appID string, ttl time.Duration) (string, time.Time, error) {
	rc := i.registered(userID, appID, ttl)
	token, err := i.sign(SessionClaims{RegisteredClaims: rc, Kind: kindSession, AppID: appID})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, rc.ExpiresAt.Time, nil
}

// ParseSessionToken verifies a messaging session token.
func (i *Issuer) ParseSessionToken(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := i.parse(token, claims, false); err != nil {
		return nil, err
	}
	if claims.Kind != kindSession {
		return nil, fmt.Errorf("%w: not a session token", common.ErrInvalidToken)
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, skipValidation bool) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuer(issuer),
	}
	if skipValidation {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
}
