package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/cryptox"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/auth"
)

// Registration is the payload of a sign-up request.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Service struct {
	repo          Repository
	issuer        *auth.Issuer
	identityTTL   time.Duration
	refreshWindow time.Duration
	logger        logging.Logger

	// dummyHash is verified against when the email is unknown so both
	// outcomes cost one argon2 derivation.
	dummyHash string
}

func NewService(repo Repository, issuer *auth.Issuer, identityTTL, refreshWindow time.Duration, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		repo:          repo,
		issuer:        issuer,
		identityTTL:   identityTTL,
		refreshWindow: refreshWindow,
		logger:        logger,
		dummyHash:     cryptox.HashPassword(common.GenerateRandByteArray(16)),
	}
}

// Register creates an account. Malformed input fails with
// common.ErrInvalidCredentials, a taken email with common.ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	if !strings.Contains(r.Email, "@") {
		return nil, fmt.Errorf("%w: email %q is malformed", common.ErrInvalidCredentials, r.Email)
	}
	if r.Password == "" {
		return nil, fmt.Errorf("%w: password is required", common.ErrInvalidCredentials)
	}

	user := &User{
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		PasswordHash: cryptox.HashPassword([]byte(r.Password)),
	}

	user, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		s.logger.Error(ctx, "create user failed", "error", err)
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate verifies email and password and mints an identity token for
// appID bound to nonce. Unknown users and wrong passwords are both reported
// as common.ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, appID, email, password, nonce string) (string, error) {
	if nonce == "" {
		return "", fmt.Errorf("%w: nonce is required", common.ErrInvalidCredentials)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, common.ErrNotFound):
		_, _ = cryptox.VerifyPassword(s.dummyHash, []byte(password))
		return "", common.ErrUnauthorized
	case err != nil:
		s.logger.Error(ctx, "lookup user failed", "error", err)
		return "", common.ErrInternal
	}

	ok, err := cryptox.VerifyPassword(user.PasswordHash, []byte(password))
	if err != nil {
		s.logger.Error(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return "", common.ErrInternal
	}
	if !ok {
		return "", common.ErrUnauthorized
	}

	return s.issue(ctx, user, appID, nonce)
}

// Refresh exchanges a recently expired identity token for a new one bound to
// nonce. The old token must have been issued for appID.
func (s *Service) Refresh(ctx context.Context, appID, identityToken, nonce string) (string, error) {
	if nonce == "" {
		return "", fmt.Errorf("%w: nonce is required", common.ErrInvalidCredentials)
	}

	claims, err := s.issuer.ParseExpiredIdentityToken(identityToken, s.refreshWindow)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if appID != "" && !slices.Contains(claims.Audience, appID) {
		return "", fmt.Errorf("%w: token issued for another app", common.ErrUnauthorized)
	}

	user, err := s.repo.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return "", common.ErrUnauthorized
	case err != nil:
		s.logger.Error(ctx, "lookup user failed", "error", err)
		return "", common.ErrInternal
	}

	return s.issue(ctx, user, appID, nonce)
}

func (s *Service) issue(ctx context.Context, user *User, appID, nonce string) (string, error) {
	token, err := s.issuer.IssueIdentityToken(auth.Subject{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, appID, nonce, s.identityTTL)
	if err != nil {
		s.logger.Error(ctx, "sign identity token failed", "error", err)
		return "", common.ErrInternal
	}
	return token, nil
}
