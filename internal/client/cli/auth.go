package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/identity"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/layer"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for the account details, creates the account at the
// identity provider and logs in with it.
func (a *App) Register(ctx context.Context) error {
	var fields [3]string
	for i, prompt := range []string{"Enter first name", "Enter last name", "Enter email"} {
		v, err := getSimpleText(a.reader, prompt, a.out)
		if err != nil {
			return err
		}
		fields[i] = v
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirmation, err := getPassword(a.out, "Confirm password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirmation)

	creds := models.NewRegistrationCredentials(fields[0], fields[1], fields[2], string(password), string(confirmation))

	done := make(chan error, 1)
	a.ctrl.Register(ctx, creds, func(_ *layer.Session, err error) { done <- err })
	if err := <-done; err != nil {
		printlnFn("Registration failed:", describe(err))
		return err
	}

	printlnFn("Registered and logged in as", creds.Email)
	return nil
}

// Login prompts for credentials and authenticates.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	creds := models.NewCredentials(email, string(password))

	done := make(chan error, 1)
	a.ctrl.Authenticate(ctx, creds, func(_ *layer.Session, err error) { done <- err })
	if err := <-done; err != nil {
		printlnFn("Login failed:", describe(err))
		return err
	}

	printlnFn("Logged in as", creds.Email)
	return nil
}

// Logout ends the session.
func (a *App) Logout(ctx context.Context) error {
	done := make(chan error, 1)
	a.ctrl.Deauthenticate(ctx, func(err error) { done <- err })
	if err := <-done; err != nil {
		printlnFn("Logout failed:", describe(err))
		return err
	}

	printlnFn("Logged out")
	return nil
}

// describe turns controller errors into short user-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		return err.Error()
	case errors.Is(err, common.ErrAuthenticationRejected):
		return "the identity provider rejected the credentials"
	case identity.IsRetryable(err):
		return "service unreachable, try again later"
	case errors.Is(err, common.ErrSDKSession):
		return "the messaging service refused the session"
	case errors.Is(err, common.ErrInvalidState):
		return "not available in the current state"
	default:
		return err.Error()
	}
}
