package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// Keys used when credentials are sent to the identity provider.
const (
	EmailKey     = "email"
	PasswordKey  = "password"
	FirstNameKey = "first_name"
	LastNameKey  = "last_name"
)

// Credentials is what the login or registration screen collects. It is a
// value type: consumers receive copies and never mutate them. Credentials
// are consumed once by the identity provider and never persisted.
type Credentials struct {
	// Email identifies the account at the identity provider.
	Email string
	// Password is sent once and dropped after the exchange.
	Password string
	// PasswordConfirmation is only set by the registration screen.
	PasswordConfirmation string
	// FirstName and LastName are optional display-name parts.
	FirstName string
	LastName  string
}

// NewCredentials builds login credentials.
func NewCredentials(email, password string) Credentials {
	return Credentials{Email: strings.TrimSpace(email), Password: password}
}

// NewRegistrationCredentials builds credentials for account registration.
func NewRegistrationCredentials(firstName, lastName, email, password, confirmation string) Credentials {
	return Credentials{
		Email:                strings.TrimSpace(email),
		Password:             password,
		PasswordConfirmation: confirmation,
		FirstName:            strings.TrimSpace(firstName),
		LastName:             strings.TrimSpace(lastName),
	}
}

// Validate reports whether the credentials are structurally complete.
// It never touches the network; callers run it before any exchange.
func (c Credentials) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("%w: email is required", common.ErrInvalidCredentials)
	}
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: email %q is malformed", common.ErrInvalidCredentials, c.Email)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password is required", common.ErrInvalidCredentials)
	}
	if c.PasswordConfirmation != "" && c.PasswordConfirmation != c.Password {
		return fmt.Errorf("%w: password confirmation does not match", common.ErrInvalidCredentials)
	}
	return nil
}

// AsMap returns the key/value form sent to the identity provider. Empty
// optional fields are omitted; the confirmation never leaves the client.
func (c Credentials) AsMap() map[string]any {
	m := map[string]any{
		EmailKey:    c.Email,
		PasswordKey: c.Password,
	}
	if c.FirstName != "" {
		m[FirstNameKey] = c.FirstName
	}
	if c.LastName != "" {
		m[LastNameKey] = c.LastName
	}
	return m
}

// User derives the user record stored with the session. The password is
// not copied.
func (c Credentials) User() User {
	return User{Email: c.Email, FirstName: c.FirstName, LastName: c.LastName}
}
