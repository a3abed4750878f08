package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// AuthenticatingUser is the capability set every user representation of the
// application must offer: an identity, a serialized form and validation.
type AuthenticatingUser interface {
	ID() string
	Validate() error
	Dictionary() map[string]any
}

// User is the authenticated user record kept inside a Session.
type User struct {
	UserID    string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

var _ AuthenticatingUser = User{}

// ID returns the messaging platform user identifier, empty until a session
// has been established.
func (u User) ID() string { return u.UserID }

// DisplayName joins first and last name, falling back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Validate checks the fields required to keep the record in a Session.
func (u User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("%w: user email is required", common.ErrInvalidCredentials)
	}
	return nil
}

// Dictionary serializes the user into the same key set UserFromDictionary reads.
func (u User) Dictionary() map[string]any {
	m := map[string]any{EmailKey: u.Email}
	if u.UserID != "" {
		m["id"] = u.UserID
	}
	if u.FirstName != "" {
		m[FirstNameKey] = u.FirstName
	}
	if u.LastName != "" {
		m[LastNameKey] = u.LastName
	}
	return m
}

// UserFromDictionary builds a User from a server-returned map, usually a
// decoded JSON payload. Non-string values are rejected.
func UserFromDictionary(m map[string]any) (*User, error) {
	get := func(key string) (string, error) {
		v, ok := m[key]
		if !ok || v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s must be a string", common.ErrInvalidResponse, key)
		}
		return s, nil
	}

	u := &User{}
	var err error
	if u.UserID, err = get("id"); err != nil {
		return nil, err
	}
	if u.Email, err = get(EmailKey); err != nil {
		return nil, err
	}
	if u.FirstName, err = get(FirstNameKey); err != nil {
		return nil, err
	}
	if u.LastName, err = get(LastNameKey); err != nil {
		return nil, err
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}
