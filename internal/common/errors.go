// Package common defines shared constants and sentinel errors used across
// the client and the development back end. Callers should use errors.Is to
// match these values; most of them are wrapped together with their cause as
// fmt.Errorf("%w: %w", kind, cause).
package common

import "errors"

var (
	// Startup errors.
	ErrConfiguration = errors.New("configuration error")

	// Identity provider errors.
	ErrNetwork                = errors.New("network error")
	ErrInvalidResponse        = errors.New("invalid response")
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrNoIdentity             = errors.New("no established identity")

	// Messaging client errors.
	ErrSDKSession                       = errors.New("messaging session error")
	ErrSessionExpired                   = errors.New("session expired")
	ErrFailedHandlingRemoteNotification = errors.New("failed handling remote notification")

	// Session store errors.
	ErrPersistence       = errors.New("persistence error")
	ErrUnsupportedSchema = errors.New("unsupported session schema")

	// Controller errors.
	ErrAppIDAlreadySet    = errors.New("app id already set")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Repository and service level errors used by the back end.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrInternal      = errors.New("internal error")
	ErrInvalidInput  = errors.New("invalid input")
)
