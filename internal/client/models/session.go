package models

import "time"

// SessionSchemaVersion is written into every persisted Session. Readers
// refuse records with any other version.
const SessionSchemaVersion = 1

// Session pairs the identity token obtained from the identity provider with
// the authenticated user. It is the only unit of persisted authentication
// state.
type Session struct {
	// Version is the persisted schema version, see SessionSchemaVersion.
	Version int `json:"version"`

	// AuthenticationToken is the identity token issued by the identity
	// provider and exchanged for the messaging session.
	AuthenticationToken string `json:"authentication_token"`

	// SessionToken is the messaging platform session token used to resume
	// the session on the next launch.
	SessionToken string `json:"session_token,omitempty"`

	// User is the authenticated user record.
	User User `json:"user"`

	// CreatedAt is when the session was established, in UTC.
	CreatedAt time.Time `json:"created_at"`
}

// NewSession builds a Session of the current schema version.
func NewSession(authenticationToken, sessionToken string, user User, now time.Time) *Session {
	return &Session{
		Version:             SessionSchemaVersion,
		AuthenticationToken: authenticationToken,
		SessionToken:        sessionToken,
		User:                user,
		CreatedAt:           now.UTC(),
	}
}

// Valid reports whether both the token and the user are present.
func (s *Session) Valid() bool {
	return s != nil && s.AuthenticationToken != "" && s.User.Validate() == nil
}

// Clone returns a deep copy, or nil for a nil Session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Equal compares all fields; CreatedAt is compared with time.Equal.
func (s *Session) Equal(o *Session) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Version == o.Version &&
		s.AuthenticationToken == o.AuthenticationToken &&
		s.SessionToken == o.SessionToken &&
		s.User == o.User &&
		s.CreatedAt.Equal(o.CreatedAt)
}
