package common

const (
	// AppIDHeaderName carries the application identifier on every request to
	// the identity provider and the messaging platform.
	AppIDHeaderName = "X-Layer-App-ID"

	// AuthorizationHeaderName carries bearer tokens.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token in the Authorization header.
	BearerPrefix = "Bearer "
)
