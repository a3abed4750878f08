// Package layer describes the messaging platform client consumed by the
// session controller and ships a REST implementation of it.
//
// # Overview
//
// The Client interface is the whole surface the controller relies on:
// nonce issuance, identity token exchange, session resume, deauthentication,
// remote notification handling and lifecycle events. RESTClient implements
// it against the platform's HTTP API:
//
//	POST   /nonces                        -> {"nonce": "..."}
//	POST   /sessions                      {"identity_token", "app_id"} -> {"session_token", "user_id", "expires_at"}
//	DELETE /sessions/current
//	POST   /push_tokens                   {"device_token"}
//	GET    /conversations/{c}/messages/{m}
//	GET    /ping
//
// # Error Handling
//
// Failures wrap the sentinels of package common: ErrNetwork for transport
// problems, ErrSDKSession when a token exchange or resume is refused,
// ErrSessionExpired for expired session tokens and ErrInvalidResponse for
// unparseable replies.
//
// Concurrency
//
// RESTClient is safe for concurrent use. Events are delivered synchronously
// to the observer from the goroutine that caused them; observers hand them
// off instead of blocking.
package layer
