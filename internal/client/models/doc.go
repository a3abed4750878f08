// Package models defines the client-side value types of the session
// lifecycle: the credentials typed by the user, the authenticated user
// record, the persisted Session and the controller State.
package models
