package users

import "time"

// User is an identity provider account. PasswordHash is an encoded argon2id
// hash produced by cryptox.HashPassword.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
}
