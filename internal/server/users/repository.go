// Package users stores identity provider accounts and implements the
// register, authenticate and refresh flows that mint identity tokens.
package users

import (
	"context"
)

// Repository persists accounts. Lookups of unknown users fail with
// common.ErrNotFound; creating a duplicate email fails with
// common.ErrAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}
