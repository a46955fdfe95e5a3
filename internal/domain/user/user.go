package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is an entry of the identity directory. Accounts are managed by the
// identity provider; this service only reads them.
type User struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// Repository reads users from the directory.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// Writer stores users. Used by seeding.
type Writer interface {
	Upsert(ctx context.Context, users []User) error
}
