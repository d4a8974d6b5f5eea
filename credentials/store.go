package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/permission"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrTaken is returned by Create when the login or email is already in use.
	ErrTaken = errors.New("login or email already in use")
)

// User is a stored account.
type User struct {
	ID           int64           `json:"id"`
	Login        string          `json:"login"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Role         permission.Role `json:"role"`
	RegisteredAt time.Time       `json:"registeredAt"`
}

// NewUser is the input to Create. PasswordHash is already hashed.
type NewUser struct {
	Login        string
	Email        string
	PasswordHash string
	Role         permission.Role
}

// Store is the credential store the session service reads from and registers into.
type Store interface {
	// FindByCredential returns the user whose login or email equals value.
	FindByCredential(ctx context.Context, value string) (User, error)
	// FindByLoginOrEmail returns any user whose login equals login or whose email
	// equals email.
	FindByLoginOrEmail(ctx context.Context, login, email string) (User, error)
	// FindByID returns the user with the given id.
	FindByID(ctx context.Context, id int64) (User, error)
	// Create persists u and returns the stored user.
	Create(ctx context.Context, u NewUser) (User, error)
}
