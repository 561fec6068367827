package identity

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateEmail reports a conditional insert that lost to an
	// existing user with the same email.
	ErrDuplicateEmail = errors.New("email already registered")
	ErrNotFound       = errors.New("not found")
	// ErrInvalidToken covers unknown, expired and already-redeemed tokens
	// uniformly so redemption failures do not leak which it was.
	ErrInvalidToken = errors.New("token invalid")
)

// Store is the credential store contract. Password hashing lives behind it;
// confirmation and reset tokens are single-use and expire.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	// CreateUser hashes password and writes the user, failing with
	// ErrDuplicateEmail when the email is taken.
	CreateUser(ctx context.Context, user User, password string) (*User, error)

	GenerateConfirmationToken(ctx context.Context, user *User) (string, error)
	ConfirmEmail(ctx context.Context, userID, token string) error

	GeneratePasswordResetToken(ctx context.Context, user *User) (string, error)
	ResetPassword(ctx context.Context, userID, token, newPassword string) error

	VerifyPassword(ctx context.Context, user *User, password string) bool
	TwoFactorProviders(ctx context.Context, user *User) ([]string, error)
}
