package accounts

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateName reports a conditional insert that lost to an
	// existing account with the same name.
	ErrDuplicateName = errors.New("account name already taken")
	ErrNotFound      = errors.New("not found")
)

// Store persists accounts, memberships and invitations. Implementations
// must make inserts conditional on the uniqueness invariants so concurrent
// writers cannot both succeed.
type Store interface {
	// InsertAccount writes the account and its owner membership together,
	// failing with ErrDuplicateName if the name is taken.
	InsertAccount(ctx context.Context, account Account, owner AccountUser) error
	FindAccountByName(ctx context.Context, name string) (*Account, error)
	FindAccountByID(ctx context.Context, id string) (*Account, error)

	Membership(ctx context.Context, accountID, userID string) (*AccountUser, error)
	// InsertMembership writes m only when no membership exists for that
	// user yet; it never changes an existing role. Reports whether the
	// row was written.
	InsertMembership(ctx context.Context, m AccountUser) (bool, error)
	Memberships(ctx context.Context, accountID string) ([]AccountUser, error)

	InsertInvitation(ctx context.Context, inv Invitation) error
	FindInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	// ConsumeInvitation deletes the invitation and reports whether this
	// caller won the delete. Concurrent acceptances race on it.
	ConsumeInvitation(ctx context.Context, id string) (bool, error)
}
