package oauth

import (
	"context"
	"errors"
	"time"
)

// ErrGrantNotFound covers unknown, expired and already-redeemed grants
// uniformly; redemption failures must not reveal which one applied.
var ErrGrantNotFound = errors.New("grant not found")

// Grant is a single-use authorization code bound to the user, client and
// request parameters of the originating Authorize call.
type Grant struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Scope       string    `json:"scope"`
	Nonce       string    `json:"nonce,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// RefreshGrant is the server-side record behind a refresh token. Tokens
// rotate on every redemption; the old record is invalidated atomically.
type RefreshGrant struct {
	Token    string    `json:"token"`
	ClientID string    `json:"client_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Scope    string    `json:"scope"`
	IssuedAt time.Time `json:"issued_at"`
}

// PendingRequest is a stored Authorize request awaiting interactive login.
type PendingRequest struct {
	ID        string           `json:"id"`
	Request   AuthorizeRequest `json:"request"`
	CreatedAt time.Time        `json:"created_at"`
}

// GrantStore holds the protocol's transient state. Redemptions are atomic
// check-and-invalidate operations: under concurrent redemption of the same
// code or refresh token at most one caller succeeds.
type GrantStore interface {
	SaveCode(ctx context.Context, g Grant, ttl time.Duration) error
	RedeemCode(ctx context.Context, code string) (*Grant, error)

	SaveRefresh(ctx context.Context, g RefreshGrant, ttl time.Duration) error
	RedeemRefresh(ctx context.Context, token string) (*RefreshGrant, error)

	SavePending(ctx context.Context, p PendingRequest, ttl time.Duration) error
	TakePending(ctx context.Context, id string) (*PendingRequest, error)

	// Session revocation list consulted by the session verifier.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
