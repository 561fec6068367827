// internal/identity/postgres.go
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgStore implements the credential store backed by PostgreSQL.
type pgStore struct {
	dbPool   *pgxpool.Pool
	log      *zap.SugaredLogger
	tokenTTL time.Duration
}

// NewPostgresStore constructs a PostgreSQL-backed credential store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log, tokenTTL: 24 * time.Hour}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id uuid PRIMARY KEY,
  email text NOT NULL,
  password_hash text NOT NULL,
  email_confirmed boolean NOT NULL DEFAULT false,
  two_factor_enabled boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (LOWER(email));
CREATE TABLE IF NOT EXISTS user_tokens (
  token text PRIMARY KEY,
  user_id uuid REFERENCES users(id) ON DELETE CASCADE,
  purpose text NOT NULL,
  expires_at timestamptz NOT NULL
);
`)
	return err
}

func (p *pgStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,email,password_hash,email_confirmed,two_factor_enabled,created_at
	  FROM users WHERE LOWER(email)=LOWER($1)`, email)
	return scanUser(row)
}

func (p *pgStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,email,password_hash,email_confirmed,two_factor_enabled,created_at
	  FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailConfirmed, &u.TwoFactorEnabled, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p *pgStore) CreateUser(ctx context.Context, user User, password string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	tag, err := p.dbPool.Exec(ctx, `INSERT INTO users(id,email,password_hash,email_confirmed,two_factor_enabled,created_at)
	  VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT DO NOTHING`,
		user.ID, user.Email, user.PasswordHash, user.EmailConfirmed, user.TwoFactorEnabled, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDuplicateEmail
	}
	return &user, nil
}

func (p *pgStore) issueToken(ctx context.Context, userID, purpose string) (string, error) {
	t, err := newUserToken()
	if err != nil {
		return "", err
	}
	_, err = p.dbPool.Exec(ctx, `INSERT INTO user_tokens(token,user_id,purpose,expires_at) VALUES ($1,$2,$3,$4)`,
		t, userID, purpose, time.Now().UTC().Add(p.tokenTTL))
	if err != nil {
		return "", err
	}
	return t, nil
}

// redeemToken deletes the token conditionally; the delete is the atomic
// check-and-invalidate, so concurrent redemptions race and one wins.
func (p *pgStore) redeemToken(ctx context.Context, userID, purpose, t string) (bool, error) {
	tag, err := p.dbPool.Exec(ctx, `DELETE FROM user_tokens WHERE token=$1 AND user_id=$2 AND purpose=$3 AND expires_at > NOW()`,
		t, userID, purpose)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *pgStore) GenerateConfirmationToken(ctx context.Context, user *User) (string, error) {
	return p.issueToken(ctx, user.ID, PurposeConfirm)
}

func (p *pgStore) ConfirmEmail(ctx context.Context, userID, token string) error {
	ok, err := p.redeemToken(ctx, userID, PurposeConfirm, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	_, err = p.dbPool.Exec(ctx, `UPDATE users SET email_confirmed=true WHERE id=$1`, userID)
	return err
}

func (p *pgStore) GeneratePasswordResetToken(ctx context.Context, user *User) (string, error) {
	return p.issueToken(ctx, user.ID, PurposeReset)
}

func (p *pgStore) ResetPassword(ctx context.Context, userID, token, newPassword string) error {
	ok, err := p.redeemToken(ctx, userID, PurposeReset, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = p.dbPool.Exec(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, userID)
	return err
}

func (p *pgStore) VerifyPassword(ctx context.Context, user *User, password string) bool {
	return checkPassword(user.PasswordHash, password)
}

func (p *pgStore) TwoFactorProviders(ctx context.Context, user *User) ([]string, error) {
	if !user.TwoFactorEnabled {
		return nil, nil
	}
	return []string{"Email"}, nil
}
