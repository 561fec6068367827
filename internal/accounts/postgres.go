// internal/accounts/postgres.go
package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed account store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS accounts (
  id uuid PRIMARY KEY,
  name text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_name_idx ON accounts (LOWER(name));
CREATE TABLE IF NOT EXISTS account_users (
  account_id uuid REFERENCES accounts(id) ON DELETE CASCADE,
  user_id uuid NOT NULL,
  role text NOT NULL,
  PRIMARY KEY (account_id, user_id)
);
CREATE TABLE IF NOT EXISTS invitations (
  id uuid PRIMARY KEY,
  account_id uuid REFERENCES accounts(id) ON DELETE CASCADE,
  email text NOT NULL,
  role text NOT NULL,
  token text UNIQUE NOT NULL,
  expires_at timestamptz NOT NULL
);
`)
	return err
}

func (p *pgStore) InsertAccount(ctx context.Context, account Account, owner AccountUser) error {
	tx, err := p.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `INSERT INTO accounts(id,name,created_at) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
		account.ID, account.Name, account.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateName
	}
	if _, err := tx.Exec(ctx, `INSERT INTO account_users(account_id,user_id,role) VALUES ($1,$2,$3)`,
		owner.AccountID, owner.UserID, owner.Role); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *pgStore) FindAccountByName(ctx context.Context, name string) (*Account, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,name,created_at FROM accounts WHERE LOWER(name)=LOWER($1)`, name)
	return scanAccount(row)
}

func (p *pgStore) FindAccountByID(ctx context.Context, id string) (*Account, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,name,created_at FROM accounts WHERE id=$1`, id)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (p *pgStore) Membership(ctx context.Context, accountID, userID string) (*AccountUser, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT account_id,user_id,role FROM account_users WHERE account_id=$1 AND user_id=$2`,
		accountID, userID)
	var m AccountUser
	if err := row.Scan(&m.AccountID, &m.UserID, &m.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (p *pgStore) InsertMembership(ctx context.Context, m AccountUser) (bool, error) {
	tag, err := p.dbPool.Exec(ctx, `INSERT INTO account_users(account_id,user_id,role) VALUES ($1,$2,$3)
	  ON CONFLICT (account_id,user_id) DO NOTHING`,
		m.AccountID, m.UserID, m.Role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *pgStore) Memberships(ctx context.Context, accountID string) ([]AccountUser, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT account_id,user_id,role FROM account_users WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountUser
	for rows.Next() {
		var m AccountUser
		if err := rows.Scan(&m.AccountID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *pgStore) InsertInvitation(ctx context.Context, inv Invitation) error {
	_, err := p.dbPool.Exec(ctx, `INSERT INTO invitations(id,account_id,email,role,token,expires_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		inv.ID, inv.AccountID, inv.Email, inv.Role, inv.Token, inv.ExpiresAt)
	return err
}

func (p *pgStore) FindInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,account_id,email,role,token,expires_at FROM invitations WHERE token=$1`, token)
	var inv Invitation
	if err := row.Scan(&inv.ID, &inv.AccountID, &inv.Email, &inv.Role, &inv.Token, &inv.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (p *pgStore) ConsumeInvitation(ctx context.Context, id string) (bool, error) {
	tag, err := p.dbPool.Exec(ctx, `DELETE FROM invitations WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
