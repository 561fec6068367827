// internal/apps/postgres.go
package apps

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

// NewPostgresStore constructs a PostgreSQL-backed application store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS applications (
  id uuid PRIMARY KEY,
  account_id uuid NOT NULL,
  display_name text NOT NULL,
  auto_provision boolean NOT NULL DEFAULT false,
  enable_provision boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS oidc_providers (
  id uuid PRIMARY KEY,
  application_id uuid REFERENCES applications(id) ON DELETE CASCADE,
  name text NOT NULL,
  authority_url text NOT NULL,
  client_id text UNIQUE NOT NULL,
  client_secret text NOT NULL,
  response_type text NOT NULL,
  scopes text[] NOT NULL DEFAULT '{}',
  is_default boolean NOT NULL DEFAULT false,
  is_visible boolean NOT NULL DEFAULT true
);
CREATE UNIQUE INDEX IF NOT EXISTS oidc_providers_default_idx
  ON oidc_providers(application_id) WHERE is_default;
`)
	return err
}

func (p *pgStore) InsertApplication(ctx context.Context, app Application) error {
	_, err := p.dbPool.Exec(ctx, `INSERT INTO applications(id,account_id,display_name,auto_provision,enable_provision,created_at)
	  VALUES ($1,$2,$3,$4,$5,$6)`,
		app.ID, app.AccountID, app.DisplayName, app.AutoProvision, app.EnableProvision, app.CreatedAt)
	return err
}

func (p *pgStore) FindApplicationByID(ctx context.Context, id string) (*Application, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,account_id,display_name,auto_provision,enable_provision,created_at FROM applications WHERE id=$1`, id)
	var a Application
	if err := row.Scan(&a.ID, &a.AccountID, &a.DisplayName, &a.AutoProvision, &a.EnableProvision, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (p *pgStore) ApplicationsByAccount(ctx context.Context, accountID string) ([]Application, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT id,account_id,display_name,auto_provision,enable_provision,created_at FROM applications WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.AccountID, &a.DisplayName, &a.AutoProvision, &a.EnableProvision, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *pgStore) SaveProvider(ctx context.Context, cfg OidcProviderConfig) error {
	tx, err := p.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if cfg.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE oidc_providers SET is_default=false WHERE application_id=$1 AND id<>$2 AND is_default`,
			cfg.ApplicationID, cfg.ID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO oidc_providers(id,application_id,name,authority_url,client_id,client_secret,response_type,scopes,is_default,is_visible)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	  ON CONFLICT (id) DO UPDATE SET
	    name=EXCLUDED.name, authority_url=EXCLUDED.authority_url, client_id=EXCLUDED.client_id,
	    client_secret=EXCLUDED.client_secret, response_type=EXCLUDED.response_type,
	    scopes=EXCLUDED.scopes, is_default=EXCLUDED.is_default, is_visible=EXCLUDED.is_visible`,
		cfg.ID, cfg.ApplicationID, cfg.Name, cfg.AuthorityUrl, cfg.ClientID, cfg.ClientSecret,
		cfg.ResponseType, cfg.Scopes, cfg.IsDefault, cfg.IsVisible); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *pgStore) FindProviderByID(ctx context.Context, id string) (*OidcProviderConfig, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,application_id,name,authority_url,client_id,client_secret,response_type,scopes,is_default,is_visible
	  FROM oidc_providers WHERE id=$1`, id)
	return scanProvider(row)
}

func (p *pgStore) FindProviderByClientID(ctx context.Context, clientID string) (*OidcProviderConfig, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,application_id,name,authority_url,client_id,client_secret,response_type,scopes,is_default,is_visible
	  FROM oidc_providers WHERE client_id=$1`, clientID)
	return scanProvider(row)
}

func scanProvider(row pgx.Row) (*OidcProviderConfig, error) {
	var c OidcProviderConfig
	if err := row.Scan(&c.ID, &c.ApplicationID, &c.Name, &c.AuthorityUrl, &c.ClientID, &c.ClientSecret,
		&c.ResponseType, &c.Scopes, &c.IsDefault, &c.IsVisible); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (p *pgStore) ProvidersByApplication(ctx context.Context, applicationID string) ([]OidcProviderConfig, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT id,application_id,name,authority_url,client_id,client_secret,response_type,scopes,is_default,is_visible
	  FROM oidc_providers WHERE application_id=$1`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OidcProviderConfig
	for rows.Next() {
		var c OidcProviderConfig
		if err := rows.Scan(&c.ID, &c.ApplicationID, &c.Name, &c.AuthorityUrl, &c.ClientID, &c.ClientSecret,
			&c.ResponseType, &c.Scopes, &c.IsDefault, &c.IsVisible); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
