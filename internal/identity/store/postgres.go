package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tokengate/internal/identity/models"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/sentinel"
	txcontext "tokengate/pkg/platform/tx"
)

// PostgresStore persists delegation records. The reverse index is a partial
// unique index over active rows rather than a second table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL delegation store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the delegation table when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS identity_delegations (
    address       TEXT        PRIMARY KEY,
    delegated_key TEXT        NOT NULL,
    nonce         BIGINT      NOT NULL,
    active        BOOLEAN     NOT NULL,
    registered_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_identity_delegations_key
    ON identity_delegations(delegated_key) WHERE active;
`)
	if err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}

// Find loads the forward record.
func (s *PostgresStore) Find(ctx context.Context, addr domain.Address) (*models.DelegationRecord, error) {
	var (
		rec models.DelegationRecord
		a   string
		key string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
SELECT address, delegated_key, nonce, active, registered_at
FROM identity_delegations WHERE address = $1`, addr.String()).
		Scan(&a, &key, &rec.Nonce, &rec.Active, &rec.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delegation: %w", err)
	}
	rec.Address = domain.Address(a)
	rec.Key = domain.DelegatedKey(key)
	return &rec, nil
}

// FindByKey resolves an active delegated key to its owner.
func (s *PostgresStore) FindByKey(ctx context.Context, key domain.DelegatedKey) (domain.Address, error) {
	var addr string
	err := s.execer(ctx).QueryRowContext(ctx, `
SELECT address FROM identity_delegations WHERE delegated_key = $1 AND active`,
		string(key)).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ZeroAddress, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("resolve delegated key: %w", err)
	}
	return domain.Address(addr), nil
}

// SaveRegistration upserts the forward record.
func (s *PostgresStore) SaveRegistration(ctx context.Context, rec *models.DelegationRecord) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
INSERT INTO identity_delegations (address, delegated_key, nonce, active, registered_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (address) DO UPDATE
SET delegated_key = EXCLUDED.delegated_key,
    nonce = EXCLUDED.nonce,
    active = EXCLUDED.active,
    registered_at = EXCLUDED.registered_at`,
		rec.Address.String(), string(rec.Key), int64(rec.Nonce), rec.Active, rec.RegisteredAt)
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}

// RevokeDelegation flips the active row inactive, keeping the record.
func (s *PostgresStore) RevokeDelegation(ctx context.Context, addr domain.Address) (*models.DelegationRecord, error) {
	rec, err := s.Find(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return nil, sentinel.ErrInvalidState
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
UPDATE identity_delegations SET active = FALSE WHERE address = $1`, addr.String())
	if err != nil {
		return nil, fmt.Errorf("revoke delegation: %w", err)
	}
	rec.Active = false
	return rec, nil
}
