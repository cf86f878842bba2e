package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tokengate/internal/gate/models"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/sentinel"
	txcontext "tokengate/pkg/platform/tx"
)

// PostgresStore persists the token-gate state. Callers run transitions
// through tx.SQLRunner so multi-statement transitions commit atomically;
// the store picks the transaction out of context.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL token-gate store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the token-gate tables when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS gate_communities (
    id             BIGINT GENERATED ALWAYS AS IDENTITY (START WITH 0 MINVALUE 0) PRIMARY KEY,
    owner_address  TEXT        NOT NULL,
    name           TEXT        NOT NULL,
    description    TEXT        NOT NULL,
    active         BOOLEAN     NOT NULL DEFAULT FALSE,
    token_address  TEXT        NOT NULL DEFAULT '',
    min_balance    BIGINT      NOT NULL DEFAULT 0,
    nft_address    TEXT        NOT NULL DEFAULT '',
    nft_token_id   BIGINT      NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS gate_channels (
    id             BIGINT GENERATED ALWAYS AS IDENTITY (START WITH 0 MINVALUE 0) PRIMARY KEY,
    community_id   BIGINT      NOT NULL REFERENCES gate_communities(id),
    name           TEXT        NOT NULL,
    description    TEXT        NOT NULL,
    active         BOOLEAN     NOT NULL DEFAULT FALSE,
    attached       BOOLEAN     NOT NULL DEFAULT TRUE,
    token_address  TEXT        NOT NULL DEFAULT '',
    min_balance    BIGINT      NOT NULL DEFAULT 0,
    nft_address    TEXT        NOT NULL DEFAULT '',
    nft_token_id   BIGINT      NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gate_channels_community ON gate_channels(community_id) WHERE attached;
CREATE TABLE IF NOT EXISTS gate_memberships (
    user_address TEXT   NOT NULL,
    community_id BIGINT NOT NULL REFERENCES gate_communities(id),
    PRIMARY KEY (user_address, community_id)
);
CREATE TABLE IF NOT EXISTS gate_treasury (
    id      SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    balance BIGINT NOT NULL DEFAULT 0
);
INSERT INTO gate_treasury (id, balance) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`)
	if err != nil {
		return fmt.Errorf("ensure gate schema: %w", err)
	}
	return nil
}

// CreateCommunity inserts the record and returns the assigned id.
func (s *PostgresStore) CreateCommunity(ctx context.Context, c *models.Community) (domain.CommunityID, error) {
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, `
INSERT INTO gate_communities
    (owner_address, name, description, active, token_address, min_balance, nft_address, nft_token_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		c.Owner.String(), c.Name, c.Description, c.Active,
		requirementAddr(c.Requirements.Token.TokenAddress), int64(c.Requirements.Token.MinBalance),
		requirementAddr(c.Requirements.NFT.NFTAddress), int64(c.Requirements.NFT.TokenID),
		c.CreatedAt, c.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert community: %w", err)
	}
	return domain.CommunityID(id), nil
}

// FindCommunity loads one community record.
func (s *PostgresStore) FindCommunity(ctx context.Context, id domain.CommunityID) (*models.Community, error) {
	return scanCommunity(s.execer(ctx).QueryRowContext(ctx, `
SELECT id, owner_address, name, description, active,
       token_address, min_balance, nft_address, nft_token_id,
       created_at, updated_at
FROM gate_communities WHERE id = $1`, int64(id)))
}

// UpdateCommunity loads the row FOR UPDATE, validates, mutates, and writes
// back. Must run inside a transaction for the row lock to matter.
func (s *PostgresStore) UpdateCommunity(ctx context.Context, id domain.CommunityID, validate func(*models.Community) error, mutate func(*models.Community)) (*models.Community, error) {
	c, err := scanCommunity(s.execer(ctx).QueryRowContext(ctx, `
SELECT id, owner_address, name, description, active,
       token_address, min_balance, nft_address, nft_token_id,
       created_at, updated_at
FROM gate_communities WHERE id = $1 FOR UPDATE`, int64(id)))
	if err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)

	_, err = s.execer(ctx).ExecContext(ctx, `
UPDATE gate_communities
SET active = $2, token_address = $3, min_balance = $4, nft_address = $5, nft_token_id = $6, updated_at = $7
WHERE id = $1`,
		int64(id), c.Active,
		requirementAddr(c.Requirements.Token.TokenAddress), int64(c.Requirements.Token.MinBalance),
		requirementAddr(c.Requirements.NFT.NFTAddress), int64(c.Requirements.NFT.TokenID),
		c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update community: %w", err)
	}
	return c, nil
}

// CreateChannel inserts the record attached to its community.
func (s *PostgresStore) CreateChannel(ctx context.Context, ch *models.Channel) (domain.ChannelID, error) {
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, `
INSERT INTO gate_channels
    (community_id, name, description, active, attached, token_address, min_balance, nft_address, nft_token_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		int64(ch.CommunityID), ch.Name, ch.Description, ch.Active,
		requirementAddr(ch.Requirements.Token.TokenAddress), int64(ch.Requirements.Token.MinBalance),
		requirementAddr(ch.Requirements.NFT.NFTAddress), int64(ch.Requirements.NFT.TokenID),
		ch.CreatedAt, ch.UpdatedAt,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("insert channel: %w", err)
	}
	return domain.ChannelID(id), nil
}

// FindChannel loads one channel record.
func (s *PostgresStore) FindChannel(ctx context.Context, id domain.ChannelID) (*models.Channel, error) {
	return scanChannel(s.execer(ctx).QueryRowContext(ctx, `
SELECT id, community_id, name, description, active,
       token_address, min_balance, nft_address, nft_token_id,
       created_at, updated_at
FROM gate_channels WHERE id = $1`, int64(id)))
}

// UpdateChannel loads the row FOR UPDATE, validates, mutates, writes back.
func (s *PostgresStore) UpdateChannel(ctx context.Context, id domain.ChannelID, validate func(*models.Channel) error, mutate func(*models.Channel)) (*models.Channel, error) {
	ch, err := scanChannel(s.execer(ctx).QueryRowContext(ctx, `
SELECT id, community_id, name, description, active,
       token_address, min_balance, nft_address, nft_token_id,
       created_at, updated_at
FROM gate_channels WHERE id = $1 FOR UPDATE`, int64(id)))
	if err != nil {
		return nil, err
	}
	if err := validate(ch); err != nil {
		return nil, err
	}
	mutate(ch)

	_, err = s.execer(ctx).ExecContext(ctx, `
UPDATE gate_channels SET active = $2, updated_at = $3 WHERE id = $1`,
		int64(id), ch.Active, ch.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update channel: %w", err)
	}
	return ch, nil
}

// ListCommunityChannels returns the channels still attached to the community.
func (s *PostgresStore) ListCommunityChannels(ctx context.Context, id domain.CommunityID) ([]*models.Channel, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
SELECT id, community_id, name, description, active,
       token_address, min_balance, nft_address, nft_token_id,
       created_at, updated_at
FROM gate_channels WHERE community_id = $1 AND attached ORDER BY id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// DeactivateCommunityChannels flips attached active channels inactive and
// detaches every channel of the community.
func (s *PostgresStore) DeactivateCommunityChannels(ctx context.Context, id domain.CommunityID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
UPDATE gate_channels SET active = FALSE WHERE community_id = $1 AND attached AND active`, int64(id))
	if err != nil {
		return 0, fmt.Errorf("deactivate channels: %w", err)
	}
	deactivated, _ := res.RowsAffected()

	_, err = s.execer(ctx).ExecContext(ctx, `
UPDATE gate_channels SET attached = FALSE WHERE community_id = $1 AND attached`, int64(id))
	if err != nil {
		return 0, fmt.Errorf("detach channels: %w", err)
	}
	return int(deactivated), nil
}

// DetachChannel removes the channel from its community's attached set.
func (s *PostgresStore) DetachChannel(ctx context.Context, communityID domain.CommunityID, channelID domain.ChannelID) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
UPDATE gate_channels SET attached = FALSE WHERE id = $1 AND community_id = $2`,
		int64(channelID), int64(communityID))
	if err != nil {
		return fmt.Errorf("detach channel: %w", err)
	}
	return nil
}

// AddMembership inserts the membership row; conflict when already a member.
func (s *PostgresStore) AddMembership(ctx context.Context, user domain.Address, id domain.CommunityID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
INSERT INTO gate_memberships (user_address, community_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, user.String(), int64(id))
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// RemoveMembership deletes the membership row if present.
func (s *PostgresStore) RemoveMembership(ctx context.Context, user domain.Address, id domain.CommunityID) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
DELETE FROM gate_memberships WHERE user_address = $1 AND community_id = $2`,
		user.String(), int64(id))
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveAllMemberships strips every member of the community.
func (s *PostgresStore) RemoveAllMemberships(ctx context.Context, id domain.CommunityID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
DELETE FROM gate_memberships WHERE community_id = $1`, int64(id))
	if err != nil {
		return 0, fmt.Errorf("delete memberships: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListMemberships returns the community ids the user belongs to.
func (s *PostgresStore) ListMemberships(ctx context.Context, user domain.Address) ([]domain.CommunityID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
SELECT community_id FROM gate_memberships WHERE user_address = $1 ORDER BY community_id`,
		user.String())
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.CommunityID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.CommunityID(id))
	}
	return out, rows.Err()
}

// AddFees credits the custodial balance.
func (s *PostgresStore) AddFees(ctx context.Context, amount domain.FeeAmount) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
UPDATE gate_treasury SET balance = balance + $1 WHERE id = 1`, int64(amount))
	if err != nil {
		return fmt.Errorf("add fees: %w", err)
	}
	return nil
}

// WithdrawAllFees zeroes the balance and returns what was held.
func (s *PostgresStore) WithdrawAllFees(ctx context.Context) (domain.FeeAmount, error) {
	var balance int64
	err := s.execer(ctx).QueryRowContext(ctx, `
SELECT balance FROM gate_treasury WHERE id = 1 FOR UPDATE`).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read fee balance: %w", err)
	}
	if _, err := s.execer(ctx).ExecContext(ctx, `
UPDATE gate_treasury SET balance = 0 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("withdraw fees: %w", err)
	}
	return domain.FeeAmount(balance), nil
}

// FeeBalance reports the custodial balance.
func (s *PostgresStore) FeeBalance(ctx context.Context) (domain.FeeAmount, error) {
	var balance int64
	err := s.execer(ctx).QueryRowContext(ctx, `
SELECT balance FROM gate_treasury WHERE id = 1`).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read fee balance: %w", err)
	}
	return domain.FeeAmount(balance), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommunity(row rowScanner) (*models.Community, error) {
	var (
		c          models.Community
		id         int64
		owner      string
		tokenAddr  string
		minBalance int64
		nftAddr    string
		nftTokenID int64
	)
	err := row.Scan(&id, &owner, &c.Name, &c.Description, &c.Active,
		&tokenAddr, &minBalance, &nftAddr, &nftTokenID,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan community: %w", err)
	}
	c.ID = domain.CommunityID(id)
	c.Owner = domain.Address(owner)
	c.Requirements = scanRequirements(tokenAddr, minBalance, nftAddr, nftTokenID)
	return &c, nil
}

func scanChannel(row rowScanner) (*models.Channel, error) {
	var (
		ch          models.Channel
		id          int64
		communityID int64
		tokenAddr   string
		minBalance  int64
		nftAddr     string
		nftTokenID  int64
	)
	err := row.Scan(&id, &communityID, &ch.Name, &ch.Description, &ch.Active,
		&tokenAddr, &minBalance, &nftAddr, &nftTokenID,
		&ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.ID = domain.ChannelID(id)
	ch.CommunityID = domain.CommunityID(communityID)
	ch.Requirements = scanRequirements(tokenAddr, minBalance, nftAddr, nftTokenID)
	return &ch, nil
}

func scanRequirements(tokenAddr string, minBalance int64, nftAddr string, nftTokenID int64) models.Requirements {
	var reqs models.Requirements
	if tokenAddr != "" {
		reqs.Token = models.TokenRequirement{
			TokenAddress: domain.Address(tokenAddr),
			MinBalance:   uint64(minBalance),
		}
	}
	if nftAddr != "" {
		reqs.NFT = models.NFTRequirement{
			NFTAddress: domain.Address(nftAddr),
			TokenID:    uint64(nftTokenID),
		}
	}
	return reqs
}

func requirementAddr(addr domain.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}
