package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tokengate/internal/message/models"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/sentinel"
	txcontext "tokengate/pkg/platform/tx"
)

// PostgresStore persists message anchors.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL message store.
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

// EnsureSchema creates the message table when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS message_anchors (
    id             TEXT        PRIMARY KEY,
    author_address TEXT        NOT NULL,
    community_id   BIGINT      NOT NULL,
    channel_id     BIGINT      NOT NULL,
    content_hash   TEXT        NOT NULL,
    posted_at      TIMESTAMPTZ NOT NULL,
    parent_id      TEXT        NOT NULL DEFAULT ''
);
`)
	if err != nil {
		return fmt.Errorf("ensure message schema: %w", err)
	}
	return nil
}

// Create inserts the record; conflict when the id is occupied.
func (s *PostgresStore) Create(ctx context.Context, msg *models.Message) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
INSERT INTO message_anchors (id, author_address, community_id, channel_id, content_hash, posted_at, parent_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(msg.ID), msg.Author.String(), int64(msg.CommunityID), int64(msg.ChannelID),
		msg.ContentHash, msg.Timestamp, string(msg.ParentID))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Find loads one message record.
func (s *PostgresStore) Find(ctx context.Context, id domain.MessageID) (*models.Message, error) {
	var (
		msg      models.Message
		msgID    string
		author   string
		cid      int64
		chid     int64
		parentID string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
SELECT id, author_address, community_id, channel_id, content_hash, posted_at, parent_id
FROM message_anchors WHERE id = $1`, string(id)).
		Scan(&msgID, &author, &cid, &chid, &msg.ContentHash, &msg.Timestamp, &parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.ID = domain.MessageID(msgID)
	msg.Author = domain.Address(author)
	msg.CommunityID = domain.CommunityID(cid)
	msg.ChannelID = domain.ChannelID(chid)
	msg.ParentID = domain.MessageID(parentID)
	return &msg, nil
}
