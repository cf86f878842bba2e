// Package service implements the message registry: content-addressed
// anchoring with per-message signature verification and duplicate rejection.
package service

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"

	messagemetrics "tokengate/internal/message/metrics"
	"tokengate/internal/message/models"
	"tokengate/internal/signature"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
	"tokengate/pkg/platform/audit"
	"tokengate/pkg/platform/sentinel"
	"tokengate/pkg/platform/tx"
	"tokengate/pkg/requestcontext"
)

// Store is the persistence surface for message anchors.
type Store interface {
	// Create inserts the record; sentinel.ErrConflict when the id is
	// already occupied.
	Create(ctx context.Context, msg *models.Message) error
	// Find returns the record; sentinel.ErrNotFound when absent.
	Find(ctx context.Context, id domain.MessageID) (*models.Message, error)
}

// AuditPublisher delivers committed transition events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the MessageRegistry state machine.
type Service struct {
	store     Store
	verifier  signature.Verifier
	tx        tx.Runner
	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *messagemetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher attaches an audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *messagemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the message registry service.
func New(store Store, verifier signature.Verifier, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:     store,
		verifier:  verifier,
		tx:        runner,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PostMessageInput carries one message anchor submission.
type PostMessageInput struct {
	ID          domain.MessageID
	CommunityID domain.CommunityID
	ChannelID   domain.ChannelID
	ContentHash string
	Signature   []byte
}

// errRejected is the single undifferentiated rejection for duplicate ids and
// signature mismatches alike, so callers cannot probe which check failed.
func errRejected() error {
	return dErrors.New(dErrors.CodeBadRequest, "message rejected")
}

// PostMessage anchors a message under a caller-supplied unique id. The
// signature must cover the canonical digest of (id, communityId, channelId,
// contentHash) and recover to the caller.
func (s *Service) PostMessage(ctx context.Context, in PostMessageInput) (*models.Message, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	msg, err := models.NewMessage(in.ID, caller, in.CommunityID, in.ChannelID, in.ContentHash, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	signer, err := s.verifier.Recover(MessageDigest(in.ID, in.CommunityID, in.ChannelID, in.ContentHash), in.Signature)
	if err != nil || signer != caller {
		return nil, errRejected()
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, msg); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return errRejected()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store message")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventMessagePosted, caller, map[string]any{
		"message_id":   string(msg.ID),
		"community_id": msg.CommunityID,
		"channel_id":   msg.ChannelID,
		"content_hash": msg.ContentHash,
	})
	if s.metrics != nil {
		s.metrics.IncrementPosted()
	}
	return msg, nil
}

// GetMessage fetches one anchored message.
func (s *Service) GetMessage(ctx context.Context, id domain.MessageID) (*models.Message, error) {
	msg, err := s.store.Find(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown message id")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load message")
	}
	return msg, nil
}

// MessageDigest is the canonical digest a posting signature must cover: the
// message id, both registry ids big-endian encoded, and the content hash.
func MessageDigest(id domain.MessageID, communityID domain.CommunityID, channelID domain.ChannelID, contentHash string) []byte {
	var cid, chid [8]byte
	binary.BigEndian.PutUint64(cid[:], uint64(communityID))
	binary.BigEndian.PutUint64(chid[:], uint64(channelID))
	return signature.Keccak256([]byte(id), cid[:], chid[:], []byte(contentHash))
}

func (s *Service) emit(ctx context.Context, kind audit.Kind, actor domain.Address, attrs map[string]any) {
	event := audit.Event{
		Kind:      kind,
		Timestamp: requestcontext.Now(ctx),
		Actor:     actor,
		RequestID: requestcontext.RequestID(ctx),
		Attrs:     attrs,
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"event", string(kind),
			"error", err,
		)
	}
}
