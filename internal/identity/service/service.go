// Package service implements the user registry: signature-verified binding
// of a primary address to a derived delegated signing key, with nonce-based
// replay protection.
package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"

	identitymetrics "tokengate/internal/identity/metrics"
	"tokengate/internal/identity/models"
	"tokengate/internal/signature"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
	"tokengate/pkg/platform/audit"
	"tokengate/pkg/platform/sentinel"
	"tokengate/pkg/platform/tx"
	"tokengate/pkg/requestcontext"
)

// Store is the persistence surface for delegation records. Stores return
// sentinel errors; the service translates them into coded errors.
type Store interface {
	// Find returns the forward record; sentinel.ErrNotFound when the address
	// never registered.
	Find(ctx context.Context, addr domain.Address) (*models.DelegationRecord, error)
	// FindByKey resolves the reverse index; sentinel.ErrNotFound when the key
	// is not currently published.
	FindByKey(ctx context.Context, key domain.DelegatedKey) (domain.Address, error)
	// SaveRegistration upserts the forward record and publishes the key in
	// the reverse index.
	SaveRegistration(ctx context.Context, rec *models.DelegationRecord) error
	// RevokeDelegation flips the record inactive and clears its reverse
	// index entry. sentinel.ErrNotFound when never registered,
	// sentinel.ErrInvalidState when already revoked.
	RevokeDelegation(ctx context.Context, addr domain.Address) (*models.DelegationRecord, error)
}

// AuditPublisher delivers committed transition events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the UserRegistry state machine.
type Service struct {
	store        Store
	verifier     signature.Verifier
	tx           tx.Runner
	registryName string
	logger       *slog.Logger
	publisher    AuditPublisher
	metrics      *identitymetrics.Metrics
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
func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the user registry service. registryName is the domain
// separator mixed into key derivation so distinct deployments derive
// distinct keys for the same address and time.
func New(store Store, verifier signature.Verifier, runner tx.Runner, registryName string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		verifier:     verifier,
		tx:           runner,
		registryName: registryName,
		logger:       slog.Default(),
		publisher:    audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PreviewDelegatedKey derives the key that a registration submitted at the
// current instant would bind. The derivation is timestamp-dependent: callers
// must re-derive and re-sign if time advances between preview and submission.
func (s *Service) PreviewDelegatedKey(ctx context.Context, addr domain.Address) (domain.DelegatedKey, error) {
	if addr.IsZero() {
		return "", dErrors.New(dErrors.CodeValidation, "address cannot be the zero address")
	}
	nonce, err := s.currentNonce(ctx, addr)
	if err != nil {
		return "", err
	}
	return s.deriveKey(ctx, addr, nonce)
}

// RegisterUser binds a freshly derived delegated key to the caller. The
// caller proves control of the primary address by signing the canonical
// message over (derivedKey, caller, currentNonce). The key is never
// attacker-chosen: any key supplied by the caller is ignored.
func (s *Service) RegisterUser(ctx context.Context, sig []byte) (*models.DelegationRecord, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing caller address")
	}

	var record *models.DelegationRecord
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.store.Find(txCtx, caller)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
		}

		var nonce uint64
		if existing != nil {
			if existing.IsActive() {
				return dErrors.New(dErrors.CodeConflict, "already registered")
			}
			nonce = existing.Nonce
		}

		key, err := s.deriveKey(txCtx, caller, nonce)
		if err != nil {
			return err
		}

		signer, err := s.verifier.Recover(RegistrationDigest(key, caller, nonce), sig)
		if err != nil || signer != caller {
			// Malformed signatures and wrong signers collapse into one
			// error so callers cannot probe which check failed.
			return dErrors.New(dErrors.CodeUnauthorized, "invalid signature")
		}

		record = &models.DelegationRecord{
			Address:      caller,
			Key:          key,
			Nonce:        nonce + 1,
			Active:       true,
			RegisteredAt: now,
		}
		if err := s.store.SaveRegistration(txCtx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save registration")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventUserRegistered, caller, map[string]any{
		"delegated_key": string(record.Key),
		"nonce":         record.Nonce,
	})
	if s.metrics != nil {
		s.metrics.IncrementRegistrations()
	}
	return record, nil
}

// RevokeDelegation deactivates the caller's delegation and unpublishes the
// key from the reverse index. The forward record is retained for history.
func (s *Service) RevokeDelegation(ctx context.Context) error {
	caller := requestcontext.Caller(ctx)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.RevokeDelegation(txCtx, caller)
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeNotFound, "not registered")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke delegation")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.EventDelegationRevoked, caller, nil)
	if s.metrics != nil {
		s.metrics.IncrementRevocations()
	}
	return nil
}

// HasActiveDelegation reports whether the address currently holds an active
// delegation.
func (s *Service) HasActiveDelegation(ctx context.Context, addr domain.Address) (bool, error) {
	rec, err := s.store.Find(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return rec.IsActive(), nil
}

// GetDelegatedKey returns the active delegated key for the address.
func (s *Service) GetDelegatedKey(ctx context.Context, addr domain.Address) (domain.DelegatedKey, error) {
	rec, err := s.store.Find(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "not registered")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	if !rec.IsActive() {
		return "", dErrors.New(dErrors.CodeNotFound, "not registered")
	}
	return rec.Key, nil
}

// GetUserFromKey resolves a delegated key to its owner. An unknown or
// revoked key resolves to the zero address, not an error.
func (s *Service) GetUserFromKey(ctx context.Context, key domain.DelegatedKey) (domain.Address, error) {
	addr, err := s.store.FindByKey(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.ZeroAddress, nil
	}
	if err != nil {
		return domain.ZeroAddress, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve key")
	}
	return addr, nil
}

// GetRegistration returns the forward record, active or not.
func (s *Service) GetRegistration(ctx context.Context, addr domain.Address) (*models.DelegationRecord, error) {
	rec, err := s.store.Find(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "not registered")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return rec, nil
}

// CurrentNonce returns the nonce a registration signature must bind right
// now: zero for unregistered addresses, the stored value otherwise.
func (s *Service) CurrentNonce(ctx context.Context, addr domain.Address) (uint64, error) {
	return s.currentNonce(ctx, addr)
}

func (s *Service) currentNonce(ctx context.Context, addr domain.Address) (uint64, error) {
	rec, err := s.store.Find(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return rec.Nonce, nil
}

// deriveKey generates the delegated key for the address at the pinned
// request time: keccak over (address bytes, unix nanos, registry name,
// current nonce), hex-encoded.
func (s *Service) deriveKey(ctx context.Context, addr domain.Address, nonce uint64) (domain.DelegatedKey, error) {
	addrBytes, err := addr.Bytes()
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid address")
	}
	var ts, n [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(requestcontext.Now(ctx).UnixNano()))
	binary.BigEndian.PutUint64(n[:], nonce)

	sum := signature.Keccak256(addrBytes, ts[:], []byte(s.registryName), n[:])
	return domain.DelegatedKey("0x" + hex.EncodeToString(sum)), nil
}

// RegistrationDigest is the canonical message a registration signature must
// cover: the derived key, the caller address, and the current nonce. Clients
// sign this digest against a fresh preview.
func RegistrationDigest(key domain.DelegatedKey, caller domain.Address, nonce uint64) []byte {
	callerBytes, _ := caller.Bytes()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return signature.Keccak256([]byte(key), callerBytes, n[:])
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
