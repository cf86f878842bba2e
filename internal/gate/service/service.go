// Package service orchestrates the token-gate state machine: community and
// channel lifecycle, membership admission gated by oracle checks, and fee
// custody bookkeeping.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gatemetrics "tokengate/internal/gate/metrics"
	"tokengate/internal/gate/models"
	"tokengate/internal/oracle"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
	"tokengate/pkg/platform/audit"
	"tokengate/pkg/platform/sentinel"
	"tokengate/pkg/platform/tx"
	"tokengate/pkg/requestcontext"
)

// Store is the persistence surface for the token-gate registry. Stores
// return sentinel errors; the service translates them into coded errors.
// Mutating methods called inside a transition must not fail once their
// validations have passed, so a transition composed of several store calls
// commits atomically under the Runner boundary.
type Store interface {
	CreateCommunity(ctx context.Context, c *models.Community) (domain.CommunityID, error)
	FindCommunity(ctx context.Context, id domain.CommunityID) (*models.Community, error)
	UpdateCommunity(ctx context.Context, id domain.CommunityID, validate func(*models.Community) error, mutate func(*models.Community)) (*models.Community, error)

	CreateChannel(ctx context.Context, ch *models.Channel) (domain.ChannelID, error)
	FindChannel(ctx context.Context, id domain.ChannelID) (*models.Channel, error)
	UpdateChannel(ctx context.Context, id domain.ChannelID, validate func(*models.Channel) error, mutate func(*models.Channel)) (*models.Channel, error)
	ListCommunityChannels(ctx context.Context, id domain.CommunityID) ([]*models.Channel, error)
	// DeactivateCommunityChannels flips every currently-active channel of the
	// community inactive and clears the community's channel list. Returns the
	// number of channels deactivated.
	DeactivateCommunityChannels(ctx context.Context, id domain.CommunityID) (int, error)
	// DetachChannel removes the channel id from its community's channel list
	// (swap-remove, order not preserved).
	DetachChannel(ctx context.Context, communityID domain.CommunityID, channelID domain.ChannelID) error

	// AddMembership records user membership; sentinel.ErrConflict when the
	// user is already a member (membership is a set).
	AddMembership(ctx context.Context, user domain.Address, id domain.CommunityID) error
	// RemoveMembership removes the membership entry if present (swap-remove).
	// Returns false, nil when the user was not a member.
	RemoveMembership(ctx context.Context, user domain.Address, id domain.CommunityID) (bool, error)
	// RemoveAllMemberships strips the community from every member's list.
	RemoveAllMemberships(ctx context.Context, id domain.CommunityID) (int, error)
	ListMemberships(ctx context.Context, user domain.Address) ([]domain.CommunityID, error)

	AddFees(ctx context.Context, amount domain.FeeAmount) error
	// WithdrawAllFees zeroes the custodial balance and returns the amount
	// that was held.
	WithdrawAllFees(ctx context.Context) (domain.FeeAmount, error)
	FeeBalance(ctx context.Context) (domain.FeeAmount, error)
}

// AuditPublisher delivers committed transition events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config carries the fee thresholds for paid transitions.
type Config struct {
	MinCreateFee domain.FeeAmount
	MinJoinFee   domain.FeeAmount
}

// Service is the TokenGateManager state machine.
type Service struct {
	store     Store
	oracle    oracle.Oracle
	tx        tx.Runner
	cfg       Config
	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *gatemetrics.Metrics
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
func WithMetrics(m *gatemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the token-gate service.
func New(store Store, orc oracle.Oracle, runner tx.Runner, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		oracle:    orc,
		tx:        runner,
		cfg:       cfg,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCommunityInput is the community record supplied by the caller.
type CreateCommunityInput struct {
	Owner        domain.Address
	Name         string
	Description  string
	Requirements models.Requirements
	Fee          domain.FeeAmount
}

// CreateCommunity stores a new pending community and retains the creation
// fee in the custodial balance. Communities always start inactive.
func (s *Service) CreateCommunity(ctx context.Context, in CreateCommunityInput) (*models.Community, error) {
	if in.Fee < s.cfg.MinCreateFee {
		return nil, dErrors.New(dErrors.CodeBadRequest, "insufficient payment")
	}

	now := requestcontext.Now(ctx)
	community, err := models.NewCommunity(in.Owner, in.Name, in.Description, in.Requirements, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		id, err := s.store.CreateCommunity(txCtx, community)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create community")
		}
		community.ID = id
		if err := s.store.AddFees(txCtx, in.Fee); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record creation fee")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventCommunityCreated, in.Owner, map[string]any{
		"community_id": community.ID,
		"name":         community.Name,
		"fee":          in.Fee,
	})
	if s.metrics != nil {
		s.metrics.IncrementCommunitiesCreated()
	}
	return community, nil
}

// ActivateCommunity transitions a pending or deactivated community to
// active. Owner-only. Without this transition no community could ever accept
// joins or channels.
func (s *Service) ActivateCommunity(ctx context.Context, id domain.CommunityID) (*models.Community, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var community *models.Community
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		community, err = s.store.UpdateCommunity(txCtx, id,
			func(c *models.Community) error {
				if !c.IsOwnedBy(caller) {
					return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
				}
				if err := c.CanActivate(); err != nil {
					return dErrors.New(dErrors.CodeConflict, "community is already active")
				}
				return nil
			},
			func(c *models.Community) { c.ApplyActivation(now) },
		)
		return s.translateCommunityErr(err)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventCommunityActive, caller, map[string]any{"community_id": id})
	return community, nil
}

// CreateChannelInput is the channel record supplied by the caller.
type CreateChannelInput struct {
	CommunityID  domain.CommunityID
	Name         string
	Description  string
	Requirements models.Requirements
}

// CreateChannel stores a new pending channel under an active community.
// Only the community owner may create channels.
func (s *Service) CreateChannel(ctx context.Context, in CreateChannelInput) (*models.Channel, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	channel, err := models.NewChannel(in.CommunityID, in.Name, in.Description, in.Requirements, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		community, err := s.store.FindCommunity(txCtx, in.CommunityID)
		if err != nil {
			return s.translateCommunityErr(err)
		}
		if !community.IsOwnedBy(caller) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
		}
		if !community.IsActive() {
			return dErrors.New(dErrors.CodeBadRequest, "community is not active")
		}

		id, err := s.store.CreateChannel(txCtx, channel)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create channel")
		}
		channel.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventChannelCreated, caller, map[string]any{
		"community_id": in.CommunityID,
		"channel_id":   channel.ID,
		"name":         channel.Name,
	})
	if s.metrics != nil {
		s.metrics.IncrementChannelsCreated()
	}
	return channel, nil
}

// ActivateChannel transitions a pending channel to active. Community-owner
// only, resolved through the channel's community reference.
func (s *Service) ActivateChannel(ctx context.Context, id domain.ChannelID) (*models.Channel, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var channel *models.Channel
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.store.FindChannel(txCtx, id)
		if err != nil {
			return s.translateChannelErr(err)
		}
		community, err := s.store.FindCommunity(txCtx, existing.CommunityID)
		if err != nil {
			return s.translateCommunityErr(err)
		}
		if !community.IsOwnedBy(caller) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
		}

		channel, err = s.store.UpdateChannel(txCtx, id,
			func(ch *models.Channel) error {
				if err := ch.CanActivate(); err != nil {
					return dErrors.New(dErrors.CodeConflict, "channel is already active")
				}
				return nil
			},
			func(ch *models.Channel) { ch.ApplyActivation(now) },
		)
		return s.translateChannelErr(err)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventChannelActive, caller, map[string]any{"channel_id": id})
	return channel, nil
}

// JoinCommunity admits the caller into an active community after both
// admission clauses pass. The join fee is retained in the custodial balance.
// Membership is a set: joining twice is a conflict.
func (s *Service) JoinCommunity(ctx context.Context, id domain.CommunityID, fee domain.FeeAmount) error {
	caller := requestcontext.Caller(ctx)
	start := time.Now()

	if fee < s.cfg.MinJoinFee {
		return dErrors.New(dErrors.CodeBadRequest, "insufficient payment")
	}

	community, err := s.store.FindCommunity(ctx, id)
	if err != nil {
		return s.translateCommunityErr(err)
	}
	if !community.IsActive() {
		return dErrors.New(dErrors.CodeBadRequest, "community is not active")
	}

	// Oracle reads happen outside the transition boundary: they are
	// synchronous, side-effect-free queries against external ledgers.
	ok, err := s.checkRequirements(ctx, community.Requirements, caller)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "requirement check failed")
	}
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "not enough balance")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Re-validate at use time: the community must still be active when
		// the membership commits.
		current, err := s.store.FindCommunity(txCtx, id)
		if err != nil {
			return s.translateCommunityErr(err)
		}
		if !current.IsActive() {
			return dErrors.New(dErrors.CodeBadRequest, "community is not active")
		}
		if err := s.store.AddMembership(txCtx, caller, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "already a member")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record membership")
		}
		if err := s.store.AddFees(txCtx, fee); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record join fee")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.EventCommunityJoined, caller, map[string]any{
		"community_id": id,
		"fee":          fee,
	})
	if s.metrics != nil {
		s.metrics.IncrementJoins()
		s.metrics.ObserveJoin(start)
	}
	return nil
}

// KickUser removes one user's membership. Owner-only, active community only.
// Kicking a non-member succeeds as a membership no-op. Unlike the historical
// behavior, kicking has no channel side effects.
func (s *Service) KickUser(ctx context.Context, id domain.CommunityID, user domain.Address) error {
	caller := requestcontext.Caller(ctx)

	if user.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "user cannot be the zero address")
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		community, err := s.store.FindCommunity(txCtx, id)
		if err != nil {
			return s.translateCommunityErr(err)
		}
		if !community.IsOwnedBy(caller) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
		}
		if !community.IsActive() {
			return dErrors.New(dErrors.CodeBadRequest, "community is not active")
		}
		if !community.WellFormed() {
			// Should be unreachable post-creation; kept as a defensive
			// re-check of the construction invariants.
			return dErrors.New(dErrors.CodeBadRequest, "community record is malformed")
		}

		if _, err := s.store.RemoveMembership(txCtx, user, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove membership")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.EventUserKicked, caller, map[string]any{
		"community_id": id,
		"user":         user.String(),
	})
	if s.metrics != nil {
		s.metrics.IncrementKicks()
	}
	return nil
}

// UpdateCommunityRequirements replaces the admission requirements wholesale.
// Owner-only, active community only.
func (s *Service) UpdateCommunityRequirements(ctx context.Context, id domain.CommunityID, reqs models.Requirements) (*models.Community, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var community *models.Community
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		community, err = s.store.UpdateCommunity(txCtx, id,
			func(c *models.Community) error {
				if !c.IsOwnedBy(caller) {
					return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
				}
				if !c.IsActive() {
					return dErrors.New(dErrors.CodeBadRequest, "community is not active")
				}
				return nil
			},
			func(c *models.Community) { c.ApplyRequirements(reqs, now) },
		)
		return s.translateCommunityErr(err)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventCommunityUpdated, caller, map[string]any{
		"community_id": id,
		"name":         community.Name,
	})
	return community, nil
}

// DeleteCommunity logically deletes a community: the record stays with
// Active=false, every channel is deactivated and detached, and every
// member's entry is removed. Owner-only, active community only.
func (s *Service) DeleteCommunity(ctx context.Context, id domain.CommunityID) error {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var channelsDeactivated, membersRemoved int
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.UpdateCommunity(txCtx, id,
			func(c *models.Community) error {
				if !c.IsOwnedBy(caller) {
					return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
				}
				if err := c.CanDeactivate(); err != nil {
					return dErrors.New(dErrors.CodeBadRequest, "community is not active")
				}
				return nil
			},
			func(c *models.Community) { c.ApplyDeactivation(now) },
		)
		if err != nil {
			return s.translateCommunityErr(err)
		}

		channelsDeactivated, err = s.store.DeactivateCommunityChannels(txCtx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate channels")
		}
		membersRemoved, err = s.store.RemoveAllMemberships(txCtx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove memberships")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.EventCommunityDeleted, caller, map[string]any{
		"community_id":         id,
		"channels_deactivated": channelsDeactivated,
		"members_removed":      membersRemoved,
	})
	if s.metrics != nil {
		s.metrics.IncrementCommunitiesDeleted()
	}
	return nil
}

// DeleteChannel deactivates a channel and detaches it from its community's
// channel list. Community-owner only; the channel must currently be active.
func (s *Service) DeleteChannel(ctx context.Context, id domain.ChannelID) error {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		channel, err := s.store.FindChannel(txCtx, id)
		if err != nil {
			return s.translateChannelErr(err)
		}
		community, err := s.store.FindCommunity(txCtx, channel.CommunityID)
		if err != nil {
			return s.translateCommunityErr(err)
		}
		if !community.IsOwnedBy(caller) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not the community owner")
		}

		if _, err := s.store.UpdateChannel(txCtx, id,
			func(ch *models.Channel) error {
				if err := ch.CanDeactivate(); err != nil {
					return dErrors.New(dErrors.CodeBadRequest, "channel is not active")
				}
				return nil
			},
			func(ch *models.Channel) { ch.ApplyDeactivation(now) },
		); err != nil {
			return s.translateChannelErr(err)
		}
		if err := s.store.DetachChannel(txCtx, channel.CommunityID, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach channel")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.EventChannelDeleted, caller, map[string]any{"channel_id": id})
	return nil
}

// LeaveCommunity removes the caller's own membership. Leaving a community
// the caller never joined is a no-op, not an error.
func (s *Service) LeaveCommunity(ctx context.Context, id domain.CommunityID) error {
	caller := requestcontext.Caller(ctx)

	var removed bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		community, err := s.store.FindCommunity(txCtx, id)
		if err != nil {
			return s.translateCommunityErr(err)
		}
		if !community.IsActive() {
			return dErrors.New(dErrors.CodeBadRequest, "community is not active")
		}
		removed, err = s.store.RemoveMembership(txCtx, caller, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove membership")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if removed {
		s.emit(ctx, audit.EventCommunityLeft, caller, map[string]any{"community_id": id})
	}
	return nil
}

// WithdrawFees transfers the entire custodial balance to the administrator.
// Admin-only; fails when the balance is zero.
func (s *Service) WithdrawFees(ctx context.Context) (domain.FeeAmount, error) {
	if !requestcontext.IsAdmin(ctx) {
		return 0, dErrors.New(dErrors.CodeForbidden, "caller is not the administrator")
	}

	var amount domain.FeeAmount
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		amount, err = s.store.WithdrawAllFees(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to withdraw fees")
		}
		if amount == 0 {
			return dErrors.New(dErrors.CodeBadRequest, "insufficient payment")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.emit(ctx, audit.EventFeesWithdrawn, requestcontext.Caller(ctx), map[string]any{"amount": amount})
	if s.metrics != nil {
		s.metrics.IncrementWithdrawals()
	}
	return amount, nil
}

// GetCommunity fetches a community record.
func (s *Service) GetCommunity(ctx context.Context, id domain.CommunityID) (*models.Community, error) {
	community, err := s.store.FindCommunity(ctx, id)
	if err != nil {
		return nil, s.translateCommunityErr(err)
	}
	return community, nil
}

// GetChannel fetches a channel record.
func (s *Service) GetChannel(ctx context.Context, id domain.ChannelID) (*models.Channel, error) {
	channel, err := s.store.FindChannel(ctx, id)
	if err != nil {
		return nil, s.translateChannelErr(err)
	}
	return channel, nil
}

// ListCommunityChannels lists the channels currently attached to a
// community. Fails with the same invalid-id error as the write paths when
// the community does not exist.
func (s *Service) ListCommunityChannels(ctx context.Context, id domain.CommunityID) ([]*models.Channel, error) {
	if _, err := s.store.FindCommunity(ctx, id); err != nil {
		return nil, s.translateCommunityErr(err)
	}
	channels, err := s.store.ListCommunityChannels(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list channels")
	}
	return channels, nil
}

// ListUserCommunities lists the community ids a user belongs to.
func (s *Service) ListUserCommunities(ctx context.Context, user domain.Address) ([]domain.CommunityID, error) {
	if user.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "user cannot be the zero address")
	}
	ids, err := s.store.ListMemberships(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list memberships")
	}
	return ids, nil
}

// FeeBalance reports the custodial balance. Admin-only.
func (s *Service) FeeBalance(ctx context.Context) (domain.FeeAmount, error) {
	if !requestcontext.IsAdmin(ctx) {
		return 0, dErrors.New(dErrors.CodeForbidden, "caller is not the administrator")
	}
	balance, err := s.store.FeeBalance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee balance")
	}
	return balance, nil
}

// checkRequirements is the admission predicate: the AND of the token clause
// (unenforced OR balance >= minimum, boundary inclusive) and the NFT clause
// (unenforced OR exact token owned by the user).
func (s *Service) checkRequirements(ctx context.Context, reqs models.Requirements, user domain.Address) (bool, error) {
	if reqs.Token.Enforced() {
		balance, err := s.oracle.BalanceOf(ctx, reqs.Token.TokenAddress, user)
		if err != nil {
			return false, err
		}
		if balance < reqs.Token.MinBalance {
			return false, nil
		}
	}
	if reqs.NFT.Enforced() {
		owner, err := s.oracle.OwnerOf(ctx, reqs.NFT.NFTAddress, reqs.NFT.TokenID)
		if err != nil {
			return false, err
		}
		if owner != user {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) translateCommunityErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid community id")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "community store failure")
}

func (s *Service) translateChannelErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid channel id")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "channel store failure")
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
