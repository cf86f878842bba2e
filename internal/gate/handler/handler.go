// Package handler exposes the token-gate registry over HTTP. It stays thin:
// decode, delegate to the service, encode.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tokengate/internal/gate/models"
	"tokengate/internal/gate/service"
	"tokengate/internal/platform/middleware"
	"tokengate/internal/transport/http/shared"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
	"tokengate/pkg/requestcontext"
)

// Service is the token-gate surface the handler depends on.
type Service interface {
	CreateCommunity(ctx context.Context, in service.CreateCommunityInput) (*models.Community, error)
	ActivateCommunity(ctx context.Context, id domain.CommunityID) (*models.Community, error)
	UpdateCommunityRequirements(ctx context.Context, id domain.CommunityID, reqs models.Requirements) (*models.Community, error)
	DeleteCommunity(ctx context.Context, id domain.CommunityID) error
	GetCommunity(ctx context.Context, id domain.CommunityID) (*models.Community, error)

	CreateChannel(ctx context.Context, in service.CreateChannelInput) (*models.Channel, error)
	ActivateChannel(ctx context.Context, id domain.ChannelID) (*models.Channel, error)
	DeleteChannel(ctx context.Context, id domain.ChannelID) error
	GetChannel(ctx context.Context, id domain.ChannelID) (*models.Channel, error)
	ListCommunityChannels(ctx context.Context, id domain.CommunityID) ([]*models.Channel, error)

	JoinCommunity(ctx context.Context, id domain.CommunityID, fee domain.FeeAmount) error
	LeaveCommunity(ctx context.Context, id domain.CommunityID) error
	KickUser(ctx context.Context, id domain.CommunityID, user domain.Address) error
	ListUserCommunities(ctx context.Context, user domain.Address) ([]domain.CommunityID, error)

	WithdrawFees(ctx context.Context) (domain.FeeAmount, error)
	FeeBalance(ctx context.Context) (domain.FeeAmount, error)
}

// Handler handles community, channel, membership and treasury endpoints.
type Handler struct {
	logger   *slog.Logger
	gate     Service
	adminJWT *middleware.AdminValidator
}

// New creates a token-gate Handler.
func New(gate Service, logger *slog.Logger, adminJWT *middleware.AdminValidator) *Handler {
	return &Handler{
		logger:   logger,
		gate:     gate,
		adminJWT: adminJWT,
	}
}

// Register mounts the token-gate routes. Mutating routes require a caller
// address; treasury routes additionally require the admin bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Route("/communities", func(r chi.Router) {
		r.With(middleware.RequireCaller(h.logger)).Group(func(r chi.Router) {
			r.Post("/", h.handleCreateCommunity)
			r.Post("/{communityID}/activate", h.handleActivateCommunity)
			r.Put("/{communityID}/requirements", h.handleUpdateRequirements)
			r.Delete("/{communityID}", h.handleDeleteCommunity)
			r.Post("/{communityID}/join", h.handleJoinCommunity)
			r.Post("/{communityID}/leave", h.handleLeaveCommunity)
			r.Post("/{communityID}/kick", h.handleKickUser)
		})
		r.Get("/{communityID}", h.handleGetCommunity)
		r.Get("/{communityID}/channels", h.handleListChannels)
	})

	r.Route("/channels", func(r chi.Router) {
		r.With(middleware.RequireCaller(h.logger)).Group(func(r chi.Router) {
			r.Post("/", h.handleCreateChannel)
			r.Post("/{channelID}/activate", h.handleActivateChannel)
			r.Delete("/{channelID}", h.handleDeleteChannel)
		})
		r.Get("/{channelID}", h.handleGetChannel)
	})

	r.Get("/users/{address}/communities", h.handleListUserCommunities)

	r.Route("/admin/fees", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.adminJWT, h.logger))
		r.Post("/withdraw", h.handleWithdrawFees)
		r.Get("/", h.handleFeeBalance)
	})
}

func (h *Handler) handleCreateCommunity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	reqs, err := req.Requirements.toModel()
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	community, err := h.gate.CreateCommunity(ctx, service.CreateCommunityInput{
		Owner:        requestcontext.Caller(ctx),
		Name:         req.Name,
		Description:  req.Description,
		Requirements: reqs,
		Fee:          domain.FeeAmount(req.Fee),
	})
	if err != nil {
		h.logFailure(ctx, "create community", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, community)
}

func (h *Handler) handleActivateCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	community, err := h.gate.ActivateCommunity(r.Context(), id)
	if err != nil {
		h.logFailure(r.Context(), "activate community", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, community)
}

func (h *Handler) handleUpdateRequirements(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	var req updateRequirementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	reqs, err := req.Requirements.toModel()
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	community, err := h.gate.UpdateCommunityRequirements(r.Context(), id, reqs)
	if err != nil {
		h.logFailure(r.Context(), "update requirements", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, community)
}

func (h *Handler) handleDeleteCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	if err := h.gate.DeleteCommunity(r.Context(), id); err != nil {
		h.logFailure(r.Context(), "delete community", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	community, err := h.gate.GetCommunity(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, community)
}

func (h *Handler) handleJoinCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	var req joinCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.gate.JoinCommunity(r.Context(), id, domain.FeeAmount(req.Fee)); err != nil {
		h.logFailure(r.Context(), "join community", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLeaveCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	if err := h.gate.LeaveCommunity(r.Context(), id); err != nil {
		h.logFailure(r.Context(), "leave community", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleKickUser(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	var req kickUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	user, err := domain.ParseAddress(req.User)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid user address"))
		return
	}
	if err := h.gate.KickUser(r.Context(), id, user); err != nil {
		h.logFailure(r.Context(), "kick user", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	reqs, err := req.Requirements.toModel()
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	channel, err := h.gate.CreateChannel(r.Context(), service.CreateChannelInput{
		CommunityID:  domain.CommunityID(req.CommunityID),
		Name:         req.Name,
		Description:  req.Description,
		Requirements: reqs,
	})
	if err != nil {
		h.logFailure(r.Context(), "create channel", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, channel)
}

func (h *Handler) handleActivateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := channelIDParam(w, r)
	if !ok {
		return
	}
	channel, err := h.gate.ActivateChannel(r.Context(), id)
	if err != nil {
		h.logFailure(r.Context(), "activate channel", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, channel)
}

func (h *Handler) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := channelIDParam(w, r)
	if !ok {
		return
	}
	if err := h.gate.DeleteChannel(r.Context(), id); err != nil {
		h.logFailure(r.Context(), "delete channel", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := channelIDParam(w, r)
	if !ok {
		return
	}
	channel, err := h.gate.GetChannel(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, channel)
}

func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	id, ok := communityIDParam(w, r)
	if !ok {
		return
	}
	channels, err := h.gate.ListCommunityChannels(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, channels)
}

func (h *Handler) handleListUserCommunities(w http.ResponseWriter, r *http.Request) {
	user, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid user address"))
		return
	}
	ids, err := h.gate.ListUserCommunities(r.Context(), user)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if ids == nil {
		ids = []domain.CommunityID{}
	}
	shared.WriteJSON(w, http.StatusOK, membershipsResponse{CommunityIDs: ids})
}

func (h *Handler) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	amount, err := h.gate.WithdrawFees(r.Context())
	if err != nil {
		h.logFailure(r.Context(), "withdraw fees", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, withdrawResponse{Amount: uint64(amount)})
}

func (h *Handler) handleFeeBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.gate.FeeBalance(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, feeBalanceResponse{Balance: uint64(balance)})
}

func (h *Handler) logFailure(ctx context.Context, op string, err error) {
	if dErrors.Is(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "operation failed", "op", op, "error", err.Error())
		return
	}
	h.logger.WarnContext(ctx, "operation rejected", "op", op, "error", err.Error())
}

func communityIDParam(w http.ResponseWriter, r *http.Request) (domain.CommunityID, bool) {
	raw := chi.URLParam(r, "communityID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid community id"))
		return 0, false
	}
	return domain.CommunityID(id), true
}

func channelIDParam(w http.ResponseWriter, r *http.Request) (domain.ChannelID, bool) {
	raw := chi.URLParam(r, "channelID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid channel id"))
		return 0, false
	}
	return domain.ChannelID(id), true
}
