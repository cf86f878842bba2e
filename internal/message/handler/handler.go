// Package handler exposes the message registry over HTTP.
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tokengate/internal/message/models"
	"tokengate/internal/message/service"
	"tokengate/internal/platform/middleware"
	"tokengate/internal/transport/http/shared"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
)

// Service is the message-registry surface the handler depends on.
type Service interface {
	PostMessage(ctx context.Context, in service.PostMessageInput) (*models.Message, error)
	GetMessage(ctx context.Context, id domain.MessageID) (*models.Message, error)
}

// Handler handles message anchoring and lookup.
type Handler struct {
	logger   *slog.Logger
	registry Service
}

// New creates a message-registry Handler.
func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// Register mounts the message routes.
func (h *Handler) Register(r chi.Router) {
	r.With(middleware.RequireCaller(h.logger)).Post("/", h.handlePostMessage)
	r.Get("/{messageID}", h.handleGetMessage)
}

type postMessageRequest struct {
	ID          string `json:"id"`
	CommunityID uint64 `json:"community_id"`
	ChannelID   uint64 `json:"channel_id"`
	ContentHash string `json:"content_hash"`
	// Signature is the hex-encoded compact signature over the canonical
	// message digest.
	Signature string `json:"signature"`
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	id, err := domain.ParseMessageID(req.ID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid message id"))
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "message rejected"))
		return
	}

	msg, err := h.registry.PostMessage(ctx, service.PostMessageInput{
		ID:          id,
		CommunityID: domain.CommunityID(req.CommunityID),
		ChannelID:   domain.ChannelID(req.ChannelID),
		ContentHash: req.ContentHash,
		Signature:   sig,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "message rejected", "error", err.Error())
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid message id"))
		return
	}
	msg, err := h.registry.GetMessage(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, msg)
}
