// Package handler exposes the user registry over HTTP.
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tokengate/internal/identity/models"
	"tokengate/internal/platform/middleware"
	"tokengate/internal/transport/http/shared"
	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
)

// Service is the user-registry surface the handler depends on.
type Service interface {
	PreviewDelegatedKey(ctx context.Context, addr domain.Address) (domain.DelegatedKey, error)
	CurrentNonce(ctx context.Context, addr domain.Address) (uint64, error)
	RegisterUser(ctx context.Context, sig []byte) (*models.DelegationRecord, error)
	RevokeDelegation(ctx context.Context) error
	HasActiveDelegation(ctx context.Context, addr domain.Address) (bool, error)
	GetDelegatedKey(ctx context.Context, addr domain.Address) (domain.DelegatedKey, error)
	GetUserFromKey(ctx context.Context, key domain.DelegatedKey) (domain.Address, error)
	GetRegistration(ctx context.Context, addr domain.Address) (*models.DelegationRecord, error)
}

// Handler handles registration, revocation and delegation lookups.
type Handler struct {
	logger   *slog.Logger
	registry Service
}

// New creates a user-registry Handler.
func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// Register mounts the user-registry routes.
func (h *Handler) Register(r chi.Router) {
	r.With(middleware.RequireCaller(h.logger)).Group(func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/revoke", h.handleRevoke)
	})
	r.Get("/users/{address}", h.handleGetRegistration)
	r.Get("/users/{address}/key", h.handleGetDelegatedKey)
	r.Get("/users/{address}/key/preview", h.handlePreviewKey)
	r.Get("/keys/{key}", h.handleResolveKey)
}

type registerRequest struct {
	// Signature is the hex-encoded 65-byte compact signature over the
	// canonical registration digest.
	Signature string `json:"signature"`
}

type previewResponse struct {
	DelegatedKey domain.DelegatedKey `json:"delegated_key"`
	Nonce        uint64              `json:"nonce"`
}

type keyResponse struct {
	DelegatedKey domain.DelegatedKey `json:"delegated_key"`
}

type resolveResponse struct {
	Address domain.Address `json:"address"`
}

type statusResponse struct {
	Address domain.Address `json:"address"`
	Active  bool           `json:"active"`
	Nonce   uint64         `json:"nonce"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid signature"))
		return
	}

	rec, err := h.registry.RegisterUser(ctx, sig)
	if err != nil {
		h.logger.WarnContext(ctx, "registration rejected", "error", err.Error())
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.RevokeDelegation(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "revocation rejected", "error", err.Error())
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	rec, err := h.registry.GetRegistration(r.Context(), addr)
	if err != nil {
		// Unregistered addresses still get a status body so clients can
		// branch without parsing errors.
		if dErrors.Is(err, dErrors.CodeNotFound) {
			shared.WriteJSON(w, http.StatusOK, statusResponse{Address: addr, Active: false, Nonce: 0})
			return
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, statusResponse{
		Address: rec.Address,
		Active:  rec.Active,
		Nonce:   rec.Nonce,
	})
}

func (h *Handler) handleGetDelegatedKey(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	key, err := h.registry.GetDelegatedKey(r.Context(), addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, keyResponse{DelegatedKey: key})
}

func (h *Handler) handlePreviewKey(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	key, err := h.registry.PreviewDelegatedKey(ctx, addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	nonce, err := h.registry.CurrentNonce(ctx, addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, previewResponse{DelegatedKey: key, Nonce: nonce})
}

func (h *Handler) handleResolveKey(w http.ResponseWriter, r *http.Request) {
	key := domain.DelegatedKey(chi.URLParam(r, "key"))
	addr, err := h.registry.GetUserFromKey(r.Context(), key)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resolveResponse{Address: addr})
}

func addressParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid address"))
		return "", false
	}
	return addr, true
}
