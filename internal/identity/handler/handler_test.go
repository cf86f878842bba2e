package handler

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-chi/chi/v5"

	"tokengate/internal/identity/service"
	"tokengate/internal/identity/store"
	"tokengate/internal/platform/middleware"
	"tokengate/internal/signature"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/tx"
	"tokengate/pkg/requestcontext"
)

// fixedTime pins one instant for every request so the preview a client signs
// against is still valid when the registration arrives.
func fixedTime(t time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), t)))
		})
	}
}

func newIdentityRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(store.NewMemory(), signature.NewVerifier(), tx.NewSerialRunner(), "tokengate-test",
		service.WithLogger(logger))

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(fixedTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	h.Register(r)
	return r
}

func TestRegistrationFlowViaHandlers(t *testing.T) {
	router := newIdentityRouter(t)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	caller := signature.AddressOf(priv.PubKey())

	// Preview the key and nonce the registration signature must bind.
	previewReq := httptest.NewRequest(http.MethodGet, "/users/"+caller.String()+"/key/preview", nil)
	previewRec := httptest.NewRecorder()
	router.ServeHTTP(previewRec, previewReq)
	if previewRec.Code != http.StatusOK {
		t.Fatalf("expected 200 previewing key, got %d: %s", previewRec.Code, previewRec.Body.String())
	}
	var preview struct {
		DelegatedKey string `json:"delegated_key"`
		Nonce        uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(previewRec.Body).Decode(&preview); err != nil {
		t.Fatalf("failed to decode preview: %v", err)
	}

	digest := service.RegistrationDigest(domain.DelegatedKey(preview.DelegatedKey), caller, preview.Nonce)
	sig := signature.Sign(priv, digest)

	body, _ := json.Marshal(map[string]string{"signature": hex.EncodeToString(sig)})
	regReq := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	regReq.Header.Set("Content-Type", "application/json")
	regReq.Header.Set(middleware.CallerHeader, caller.String())
	regRec := httptest.NewRecorder()
	router.ServeHTTP(regRec, regReq)
	if regRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering, got %d: %s", regRec.Code, regRec.Body.String())
	}

	// The published key resolves back to the caller.
	resolveReq := httptest.NewRequest(http.MethodGet, "/keys/"+preview.DelegatedKey, nil)
	resolveRec := httptest.NewRecorder()
	router.ServeHTTP(resolveRec, resolveReq)
	if resolveRec.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving key, got %d", resolveRec.Code)
	}
	var resolved struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resolveRec.Body).Decode(&resolved); err != nil {
		t.Fatalf("failed to decode resolution: %v", err)
	}
	if resolved.Address != caller.String() {
		t.Fatalf("expected key to resolve to %s, got %s", caller, resolved.Address)
	}

	// Revoke and confirm the key is unpublished.
	revokeReq := httptest.NewRequest(http.MethodPost, "/revoke", nil)
	revokeReq.Header.Set(middleware.CallerHeader, caller.String())
	revokeRec := httptest.NewRecorder()
	router.ServeHTTP(revokeRec, revokeReq)
	if revokeRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 revoking, got %d: %s", revokeRec.Code, revokeRec.Body.String())
	}

	resolveRec = httptest.NewRecorder()
	router.ServeHTTP(resolveRec, httptest.NewRequest(http.MethodGet, "/keys/"+preview.DelegatedKey, nil))
	if resolveRec.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving revoked key, got %d", resolveRec.Code)
	}
	if err := json.NewDecoder(resolveRec.Body).Decode(&resolved); err != nil {
		t.Fatalf("failed to decode resolution: %v", err)
	}
	if resolved.Address != domain.ZeroAddress.String() {
		t.Fatalf("expected revoked key to resolve to the zero address, got %s", resolved.Address)
	}
}

func TestRegisterRequiresCaller(t *testing.T) {
	router := newIdentityRouter(t)

	body, _ := json.Marshal(map[string]string{"signature": "00"})
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller header, got %d", rec.Code)
	}
}

func TestRegisterBadSignature(t *testing.T) {
	router := newIdentityRouter(t)

	caller := domain.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	body, _ := json.Marshal(map[string]string{"signature": "deadbeef"})
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	req.Header.Set(middleware.CallerHeader, caller.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed signature, got %d", rec.Code)
	}
}

func TestRevokeUnregistered(t *testing.T) {
	router := newIdentityRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/revoke", nil)
	req.Header.Set(middleware.CallerHeader, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 revoking unregistered address, got %d", rec.Code)
	}
}

func TestUnknownAddressStatus(t *testing.T) {
	router := newIdentityRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unregistered status, got %d", rec.Code)
	}
	var status struct {
		Active bool   `json:"active"`
		Nonce  uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Active || status.Nonce != 0 {
		t.Fatalf("expected inactive zero-nonce status, got %+v", status)
	}
}
