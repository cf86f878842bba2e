package handler

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-chi/chi/v5"

	"tokengate/internal/message/service"
	"tokengate/internal/message/store"
	"tokengate/internal/platform/middleware"
	"tokengate/internal/signature"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/tx"
)

func newMessageRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(store.NewMemory(), signature.NewVerifier(), tx.NewSerialRunner(),
		service.WithLogger(logger))

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	h.Register(r)
	return r
}

func signedPayload(t *testing.T, priv *secp256k1.PrivateKey, id string) map[string]any {
	t.Helper()
	digest := service.MessageDigest(domain.MessageID(id), 3, 7, "0xcafe")
	sig := signature.Sign(priv, digest)
	return map[string]any{
		"id":           id,
		"community_id": 3,
		"channel_id":   7,
		"content_hash": "0xcafe",
		"signature":    hex.EncodeToString(sig),
	}
}

func post(t *testing.T, router http.Handler, caller string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPostAndGetMessage(t *testing.T) {
	router := newMessageRouter(t)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	caller := signature.AddressOf(priv.PubKey())

	rec := post(t, router, caller.String(), signedPayload(t, priv, "0xabc123"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 posting message, got %d: %s", rec.Code, rec.Body.String())
	}

	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/0xabc123", nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching message, got %d", getRec.Code)
	}
	var msg struct {
		ID     string `json:"id"`
		Author string `json:"author"`
	}
	if err := json.NewDecoder(getRec.Body).Decode(&msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.ID != "0xabc123" || msg.Author != caller.String() {
		t.Fatalf("unexpected message record: %+v", msg)
	}

	// Duplicate id is rejected with the undifferentiated 400.
	dupRec := post(t, router, caller.String(), signedPayload(t, priv, "0xabc123"))
	if dupRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate id, got %d", dupRec.Code)
	}
}

func TestPostMessageRequiresCaller(t *testing.T) {
	router := newMessageRouter(t)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	rec := post(t, router, "", signedPayload(t, priv, "0xabc123"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller header, got %d", rec.Code)
	}
}

func TestPostMessageWrongSigner(t *testing.T) {
	router := newMessageRouter(t)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	// Caller header names a different address than the signer.
	rec := post(t, router, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", signedPayload(t, priv, "0xabc123"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for signer mismatch, got %d", rec.Code)
	}
}

func TestGetUnknownMessage(t *testing.T) {
	router := newMessageRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/0xdead", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown message, got %d", rec.Code)
	}
}

func TestGetMalformedMessageID(t *testing.T) {
	router := newMessageRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/not-hex", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}
