package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"tokengate/internal/gate/service"
	"tokengate/internal/gate/store"
	"tokengate/internal/oracle"
	"tokengate/internal/platform/middleware"
	"tokengate/pkg/platform/tx"
)

const (
	signingKey = "test-signing-key"
	owner      = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	member     = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newGateRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(store.NewMemory(), oracle.NewStatic(), tx.NewSerialRunner(), service.Config{
		MinCreateFee: 1000,
		MinJoinFee:   1000,
	}, service.WithLogger(logger))

	h := New(svc, logger, middleware.NewAdminValidator(signingKey))
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	h.Register(r)
	return r
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).
		SignedString([]byte(signingKey))
	if err != nil {
		t.Fatalf("failed to sign admin token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, caller string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createActiveCommunity(t *testing.T, router http.Handler) uint64 {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/communities", owner, map[string]any{
		"name":        "gophers",
		"description": "a community",
		"fee":         1000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating community, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID uint64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode community response: %v", err)
	}

	path := fmt.Sprintf("/communities/%d/activate", resp.ID)
	rec = doJSON(t, router, http.MethodPost, path, owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 activating community, got %d: %s", rec.Code, rec.Body.String())
	}
	return resp.ID
}

func TestCreateCommunityRequiresCaller(t *testing.T) {
	router := newGateRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/communities", "", map[string]any{
		"name": "gophers", "description": "a community", "fee": 1000,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller header, got %d", rec.Code)
	}
}

func TestCommunityLifecycleViaHandlers(t *testing.T) {
	router := newGateRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/communities", owner, map[string]any{
		"name":        "gophers",
		"description": "a community",
		"fee":         1000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating community, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     uint64 `json:"id"`
		Owner  string `json:"owner"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode community response: %v", err)
	}
	if created.Active {
		t.Fatalf("expected newly created community to be inactive")
	}
	if created.Owner != owner {
		t.Fatalf("expected owner %s, got %s", owner, created.Owner)
	}

	// Read back without a caller header: reads are open.
	getRec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/communities/%d", created.ID), "", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching community, got %d", getRec.Code)
	}

	actRec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/communities/%d/activate", created.ID), owner, nil)
	if actRec.Code != http.StatusOK {
		t.Fatalf("expected 200 activating community, got %d: %s", actRec.Code, actRec.Body.String())
	}

	delRec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/communities/%d", created.ID), owner, nil)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting community, got %d: %s", delRec.Code, delRec.Body.String())
	}
}

func TestCreateCommunityInsufficientFee(t *testing.T) {
	router := newGateRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/communities", owner, map[string]any{
		"name": "gophers", "description": "a community", "fee": 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient fee, got %d", rec.Code)
	}
}

func TestJoinAndKickViaHandlers(t *testing.T) {
	router := newGateRouter(t)
	id := createActiveCommunity(t, router)

	joinRec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/communities/%d/join", id), member, map[string]any{"fee": 1000})
	if joinRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 joining, got %d: %s", joinRec.Code, joinRec.Body.String())
	}

	// Second join conflicts.
	dupRec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/communities/%d/join", id), member, map[string]any{"fee": 1000})
	if dupRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 joining twice, got %d", dupRec.Code)
	}

	listRec := doJSON(t, router, http.MethodGet, "/users/"+member+"/communities", "", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing memberships, got %d", listRec.Code)
	}
	var memberships struct {
		CommunityIDs []uint64 `json:"community_ids"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&memberships); err != nil {
		t.Fatalf("failed to decode memberships: %v", err)
	}
	if len(memberships.CommunityIDs) != 1 || memberships.CommunityIDs[0] != id {
		t.Fatalf("expected membership in community %d, got %v", id, memberships.CommunityIDs)
	}

	// Non-owner kick is forbidden.
	kickRec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/communities/%d/kick", id), member, map[string]any{"user": member})
	if kickRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 kicking as non-owner, got %d", kickRec.Code)
	}

	kickRec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/communities/%d/kick", id), owner, map[string]any{"user": member})
	if kickRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 kicking as owner, got %d: %s", kickRec.Code, kickRec.Body.String())
	}
}

func TestChannelEndpoints(t *testing.T) {
	router := newGateRouter(t)
	id := createActiveCommunity(t, router)

	rec := doJSON(t, router, http.MethodPost, "/channels", owner, map[string]any{
		"community_id": id,
		"name":         "general",
		"description":  "talk",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating channel, got %d: %s", rec.Code, rec.Body.String())
	}
	var channel struct {
		ID     uint64 `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&channel); err != nil {
		t.Fatalf("failed to decode channel response: %v", err)
	}
	if channel.Active {
		t.Fatalf("expected newly created channel to be inactive")
	}

	actRec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/channels/%d/activate", channel.ID), owner, nil)
	if actRec.Code != http.StatusOK {
		t.Fatalf("expected 200 activating channel, got %d: %s", actRec.Code, actRec.Body.String())
	}

	listRec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/communities/%d/channels", id), "", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing channels, got %d", listRec.Code)
	}
	var channels []struct {
		ID uint64 `json:"id"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&channels); err != nil {
		t.Fatalf("failed to decode channel list: %v", err)
	}
	if len(channels) != 1 || channels[0].ID != channel.ID {
		t.Fatalf("expected channel %d in list, got %v", channel.ID, channels)
	}

	delRec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/channels/%d", channel.ID), owner, nil)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting channel, got %d: %s", delRec.Code, delRec.Body.String())
	}
}

func TestInvalidIDParam(t *testing.T) {
	router := newGateRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/communities/not-a-number", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestAdminFeeEndpoints(t *testing.T) {
	router := newGateRouter(t)
	createActiveCommunity(t, router)

	// No bearer token.
	rec := doJSON(t, router, http.MethodPost, "/admin/fees/withdraw", owner, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 withdrawing without admin token, got %d", rec.Code)
	}

	token := adminToken(t)

	balReq := httptest.NewRequest(http.MethodGet, "/admin/fees/", nil)
	balReq.Header.Set("Authorization", "Bearer "+token)
	balRec := httptest.NewRecorder()
	router.ServeHTTP(balRec, balReq)
	if balRec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading balance, got %d: %s", balRec.Code, balRec.Body.String())
	}
	var balance struct {
		Balance uint64 `json:"balance"`
	}
	if err := json.NewDecoder(balRec.Body).Decode(&balance); err != nil {
		t.Fatalf("failed to decode balance: %v", err)
	}
	if balance.Balance != 1000 {
		t.Fatalf("expected balance 1000, got %d", balance.Balance)
	}

	wReq := httptest.NewRequest(http.MethodPost, "/admin/fees/withdraw", nil)
	wReq.Header.Set("Authorization", "Bearer "+token)
	wRec := httptest.NewRecorder()
	router.ServeHTTP(wRec, wReq)
	if wRec.Code != http.StatusOK {
		t.Fatalf("expected 200 withdrawing, got %d: %s", wRec.Code, wRec.Body.String())
	}
	var withdrawn struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(wRec.Body).Decode(&withdrawn); err != nil {
		t.Fatalf("failed to decode withdrawal: %v", err)
	}
	if withdrawn.Amount != 1000 {
		t.Fatalf("expected withdrawal of 1000, got %d", withdrawn.Amount)
	}
}
