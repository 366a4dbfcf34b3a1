package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"finlogs/backend/internal/cache"
	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/service"
	"finlogs/backend/internal/store/memory"
)

func newTestServer(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	svc := service.New(memory.New(), cache.NewMemory(), time.Minute, logger)
	ctx := context.Background()
	if err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "boss", Password: "topsecret", Role: "admin"}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "clerk", Password: "clerkpass", Role: "accounts"}); err != nil {
		t.Fatalf("seed clerk: %v", err)
	}

	auth := NewAuthManager("test-secret", time.Hour)
	server := NewServer(svc, auth, logger, "*", "default")
	return server.Handler(), svc
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler, _ := newTestServer(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "boss", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestReportsRequireAuth(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(handler, http.MethodGet, "/api/reports/trial-balance", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesRejectAccountsRole(t *testing.T) {
	handler, _ := newTestServer(t)
	token := login(t, handler, "clerk", "clerkpass")

	rec := doJSON(handler, http.MethodPost, "/api/parties", token, domain.PartyCreateRequest{Name: "X", Type: domain.PartyCustomer})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestPartyAndTransactionFlow(t *testing.T) {
	handler, _ := newTestServer(t)
	token := login(t, handler, "boss", "topsecret")

	rec := doJSON(handler, http.MethodPost, "/api/parties", token,
		domain.PartyCreateRequest{Name: "Ravi Traders", Type: domain.PartyCustomer})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create party: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2024-03-01", "party": "Ravi Traders", "type": "Sale", "mode": "Cash", "amount": "150",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add transaction: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/reports/profit-loss", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("p&l: %d: %s", rec.Code, rec.Body.String())
	}
	var pnl domain.ProfitAndLoss
	if err := json.Unmarshal(rec.Body.Bytes(), &pnl); err != nil {
		t.Fatalf("decode p&l: %v", err)
	}
	if pnl.Sales.String() != "150" {
		t.Fatalf("sales = %s, want 150", pnl.Sales)
	}

	rec = doJSON(handler, http.MethodGet, "/api/reports/ledger?party=Ravi+Traders", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodDelete, "/api/transactions/1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(handler, http.MethodDelete, "/api/transactions/1", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d, want 404", rec.Code)
	}
}

func TestTenantHeaderScopesRequests(t *testing.T) {
	handler, _ := newTestServer(t)
	token := login(t, handler, "boss", "topsecret")

	req := httptest.NewRequest(http.MethodPost, "/api/parties", bytes.NewReader(mustMarshal(
		domain.PartyCreateRequest{Name: "Branch Party", Type: domain.PartyCustomer})))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Tenant", "branch2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create in branch2: %d", rec.Code)
	}

	// Default tenant must not see branch2's party.
	rec = doJSON(handler, http.MethodGet, "/api/parties", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list parties: %d", rec.Code)
	}
	var parties []domain.Party
	if err := json.Unmarshal(rec.Body.Bytes(), &parties); err != nil {
		t.Fatalf("decode parties: %v", err)
	}
	if len(parties) != 0 {
		t.Fatalf("default tenant sees %d foreign parties", len(parties))
	}
}

func TestCheckUser(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(handler, http.MethodPost, "/api/users/check", "", domain.CheckUserRequest{Username: "boss"})
	if rec.Code != http.StatusOK {
		t.Fatalf("check existing user: %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.CheckUserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Exists {
		t.Fatal("boss should exist")
	}

	rec = doJSON(handler, http.MethodPost, "/api/users/check", "", domain.CheckUserRequest{Username: "nobody"})
	if rec.Code != http.StatusOK {
		t.Fatalf("check missing user: %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Exists {
		t.Fatal("nobody should not exist")
	}
}

func TestUnknownEditFieldReturnsBadRequest(t *testing.T) {
	handler, _ := newTestServer(t)
	token := login(t, handler, "boss", "topsecret")

	doJSON(handler, http.MethodPost, "/api/parties", token,
		domain.PartyCreateRequest{Name: "P", Type: domain.PartyCustomer})
	doJSON(handler, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2024-03-01", "party": "P", "type": "Sale", "mode": "Cash", "amount": "10",
	})

	rec := doJSON(handler, http.MethodPatch, "/api/transactions/1", token,
		map[string]any{"field": "party_id", "new_value": "7"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func mustMarshal(v any) []byte {
	raw, _ := json.Marshal(v)
	return raw
}
