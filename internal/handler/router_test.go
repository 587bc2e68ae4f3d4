package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/handler"
	"github.com/boddenberg/household-ledger/internal/infra/cache"
	"github.com/boddenberg/household-ledger/internal/infra/memstore"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/service"

	"go.uber.org/zap"
)

const jwtSecret = "test-secret"

type testAPI struct {
	router http.Handler
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	categories := cache.New[[]domain.Category](time.Minute)
	t.Cleanup(categories.Close)

	metrics := observability.NewMetrics()
	svc := service.NewLedgerService(memstore.New(), categories, metrics, zap.NewNop())
	authSvc := service.NewAuthService(jwtSecret, zap.NewNop())
	token, err := authSvc.SignAccessToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return &testAPI{router: handler.NewRouter(svc, authSvc, metrics, zap.NewNop()), token: token}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestOperationalEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping", "/v1/metrics/ledger"} {
		t.Run(path, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, path, nil)
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		})
	}
}

func TestHealthz_ReportsStore(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/healthz", nil)

	var health domain.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || len(health.Services) != 2 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestAuth_RejectsMissingOrBadToken(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signWith(t, "other-secret")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api.token = tt.token
			rec := api.do(t, http.MethodGet, "/v1/accounts", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func signWith(t *testing.T, secret string) string {
	t.Helper()
	token, err := service.NewAuthService(secret, zap.NewNop()).SignAccessToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	accruedOn := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rec := api.do(t, http.MethodPost, "/v1/transactions", domain.TransactionRequest{
		Date: accruedOn,
		Lines: []domain.LineInput{
			{Amount: 3000, LineType: "asset", Counterparty: "Alex"},
			{Amount: 3000, LineType: "income"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var txn domain.Transaction
	json.NewDecoder(rec.Body).Decode(&txn)
	var assetLine string
	for _, l := range txn.Lines {
		if l.LineType == domain.LineAsset {
			assetLine = l.ID
		}
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown field", http.MethodPost, "/v1/accounts", map[string]any{"nickname": "x"}, http.StatusBadRequest},
		{"validation", http.MethodPost, "/v1/accounts", domain.CreateAccountRequest{Type: "bank"}, http.StatusBadRequest},
		{"not found", http.MethodGet, "/v1/transactions/missing", nil, http.StatusNotFound},
		{"settle without accounts", http.MethodPost, "/v1/settlement/cash/settle", domain.SettleRequest{TransactionIDs: []string{txn.ID}, Date: accruedOn}, http.StatusOK},
		{"insufficient pool", http.MethodPost, "/v1/counterparties/settle-lines", domain.SettleLinesRequest{
			Counterparty: "Alex", LineType: "asset", LineIDs: []string{assetLine}, Date: accruedOn,
		}, http.StatusUnprocessableEntity},
		{"bad report range", http.MethodGet, "/v1/reports/pl?from=2024-05&to=2024-01", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
			if tt.want >= 400 && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("expected error body, got %s", rec.Body)
			}
		})
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/accounts", domain.CreateAccountRequest{
		Name:           "Checking",
		Type:           "bank",
		OpeningBalance: 10000,
		OpeningDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var acct domain.Account
	json.NewDecoder(rec.Body).Decode(&acct)

	rec = api.do(t, http.MethodGet, "/v1/accounts", nil)
	var list domain.ListResponse[domain.Account]
	json.NewDecoder(rec.Body).Decode(&list)
	if list.Total != 1 || list.Data[0].ID != acct.ID {
		t.Errorf("expected the created account listed, got %+v", list)
	}

	rec = api.do(t, http.MethodGet, "/v1/accounts/"+acct.ID+"/reconciliation", nil)
	var recon domain.AccountReconciliation
	json.NewDecoder(rec.Body).Decode(&recon)
	if rec.Code != http.StatusOK || recon.Drift != 0 || recon.ExpectedBalance != 10000 {
		t.Errorf("expected a clean reconciliation, got %d %+v", rec.Code, recon)
	}
}
