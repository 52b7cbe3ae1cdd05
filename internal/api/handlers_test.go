package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dfcbank/settlement-service/internal/app"
	"github.com/dfcbank/settlement-service/internal/config"
	"github.com/dfcbank/settlement-service/internal/domain"
	"github.com/dfcbank/settlement-service/internal/store"
	"github.com/google/uuid"
)

type apiRepoStub struct {
	store.Repository

	duplicateAccountNumber string
	accounts               []domain.Account
}

func (s *apiRepoStub) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account.AccountNumber == s.duplicateAccountNumber {
		return nil, store.ErrDuplicateAccountNumber
	}
	created := *account
	created.ID = uuid.New()
	s.accounts = append(s.accounts, created)
	return &created, nil
}

func (s *apiRepoStub) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts, nil
}

func (s *apiRepoStub) FindLatestTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	return nil, store.ErrTransactionNotFound
}

func newTestRouter(t *testing.T, repo store.Repository) (http.Handler, string) {
	t.Helper()
	keyStore, privateKey := newSignatureTestKit(t)
	service := app.NewService(repo, keyStore, nil, nil)
	handlers := NewSettlementHandlers(service, func() string { return "DFC Bank" })
	runtime := config.NewRuntimeConfig(nil, config.Config{BankCode: "DFC", BankName: "DFC Bank"})
	admin := NewAdminHandlers(repo, runtime, keyStore, nil)
	router := SettlementRoutes(handlers, admin, keyStore, newNonceGuardStub(), 5*time.Minute, "internal-secret")
	return router, privateKey
}

func TestRouter_HealthReportsBankIdentity(t *testing.T) {
	router, _ := newTestRouter(t, &apiRepoStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body["status"] != "ok" || body["bank"] != "DFC Bank" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestRouter_UnsignedDebitRequestIsRejected(t *testing.T) {
	router, _ := newTestRouter(t, &apiRepoStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/debit-request", strings.NewReader(`{"reference_id":"R1"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Missing signature headers"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestRouter_SignedTransactionStatus(t *testing.T) {
	router, privateKey := newTestRouter(t, &apiRepoStub{})

	body := `{"reference_id":"R-unseen"}`
	req := signedRequest(t, http.MethodPost, "/api/transaction-status", body, "nonce-status-1", privateKey, time.Now().UnixMilli())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["state"] != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN state, got %q", resp["state"])
	}
}

func TestAdmin_CreateAccount(t *testing.T) {
	repo := &apiRepoStub{duplicateAccountNumber: "ACC-TAKEN"}
	router, _ := newTestRouter(t, repo)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/accounts", strings.NewReader(body))
		req.Header.Set("X-Internal-Api-Key", "internal-secret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"userId":"user-1","userName":"Jane Doe","accountNumber":"ACC-9","initialBalance":5000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created domain.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created account: %v", err)
	}
	if created.Currency != "UGX" {
		t.Fatalf("expected UGX currency default, got %q", created.Currency)
	}

	rec = post(`{"userId":"user-2","userName":"John Doe","accountNumber":"ACC-TAKEN"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate account number, got %d", rec.Code)
	}

	rec = post(`{"userId":"","userName":"","accountNumber":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}

	// Without the internal key the admin surface is invisible.
	req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	plain := httptest.NewRecorder()
	router.ServeHTTP(plain, req)
	if plain.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without internal key, got %d", plain.Code)
	}
}

func TestRouter_SignedBalanceQuery(t *testing.T) {
	repo := &balanceRepoStub{}
	router, privateKey := newTestRouter(t, repo)

	req := signedRequest(t, http.MethodGet, "/api/account-balance?connection_token_hash=hash-1", "", "nonce-bal-1", privateKey, time.Now().UnixMilli())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance  int64  `json:"balance"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Balance != 10000 || resp.Currency != "UGX" {
		t.Fatalf("unexpected balance response: %+v", resp)
	}
}

type balanceRepoStub struct {
	store.Repository
}

func (s *balanceRepoStub) FindConnectionTokenByHash(ctx context.Context, tokenHash string) (*domain.ConnectionToken, error) {
	if tokenHash != "hash-1" {
		return nil, store.ErrTokenNotFound
	}
	return &domain.ConnectionToken{UserID: "user-1", TokenHash: tokenHash, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *balanceRepoStub) FindAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	return &domain.Account{ID: uuid.New(), UserID: userID, AccountNumber: "ACC-1", Balance: 10000, Currency: "UGX"}, nil
}
