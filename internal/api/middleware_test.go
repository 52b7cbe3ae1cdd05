package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/dfcbank/settlement-service/pkg/protocolsig"
)

type nonceGuardStub struct {
	seen map[string]bool
}

func newNonceGuardStub() *nonceGuardStub {
	return &nonceGuardStub{seen: make(map[string]bool)}
}

func (g *nonceGuardStub) Remember(ctx context.Context, nonce string) (bool, error) {
	if g.seen[nonce] {
		return false, nil
	}
	g.seen[nonce] = true
	return true, nil
}

func newSignatureTestKit(t *testing.T) (*keys.Store, string) {
	t.Helper()
	pub, priv, err := protocolsig.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair returned error: %v", err)
	}
	keyStore := keys.NewStore(keys.Source{}, keys.Source{Literal: pub})
	return keyStore, priv
}

func signedRequest(t *testing.T, method, target, body, nonce, privateKey string, timestamp int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))

	// The canonical string covers the path without the query, matching what
	// the verifier reconstructs on the receiving side.
	timestampRaw := fmt.Sprintf("%d", timestamp)
	canonical := protocolsig.CanonicalString(method, req.URL.Path, protocolsig.Sha256Hex([]byte(body)), nonce, timestampRaw)
	signature, err := protocolsig.Sign(canonical, privateKey)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	req.Header.Set(headerKeyID, "convertor-1")
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerTimestamp, timestampRaw)
	req.Header.Set(headerSignature, signature)
	return req
}

func TestSignatureMiddleware_RejectsMissingHeaders(t *testing.T) {
	keyStore, _ := newSignatureTestKit(t)
	handler := SignatureMiddleware(keyStore, newNonceGuardStub(), 5*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for an unsigned request")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/debit-request", strings.NewReader("{}")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Missing signature headers"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestSignatureMiddleware_AcceptsValidSignature(t *testing.T) {
	keyStore, privateKey := newSignatureTestKit(t)
	var sawBody string
	var sawMeta RequestMetadata
	handler := SignatureMiddleware(keyStore, newNonceGuardStub(), 5*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		sawBody = buf.String()
		sawMeta, _ = GetRequestMetadata(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"reference_id":"R1"}`
	req := signedRequest(t, http.MethodPost, "/api/debit-request", body, "nonce-1", privateKey, time.Now().UnixMilli())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if sawBody != body {
		t.Fatalf("expected raw body to be reinstated for the handler, got %q", sawBody)
	}
	if sawMeta.KeyID != "convertor-1" || sawMeta.Nonce != "nonce-1" {
		t.Fatalf("expected verified metadata in context, got %+v", sawMeta)
	}
}

func TestSignatureMiddleware_RejectsTamperedBody(t *testing.T) {
	keyStore, privateKey := newSignatureTestKit(t)
	handler := SignatureMiddleware(keyStore, newNonceGuardStub(), 5*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a tampered request")
	}))

	req := signedRequest(t, http.MethodPost, "/api/debit-request", `{"amount":100}`, "nonce-1", privateKey, time.Now().UnixMilli())
	req.Body = httptest.NewRequest(http.MethodPost, "/api/debit-request", strings.NewReader(`{"amount":999999}`)).Body
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Invalid signature"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestSignatureMiddleware_RejectsStaleTimestamp(t *testing.T) {
	keyStore, privateKey := newSignatureTestKit(t)
	handler := SignatureMiddleware(keyStore, newNonceGuardStub(), 5*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a stale request")
	}))

	stale := time.Now().Add(-10 * time.Minute).UnixMilli()
	req := signedRequest(t, http.MethodPost, "/api/debit-request", "{}", "nonce-1", privateKey, stale)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSignatureMiddleware_RejectsReplayedNonce(t *testing.T) {
	keyStore, privateKey := newSignatureTestKit(t)
	guard := newNonceGuardStub()
	handler := SignatureMiddleware(keyStore, guard, 5*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := signedRequest(t, http.MethodPost, "/api/debit-request", "{}", "nonce-replay", privateKey, time.Now().UnixMilli())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	second := signedRequest(t, http.MethodPost, "/api/debit-request", "{}", "nonce-replay", privateKey, time.Now().UnixMilli())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected with 401, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Replayed nonce"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestSignatureMiddleware_UnavailableKeyIs503(t *testing.T) {
	keyStore := keys.NewStore(keys.Source{}, keys.Source{})
	handler := SignatureMiddleware(keyStore, newNonceGuardStub(), 5*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a verification key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/debit-request", strings.NewReader("{}"))
	req.Header.Set(headerKeyID, "convertor-1")
	req.Header.Set(headerNonce, "nonce-1")
	req.Header.Set(headerTimestamp, fmt.Sprintf("%d", time.Now().UnixMilli()))
	req.Header.Set(headerSignature, "c2ln")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestInternalAPIKeyMiddleware(t *testing.T) {
	handler := InternalAPIKeyMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/accounts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	req.Header.Set("X-Internal-Api-Key", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}

	// An unset key disables the surface even for empty header matches.
	disabled := InternalAPIKeyMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/accounts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no key is configured, got %d", rec.Code)
	}
}
