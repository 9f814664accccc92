package svcauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewWithoutSecret(t *testing.T) {
	if signer := New(Config{}); signer != nil {
		t.Fatal("expected nil signer when secret is empty")
	}
	if signer := New(Config{Secret: "   "}); signer != nil {
		t.Fatal("expected nil signer for blank secret")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	signer := New(Config{Secret: "shared", Issuer: "agentpay", Service: "marketd"})
	raw, err := signer.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	subject, err := signer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "marketd" {
		t.Fatalf("expected subject marketd, got %s", subject)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	signer := New(Config{Secret: "shared", Issuer: "agentpay", Service: "marketd"})
	other := New(Config{Secret: "different", Issuer: "agentpay", Service: "marketd"})
	raw, err := other.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if _, err := signer.Verify(raw); err == nil {
		t.Fatal("expected verification failure for mismatched secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer := New(Config{Secret: "shared", Issuer: "agentpay", Service: "marketd", TTL: time.Nanosecond})
	raw, err := signer.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := signer.Verify(raw); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestMiddleware(t *testing.T) {
	signer := New(Config{Secret: "shared", Issuer: "agentpay", Service: "tokend"})
	handler := signer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/internal", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credential, got %d", recorder.Code)
	}

	raw, err := signer.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/internal", nil)
	request.Header.Set("Authorization", "Bearer "+raw)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with credential, got %d", recorder.Code)
	}
}

func TestNilSignerPassthrough(t *testing.T) {
	var signer *Signer
	if hook := signer.Credential(); hook != nil {
		t.Fatal("expected nil credential hook for nil signer")
	}

	handler := signer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/internal", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected passthrough for disabled auth, got %d", recorder.Code)
	}
}
