package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := NewHandler(NewService(NewMemoryLedger(), 0))
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return server
}

func issueToken(t *testing.T, server *httptest.Server, budget int64) issueResponse {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"budget": budget, "voice_id": "agent-1"})
	resp, err := http.Post(server.URL+"/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post /token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var issued issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		t.Fatalf("decode issue response: %v", err)
	}
	return issued
}

func TestHandlerIssueAndBalance(t *testing.T) {
	server := newTestServer(t)

	issued := issueToken(t, server, 25)
	if issued.TokenID == "" {
		t.Fatal("expected a token id")
	}
	if issued.ExpireIn != DefaultExpireIn {
		t.Fatalf("expected expire_in %d, got %d", DefaultExpireIn, issued.ExpireIn)
	}

	resp, err := http.Get(server.URL + "/balance/" + issued.TokenID)
	if err != nil {
		t.Fatalf("get /balance: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if payload["balance"] != 25 {
		t.Fatalf("expected balance 25, got %d", payload["balance"])
	}
}

func TestHandlerIssueNegativeBudget(t *testing.T) {
	server := newTestServer(t)

	body := bytes.NewReader([]byte(`{"budget": -1, "voice_id": "agent-1"}`))
	resp, err := http.Post(server.URL+"/token", "application/json", body)
	if err != nil {
		t.Fatalf("post /token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload["code"] != "INVALID_BUDGET" {
		t.Fatalf("expected code INVALID_BUDGET, got %s", payload["code"])
	}
}

func TestHandlerBalanceUnknownToken(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/balance/does-not-exist")
	if err != nil {
		t.Fatalf("get /balance: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if payload["balance"] != 0 {
		t.Fatalf("expected balance 0, got %d", payload["balance"])
	}
}

func TestHandlerDebit(t *testing.T) {
	server := newTestServer(t)
	issued := issueToken(t, server, 10)

	debit := func(amount int64) debitResponse {
		body, _ := json.Marshal(map[string]int64{"amount": amount})
		url := fmt.Sprintf("%s/token/%s/debit", server.URL, issued.TokenID)
		resp, err := http.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("post debit: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var result debitResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("decode debit response: %v", err)
		}
		return result
	}

	first := debit(10)
	if !first.Success || first.Balance != 0 {
		t.Fatalf("expected accepted debit with balance 0, got %+v", first)
	}

	second := debit(1)
	if second.Success {
		t.Fatalf("expected second debit to be rejected, got %+v", second)
	}
}
