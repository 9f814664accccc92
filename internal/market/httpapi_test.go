package market

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"AgentPay/internal/token"
)

func newMarketServer(t *testing.T) (*httptest.Server, *token.Service) {
	t.Helper()
	tokens := token.NewService(token.NewMemoryLedger(), 0)
	catalog := NewMemoryCatalog(DefaultResources()...)
	gate := NewGate(catalog, &LocalDebitor{Tokens: tokens})
	server := httptest.NewServer(NewHandler(catalog, gate).Router())
	t.Cleanup(server.Close)
	return server, tokens
}

func getDetail(t *testing.T, server *httptest.Server, id, tokenID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+"/resource/detail?id="+id, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if tokenID != "" {
		req.Header.Set(PaymentTokenHeader, tokenID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	return resp
}

func TestDetailPricedRefusal(t *testing.T) {
	server, _ := newMarketServer(t)

	resp := getDetail(t, server, "1", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
	var quote map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote["price"] != 10 {
		t.Fatalf("expected price 10, got %d", quote["price"])
	}
}

func TestDetailFreeResource(t *testing.T) {
	server, _ := newMarketServer(t)

	resp := getDetail(t, server, "2", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for free resource, got %d", resp.StatusCode)
	}
}

func TestDetailUnknownResource(t *testing.T) {
	server, _ := newMarketServer(t)

	resp := getDetail(t, server, "999", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPaySettleAndFetch(t *testing.T) {
	server, tokens := newMarketServer(t)

	issued, err := tokens.Issue(context.Background(), 10, "agent-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	payBody, _ := json.Marshal(map[string]any{
		"tokenId":     issued.ID,
		"amount":      int64(10),
		"resource_id": "1",
	})
	resp, err := http.Post(server.URL+"/resource/pay", "application/json", bytes.NewReader(payBody))
	if err != nil {
		t.Fatalf("post pay: %v", err)
	}
	var result map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode pay response: %v", err)
	}
	resp.Body.Close()
	if !result["success"] {
		t.Fatal("expected settlement to succeed")
	}

	detail := getDetail(t, server, "1", issued.ID)
	defer detail.Body.Close()
	if detail.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after settlement, got %d", detail.StatusCode)
	}
	var resource Resource
	if err := json.NewDecoder(detail.Body).Decode(&resource); err != nil {
		t.Fatalf("decode resource: %v", err)
	}
	if resource.Name != "ACME Corp" {
		t.Fatalf("unexpected resource name %q", resource.Name)
	}

	// 权益已消耗，再次请求回到 402。
	again := getDetail(t, server, "1", issued.ID)
	defer again.Body.Close()
	if again.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 after entitlement consumed, got %d", again.StatusCode)
	}
}

func TestPayRejectedWithoutBalance(t *testing.T) {
	server, _ := newMarketServer(t)

	payBody := []byte(`{"tokenId":"missing","amount":10,"resource_id":"1"}`)
	resp, err := http.Post(server.URL+"/resource/pay", "application/json", bytes.NewReader(payBody))
	if err != nil {
		t.Fatalf("post pay: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode pay response: %v", err)
	}
	if result["success"] {
		t.Fatal("expected settlement for unknown token to be rejected")
	}
}

func TestSearchResources(t *testing.T) {
	server, _ := newMarketServer(t)

	resp, err := http.Get(server.URL + "/resource/basic?keyword=acme")
	if err != nil {
		t.Fatalf("get search: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string][]Summary
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	results := payload["data"]
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "1" || results[0].Name != "ACME Corp" {
		t.Fatalf("unexpected result %+v", results[0])
	}
}
