package market

import (
	"context"
	"testing"

	"AgentPay/internal/token"
)

func newTestGate(t *testing.T, budget int64) (*Gate, string) {
	t.Helper()
	tokens := token.NewService(token.NewMemoryLedger(), 0)
	issued, err := tokens.Issue(context.Background(), budget, "agent-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	gate := NewGate(NewMemoryCatalog(DefaultResources()...), &LocalDebitor{Tokens: tokens})
	return gate, issued.ID
}

func TestGateSettleAndRedeem(t *testing.T) {
	ctx := context.Background()
	gate, tokenID := newTestGate(t, 10)

	accepted, err := gate.Settle(ctx, tokenID, 10, "1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !accepted {
		t.Fatal("expected settlement to be accepted")
	}

	if !gate.Redeem(tokenID, "1", 10) {
		t.Fatal("expected redemption to succeed after settlement")
	}
	// 权益一次性使用。
	if gate.Redeem(tokenID, "1", 10) {
		t.Fatal("expected second redemption to fail")
	}
}

func TestGateSettleAmountMismatch(t *testing.T) {
	ctx := context.Background()
	gate, tokenID := newTestGate(t, 100)

	accepted, err := gate.Settle(ctx, tokenID, 5, "1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if accepted {
		t.Fatal("expected mismatched amount to be rejected")
	}
	if gate.Redeem(tokenID, "1", 10) {
		t.Fatal("expected no entitlement after rejected settlement")
	}
}

func TestGateSettleNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	gate, tokenID := newTestGate(t, 10)

	for _, amount := range []int64{0, -5} {
		accepted, err := gate.Settle(ctx, tokenID, amount, "")
		if err != nil {
			t.Fatalf("settle %d: %v", amount, err)
		}
		if accepted {
			t.Fatalf("expected amount %d to be rejected", amount)
		}
	}
}

func TestGateSettleInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	gate, tokenID := newTestGate(t, 5)

	accepted, err := gate.Settle(ctx, tokenID, 10, "1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if accepted {
		t.Fatal("expected settlement beyond balance to be rejected")
	}
}

func TestGateSettleUnknownResource(t *testing.T) {
	ctx := context.Background()
	gate, tokenID := newTestGate(t, 10)

	accepted, err := gate.Settle(ctx, tokenID, 10, "999")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if accepted {
		t.Fatal("expected settlement for unknown resource to be rejected")
	}
}

func TestGateUnboundSettlement(t *testing.T) {
	ctx := context.Background()
	gate, tokenID := newTestGate(t, 10)

	accepted, err := gate.Settle(ctx, tokenID, 10, "")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !accepted {
		t.Fatal("expected unbound settlement to be accepted")
	}
	if !gate.Redeem(tokenID, "1", 10) {
		t.Fatal("expected unbound entitlement to cover the resource price")
	}
	if gate.Redeem(tokenID, "1", 10) {
		t.Fatal("expected entitlement to be consumed")
	}
}

func TestGateRedeemFreeResource(t *testing.T) {
	gate, tokenID := newTestGate(t, 10)

	if !gate.Redeem(tokenID, "2", 0) {
		t.Fatal("expected free resource to always redeem")
	}
}
