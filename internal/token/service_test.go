package token

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	xerrors "AgentPay/internal/errors"
)

func TestServiceIssueAndBalance(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryLedger(), 0)

	issued, err := svc.Issue(ctx, 50, "agent-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.ID == "" {
		t.Fatal("expected a token id")
	}
	if issued.ExpireIn != DefaultExpireIn {
		t.Fatalf("expected default expire_in %d, got %d", DefaultExpireIn, issued.ExpireIn)
	}

	balance, err := svc.Balance(ctx, issued.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}
}

func TestServiceIssueZeroBudget(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryLedger(), 0)

	issued, err := svc.Issue(ctx, 0, "agent-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	balance, err := svc.Balance(ctx, issued.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestServiceIssueNegativeBudget(t *testing.T) {
	svc := NewService(NewMemoryLedger(), 0)

	_, err := svc.Issue(context.Background(), -5, "agent-1")
	if err == nil {
		t.Fatal("expected an error for negative budget")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInvalidBudget {
		t.Fatalf("expected code %s, got %s", xerrors.CodeInvalidBudget, xerrors.CodeOf(err))
	}
}

func TestServiceBalanceUnknownToken(t *testing.T) {
	svc := NewService(NewMemoryLedger(), 0)

	balance, err := svc.Balance(context.Background(), "missing")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 for unknown token, got %d", balance)
	}
}

func TestServiceDebit(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryLedger(), 0)

	issued, err := svc.Issue(ctx, 10, "agent-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	remaining, err := svc.Debit(ctx, issued.ID, 10)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected balance 0 after full debit, got %d", remaining)
	}

	if _, err := svc.Debit(ctx, issued.ID, 1); !stdErrors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestServiceDebitExpiredToken(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	svc := NewService(ledger, 60)

	issued, err := svc.Issue(ctx, 10, "agent-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ledger.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := svc.Debit(ctx, issued.ID, 10); !stdErrors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	balance, err := svc.Balance(ctx, issued.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected expired token balance 0, got %d", balance)
	}
}

func TestServiceIssuedCounter(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryLedger(), 0)

	for i := 0; i < 3; i++ {
		if _, err := svc.Issue(ctx, 5, "agent-1"); err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
	}
	count, err := svc.Issued(ctx)
	if err != nil {
		t.Fatalf("issued: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 issued tokens, got %d", count)
	}
}
