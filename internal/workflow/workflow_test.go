package workflow

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/market"
	"AgentPay/internal/payproto"
	"AgentPay/internal/task"
	"AgentPay/internal/token"
)

type workflowEnv struct {
	workflow *Workflow
	tokens   *token.Service
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()

	tokens := token.NewService(token.NewMemoryLedger(), 0)
	tokenServer := httptest.NewServer(token.NewHandler(tokens).Router())
	t.Cleanup(tokenServer.Close)

	catalog := market.NewMemoryCatalog(market.DefaultResources()...)
	gate := market.NewGate(catalog, &market.LocalDebitor{Tokens: tokens})
	marketServer := httptest.NewServer(market.NewHandler(catalog, gate).Router())
	t.Cleanup(marketServer.Close)

	marketClient, err := payproto.NewMarketClient(payproto.ClientConfig{BaseURL: marketServer.URL})
	if err != nil {
		t.Fatalf("market client: %v", err)
	}
	tokenClient, err := payproto.NewTokenClient(payproto.ClientConfig{BaseURL: tokenServer.URL})
	if err != nil {
		t.Fatalf("token client: %v", err)
	}
	return &workflowEnv{
		workflow: New(marketClient, tokenClient),
		tokens:   tokens,
	}
}

func TestWorkflowExecutePaidResource(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()

	report, err := env.workflow.Execute(ctx, &task.Task{
		ID:     "t1",
		Theme:  "acme",
		Budget: 50,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(report, "## acme") {
		t.Fatalf("unexpected report header: %q", report)
	}
	if !strings.Contains(report, "ACME Corp") {
		t.Fatalf("expected resource content in report, got %q", report)
	}

	issued, err := env.tokens.Issued(ctx)
	if err != nil {
		t.Fatalf("issued: %v", err)
	}
	if issued != 1 {
		t.Fatalf("expected 1 token issued, got %d", issued)
	}
}

func TestWorkflowExecuteBudgetExceeded(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()

	_, err := env.workflow.Execute(ctx, &task.Task{
		ID:     "t1",
		Theme:  "acme",
		Budget: 5,
	})
	if err == nil {
		t.Fatal("expected budget failure")
	}
	if xerrors.CodeOf(err) != xerrors.CodeBudgetExceeded {
		t.Fatalf("expected BUDGET_EXCEEDED, got %s", xerrors.CodeOf(err))
	}

	issued, err := env.tokens.Issued(ctx)
	if err != nil {
		t.Fatalf("issued: %v", err)
	}
	if issued != 0 {
		t.Fatalf("expected no tokens issued, got %d", issued)
	}
}

func TestWorkflowSearchFallback(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()

	// 主题检索无结果时回退到兜底资源。
	report, err := env.workflow.Execute(ctx, &task.Task{
		ID:     "t1",
		Theme:  "no-such-listing",
		Budget: 50,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(report, "ACME Corp") {
		t.Fatalf("expected fallback resource in report, got %q", report)
	}
}

func TestWorkflowFreeResourceSkipsPayment(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()

	report, err := env.workflow.Execute(ctx, &task.Task{
		ID:     "t1",
		Theme:  "globex",
		Budget: 0,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(report, "Globex Ltd") {
		t.Fatalf("expected free resource in report, got %q", report)
	}

	issued, err := env.tokens.Issued(ctx)
	if err != nil {
		t.Fatalf("issued: %v", err)
	}
	if issued != 0 {
		t.Fatalf("expected no tokens issued for free resource, got %d", issued)
	}
}
