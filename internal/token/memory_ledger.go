package token

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "AgentPay/internal/errors"
)

// MemoryLedger 以内存方式保存令牌台账，主要用于测试与单机部署。
type MemoryLedger struct {
	mu     sync.RWMutex
	tokens map[string]*PaymentToken
	issued int64

	// now 可在测试中替换以模拟过期。
	now func() time.Time
}

// NewMemoryLedger 创建 MemoryLedger。
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		tokens: make(map[string]*PaymentToken),
		now:    time.Now,
	}
}

// Insert 实现 Ledger 接口。
func (m *MemoryLedger) Insert(_ context.Context, token *PaymentToken) error {
	if token == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "token 不能为空")
	}
	if strings.TrimSpace(token.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "令牌 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.ID]; ok {
		return xerrors.New(xerrors.CodeConflict, "令牌 ID 已存在")
	}
	if token.IssuedAt == 0 {
		token.IssuedAt = m.now().Unix()
	}
	clone := *token
	m.tokens[token.ID] = &clone
	m.issued++
	return nil
}

// Balance 返回剩余余额，未知或过期令牌返回 0。
func (m *MemoryLedger) Balance(_ context.Context, id string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[id]
	if !ok || token.Expired(m.now()) {
		return 0, nil
	}
	return token.Balance, nil
}

// Debit 原子地校验并扣减余额。余额不会降到零以下。
func (m *MemoryLedger) Debit(_ context.Context, id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "扣款金额必须为正数")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok {
		return 0, ErrTokenNotFound
	}
	if token.Expired(m.now()) {
		return 0, ErrTokenExpired
	}
	if token.Balance < amount {
		return token.Balance, ErrInsufficientBalance
	}
	token.Balance -= amount
	return token.Balance, nil
}

// Issued 返回累计发放数量。
func (m *MemoryLedger) Issued(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.issued, nil
}

// Close 对内存台账无需操作。
func (m *MemoryLedger) Close() error {
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)
