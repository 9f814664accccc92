package token

import "context"

// Ledger 抽象了支付令牌台账的持久化接口。
// 实现必须保证 Debit 是针对单个令牌的原子检查加扣减，
// 且绝不在持锁状态下发起网络调用。
type Ledger interface {
	Insert(ctx context.Context, token *PaymentToken) error
	// Balance 返回剩余余额。未知或已过期的令牌按余额 0 处理，不视为错误。
	Balance(ctx context.Context, id string) (int64, error)
	// Debit 原子地校验有效期与余额并扣减，返回扣减后的余额。
	Debit(ctx context.Context, id string, amount int64) (int64, error)
	// Issued 返回累计发放的令牌数量。
	Issued(ctx context.Context) (int64, error)
	Close() error
}
