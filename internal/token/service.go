package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/observability/metrics"
	"AgentPay/pkg/logger"
)

// DefaultExpireIn 是参考策略下令牌的有效期（秒）。
const DefaultExpireIn int64 = 3600

// Service 负责令牌的发放、余额查询与结算扣款。
type Service struct {
	ledger   Ledger
	expireIn int64
}

// NewService 构造令牌服务。expireIn 非正数时采用默认有效期。
func NewService(ledger Ledger, expireIn int64) *Service {
	if expireIn <= 0 {
		expireIn = DefaultExpireIn
	}
	return &Service{ledger: ledger, expireIn: expireIn}
}

// Issue 发放一个新令牌，余额等于申请的预算。
// 负数预算在边界直接拒绝，不产生任何台账记录。
func (s *Service) Issue(ctx context.Context, budget int64, holder string) (*PaymentToken, error) {
	if s == nil || s.ledger == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "令牌服务未初始化")
	}
	if budget < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidBudget, "预算不能为负数")
	}
	token := &PaymentToken{
		ID:       uuid.NewString(),
		Holder:   holder,
		Balance:  budget,
		IssuedAt: time.Now().Unix(),
		ExpireIn: s.expireIn,
	}
	if err := s.ledger.Insert(ctx, token); err != nil {
		return nil, err
	}
	metrics.ObserveTokenIssued()
	logger.Audit().Info("令牌发放成功",
		slog.String("token_id", token.ID),
		slog.String("holder", holder),
		slog.Int64("budget", budget),
		slog.Int64("expire_in", token.ExpireIn),
	)
	return token, nil
}

// Balance 返回令牌剩余余额。未知或过期令牌按 0 处理，保持查询幂等。
func (s *Service) Balance(ctx context.Context, id string) (int64, error) {
	if s == nil || s.ledger == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "令牌服务未初始化")
	}
	return s.ledger.Balance(ctx, id)
}

// Debit 在结算时消耗令牌余额，过期校验在此处强制执行。
func (s *Service) Debit(ctx context.Context, id string, amount int64) (int64, error) {
	if s == nil || s.ledger == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "令牌服务未初始化")
	}
	balance, err := s.ledger.Debit(ctx, id, amount)
	if err != nil {
		logger.L().Warn("令牌扣款被拒绝",
			slog.String("token_id", id),
			slog.Int64("amount", amount),
			slog.String("reason", err.Error()),
		)
		return balance, err
	}
	logger.Audit().Info("令牌扣款成功",
		slog.String("token_id", id),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// Issued 返回累计发放的令牌数量。
func (s *Service) Issued(ctx context.Context) (int64, error) {
	if s == nil || s.ledger == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "令牌服务未初始化")
	}
	return s.ledger.Issued(ctx)
}

// Close 释放底层台账资源。
func (s *Service) Close() error {
	if s == nil || s.ledger == nil {
		return nil
	}
	return s.ledger.Close()
}
