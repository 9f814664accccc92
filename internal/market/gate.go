package market

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/observability/metrics"
	"AgentPay/pkg/logger"
)

// Debitor 抽象了结算时消耗令牌余额的能力。
// 进程内部署直接包装令牌服务，跨进程部署使用 HTTP 客户端实现。
type Debitor interface {
	// Debit 返回扣款是否被接受；error 仅表示传输层故障。
	Debit(ctx context.Context, tokenID string, amount int64) (bool, error)
}

// Gate 记录已结算的支付并在资源访问时核销。
// 权益一次性使用：成功获取资源即消耗对应结算额度。
type Gate struct {
	catalog Catalog
	debitor Debitor

	mu sync.Mutex
	// bound 保存绑定到具体资源的结算：token -> resource -> 已付金额。
	bound map[string]map[string]int64
	// unbound 保存未声明资源的结算余额：token -> 已付总额。
	unbound map[string]int64
}

// NewGate 构造支付闸门。
func NewGate(catalog Catalog, debitor Debitor) *Gate {
	return &Gate{
		catalog: catalog,
		debitor: debitor,
		bound:   make(map[string]map[string]int64),
		unbound: make(map[string]int64),
	}
}

// Settle 处理一笔支付结算。返回结算是否被接受；error 仅表示传输层故障。
// 拒绝的结算不产生任何状态变化。
func (g *Gate) Settle(ctx context.Context, tokenID string, amount int64, resourceID string) (bool, error) {
	accepted, err := g.settle(ctx, tokenID, amount, resourceID)
	if err == nil {
		metrics.ObserveSettlement(accepted)
	}
	return accepted, err
}

func (g *Gate) settle(ctx context.Context, tokenID string, amount int64, resourceID string) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" || amount <= 0 {
		return false, nil
	}

	// 声明了目标资源时，金额必须与报价完全一致。
	if resourceID != "" {
		resource, err := g.catalog.Get(ctx, resourceID)
		if err != nil {
			if xerrors.CodeOf(err) == xerrors.CodeNotFound {
				return false, nil
			}
			return false, err
		}
		if amount != resource.Price {
			logger.L().Warn("结算金额与报价不符",
				slog.String("token_id", tokenID),
				slog.String("resource_id", resourceID),
				slog.Int64("amount", amount),
				slog.Int64("price", resource.Price),
			)
			return false, nil
		}
	}

	// 先在令牌服务完成扣款，再登记权益。扣款调用不持有闸门锁。
	accepted, err := g.debitor.Debit(ctx, tokenID, amount)
	if err != nil {
		return false, err
	}
	if !accepted {
		return false, nil
	}

	g.mu.Lock()
	if resourceID != "" {
		entitlements := g.bound[tokenID]
		if entitlements == nil {
			entitlements = make(map[string]int64, 1)
			g.bound[tokenID] = entitlements
		}
		entitlements[resourceID] += amount
	} else {
		g.unbound[tokenID] += amount
	}
	g.mu.Unlock()

	logger.Audit().Info("支付结算成功",
		slog.String("token_id", tokenID),
		slog.String("resource_id", resourceID),
		slog.Int64("amount", amount),
	)
	return true, nil
}

// Redeem 判断令牌是否已为指定资源付足价款，成立则消耗该权益。
func (g *Gate) Redeem(tokenID, resourceID string, price int64) bool {
	if strings.TrimSpace(tokenID) == "" {
		return false
	}
	if price <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if entitlements, ok := g.bound[tokenID]; ok {
		if paid, ok := entitlements[resourceID]; ok && paid >= price {
			delete(entitlements, resourceID)
			if len(entitlements) == 0 {
				delete(g.bound, tokenID)
			}
			return true
		}
	}
	if paid, ok := g.unbound[tokenID]; ok && paid >= price {
		remaining := paid - price
		if remaining > 0 {
			g.unbound[tokenID] = remaining
		} else {
			delete(g.unbound, tokenID)
		}
		return true
	}
	return false
}
