package payproto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/observability/metrics"
	"AgentPay/pkg/logger"
)

// State 表示握手状态机中的一个状态。
type State string

const (
	StateInitial         State = "initial"
	StateProbeSent       State = "probe_sent"
	StateResourceGranted State = "resource_granted"
	StatePriceQuoted     State = "price_quoted"
	StateTokenRequested  State = "token_requested"
	StateTokenIssued     State = "token_issued"
	StatePaymentSettled  State = "payment_settled"
	StateRetryGranted    State = "retry_granted"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Outcome 保存一次握手的结果与完整的状态轨迹。
// 失败时 Trace 以 StateFailed 结尾，错误码见返回的 error。
type Outcome struct {
	Resource json.RawMessage
	Price    int64
	TokenID  string
	Trace    []State
}

// Driver 驱动付费闸门抓取协议。
// 每次 Fetch 是一次独立的握手：最多一个报价、一个令牌、一次结算与一次重试。
type Driver struct {
	market *MarketClient
	tokens *TokenClient
}

// NewDriver 构造协议驱动器。
func NewDriver(market *MarketClient, tokens *TokenClient) *Driver {
	return &Driver{market: market, tokens: tokens}
}

// Fetch 执行一次完整的握手。budget 是调用方授权的消费上限，
// 协议绝不申请超出该上限的令牌，也不会在预算不足时继续推进。
func (d *Driver) Fetch(ctx context.Context, resourceID string, budget int64, holder string) (*Outcome, error) {
	outcome := &Outcome{Trace: []State{StateInitial}}
	advance := func(state State) {
		outcome.Trace = append(outcome.Trace, state)
	}
	fail := func(err error) (*Outcome, error) {
		advance(StateFailed)
		metrics.ObserveHandshake(string(StateFailed))
		return outcome, err
	}

	if d == nil || d.market == nil || d.tokens == nil {
		return fail(xerrors.New(xerrors.CodeInitializationFailure, "协议驱动器未初始化"))
	}

	// 1. 未认证探测。
	advance(StateProbeSent)
	probe, err := d.market.FetchDetail(ctx, resourceID, "")
	if err != nil {
		return fail(err)
	}

	// 2a. 免费资源直接返回。
	if probe.Granted {
		outcome.Resource = probe.Body
		advance(StateResourceGranted)
		advance(StateDone)
		metrics.ObserveHandshake(string(StateDone))
		return outcome, nil
	}

	// 2b. 捕获报价。
	outcome.Price = probe.Price
	advance(StatePriceQuoted)
	if probe.Price > budget {
		return fail(xerrors.New(xerrors.CodeBudgetExceeded,
			fmt.Sprintf("报价 %d 超出授权预算 %d", probe.Price, budget)))
	}

	// 3. 按报价金额申请令牌，预算上限由上面的检查保证。
	advance(StateTokenRequested)
	issued, err := d.tokens.Issue(ctx, probe.Price, holder)
	if err != nil {
		return fail(err)
	}
	outcome.TokenID = issued.TokenID
	advance(StateTokenIssued)

	// 4. 提交结算。
	accepted, err := d.market.Pay(ctx, issued.TokenID, probe.Price, resourceID)
	if err != nil {
		return fail(err)
	}
	if !accepted {
		return fail(xerrors.New(xerrors.CodePaymentNotHonored, "结算被资源服务拒绝"))
	}
	advance(StatePaymentSettled)

	// 5. 携带令牌重试一次。再次被拒按硬失败处理，不进入循环。
	retry, err := d.market.FetchDetail(ctx, resourceID, issued.TokenID)
	if err != nil {
		return fail(err)
	}
	if !retry.Granted {
		logger.L().Error("结算后资源仍被拒绝",
			slog.String("resource_id", resourceID),
			slog.String("token_id", issued.TokenID),
			slog.Int64("price", probe.Price),
		)
		return fail(xerrors.New(xerrors.CodePaymentNotHonored, "支付完成后资源仍被拒绝"))
	}
	advance(StateRetryGranted)

	outcome.Resource = retry.Body
	advance(StateDone)
	metrics.ObserveHandshake(string(StateDone))
	return outcome, nil
}
