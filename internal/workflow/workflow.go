// Package workflow 将任务请求翻译成一次完整的付费抓取流程:
// 先在资源市场中检索任务主题对应的目标资源,再通过支付协议
// 获取资源内容,最后将内容整理成研究报告。
package workflow

import (
	"context"
	"log/slog"
	"strings"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/payproto"
	"AgentPay/internal/research"
	"AgentPay/internal/task"
	"AgentPay/pkg/logger"
)

// DefaultTargetResource 是检索无结果时的兜底资源。
const DefaultTargetResource = "1"

// Workflow 实现 task.Executor。
type Workflow struct {
	driver        *payproto.Driver
	market        *payproto.MarketClient
	composer      research.Composer
	defaultTarget string
}

// Option 定义可选配置。
type Option func(*Workflow)

// WithDefaultTarget 覆盖检索无结果时使用的兜底资源。
func WithDefaultTarget(resourceID string) Option {
	return func(w *Workflow) {
		if resourceID != "" {
			w.defaultTarget = resourceID
		}
	}
}

// WithComposer 覆盖报告生成器。
func WithComposer(composer research.Composer) Option {
	return func(w *Workflow) {
		if composer != nil {
			w.composer = composer
		}
	}
}

// New 构造 Workflow。
func New(market *payproto.MarketClient, tokens *payproto.TokenClient, opts ...Option) *Workflow {
	w := &Workflow{
		driver:        payproto.NewDriver(market, tokens),
		market:        market,
		composer:      research.MarkdownComposer{},
		defaultTarget: DefaultTargetResource,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Execute 实现 task.Executor。
func (w *Workflow) Execute(ctx context.Context, t *task.Task) (string, error) {
	if w == nil || w.driver == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "工作流未初始化")
	}
	target := w.resolveTarget(ctx, t.Theme)

	outcome, err := w.driver.Fetch(ctx, target, t.Budget, t.VoiceID)
	if err != nil {
		return "", err
	}
	logger.L().Info("资源获取完成",
		slog.String("task_id", t.ID),
		slog.String("resource_id", target),
		slog.Int64("price", outcome.Price),
		slog.String("token_id", outcome.TokenID),
	)

	report, err := w.composer.Compose(ctx, t.Theme, outcome.Resource)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "生成研究报告失败")
	}
	return report, nil
}

// resolveTarget 通过关键字检索确定目标资源。
// 检索失败或无结果时回退到兜底资源,由后续抓取流程给出最终结论。
func (w *Workflow) resolveTarget(ctx context.Context, theme string) string {
	keyword := strings.TrimSpace(theme)
	if keyword == "" || w.market == nil {
		return w.defaultTarget
	}
	summaries, err := w.market.Search(ctx, keyword)
	if err != nil {
		logger.L().Warn("资源检索失败,使用兜底资源",
			slog.Any("error", err),
			slog.String("keyword", keyword),
		)
		return w.defaultTarget
	}
	if len(summaries) == 0 {
		return w.defaultTarget
	}
	return summaries[0].ID
}

var _ task.Executor = (*Workflow)(nil)
