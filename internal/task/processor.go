package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/observability/alerting"
	"AgentPay/pkg/logger"
)

// Executor 封装单个任务的付费抓取流程。
// 返回的字符串是任务产出的研究报告。
type Executor interface {
	Execute(ctx context.Context, t *Task) (string, error)
}

// Processor 负责从队列消费任务并驱动付费抓取。
// 协议失败(预算不足、支付未兑现、上游不可用)是终态,
// 写入任务记录后不再重投队列。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	t, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskFinished) || stdErrors.Is(err, ErrTaskConflict) {
			p.logDebug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}

	report, execErr := p.executor.Execute(ctx, t)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, t, execErr)
	}

	if err := p.store.MarkCompleted(ctx, t.ID, report); err != nil {
		logger.L().Error("标记任务完成状态失败", slog.Any("error", err), slog.String("task_id", t.ID))
		if storeErr := p.store.MarkFailed(ctx, t.ID, string(CodeTaskProcessing), err.Error()); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("task_id", t.ID))
			return storeErr
		}
		p.emitAlert(ctx, t, CodeTaskProcessing, err, "record")
		return nil
	}
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", t.ID),
		slog.String("theme", t.Theme),
		slog.Int64("budget", t.Budget),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, t *Task, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}

	if storeErr := p.store.MarkFailed(ctx, t.ID, string(code), execErr.Error()); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", t.ID))
		return storeErr
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", t.ID),
		slog.String("theme", t.Theme),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", t.Attempts),
	)

	if xerrors.ShouldAlert(execErr) {
		p.emitAlert(ctx, t, code, execErr, "execute")
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, t *Task, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || t == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     t.ID,
		Attempts:   t.Attempts,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", t.ID),
			slog.String("stage", stage),
		)
	}
}
