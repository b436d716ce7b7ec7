package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/observability/alerting"
	"TravelPlanner/internal/pipeline"
	"TravelPlanner/internal/travel"
	"TravelPlanner/pkg/logger"
)

// Executor 是处理器依赖的搜索流水线能力。
type Executor interface {
	Run(ctx context.Context, query string, mode pipeline.Mode) (*travel.SearchResults, error)
}

// Processor 从队列消费作业 ID，领取后交给流水线执行，
// 并把结果或失败原因回写到存储。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithWorkerCount 设置消费协程数量，非正数被忽略。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// NewProcessor 构造 Processor，默认单 worker。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
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

// Start 阻塞运行消费循环直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置作业消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

// handle 处理单个作业 ID。返回非 nil 错误仅表示基础设施故障，
// 业务层面的执行失败在这里消化并转化为失败状态或重投。
func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}

	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		// 不存在、已完成、重试耗尽都是正常的消费路径，直接丢弃消息。
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("跳过作业", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取作业失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeJobProcessing, err, "claim")
		return err
	}

	result, execErr := p.execute(ctx, job)
	if execErr != nil {
		return p.recordFailure(ctx, job, execErr)
	}
	return p.recordSuccess(ctx, job, result)
}

func (p *Processor) execute(ctx context.Context, job *Job) (travel.SearchResults, error) {
	mode, err := pipeline.ParseMode(job.Mode)
	if err != nil {
		return travel.SearchResults{}, err
	}
	result, err := p.executor.Run(ctx, job.Query, mode)
	if err != nil {
		return travel.SearchResults{}, err
	}
	var record travel.SearchResults
	if result != nil {
		record = result.Clone()
	}
	record.Normalize()
	return record, nil
}

func (p *Processor) recordSuccess(ctx context.Context, job *Job, record travel.SearchResults) error {
	if err := p.store.MarkSucceeded(ctx, job.ID, record); err != nil {
		// 结果已经算出来但没能落库，重投一次让下个 worker 重算。
		logger.L().Error("标记作业成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		if storeErr := p.store.MarkFailed(ctx, job.ID, CodeJobProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
			return storeErr
		}
		if pubErr := p.requeue(ctx, job.ID, "标记成功失败后"); pubErr != nil {
			return pubErr
		}
		logger.Audit().Warn("作业标记成功失败后重试",
			slog.String("job_id", job.ID),
			slog.String("query", job.Query),
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Audit().Info("作业执行成功",
		slog.String("job_id", job.ID),
		slog.String("query", job.Query),
		slog.Int("flights", len(record.Flights)),
		slog.Int("hotels", len(record.Hotels)),
	)
	return nil
}

func (p *Processor) recordFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记作业失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}

	logger.Audit().Warn("作业执行失败",
		slog.String("job_id", job.ID),
		slog.String("query", job.Query),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)
	p.emitAlert(ctx, job, code, execErr, failureStage(terminal, retryable))

	if retryable && !terminal {
		if pubErr := p.requeue(ctx, job.ID, ""); pubErr != nil {
			return pubErr
		}
		p.logDebug("作业已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	}
	return nil
}

func failureStage(terminal, retryable bool) string {
	switch {
	case terminal:
		return "terminal"
	case !retryable:
		return "non_retryable"
	default:
		return "retry"
	}
}

func (p *Processor) requeue(ctx context.Context, jobID, occasion string) error {
	if err := p.producer.Publish(ctx, jobID); err != nil {
		msg := fmt.Sprintf("作业 %s 重投失败", jobID)
		if occasion != "" {
			msg = fmt.Sprintf("作业 %s 在%s重投失败", jobID, occasion)
		}
		return xerrors.Wrap(CodeJobPublish, err, msg)
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	p.logger.Debug(msg, args...)
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		message = cause.Error()
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		JobID:      job.ID,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
