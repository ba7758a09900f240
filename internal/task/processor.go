package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/observability/alerting"
	"WaxAgentKit/internal/observability/metrics"
	"WaxAgentKit/internal/tools"
	"WaxAgentKit/pkg/logger"
)

// Executor 按名称查找工具，*tools.Registry 满足该接口。
type Executor interface {
	Get(name string) (tools.Tool, bool)
}

// Processor 负责从队列消费任务并调用对应的工具。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher

	retryInitial time.Duration
	retryMax     time.Duration

	pending sync.WaitGroup
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

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRetryBackoff 设置重投的指数退避区间，initial 为 0 时立即重投。
func WithRetryBackoff(initial, max time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.retryInitial = initial
		p.retryMax = max
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:     executor,
		store:        store,
		consumer:     consumer,
		producer:     producer,
		workerCount:  1,
		retryInitial: time.Second,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	if p.logger == nil {
		p.logger = logger.Named("task")
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	err := p.consumer.Consume(ctx, p.workerCount, p.handle)
	p.pending.Wait()
	return err
}

// Resume 在 Start 之前调用，用于进程重启后恢复：
// 上次退出时仍处于 running 的只读任务放回 pending，变更类任务直接标记失败（交易可能已经广播）；
// 随后重新投递所有 pending 任务，返回投递数量。
func (p *Processor) Resume(ctx context.Context) (int, error) {
	if p.store == nil || p.producer == nil || p.executor == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}

	interrupted, err := p.collect(ctx, StatusRunning)
	if err != nil {
		return 0, err
	}
	for _, job := range interrupted {
		tool, ok := p.executor.Get(job.Tool)
		terminal := !ok || tool.Mutating()
		if err := p.store.MarkFailed(ctx, job.ID, CodeJobProcessing, "进程重启时任务仍在运行", nil, terminal); err != nil {
			return 0, err
		}
		p.logger.Warn("中断的任务已处理",
			slog.String("job_id", job.ID),
			slog.String("tool", job.Tool),
			slog.Bool("failed", terminal),
		)
	}

	pending, err := p.collect(ctx, StatusPending)
	if err != nil {
		return 0, err
	}
	for i, job := range pending {
		if err := p.producer.Publish(ctx, job.ID); err != nil {
			return i, xerrors.Wrap(CodeJobPublish, err, fmt.Sprintf("恢复任务 %s 失败", job.ID))
		}
	}
	if len(pending) > 0 {
		p.logger.Info("已恢复 pending 任务", slog.Int("count", len(pending)))
	}
	return len(pending), nil
}

// collect 分页读取某个状态的全部任务。先收集再处理，处理过程中的状态变化不影响分页。
func (p *Processor) collect(ctx context.Context, status Status) ([]*Job, error) {
	const page = 100
	var all []*Job
	for offset := 0; ; offset += page {
		jobs, err := p.store.List(ctx, BuildListOptions(
			WithStatuses(status),
			WithSortOrder(SortByUpdatedAsc),
			WithLimit(page),
			WithOffset(offset),
		))
		if err != nil {
			return nil, err
		}
		all = append(all, jobs...)
		if len(jobs) < page {
			return all, nil
		}
	}
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) ||
			stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			p.logger.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", xerrors.MessageOf(err)))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeJobProcessing, xerrors.MessageOf(err), "claim")
		return err
	}

	tool, ok := p.executor.Get(job.Tool)
	if !ok {
		msg := fmt.Sprintf("tool %q not found", job.Tool)
		result := ExecutionResult{
			Status:   tools.StatusError,
			Message:  msg,
			Envelope: json.RawMessage(tools.FailureFrom(xerrors.New(xerrors.CodeNotFound, msg)).String()),
		}
		p.finishFailed(ctx, job, xerrors.CodeNotFound, result, true, false)
		return nil
	}

	out := tool.Call(ctx, job.Input)
	env, decodeErr := tools.DecodeEnvelope(out)
	if decodeErr != nil {
		env = tools.Envelope{Status: tools.StatusError, Message: "malformed tool envelope", Code: string(xerrors.CodeUnknown)}
		out = tools.Failure(xerrors.CodeUnknown, env.Message).String()
	}
	result := ExecutionResult{Status: env.Status, Message: env.Message, Envelope: json.RawMessage(out)}

	if env.OK() {
		p.finishSucceeded(ctx, job, result)
		return nil
	}
	p.handleToolFailure(ctx, job, tool, env, result)
	return nil
}

func (p *Processor) finishSucceeded(ctx context.Context, job *Job, result ExecutionResult) {
	if err := p.store.MarkSucceeded(ctx, job.ID, result); err != nil {
		// 工具已执行完毕，不能重投；只记录并告警
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		p.emitAlert(ctx, job, xerrors.CodeStorageFailure, xerrors.MessageOf(err), "mark_succeeded")
		return
	}
	metrics.ObserveJob("succeeded")
	logger.Audit().Info("任务执行成功",
		slog.String("job_id", job.ID),
		slog.String("tool", job.Tool),
		slog.Int("attempts", job.Attempts),
		slog.String("message", result.Message),
	)
}

func (p *Processor) handleToolFailure(ctx context.Context, job *Job, tool tools.Tool, env tools.Envelope, result ExecutionResult) {
	code := xerrors.Code(env.Code)
	if code == "" {
		code = CodeJobProcessing
	}
	retryable := retryableFor(tool, code)
	terminal := !retryable || job.Attempts >= job.MaxRetries

	if terminal && p.recovery != nil {
		fallback, recErr := p.recovery.Recover(ctx, cloneJob(job), result)
		switch {
		case recErr != nil:
			wrapped := xerrors.Wrap(CodeJobCompensate, recErr, "任务补偿失败")
			p.logger.Error("执行补偿逻辑失败", slog.Any("error", wrapped), slog.String("job_id", job.ID))
			p.emitAlert(ctx, job, CodeJobCompensate, wrapped.Message(), "compensate")
		case fallback != nil:
			p.finishSucceeded(ctx, job, *fallback)
			p.emitAlert(ctx, job, code, env.Message, "degraded")
			return
		}
	}

	p.finishFailed(ctx, job, code, result, terminal, tool.Mutating())
	if !terminal {
		p.requeue(ctx, job)
	}
}

func (p *Processor) finishFailed(ctx context.Context, job *Job, code xerrors.Code, result ExecutionResult, terminal, mutating bool) {
	if err := p.store.MarkFailed(ctx, job.ID, code, result.Message, &result, terminal); err != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("job_id", job.ID))
		p.emitAlert(ctx, job, xerrors.CodeStorageFailure, xerrors.MessageOf(err), "mark_failed")
		return
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("job_id", job.ID),
		slog.String("tool", job.Tool),
		slog.Bool("terminal", terminal),
		slog.String("error", result.Message),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)
	if !terminal {
		metrics.ObserveJob("retry")
		return
	}
	metrics.ObserveJob("failed")

	attrs := xerrors.AttributesOf(code)
	stage := "terminal"
	if attrs.Retryable && job.Attempts >= job.MaxRetries {
		stage = "exhausted"
	}
	if mutating || attrs.Alert || stage == "exhausted" {
		p.emitAlert(ctx, job, code, result.Message, stage)
	}
}

func (p *Processor) requeue(ctx context.Context, job *Job) {
	delay := p.retryDelay(job.Attempts)
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				// 任务保持 pending，重启后由 Resume 重新投递
				return
			case <-timer.C:
			}
		}
		if err := p.producer.Publish(ctx, job.ID); err != nil {
			p.logger.Error("任务重投失败", slog.Any("error", err), slog.String("job_id", job.ID))
			p.emitAlert(ctx, job, CodeJobPublish, xerrors.MessageOf(err), "requeue")
			return
		}
		p.logger.Debug("任务已重新排队",
			slog.String("job_id", job.ID),
			slog.Int("attempts", job.Attempts),
			slog.Duration("delay", delay),
		)
	}()
}

// retryDelay 返回第 attempt 次失败后的等待时间：initial * 2^(attempt-1)，不超过 max。
func (p *Processor) retryDelay(attempt int) time.Duration {
	if p.retryInitial <= 0 || attempt <= 0 {
		return 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryInitial
	b.MaxInterval = p.retryMax
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// retryableFor 决定失败的工具调用能否重试。会签名交易的工具只在交易
// 尚未提交的错误上重试，避免重复转账。
func retryableFor(tool tools.Tool, code xerrors.Code) bool {
	if !xerrors.AttributesOf(code).Retryable {
		return false
	}
	if !tool.Mutating() {
		return true
	}
	switch code {
	case xerrors.CodeRateLimited, xerrors.CodeInitializationFailure:
		return true
	default:
		return false
	}
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, message, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if message == "" {
		message = attrs.Message
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		JobID:      job.ID,
		Tool:       job.Tool,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
