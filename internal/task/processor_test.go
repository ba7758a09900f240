package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/observability/alerting"
	"WaxAgentKit/internal/tools"
)

// stubTool 依次返回预设的信封，用完后重复最后一个。
type stubTool struct {
	name     string
	mutating bool
	outputs  []string
	latency  time.Duration
	calls    atomic.Int32
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub" }
func (s *stubTool) Parameters() map[string]any { return nil }
func (s *stubTool) Mutating() bool             { return s.mutating }

func (s *stubTool) Call(ctx context.Context, _ string) string {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
		}
	}
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.outputs) {
		n = len(s.outputs) - 1
	}
	return s.outputs[n]
}

type alertRecorder struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *alertRecorder) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *alertRecorder) snapshot() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Event(nil), r.events...)
}

var (
	okEnvelope      = tools.Success("done").String()
	chainFailure    = tools.Failure(xerrors.CodeChainFailure, "node unavailable").String()
	rateLimited     = tools.Failure(xerrors.CodeRateLimited, "slow down").String()
	invalidEnvelope = tools.Failure(xerrors.CodeInvalidInput, "to is required").String()
)

type harness struct {
	service   *Service
	processor *Processor
	alerts    *alertRecorder
	cancel    context.CancelFunc
	done      chan struct{}
}

func startHarness(t *testing.T, maxRetries int, list []tools.Tool, opts ...ProcessorOption) *harness {
	t.Helper()
	registry := tools.NewRegistry(list...)
	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	alerts := &alertRecorder{}

	opts = append([]ProcessorOption{WithWorkerCount(4), WithRetryBackoff(0, 0), WithAlertDispatcher(alerts)}, opts...)
	h := &harness{
		service:   NewService(registry, store, queue, maxRetries),
		processor: NewProcessor(registry, store, queue, queue, opts...),
		alerts:    alerts,
		done:      make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		if err := h.processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) run(t *testing.T, tool, input string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := h.service.Submit(ctx, JobRequest{Tool: tool, Input: input})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	final, err := h.service.WaitUntilCompleted(ctx, job.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for %s: %v", job.ID, err)
	}
	return final
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	tool := &stubTool{name: "wax_get_balance", outputs: []string{okEnvelope}, latency: 2 * time.Millisecond}
	h := startHarness(t, 3, []tools.Tool{tool}, WithWorkerCount(8))

	ctx := context.Background()
	total := 200
	for i := 0; i < total; i++ {
		input := fmt.Sprintf(`{"account_name":"user%d.wam"}`, i)
		if _, err := h.service.Submit(ctx, JobRequest{Tool: "wax_get_balance", Input: input}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		stats, err := h.service.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Succeeded == total {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", stats.Succeeded)
		case <-time.After(20 * time.Millisecond):
		}
	}
	if int(tool.calls.Load()) != total {
		t.Fatalf("expected each job executed once, got %d calls", tool.calls.Load())
	}
}

func TestProcessorStoresEnvelope(t *testing.T) {
	tool := &stubTool{name: "wax_get_balance", outputs: []string{okEnvelope}}
	h := startHarness(t, 3, []tools.Tool{tool})

	job := h.run(t, "wax_get_balance", `{}`)
	if job.Status != StatusSucceeded || job.Attempts != 1 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Result == nil || job.Result.Message != "done" || string(job.Result.Envelope) != okEnvelope {
		t.Fatalf("unexpected result: %+v", job.Result)
	}
}

func TestProcessorRetriesRetryableReadFailure(t *testing.T) {
	tool := &stubTool{name: "wax_get_balance", outputs: []string{chainFailure, okEnvelope}}
	h := startHarness(t, 3, []tools.Tool{tool})

	job := h.run(t, "wax_get_balance", `{}`)
	if job.Status != StatusSucceeded || job.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", job)
	}
}

func TestProcessorDoesNotRetryBroadcastFailures(t *testing.T) {
	tool := &stubTool{name: "wax_transfer", mutating: true, outputs: []string{chainFailure, okEnvelope}}
	h := startHarness(t, 3, []tools.Tool{tool})

	job := h.run(t, "wax_transfer", `{"to":"bob.wam"}`)
	if job.Status != StatusFailed || job.Attempts != 1 {
		t.Fatalf("expected single terminal attempt, got %+v", job)
	}
	if job.ErrorCode != string(xerrors.CodeChainFailure) || job.Result == nil || job.Result.Status != "error" {
		t.Fatalf("expected error envelope stored, got %+v", job)
	}
	if tool.calls.Load() != 1 {
		t.Fatalf("mutating tool called %d times", tool.calls.Load())
	}
	alerts := h.alerts.snapshot()
	if len(alerts) != 1 || alerts[0].Tool != "wax_transfer" || alerts[0].JobID != job.ID {
		t.Fatalf("expected one alert for failed transfer, got %+v", alerts)
	}
}

func TestProcessorRetriesMutatingRateLimit(t *testing.T) {
	tool := &stubTool{name: "wax_transfer", mutating: true, outputs: []string{rateLimited, okEnvelope}}
	h := startHarness(t, 3, []tools.Tool{tool})

	job := h.run(t, "wax_transfer", `{}`)
	if job.Status != StatusSucceeded || job.Attempts != 2 {
		t.Fatalf("expected rate limited transfer to be retried, got %+v", job)
	}
}

func TestProcessorExhaustsRetries(t *testing.T) {
	tool := &stubTool{name: "wax_get_balance", outputs: []string{rateLimited}}
	h := startHarness(t, 2, []tools.Tool{tool})

	job := h.run(t, "wax_get_balance", `{}`)
	if job.Status != StatusFailed || job.Attempts != 2 || job.ErrorCode != string(xerrors.CodeRateLimited) {
		t.Fatalf("unexpected exhausted job: %+v", job)
	}
	alerts := h.alerts.snapshot()
	if len(alerts) != 1 || alerts[0].Metadata["stage"] != "exhausted" {
		t.Fatalf("expected exhausted alert, got %+v", alerts)
	}
}

func TestProcessorNonRetryableFailureIsTerminal(t *testing.T) {
	tool := &stubTool{name: "wax_get_balance", outputs: []string{invalidEnvelope}}
	h := startHarness(t, 3, []tools.Tool{tool})

	job := h.run(t, "wax_get_balance", `{}`)
	if job.Status != StatusFailed || job.Attempts != 1 || job.LastError != "to is required" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(h.alerts.snapshot()) != 0 {
		t.Fatalf("invalid input on a read tool should not alert")
	}
}

func TestProcessorRecoveryHandler(t *testing.T) {
	tool := &stubTool{name: "alcor_swap_action", mutating: true, outputs: []string{tools.Failure(xerrors.CodeSwapFailure, "Swap failed").String()}}
	recovery := RecoveryFunc(func(_ context.Context, job *Job, failure ExecutionResult) (*ExecutionResult, error) {
		if failure.Message != "Swap failed" {
			return nil, nil
		}
		return &ExecutionResult{Status: "success", Message: "swap skipped for " + job.Tool}, nil
	})
	h := startHarness(t, 3, []tools.Tool{tool}, WithRecoveryHandler(recovery))

	job := h.run(t, "alcor_swap_action", `{}`)
	if job.Status != StatusSucceeded || job.Result.Message != "swap skipped for alcor_swap_action" {
		t.Fatalf("expected degraded success, got %+v", job)
	}
	alerts := h.alerts.snapshot()
	if len(alerts) != 1 || alerts[0].Metadata["stage"] != "degraded" {
		t.Fatalf("expected degraded alert, got %+v", alerts)
	}
}

func TestProcessorUnknownToolFailsTerminally(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	processor := NewProcessor(tools.NewRegistry(), store, queue, queue)
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "ghost", Tool: "wax_missing", MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "ghost"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	job, _ := store.Get(ctx, "ghost")
	if job.Status != StatusFailed || job.ErrorCode != string(xerrors.CodeNotFound) {
		t.Fatalf("unexpected job: %+v", job)
	}
	// 已终止的任务再次投递会被跳过
	if err := processor.handle(ctx, "ghost"); err != nil {
		t.Fatalf("second handle: %v", err)
	}
}

func TestProcessorResumeRepublishesPending(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	processor := NewProcessor(tools.NewRegistry(), store, queue, queue)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "done"} {
		if err := store.Create(ctx, &Job{ID: id, Tool: "wax_get_balance", MaxRetries: 3}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.MarkSucceeded(ctx, "done", ExecutionResult{Status: "success"}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	n, err := processor.Resume(ctx)
	if err != nil || n != 2 {
		t.Fatalf("resume: %d %v", n, err)
	}
	if queue.Len() != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", queue.Len())
	}
}

func TestProcessorResumeSettlesInterruptedJobs(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	registry := tools.NewRegistry(
		&stubTool{name: "wax_get_balance", outputs: []string{okEnvelope}},
		&stubTool{name: "wax_transfer", mutating: true, outputs: []string{okEnvelope}},
	)
	processor := NewProcessor(registry, store, queue, queue)
	ctx := context.Background()

	for _, job := range []*Job{
		{ID: "read", Tool: "wax_get_balance", MaxRetries: 3},
		{ID: "write", Tool: "wax_transfer", MaxRetries: 3},
	} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := store.Claim(ctx, job.ID); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	n, err := processor.Resume(ctx)
	if err != nil || n != 1 {
		t.Fatalf("resume: %d %v", n, err)
	}
	read, _ := store.Get(ctx, "read")
	if read.Status != StatusPending {
		t.Fatalf("read-only job should be pending again, got %s", read.Status)
	}
	write, _ := store.Get(ctx, "write")
	if write.Status != StatusFailed || write.ErrorCode != string(CodeJobProcessing) {
		t.Fatalf("mutating job should fail, got %s %s", write.Status, write.ErrorCode)
	}
}

func TestRetryDelay(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, WithRetryBackoff(time.Second, 5*time.Second))
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for attempt, expected := range want {
		if got := p.retryDelay(attempt); got != expected {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, expected)
		}
	}
	if NewProcessor(nil, nil, nil, nil, WithRetryBackoff(0, 0)).retryDelay(3) != 0 {
		t.Fatalf("expected zero delay when backoff disabled")
	}
}
