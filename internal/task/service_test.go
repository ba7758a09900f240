package task

import (
	"context"
	"errors"
	"testing"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/tools"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func newTestService(producer Producer) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	registry := tools.NewRegistry(&stubTool{name: "wax_get_balance", outputs: []string{okEnvelope}})
	return NewService(registry, store, producer, 0), store
}

func TestServiceSubmitValidation(t *testing.T) {
	svc, _ := newTestService(NewMemoryQueue(4))
	ctx := context.Background()

	if _, err := svc.Submit(ctx, JobRequest{Tool: "  "}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error for blank tool, got %v", err)
	}
	if _, err := svc.Submit(ctx, JobRequest{Tool: "wax_unknown"}); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown tool, got %v", err)
	}
	if _, err := svc.Submit(ctx, JobRequest{Tool: "wax_get_balance", Input: `[1]`}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error for non-object input, got %v", err)
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	queue := NewMemoryQueue(4)
	svc, _ := newTestService(queue)
	ctx := context.Background()

	first, err := svc.Submit(ctx, JobRequest{ID: "fixed", Tool: "wax_get_balance", Input: `{}`})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.MaxRetries != 3 || first.Status != StatusPending {
		t.Fatalf("unexpected job: %+v", first)
	}
	second, err := svc.Submit(ctx, JobRequest{ID: "fixed", Tool: "wax_get_balance", Input: `{"other":1}`})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Input != `{}` {
		t.Fatalf("expected the original job back, got %+v", second)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected a single publish, got %d", queue.Len())
	}

	generated, err := svc.Submit(ctx, JobRequest{Tool: "wax_get_balance"})
	if err != nil || generated.ID == "" || generated.ID == "fixed" {
		t.Fatalf("expected generated id, got %+v %v", generated, err)
	}
}

func TestServiceSubmitPublishFailure(t *testing.T) {
	svc, store := newTestService(failingProducer{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, JobRequest{ID: "p", Tool: "wax_get_balance"})
	if xerrors.CodeOf(err) != CodeJobPublish {
		t.Fatalf("expected publish error, got %v", err)
	}
	job, getErr := store.Get(ctx, "p")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobPublish) {
		t.Fatalf("expected job marked failed, got %+v", job)
	}
}

func TestServiceUninitialized(t *testing.T) {
	svc := &Service{}
	if _, err := svc.Get(context.Background(), "x"); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}
