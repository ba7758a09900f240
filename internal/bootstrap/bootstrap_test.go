package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"WaxAgentKit/internal/config"
	"WaxAgentKit/internal/observability/alerting"
	"WaxAgentKit/internal/task"
)

func TestClosersRunInReverse(t *testing.T) {
	var order []int
	var closers Closers
	closers.Add(func() error { order = append(order, 1); return nil })
	closers.Add(nil)
	closers.Add(func() error { order = append(order, 2); return errors.New("boom") })

	err := closers.Close()
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order: %v", order)
	}
	if err := closers.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
}

func TestTaskStoreDrivers(t *testing.T) {
	ctx := context.Background()
	cfg := config.FromEnv()
	cfg.Runtime.DataDir = t.TempDir()

	var closers Closers
	defer closers.Close()

	cfg.Storage.TaskStore.Driver = "memory"
	store, err := TaskStore(ctx, cfg, &closers)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*task.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	cfg.Storage.TaskStore.Driver = "sqlite"
	store, err = TaskStore(ctx, cfg, &closers)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	if _, ok := store.(*task.SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if matches, _ := filepath.Glob(filepath.Join(cfg.Runtime.DataDir, "jobs.db")); len(matches) != 1 {
		t.Fatalf("expected sqlite file under data dir")
	}

	cfg.Storage.TaskStore.Driver = "etcd"
	if _, err := TaskStore(ctx, cfg, &closers); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestTaskQueueDrivers(t *testing.T) {
	cfg := config.FromEnv()
	var closers Closers
	defer closers.Close()

	queue, err := TaskQueue(context.Background(), cfg, &closers)
	if err != nil {
		t.Fatalf("memory queue: %v", err)
	}
	if _, ok := queue.(*task.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", queue)
	}

	cfg.TaskQueue.Driver = "kafka"
	if _, err := TaskQueue(context.Background(), cfg, &closers); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestLLMClientRequiresKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "openai"
	if _, err := LLMClient(cfg); err == nil {
		t.Fatalf("expected missing key error")
	}

	cfg.LLM.OpenAI.APIKey = "sk-test"
	if _, err := LLMClient(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.LLM.Provider = "llama"
	if _, err := LLMClient(cfg); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestKnowledgeFallsBackToDefaults(t *testing.T) {
	cfg := &config.Config{}
	provider, err := Knowledge(cfg)
	if err != nil {
		t.Fatalf("knowledge: %v", err)
	}
	if got := provider.Query("how do I buy ram bytes"); len(got) == 0 {
		t.Fatalf("expected default snippets to match ram prompt")
	}

	cfg.Knowledge.Source = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Knowledge(cfg); err == nil {
		t.Fatalf("expected error for missing knowledge file")
	}
}

func TestHistoryMemoryDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Runtime.DataDir = t.TempDir()
	var closers Closers
	defer closers.Close()

	repo, err := History(context.Background(), cfg, &closers)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if repo == nil || len(closers) != 1 {
		t.Fatalf("expected repository registered for close")
	}

	cfg.Storage.History.Driver = "mongo"
	if _, err := History(context.Background(), cfg, &closers); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestAlertsIncludeWebhook(t *testing.T) {
	cfg := &config.Config{}
	if got := len(Alerts(cfg).(interface{ Channels() []alerting.Channel }).Channels()); got != 1 {
		t.Fatalf("expected log channel only, got %d", got)
	}
	cfg.Alerting.WebhookURL = "http://127.0.0.1:1/hook"
	if got := len(Alerts(cfg).(interface{ Channels() []alerting.Channel }).Channels()); got != 2 {
		t.Fatalf("expected log and webhook channels, got %d", got)
	}
}
