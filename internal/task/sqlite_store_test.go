package task

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"

	xerrors "WaxAgentKit/internal/errors"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	job := &Job{
		ID:         "job-1",
		Tool:       "wax_transfer",
		Input:      `{"to":"bob.wam","quantity":1}`,
		Metadata:   map[string]any{"source": "api"},
		MaxRetries: 2,
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Job{ID: "job-1", Tool: "wax_transfer", MaxRetries: 2}); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.Metadata["source"] != "api" || got.Result != nil {
		t.Fatalf("unexpected stored job: %+v", got)
	}

	claimed, err := store.Claim(ctx, "job-1")
	if err != nil || claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claim: %+v %v", claimed, err)
	}
	if _, err := store.Claim(ctx, "job-1"); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	failure := ExecutionResult{Status: "error", Message: "rate limited", Envelope: json.RawMessage(`{"status":"error"}`)}
	if err := store.MarkFailed(ctx, "job-1", xerrors.CodeRateLimited, "rate limited", &failure, false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "job-1"); err != nil {
		t.Fatalf("second claim: %v", err)
	}

	success := ExecutionResult{
		Status:   "success",
		Message:  "Successfully transferred 1 WAX to bob.wam",
		Envelope: json.RawMessage(`{"status":"success","message":"Successfully transferred 1 WAX to bob.wam"}`),
	}
	if err := store.MarkSucceeded(ctx, "job-1", success); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	got, _ = store.Get(ctx, "job-1")
	if got.Status != StatusSucceeded || got.Attempts != 2 || got.Result == nil || got.Result.Message != success.Message {
		t.Fatalf("unexpected final job: %+v", got)
	}
	if string(got.Result.Envelope) != string(success.Envelope) {
		t.Fatalf("unexpected envelope: %s", got.Result.Envelope)
	}
	if _, err := store.Claim(ctx, "job-1"); !IsJobError(err, CodeJobCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}

	if _, err := store.Get(ctx, "missing"); !IsJobError(err, CodeJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.MarkSucceeded(ctx, "missing", success); !IsJobError(err, CodeJobNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestSQLiteStoreListAndStats(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats on empty table: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}

	for _, job := range []*Job{
		{ID: "a", Tool: "wax_get_balance", Input: `{"account_name":"alice.wam"}`, MaxRetries: 3},
		{ID: "b", Tool: "wax_transfer", Input: `{"to":"bob.wam"}`, MaxRetries: 3},
		{ID: "c", Tool: "wax_get_balance", Input: `{"account_name":"carol.wam"}`, MaxRetries: 3},
	} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create %s: %v", job.ID, err)
		}
	}
	if err := store.MarkFailed(ctx, "b", xerrors.CodeChainFailure, "boom", nil, true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Status: "success", Message: "balance ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	stats, err = store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByTool["wax_get_balance"] != 2 || stats.ByTool["wax_transfer"] != 1 {
		t.Fatalf("unexpected per-tool counts: %+v", stats.ByTool)
	}

	balances, err := store.List(ctx, BuildListOptions(WithTools("wax_get_balance")))
	if err != nil {
		t.Fatalf("list by tool: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balance jobs, got %d", len(balances))
	}

	failed, err := store.List(ctx, BuildListOptions(WithStatuses(StatusFailed)))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b" || failed[0].LastError != "boom" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	withResult, err := store.List(ctx, BuildListOptions(WithResultPresence(true)))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 1 || withResult[0].ID != "c" {
		t.Fatalf("unexpected result list: %+v", withResult)
	}

	query, err := store.List(ctx, BuildListOptions(WithQuery("Carol")))
	if err != nil {
		t.Fatalf("list query: %v", err)
	}
	if len(query) != 1 || query[0].ID != "c" {
		t.Fatalf("unexpected query list: %+v", query)
	}
}

func TestDuplicateDetection(t *testing.T) {
	if !isMySQLDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}) {
		t.Fatalf("expected mysql 1062 to be a duplicate")
	}
	if isMySQLDuplicate(&mysql.MySQLError{Number: 1045}) {
		t.Fatalf("expected mysql 1045 not to be a duplicate")
	}
	if !isSQLiteDuplicate(errors.New("constraint failed: UNIQUE constraint failed: tool_jobs.id")) {
		t.Fatalf("expected sqlite message fallback to match")
	}
}
