package task

import (
	"context"
	"testing"
	"time"

	xerrors "WaxAgentKit/internal/errors"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	jobs := []*Job{
		{ID: "t1", Tool: "wax_get_balance", Input: `{"account_name":"alice.wam"}`, MaxRetries: 3},
		{ID: "t2", Tool: "wax_transfer", Input: `{"to":"bob.wam"}`, MaxRetries: 3},
		{ID: "t3", Tool: "wax_get_balance", Input: `{"account_name":"carol.wam"}`, MaxRetries: 3},
	}
	for _, job := range jobs {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "t2", xerrors.CodeChainFailure, "boom", nil, true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Status: "success", Message: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.jobs["t1"].UpdatedAt = base.Unix()
	store.jobs["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" {
		t.Fatalf("expected newest job first, got %+v", all)
	}

	failed, err := store.List(ctx, BuildListOptions(WithStatuses(StatusFailed)))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" || failed[0].ErrorCode != string(xerrors.CodeChainFailure) {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	withResult, err := store.List(ctx, BuildListOptions(WithResultPresence(true)))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 1 || withResult[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", withResult)
	}

	byTool, err := store.List(ctx, BuildListOptions(WithTools("wax_get_balance"), WithSortOrder(SortByUpdatedAsc)))
	if err != nil {
		t.Fatalf("list by tool: %v", err)
	}
	if len(byTool) != 2 || byTool[0].ID != "t1" {
		t.Fatalf("unexpected tool list: %+v", byTool)
	}

	recent, err := store.List(ctx, BuildListOptions(WithUpdatedSince(base.Add(15*time.Second))))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 jobs to match since filter, got %d", len(recent))
	}

	query, err := store.List(ctx, BuildListOptions(WithQuery("CAROL")))
	if err != nil {
		t.Fatalf("list query: %v", err)
	}
	if len(query) != 1 || query[0].ID != "t3" {
		t.Fatalf("unexpected query list: %+v", query)
	}

	paged, err := store.List(ctx, BuildListOptions(WithLimit(1), WithOffset(1)))
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", paged)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, &Job{ID: id, Tool: "wax_get_balance", MaxRetries: 3}); err != nil {
			t.Fatalf("create job %s: %v", id, err)
		}
	}
	if err := store.MarkFailed(ctx, "b", xerrors.CodeChainFailure, "boom", nil, true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Status: "success", Message: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.jobs["a"].UpdatedAt = base.Unix()
	store.jobs["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() || stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected timestamps: %+v", stats)
	}

	withoutResults, err := store.Stats(ctx, BuildListOptions(WithResultPresence(false)))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}

	empty, err := store.Stats(ctx, BuildListOptions(WithStatuses(StatusRunning)))
	if err != nil {
		t.Fatalf("stats running: %v", err)
	}
	if empty.Total != 0 || empty.OldestUpdatedAt != 0 {
		t.Fatalf("expected empty stats, got %+v", empty)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "j", Tool: "wax_transfer", MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Job{ID: "j", Tool: "wax_transfer", MaxRetries: 2}); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	job, err := store.Claim(ctx, "j")
	if err != nil || job.Status != StatusRunning || job.Attempts != 1 {
		t.Fatalf("unexpected first claim: %+v %v", job, err)
	}
	if _, err := store.Claim(ctx, "j"); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkFailed(ctx, "j", xerrors.CodeRateLimited, "slow down", nil, false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	job, _ = store.Get(ctx, "j")
	if job.Status != StatusPending || job.LastError != "slow down" {
		t.Fatalf("expected job back to pending, got %+v", job)
	}

	if _, err := store.Claim(ctx, "j"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "j", xerrors.CodeRateLimited, "slow down", nil, false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "j"); !IsJobError(err, CodeJobExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !IsJobError(err, CodeJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Job{ID: "j", Tool: "wax_get_balance", Metadata: map[string]any{"k": "v"}, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	job, _ := store.Get(ctx, "j")
	job.Metadata["k"] = "changed"
	job.Status = StatusFailed

	again, _ := store.Get(ctx, "j")
	if again.Metadata["k"] != "v" || again.Status != StatusPending {
		t.Fatalf("store leaked internal state: %+v", again)
	}
}

func TestBuildListOptionsDefaults(t *testing.T) {
	opts := BuildListOptions(WithLimit(1000), WithOffset(-5), WithStatuses("bogus", StatusFailed, StatusFailed), WithTools(" ", "a", "a"))
	if opts.Limit != 100 || opts.Offset != 0 {
		t.Fatalf("unexpected paging: %+v", opts)
	}
	if len(opts.Statuses) != 1 || opts.Statuses[0] != StatusFailed {
		t.Fatalf("unexpected statuses: %v", opts.Statuses)
	}
	if len(opts.Tools) != 1 || opts.Tools[0] != "a" {
		t.Fatalf("unexpected tools: %v", opts.Tools)
	}
	if BuildListOptions().Limit != 20 {
		t.Fatalf("expected default limit 20")
	}
}
