package daemon

import (
	"context"
	"testing"
	"time"

	"autoflow/internal/ports"
)

func TestStartMarksLeftoverOpenRunsStalled(t *testing.T) {
	runs := setupRuns(t)
	ctx := context.Background()

	// Simulate a run a previous process left open before crashing.
	if _, err := runs.Insert(ctx, ports.RunRecord{
		Repository:  "github.com/acme/api",
		IssueNumber: 42,
		Workflow:    "research",
		StartedAt:   time.Now().UTC().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	board := newFakeBoard()
	svc := NewService(Options{
		SelfUsername:  "owner",
		MaxConcurrent: 2,
		LogsDir:       t.TempDir(),
	}, board, runs, &fakeExecutor{})
	svc.worktrees = fakeWorktrees{root: t.TempDir()}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	open, err := runs.CountOpen(ctx)
	if err != nil {
		t.Fatalf("CountOpen() error = %v", err)
	}
	if open != 0 {
		t.Fatalf("CountOpen() = %d after recovery, want 0", open)
	}

	records, err := runs.History(ctx, "github.com/acme/api", 42, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("History() returned %d records, want 1", len(records))
	}
	if records[0].Outcome == nil || *records[0].Outcome != ports.RunStalled {
		t.Fatalf("recovered outcome = %v, want stalled", records[0].Outcome)
	}
	if records[0].CompletedAt == nil {
		t.Fatalf("recovered run has no completed_at")
	}
}

func TestStartSeedsLabelsFromBoard(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	board.items = append(board.items, testItem("github.com/acme/api", 1, "Todo"))

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if calls := board.ensureCalls["github.com/acme/api"]; calls != 1 {
		t.Fatalf("EnsureLabels called %d times at startup, want 1", calls)
	}
}

func TestStartRequiresContext(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	var missing context.Context
	if err := svc.Start(missing); err == nil {
		t.Fatalf("Start(nil) error = nil, want error")
	}
}
