package daemon

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"autoflow/internal/domain/flow"
	"autoflow/internal/ports"
)

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish in time")
		return nil
	}
}

func TestDispatchItemSuccessClosesRun(t *testing.T) {
	svc, _, executor := setupService(t, nil)
	ctx := context.Background()

	item := testItem("github.com/acme/api", 42, "Todo")
	stage := flow.Stages[0]

	admitted, done := svc.DispatchItem(ctx, item, stage)
	if !admitted {
		t.Fatalf("DispatchItem() admitted = false, want true")
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("run error = %v", err)
	}

	records, err := svc.History(ctx, item.Repository, item.IssueNumber, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("History() returned %d records, want 1", len(records))
	}

	record := records[0]
	if record.Outcome == nil || *record.Outcome != ports.RunSuccess {
		t.Fatalf("record outcome = %v, want success", record.Outcome)
	}
	if record.CompletedAt == nil {
		t.Fatalf("record completed_at is nil")
	}
	if record.SessionID == nil || *record.SessionID == "" {
		t.Fatalf("record session_id = %v, want non-empty", record.SessionID)
	}
	if record.Workflow != stage.Name {
		t.Fatalf("record workflow = %q, want %q", record.Workflow, stage.Name)
	}
	if record.LogPath == nil {
		t.Fatalf("record log_path is nil")
	}
	if _, err := os.Stat(*record.LogPath); err != nil {
		t.Fatalf("log artifact missing: %v", err)
	}
	if executor.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", executor.callCount())
	}
}

func TestDispatchItemFailureSurfacesError(t *testing.T) {
	svc, _, executor := setupService(t, nil)
	executor.run = func(context.Context, ports.ExecuteInput) (string, error) {
		return "", errors.New("agent crashed")
	}
	ctx := context.Background()

	item := testItem("github.com/acme/api", 7, "Todo")
	admitted, done := svc.DispatchItem(ctx, item, flow.Stages[0])
	if !admitted {
		t.Fatalf("DispatchItem() admitted = false, want true")
	}
	if err := waitDone(t, done); err == nil {
		t.Fatalf("run error = nil, want failure")
	}

	records, err := svc.History(ctx, item.Repository, item.IssueNumber, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("History() returned %d records, want 1", len(records))
	}
	record := records[0]
	if record.Outcome == nil || *record.Outcome != ports.RunFailed {
		t.Fatalf("record outcome = %v, want failed", record.Outcome)
	}
	if record.CompletedAt == nil {
		t.Fatalf("record completed_at is nil")
	}
	if record.SessionID != nil {
		t.Fatalf("record session_id = %q, want nil for a failed run", *record.SessionID)
	}
}

func TestDispatchItemRespectsConcurrencyCeiling(t *testing.T) {
	svc, _, executor := setupService(t, func(opts *Options) {
		opts.MaxConcurrent = 1
	})

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	executor.run = func(ctx context.Context, _ ports.ExecuteInput) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "session-held", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx := context.Background()
	first := testItem("github.com/acme/api", 1, "Todo")
	second := testItem("github.com/acme/api", 2, "Todo")

	admitted, done := svc.DispatchItem(ctx, first, flow.Stages[0])
	if !admitted {
		t.Fatalf("first DispatchItem() admitted = false, want true")
	}
	<-started

	if admitted, _ := svc.DispatchItem(ctx, second, flow.Stages[0]); admitted {
		t.Fatalf("second DispatchItem() admitted = true while ceiling full, want deferral")
	}

	close(release)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	// The slot freed up, the deferred item is admitted on retry.
	executor.run = nil
	admitted, done = svc.DispatchItem(ctx, second, flow.Stages[0])
	if !admitted {
		t.Fatalf("retry DispatchItem() admitted = false after slot freed, want true")
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("second run error = %v", err)
	}
}

func TestDispatchItemConcurrentSubmissionsNeverExceedCeiling(t *testing.T) {
	const ceiling = 2

	svc, _, executor := setupService(t, func(opts *Options) {
		opts.MaxConcurrent = ceiling
	})

	var (
		gate    sync.Mutex
		running int
		peak    int
	)
	release := make(chan struct{})
	executor.run = func(ctx context.Context, _ ports.ExecuteInput) (string, error) {
		gate.Lock()
		running++
		if running > peak {
			peak = running
		}
		gate.Unlock()

		<-release

		gate.Lock()
		running--
		gate.Unlock()
		return "session", nil
	}

	ctx := context.Background()
	admittedCount := 0
	var dones []<-chan error
	for i := 0; i < 6; i++ {
		item := testItem("github.com/acme/api", 100+i, "Todo")
		if admitted, done := svc.DispatchItem(ctx, item, flow.Stages[0]); admitted {
			admittedCount++
			dones = append(dones, done)
		}
	}
	if admittedCount != ceiling {
		t.Fatalf("admitted %d items, want %d", admittedCount, ceiling)
	}

	close(release)
	for _, done := range dones {
		if err := waitDone(t, done); err != nil {
			t.Fatalf("run error = %v", err)
		}
	}

	gate.Lock()
	defer gate.Unlock()
	if peak > ceiling {
		t.Fatalf("peak concurrent runs = %d, want at most %d", peak, ceiling)
	}
}

func TestDispatchItemGuardsDuplicateIssue(t *testing.T) {
	svc, _, executor := setupService(t, func(opts *Options) {
		opts.MaxConcurrent = 4
	})

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	executor.run = func(ctx context.Context, _ ports.ExecuteInput) (string, error) {
		started <- struct{}{}
		<-release
		return "session", nil
	}

	ctx := context.Background()
	item := testItem("github.com/acme/api", 9, "Todo")

	admitted, done := svc.DispatchItem(ctx, item, flow.Stages[0])
	if !admitted {
		t.Fatalf("first DispatchItem() admitted = false, want true")
	}
	<-started

	// Same repo+issue while the first run is still in flight.
	if admitted, _ := svc.DispatchItem(ctx, item, flow.Stages[0]); admitted {
		t.Fatalf("duplicate DispatchItem() admitted = true, want in-flight guard refusal")
	}

	close(release)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("run error = %v", err)
	}
}

func TestDispatchItemWorktreeFailureClosesNothing(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	svc.worktrees = fakeWorktrees{err: errUpstream}
	ctx := context.Background()

	item := testItem("github.com/acme/api", 3, "Todo")
	admitted, done := svc.DispatchItem(ctx, item, flow.Stages[0])
	if !admitted {
		t.Fatalf("DispatchItem() admitted = false, want true")
	}
	if err := waitDone(t, done); err == nil {
		t.Fatalf("run error = nil, want worktree failure")
	}

	records, err := svc.History(ctx, item.Repository, item.IssueNumber, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("History() returned %d records, want 0 when no run was opened", len(records))
	}
}
