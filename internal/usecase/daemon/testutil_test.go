package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"autoflow/internal/domain/flow"
	"autoflow/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "autoflow/internal/infrastructure/persistence/sqlite/repository"
	"autoflow/internal/ports"
)

type fakeBoard struct {
	mu sync.Mutex

	items     []flow.WorkItem
	bodies    map[string]string
	linkedPRs map[string][]ports.LinkedPullRequest
	timelines map[string][]*flow.TimelineEvent

	listErr     error
	bodyErr     error
	prErr       error
	timelineErr error
	labelsErr   error
	labelsGate  chan struct{}

	ensureCalls map[string]int
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		bodies:      make(map[string]string),
		linkedPRs:   make(map[string][]ports.LinkedPullRequest),
		timelines:   make(map[string][]*flow.TimelineEvent),
		ensureCalls: make(map[string]int),
	}
}

func (b *fakeBoard) key(repository string, issueNumber int) string {
	return fmt.Sprintf("%s#%d", repository, issueNumber)
}

func (b *fakeBoard) ListItems(_ context.Context) ([]flow.WorkItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]flow.WorkItem(nil), b.items...), nil
}

func (b *fakeBoard) IssueBody(_ context.Context, repository string, issueNumber int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bodyErr != nil {
		return "", b.bodyErr
	}
	return b.bodies[b.key(repository, issueNumber)], nil
}

func (b *fakeBoard) IssueComments(_ context.Context, _ string, _ int) ([]ports.IssueComment, error) {
	return nil, nil
}

func (b *fakeBoard) LinkedPullRequests(_ context.Context, repository string, issueNumber int) ([]ports.LinkedPullRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prErr != nil {
		return nil, b.prErr
	}
	return b.linkedPRs[b.key(repository, issueNumber)], nil
}

func (b *fakeBoard) StatusTimeline(_ context.Context, repository string, issueNumber int) ([]*flow.TimelineEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timelineErr != nil {
		return nil, b.timelineErr
	}
	return b.timelines[b.key(repository, issueNumber)], nil
}

func (b *fakeBoard) EnsureLabels(_ context.Context, repository string, _ []string) error {
	b.mu.Lock()
	if b.labelsErr != nil {
		b.mu.Unlock()
		return b.labelsErr
	}
	b.ensureCalls[repository]++
	gate := b.labelsGate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return nil
}

func (b *fakeBoard) ensureCallCount(repository string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureCalls[repository]
}

func (b *fakeBoard) AddLabel(_ context.Context, _ string, _ int, _ string) error {
	return nil
}

func (b *fakeBoard) RemoveLabel(_ context.Context, _ string, _ int, _ string) error {
	return nil
}

func (b *fakeBoard) SetItemStatus(_ context.Context, _ string, _ string) error {
	return nil
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []ports.ExecuteInput
	run   func(ctx context.Context, input ports.ExecuteInput) (string, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, input ports.ExecuteInput) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, input)
	run := e.run
	e.mu.Unlock()

	if run != nil {
		return run(ctx, input)
	}
	// Default behavior matches the executor contract: the log artifact
	// exists once the agent ran.
	if err := os.MkdirAll(filepath.Dir(input.LogPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(input.LogPath, []byte("agent output\n"), 0o644); err != nil {
		return "", err
	}
	return "session-" + input.RunID, nil
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type fakeWorktrees struct {
	root string
	err  error
}

func (w fakeWorktrees) Ensure(_ context.Context, repository string, issueNumber int) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	dir := filepath.Join(w.root, sanitizeSegment(repository), fmt.Sprintf("issue-%d", issueNumber))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func setupRuns(t *testing.T) ports.RunRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "runs.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.Run{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return sqliterepo.NewRunRepository(db)
}

func setupService(t *testing.T, mutate func(*Options)) (*Service, *fakeBoard, *fakeExecutor) {
	t.Helper()

	opts := Options{
		SelfUsername:    "owner",
		TeamUsernames:   []string{"mate"},
		TriggerStatuses: []string{"Todo"},
		MaxConcurrent:   2,
		DegradedAfter:   3,
		PollInterval:    time.Second,
		LogsDir:         filepath.Join(t.TempDir(), "logs"),
	}
	if mutate != nil {
		mutate(&opts)
	}

	board := newFakeBoard()
	executor := &fakeExecutor{}
	svc := NewService(opts, board, setupRuns(t), executor)
	svc.worktrees = fakeWorktrees{root: filepath.Join(t.TempDir(), "worktrees")}
	return svc, board, executor
}

func testItem(repository string, issueNumber int, status string, labels ...string) flow.WorkItem {
	return flow.WorkItem{
		ItemID:      fmt.Sprintf("item-%d", issueNumber),
		IssueNumber: issueNumber,
		Repository:  repository,
		Status:      status,
		Title:       fmt.Sprintf("issue %d", issueNumber),
		Labels:      labels,
	}
}

func selfMovedTimeline(actor string) []*flow.TimelineEvent {
	return []*flow.TimelineEvent{
		{Type: flow.EventStatusChanged, Actor: &actor, OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
	}
}

var errUpstream = errors.New("upstream unavailable")
