package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autoflow/internal/bootstrap/config"
	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/errs"
	"autoflow/internal/ports"
)

// Options carries the daemon tuning knobs extracted from configuration.
type Options struct {
	SelfUsername    string
	TeamUsernames   []string
	TriggerStatuses []string
	MaxConcurrent   int
	DegradedAfter   int
	PollInterval    time.Duration
	StageProfile    string
	LogsDir         string
	WorktreesDir    string
	ReposDir        string
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		SelfUsername:    cfg.Daemon.SelfUsername,
		TeamUsernames:   cfg.Daemon.TeamUsernames,
		TriggerStatuses: cfg.Daemon.TriggerStatuses,
		MaxConcurrent:   cfg.Daemon.MaxConcurrent,
		DegradedAfter:   cfg.Daemon.DegradedAfter,
		PollInterval:    cfg.Daemon.PollInterval,
		StageProfile:    cfg.Daemon.StageProfile,
		LogsDir:         cfg.Daemon.LogsDir,
		WorktreesDir:    cfg.Daemon.WorktreesDir,
		ReposDir:        cfg.Daemon.ReposDir,
	}
}

// worktreeEnsurer creates or reuses the working checkout for one issue.
type worktreeEnsurer interface {
	Ensure(ctx context.Context, repository string, issueNumber int) (string, error)
}

// Service is the daemon orchestration engine: poll loop, dispatcher, label
// lifecycle cache and run ledger access live here. All mutable state is
// instance-scoped so multiple services (for example in tests) never share it.
type Service struct {
	opts      Options
	board     ports.Board
	runs      ports.RunRepository
	executor  ports.Executor
	worktrees worktreeEnsurer
	health    *HealthTracker
	clock     func() time.Time

	mu           sync.Mutex
	active       int
	inflight     map[string]struct{}
	labeledRepos map[string]struct{}
	labelInits   map[string]chan struct{}

	wg sync.WaitGroup
}

func NewService(opts Options, board ports.Board, runs ports.RunRepository, executor ports.Executor) *Service {
	return &Service{
		opts:      opts,
		board:     board,
		runs:      runs,
		executor:  executor,
		worktrees: newGitWorktreeManager(opts.ReposDir, opts.WorktreesDir),
		health:    NewHealthTracker(opts.DegradedAfter, nil),
		clock:     func() time.Time { return time.Now().UTC() },

		inflight:     make(map[string]struct{}),
		labeledRepos: make(map[string]struct{}),
		labelInits:   make(map[string]chan struct{}),
	}
}

// Health exposes the degraded/healthy observation for the external alerting
// escalation.
func (s *Service) Health() *HealthTracker {
	return s.health
}

// Start recovers crash leftovers and seeds the label cache. Any run record
// left open by a previous process is closed as stalled so the concurrency
// ceiling starts from a clean slate.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "daemon.service"))

	stalled, err := s.runs.MarkOpenRunsStalled(ctx, s.clock())
	if err != nil {
		return errs.Wrap(err, "recover open runs")
	}
	if stalled > 0 {
		logging.Warn(logCtx, "closed runs left open by previous process",
			slog.Int("count", stalled),
			slog.String("outcome", string(ports.RunStalled)))
	}

	s.seedRepoLabels(ctx)
	return nil
}

// Stop waits for in-flight workflow executions to finish.
func (s *Service) Stop() {
	s.wg.Wait()
}

// History reads the run ledger for reporting, newest first.
func (s *Service) History(ctx context.Context, repository string, issueNumber int, limit int) ([]ports.RunRecord, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.runs.History(ctx, repository, issueNumber, limit)
}

func runKey(repository string, issueNumber int) string {
	return fmt.Sprintf("%s#%d", repository, issueNumber)
}
