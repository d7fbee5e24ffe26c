package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
	"autoflow/internal/ports"
)

// DispatchItem admits an item into a run slot and executes the workflow
// stage asynchronously, so the poll loop keeps observing board changes while
// agents run. Admission is refused when the concurrency ceiling is reached
// or a run for the same repo+issue is still in flight; refused items are
// simply retried on a later poll cycle.
//
// The returned channel reports the terminal error of an admitted run (nil on
// success); it is buffered, so callers are free to ignore it.
func (s *Service) DispatchItem(ctx context.Context, item flow.WorkItem, stage flow.Stage) (bool, <-chan error) {
	key := runKey(item.Repository, item.IssueNumber)

	s.mu.Lock()
	if s.active >= s.opts.MaxConcurrent {
		s.mu.Unlock()
		logging.Debug(logging.WithAttrs(ctx, slog.String("component", "daemon.dispatch")),
			"dispatch deferred, concurrency ceiling reached",
			slog.String("item", key),
			slog.Int("ceiling", s.opts.MaxConcurrent))
		return false, nil
	}
	if _, running := s.inflight[key]; running {
		s.mu.Unlock()
		logging.Debug(logging.WithAttrs(ctx, slog.String("component", "daemon.dispatch")),
			"dispatch skipped, run still in flight", slog.String("item", key))
		return false, nil
	}
	s.active++
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.active--
			delete(s.inflight, key)
			s.mu.Unlock()
		}()

		err := s.processItem(ctx, item, stage)
		if err != nil {
			logging.Error(logging.WithAttrs(ctx, slog.String("component", "daemon.dispatch")),
				"workflow run failed",
				slog.String("item", key),
				slog.String("stage", stage.Name),
				slog.Any("err", errs.Loggable(err)))
		}
		done <- err
	}()

	return true, done
}

// processItem is the full pipeline for one admitted item: labels, worktree,
// open ledger record, execute, close ledger record.
func (s *Service) processItem(ctx context.Context, item flow.WorkItem, stage flow.Stage) error {
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "daemon.dispatch"),
		slog.String("repository", item.Repository),
		slog.Int("issue", item.IssueNumber),
		slog.String("stage", stage.Name))

	if err := s.ensureRepoLabels(ctx, item.Repository); err != nil {
		return err
	}

	workdir, err := s.worktrees.Ensure(ctx, item.Repository, item.IssueNumber)
	if err != nil {
		return errs.Wrap(err, "ensure worktree")
	}

	startedAt := s.clock()
	runID, err := s.runs.Insert(ctx, ports.RunRecord{
		Repository:  item.Repository,
		IssueNumber: item.IssueNumber,
		Workflow:    stage.Name,
		StartedAt:   startedAt,
	})
	if err != nil {
		return errs.Wrap(err, "open run record")
	}

	// The log path is recorded before the agent starts so partial output is
	// captured even when the run fails.
	logPath := s.logArtifactPath(item, stage, startedAt)
	if err := s.runs.Update(ctx, runID, ports.RunPatch{LogPath: &logPath}); err != nil {
		return errs.Wrap(err, "record log path")
	}

	dispatchID := uuid.NewString()
	logging.Info(logCtx, "workflow dispatched",
		slog.Int64("run", runID),
		slog.String("dispatch_id", dispatchID),
		slog.String("log", logPath))

	sessionID, execErr := s.invokeExecutor(ctx, ports.ExecuteInput{
		Repository:  item.Repository,
		IssueNumber: item.IssueNumber,
		Stage:       stage.Name,
		RunID:       dispatchID,
		Workdir:     workdir,
		LogPath:     logPath,
	})

	completedAt := s.clock()
	if execErr != nil {
		outcome := ports.RunFailed
		if updateErr := s.runs.Update(ctx, runID, ports.RunPatch{
			CompletedAt: &completedAt,
			Outcome:     &outcome,
		}); updateErr != nil {
			// Surface both: the run failed and the ledger could not record it.
			return errs.Wrapf(updateErr, "close failed run %d (run error: %v)", runID, execErr)
		}
		return errs.Wrapf(execErr, "run %d", runID)
	}

	outcome := ports.RunSuccess
	if err := s.runs.Update(ctx, runID, ports.RunPatch{
		CompletedAt: &completedAt,
		Outcome:     &outcome,
		SessionID:   &sessionID,
	}); err != nil {
		return errs.Wrapf(err, "close run %d", runID)
	}

	s.writeSessionMarker(ctx, logPath, sessionMarker{
		RunID:       runID,
		DispatchID:  dispatchID,
		SessionID:   sessionID,
		Repository:  item.Repository,
		IssueNumber: item.IssueNumber,
		Stage:       stage.Name,
		StartedAt:   startedAt.Format(time.RFC3339Nano),
		CompletedAt: completedAt.Format(time.RFC3339Nano),
	})

	logging.Info(logCtx, "workflow completed",
		slog.Int64("run", runID),
		slog.String("session", sessionID))
	return nil
}

// invokeExecutor runs the agent as a task with a result channel so a caller
// cancellation is observed even while the executor blocks.
func (s *Service) invokeExecutor(ctx context.Context, input ports.ExecuteInput) (string, error) {
	type execResult struct {
		sessionID string
		err       error
	}

	results := make(chan execResult, 1)
	go func() {
		sessionID, err := s.executor.Execute(ctx, input)
		results <- execResult{sessionID: sessionID, err: err}
	}()

	select {
	case result := <-results:
		return result.sessionID, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type sessionMarker struct {
	RunID       int64  `json:"run_id"`
	DispatchID  string `json:"dispatch_id"`
	SessionID   string `json:"session_id"`
	Repository  string `json:"repository"`
	IssueNumber int    `json:"issue_number"`
	Stage       string `json:"stage"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

// writeSessionMarker drops a session.json beside the log artifact. Best
// effort; the ledger already holds the authoritative session id.
func (s *Service) writeSessionMarker(ctx context.Context, logPath string, marker sessionMarker) {
	payload, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return
	}

	path := strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".session.json"
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		logging.Warn(logging.WithAttrs(ctx, slog.String("component", "daemon.dispatch")),
			"session marker write failed",
			slog.String("path", path),
			slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) logArtifactPath(item flow.WorkItem, stage flow.Stage, startedAt time.Time) string {
	stamp := startedAt.Format("20060102-150405")
	return filepath.Join(
		s.opts.LogsDir,
		sanitizeSegment(item.Repository),
		fmt.Sprintf("issue-%d", item.IssueNumber),
		fmt.Sprintf("%s-%s.log", stage.Name, stamp),
	)
}
