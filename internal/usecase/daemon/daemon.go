package daemon

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/errs"
)

// Run drives the fixed-interval poll loop until the context is cancelled,
// then waits for in-flight workflow executions to finish. Sustained cycle
// failures flip the health tracker to degraded; recovery flips it back.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "daemon.loop"))

	if err := s.Start(ctx); err != nil {
		return errs.Wrap(err, "start daemon")
	}

	watcher := s.watchStageProfile(logCtx)
	if watcher != nil {
		defer func() {
			_ = watcher.Close()
		}()
	}

	interval := s.opts.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info(logCtx, "daemon started",
		slog.Duration("poll_interval", interval),
		slog.Int("max_concurrent", s.opts.MaxConcurrent))

	s.pollCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info(logCtx, "daemon stopping, waiting for in-flight runs")
			s.Stop()
			logging.Info(logCtx, "daemon stopped")
			return nil
		case <-ticker.C:
			s.pollCycle(ctx)
		}
	}
}

func (s *Service) pollCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if _, err := s.PollOnce(ctx); err != nil {
		s.health.RecordFailure()
		logging.Error(logging.WithAttrs(ctx, slog.String("component", "daemon.loop")), "poll cycle failed",
			slog.Bool("degraded", s.health.Degraded()),
			slog.Any("err", errs.Loggable(err)))
		return
	}
	s.health.RecordSuccess()
}

// watchStageProfile validates the stage profile whenever it changes on disk.
// The executor re-reads the file per run, so the watch only surfaces broken
// edits early instead of at the next dispatch.
func (s *Service) watchStageProfile(logCtx context.Context) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(logCtx, "stage profile watch unavailable", slog.Any("err", errs.Loggable(err)))
		return nil
	}

	dir := filepath.Dir(s.opts.StageProfile)
	if err := watcher.Add(dir); err != nil {
		logging.Warn(logCtx, "stage profile watch failed",
			slog.String("dir", dir),
			slog.Any("err", errs.Loggable(err)))
		_ = watcher.Close()
		return nil
	}

	go func() {
		target := filepath.Clean(s.opts.StageProfile)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if _, err := LoadStageProfile(target); err != nil {
					logging.Error(logCtx, "stage profile edit is invalid, keeping previous behavior per run",
						slog.Any("err", errs.Loggable(err)))
					continue
				}
				logging.Info(logCtx, "stage profile reloaded", slog.String("path", target))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn(logCtx, "stage profile watch error", slog.Any("err", errs.Loggable(err)))
			}
		}
	}()

	return watcher
}
