package daemon

import (
	"context"
	"log/slog"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
)

// ensureRepoLabels provisions the automation labels for a repository the
// first time it is encountered. Repeated calls for an already-initialized
// repository are no-ops and never re-invoke provisioning; concurrent calls
// for the same fresh repository are collapsed into a single provisioning
// call, the rest wait for its result.
func (s *Service) ensureRepoLabels(ctx context.Context, repository string) error {
	for {
		s.mu.Lock()
		if _, done := s.labeledRepos[repository]; done {
			s.mu.Unlock()
			return nil
		}
		wait, pending := s.labelInits[repository]
		if pending {
			s.mu.Unlock()
			select {
			case <-wait:
				// Re-check: the leader may have failed, in which case this
				// caller becomes the next leader and retries.
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done := make(chan struct{})
		s.labelInits[repository] = done
		s.mu.Unlock()

		err := s.board.EnsureLabels(ctx, repository, flow.AutomationLabels())

		s.mu.Lock()
		delete(s.labelInits, repository)
		if err == nil {
			s.labeledRepos[repository] = struct{}{}
		}
		s.mu.Unlock()
		close(done)

		if err != nil {
			return errs.Wrapf(err, "ensure labels for %s", repository)
		}
		logging.Info(logging.WithAttrs(ctx, slog.String("component", "daemon.labels")),
			"repository labels initialized", slog.String("repository", repository))
		return nil
	}
}

// seedRepoLabels proactively initializes labels for every repository present
// on the board, deduplicating across items, so lazy discovery is the
// exception rather than the rule. Failures defer initialization to the lazy
// path instead of aborting startup.
func (s *Service) seedRepoLabels(ctx context.Context) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "daemon.labels"))

	items, err := s.board.ListItems(ctx)
	if err != nil {
		logging.Warn(logCtx, "label seed sweep skipped, board unavailable",
			slog.Any("err", errs.Loggable(err)))
		return
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.Repository]; ok {
			continue
		}
		seen[item.Repository] = struct{}{}

		if err := s.ensureRepoLabels(ctx, item.Repository); err != nil {
			logging.Warn(logCtx, "label seed failed, deferring to lazy init",
				slog.String("repository", item.Repository),
				slog.Any("err", errs.Loggable(err)))
		}
	}
}
