package daemon

import (
	"context"
	"log/slog"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
)

// isBlocked checks the item's declared blockers. A blocker is resolved once
// at least one linked pull request reached a merged state; an issue with no
// linked PRs counts as unresolved. Any upstream error short-circuits to
// (false, nil): an outage must never hold work hostage.
func (s *Service) isBlocked(ctx context.Context, item flow.WorkItem) (bool, []int) {
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "daemon.blocked"),
		slog.String("repository", item.Repository),
		slog.Int("issue", item.IssueNumber))

	body, err := s.board.IssueBody(ctx, item.Repository, item.IssueNumber)
	if err != nil {
		logging.Warn(logCtx, "blocker check skipped, body fetch failed",
			slog.Any("err", errs.Loggable(err)))
		return false, nil
	}

	blockers, err := flow.ParseBlockedBy(body)
	if err != nil {
		logging.Warn(logCtx, "blocker check skipped, front matter unreadable",
			slog.Any("err", errs.Loggable(err)))
		return false, nil
	}
	if len(blockers) == 0 {
		return false, nil
	}

	unresolved := make([]int, 0, len(blockers))
	for _, blocker := range blockers {
		pulls, err := s.board.LinkedPullRequests(ctx, item.Repository, blocker)
		if err != nil {
			logging.Warn(logCtx, "blocker check skipped, linked PR fetch failed",
				slog.Int("blocker", blocker),
				slog.Any("err", errs.Loggable(err)))
			return false, nil
		}

		merged := false
		for _, pull := range pulls {
			if pull.Merged {
				merged = true
				break
			}
		}
		if !merged {
			unresolved = append(unresolved, blocker)
		}
	}

	if len(unresolved) == 0 {
		return false, nil
	}
	return true, unresolved
}
