package daemon

import (
	"context"
	"errors"
	"log/slog"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
	"autoflow/internal/ports"
)

// resolveStatusActor reduces the ticket's status timeline to the actor
// responsible for its current column. Returns "" when no qualifying event
// exists, the ticket is missing, or the timeline fetch fails; the daemon
// never guesses an actor.
func (s *Service) resolveStatusActor(ctx context.Context, item flow.WorkItem) string {
	events, err := s.board.StatusTimeline(ctx, item.Repository, item.IssueNumber)
	if err != nil {
		logCtx := logging.WithAttrs(ctx,
			slog.String("component", "daemon.actor"),
			slog.String("repository", item.Repository),
			slog.Int("issue", item.IssueNumber))
		if errors.Is(err, ports.ErrTicketNotFound) {
			logging.Warn(logCtx, "actor resolution skipped, ticket not found")
		} else {
			logging.Warn(logCtx, "actor resolution skipped, timeline fetch failed",
				slog.Any("err", errs.Loggable(err)))
		}
		return ""
	}

	return flow.LatestStatusActor(events)
}
