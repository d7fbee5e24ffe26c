package daemon

import (
	"context"
	"errors"
	"log/slog"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
)

// CycleSummary counts what one poll cycle did with the board.
type CycleSummary struct {
	Items        int
	Watched      int
	Dispatched   int
	Deferred     int
	Blocked      int
	Unauthorized int
	Observed     int
	Skipped      int
}

// PollOnce runs one poll cycle: fetch the board, classify every item, filter
// blocked and unauthorized work, and feed the dispatcher. A failure on one
// item never aborts its siblings; only a board fetch failure fails the cycle.
func (s *Service) PollOnce(ctx context.Context) (CycleSummary, error) {
	if ctx == nil {
		return CycleSummary{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return CycleSummary{}, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "daemon.poller"))

	items, err := s.board.ListItems(ctx)
	if err != nil {
		return CycleSummary{}, errs.Wrap(err, "fetch board items")
	}

	summary := CycleSummary{Items: len(items)}
	for _, item := range items {
		s.pollItem(ctx, item, &summary)
	}

	logging.Info(logCtx, "poll cycle completed",
		slog.Int("items", summary.Items),
		slog.Int("watched", summary.Watched),
		slog.Int("dispatched", summary.Dispatched),
		slog.Int("deferred", summary.Deferred),
		slog.Int("blocked", summary.Blocked),
		slog.Int("unauthorized", summary.Unauthorized))
	return summary, nil
}

func (s *Service) pollItem(ctx context.Context, item flow.WorkItem, summary *CycleSummary) {
	if item.IsClosed {
		summary.Skipped++
		return
	}

	state := flow.Classify(item.Labels, item.Status)
	stage, watched := flow.TargetStage(state, s.opts.TriggerStatuses)
	if !watched {
		summary.Skipped++
		return
	}
	summary.Watched++

	contextKey := runKey(item.Repository, item.IssueNumber)

	if blocked, unresolved := s.isBlocked(ctx, item); blocked {
		summary.Blocked++
		logging.Info(logging.WithAttrs(ctx, slog.String("component", "daemon.poller")),
			"item blocked by unresolved dependencies",
			slog.String("item", contextKey),
			slog.Any("blockers", unresolved))
		return
	}

	actor := s.resolveStatusActor(ctx, item)
	switch flow.CheckActor(ctx, actor, s.opts.SelfUsername, contextKey, "dispatch "+stage.Name, s.opts.TeamUsernames) {
	case flow.ActorSelf:
		// Fall through to dispatch.
	case flow.ActorTeam:
		summary.Observed++
		return
	default:
		summary.Unauthorized++
		return
	}

	if admitted, _ := s.DispatchItem(ctx, item, stage); admitted {
		summary.Dispatched++
	} else {
		summary.Deferred++
	}
}
