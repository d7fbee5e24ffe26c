package flow

import (
	"context"
	"log/slog"
	"strings"

	"autoflow/internal/bootstrap/logging"
)

// ActorCategory classifies the actor behind a privileged board action.
type ActorCategory string

const (
	// ActorSelf is the daemon's configured owner; automation may proceed.
	ActorSelf ActorCategory = "self"
	// ActorTeam is a trusted collaborator; observed but not acted upon.
	ActorTeam ActorCategory = "team"
	// ActorUnknown means no actor could be determined.
	ActorUnknown ActorCategory = "unknown"
	// ActorBlocked is an identified but unauthorized actor.
	ActorBlocked ActorCategory = "blocked"
)

// CheckActor classifies an already-resolved actor against the configured
// owner and team. It performs no network access; actor == "" means the actor
// could not be determined. actionLabel, when non-empty, prefixes every log
// line so audits can tell which privileged operation was being authorized.
func CheckActor(ctx context.Context, actor string, selfUsername string, contextKey string, actionLabel string, teamUsernames []string) ActorCategory {
	prefix := ""
	if strings.TrimSpace(actionLabel) != "" {
		prefix = actionLabel + ": "
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "flow.authz"))

	if actor == "" {
		logging.Warn(logCtx, prefix+"action blocked, actor undetermined",
			slog.String("context", contextKey))
		return ActorUnknown
	}

	// An empty selfUsername can never match anyone.
	if selfUsername != "" && actor == selfUsername {
		logging.Info(logCtx, prefix+"actor authorized",
			slog.String("context", contextKey),
			slog.String("actor", actor))
		return ActorSelf
	}

	for _, member := range teamUsernames {
		if actor == member {
			logging.Debug(logCtx, prefix+"team actor observed, no action taken",
				slog.String("context", contextKey),
				slog.String("actor", actor))
			return ActorTeam
		}
	}

	logging.Warn(logCtx, prefix+"action blocked, actor not authorized",
		slog.String("context", contextKey),
		slog.String("actor", actor),
		slog.String("self", selfUsername))
	return ActorBlocked
}
