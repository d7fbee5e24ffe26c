package ports

import "context"

// ExecuteInput describes one workflow execution handed to the external agent.
type ExecuteInput struct {
	Repository  string
	IssueNumber int
	Stage       string
	RunID       string
	Workdir     string
	LogPath     string
}

// Executor runs one workflow stage for an issue and returns the external
// session identifier, or an error when the run failed. Invocations are
// long-running; cancellation and timeouts belong to the implementation.
type Executor interface {
	Execute(ctx context.Context, input ExecuteInput) (sessionID string, err error)
}
