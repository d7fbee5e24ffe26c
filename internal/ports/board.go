package ports

import (
	"context"
	"errors"

	"autoflow/internal/domain/flow"
)

var ErrTicketNotFound = errors.New("ticket not found")

// LinkedPullRequest is a pull request whose description references an issue
// with a closing keyword.
type LinkedPullRequest struct {
	Number int
	State  string
	Merged bool
	URL    string
}

// IssueComment is one comment on a ticket.
type IssueComment struct {
	Author    string
	Body      string
	CreatedAt string
}

// Board is the ticket-board capability the daemon consumes. Implementations
// wrap a concrete project-board API (cloud or enterprise); the core treats
// the wire protocol as opaque. Every backend variant implements this
// interface independently.
type Board interface {
	// ListItems fetches the current items of the watched project board.
	ListItems(ctx context.Context) ([]flow.WorkItem, error)

	// IssueBody fetches a ticket's body text.
	IssueBody(ctx context.Context, repository string, issueNumber int) (string, error)

	// IssueComments fetches a ticket's comments, oldest first.
	IssueComments(ctx context.Context, repository string, issueNumber int) ([]IssueComment, error)

	// LinkedPullRequests fetches the pull requests linked to an issue.
	LinkedPullRequests(ctx context.Context, repository string, issueNumber int) ([]LinkedPullRequest, error)

	// StatusTimeline fetches the status-related event timeline for a ticket,
	// oldest first. Entries and actors may be nil.
	StatusTimeline(ctx context.Context, repository string, issueNumber int) ([]*flow.TimelineEvent, error)

	// EnsureLabels creates any of the given labels missing on the repository.
	EnsureLabels(ctx context.Context, repository string, labels []string) error

	// AddLabel attaches a label to a ticket.
	AddLabel(ctx context.Context, repository string, issueNumber int, label string) error

	// RemoveLabel detaches a label from a ticket; removing an absent label is
	// not an error.
	RemoveLabel(ctx context.Context, repository string, issueNumber int, label string) error

	// SetItemStatus moves a board item to the given column.
	SetItemStatus(ctx context.Context, itemID string, status string) error
}
