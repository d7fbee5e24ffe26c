package ports

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRunNotFound = errors.New("run record not found")
	// ErrRunIntegrity marks a ledger row with a completion timestamp but no
	// outcome. That combination is never legal; surfacing it beats guessing.
	ErrRunIntegrity = errors.New("run record integrity violation")
)

type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunFailed  RunOutcome = "failed"
	RunStalled RunOutcome = "stalled"
)

// RunRecord is one durable workflow execution in the ledger. ID is zero
// until inserted; CompletedAt, Outcome, SessionID and LogPath stay nil while
// the run is open. Records are never deleted.
type RunRecord struct {
	ID          int64
	Repository  string
	IssueNumber int
	Workflow    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Outcome     *RunOutcome
	SessionID   *string
	LogPath     *string
}

// Open reports whether the run has not reached a terminal state yet.
func (r RunRecord) Open() bool {
	return r.CompletedAt == nil
}

// RunPatch carries the fields of a partial update; nil fields are left
// untouched. A patch with no fields set is a no-op.
type RunPatch struct {
	CompletedAt *time.Time
	Outcome     *RunOutcome
	SessionID   *string
	LogPath     *string
}

// Empty reports whether the patch would change nothing.
func (p RunPatch) Empty() bool {
	return p.CompletedAt == nil && p.Outcome == nil && p.SessionID == nil && p.LogPath == nil
}

// RunRepository is the durable run-history ledger. Implementations must
// survive process restarts and support concurrent readers during writes.
type RunRepository interface {
	// Insert stores a new open record and returns its assigned id.
	Insert(ctx context.Context, record RunRecord) (int64, error)

	// Get returns the record with the given id, or nil when absent.
	Get(ctx context.Context, id int64) (*RunRecord, error)

	// Update applies a partial patch; updating an unknown id returns
	// ErrRunNotFound.
	Update(ctx context.Context, id int64, patch RunPatch) error

	// History returns records for repo+issue ordered by start time
	// descending; limit <= 0 means no cap. No match yields an empty list.
	History(ctx context.Context, repository string, issueNumber int, limit int) ([]RunRecord, error)

	// CountOpen returns the number of records without a completion timestamp.
	CountOpen(ctx context.Context) (int, error)

	// ListOpen returns every open record, oldest first.
	ListOpen(ctx context.Context) ([]RunRecord, error)

	// MarkOpenRunsStalled closes every open record with the stalled outcome.
	// Used at daemon startup to recover from a crash mid-run.
	MarkOpenRunsStalled(ctx context.Context, completedAt time.Time) (int, error)
}
