package model

// Run is one row of the workflow run ledger. Timestamps are stored as
// fixed-width UTC text so text order matches time order; nullable columns
// stay NULL while the run is open.
type Run struct {
	ID          int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Repository  string  `gorm:"column:repository;type:text;not null;index:idx_runs_repo_issue"`
	IssueNumber int     `gorm:"column:issue_number;not null;index:idx_runs_repo_issue"`
	Workflow    string  `gorm:"column:workflow;type:text;not null"`
	StartedAt   string  `gorm:"column:started_at;type:text;not null"`
	CompletedAt *string `gorm:"column:completed_at;type:text"`
	Outcome     *string `gorm:"column:outcome;type:text"`
	SessionID   *string `gorm:"column:session_id;type:text"`
	LogPath     *string `gorm:"column:log_path;type:text"`
}

func (Run) TableName() string {
	return "runs"
}
