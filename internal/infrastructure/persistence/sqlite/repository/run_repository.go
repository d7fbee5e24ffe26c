package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"autoflow/internal/errs"
	"autoflow/internal/infrastructure/persistence/sqlite/model"
	"autoflow/internal/ports"
)

type RunRepository struct {
	db *gorm.DB
}

var _ ports.RunRepository = (*RunRepository)(nil)

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Insert(ctx context.Context, record ports.RunRecord) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	row := model.Run{
		Repository:  record.Repository,
		IssueNumber: record.IssueNumber,
		Workflow:    record.Workflow,
		StartedAt:   formatTime(record.StartedAt),
		CompletedAt: formatTimePtr(record.CompletedAt),
		Outcome:     outcomeString(record.Outcome),
		SessionID:   record.SessionID,
		LogPath:     record.LogPath,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, errs.Wrap(err, "insert run record")
	}
	return row.ID, nil
}

func (r *RunRepository) Get(ctx context.Context, id int64) (*ports.RunRecord, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	var row model.Run
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Wrap(err, "query run record")
	}

	record, err := mapRun(row)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RunRepository) Update(ctx context.Context, id int64, patch ports.RunPatch) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if patch.Empty() {
		return nil
	}

	values := make(map[string]any, 4)
	if patch.CompletedAt != nil {
		values["completed_at"] = formatTime(*patch.CompletedAt)
	}
	if patch.Outcome != nil {
		values["outcome"] = string(*patch.Outcome)
	}
	if patch.SessionID != nil {
		values["session_id"] = *patch.SessionID
	}
	if patch.LogPath != nil {
		values["log_path"] = *patch.LogPath
	}

	result := r.db.WithContext(ctx).Model(&model.Run{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return errs.Wrap(result.Error, "update run record")
	}
	if result.RowsAffected == 0 {
		return errs.Wrapf(ports.ErrRunNotFound, "update run %d", id)
	}
	return nil
}

func (r *RunRepository) History(ctx context.Context, repository string, issueNumber int, limit int) ([]ports.RunRecord, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	query := r.db.WithContext(ctx).
		Model(&model.Run{}).
		Where("repository = ? AND issue_number = ?", repository, issueNumber).
		Order("started_at desc").
		Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.Run
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query run history")
	}

	records := make([]ports.RunRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapRun(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RunRepository) CountOpen(ctx context.Context) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.Run{}).
		Where("completed_at IS NULL").
		Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count open runs")
	}
	return int(count), nil
}

func (r *RunRepository) ListOpen(ctx context.Context) ([]ports.RunRecord, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	var rows []model.Run
	if err := r.db.WithContext(ctx).
		Where("completed_at IS NULL").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query open runs")
	}

	records := make([]ports.RunRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapRun(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RunRepository) MarkOpenRunsStalled(ctx context.Context, completedAt time.Time) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	result := r.db.WithContext(ctx).
		Model(&model.Run{}).
		Where("completed_at IS NULL").
		Updates(map[string]any{
			"completed_at": formatTime(completedAt),
			"outcome":      string(ports.RunStalled),
		})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "mark open runs stalled")
	}
	return int(result.RowsAffected), nil
}

func mapRun(row model.Run) (ports.RunRecord, error) {
	startedAt, err := parseTime(row.StartedAt)
	if err != nil {
		return ports.RunRecord{}, errs.Wrapf(err, "parse started_at of run %d", row.ID)
	}

	record := ports.RunRecord{
		ID:          row.ID,
		Repository:  row.Repository,
		IssueNumber: row.IssueNumber,
		Workflow:    row.Workflow,
		StartedAt:   startedAt,
		SessionID:   row.SessionID,
		LogPath:     row.LogPath,
	}

	if row.CompletedAt != nil {
		if row.Outcome == nil {
			return ports.RunRecord{}, errs.Wrapf(ports.ErrRunIntegrity, "run %d completed without outcome", row.ID)
		}
		completedAt, err := parseTime(*row.CompletedAt)
		if err != nil {
			return ports.RunRecord{}, errs.Wrapf(err, "parse completed_at of run %d", row.ID)
		}
		record.CompletedAt = &completedAt
		outcome := ports.RunOutcome(*row.Outcome)
		record.Outcome = &outcome
	}

	return record, nil
}

func outcomeString(outcome *ports.RunOutcome) *string {
	if outcome == nil {
		return nil
	}
	value := string(*outcome)
	return &value
}

// timeLayout is fixed-width so the text column sorts lexicographically in
// chronological order; RFC3339Nano trims trailing zeros and breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := formatTime(*t)
	return &value
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
