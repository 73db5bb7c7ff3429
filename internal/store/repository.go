// Package store persists render jobs to SQLite.
package store

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobPhase(ctx context.Context, id, phase string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	MarkJobDone(ctx context.Context, id, outputPath, warning string, transcoded bool) error
	MarkJobFailed(ctx context.Context, id, errorMsg string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO render_jobs (id, status, phase, progress, output_path, warning, error, transcoded, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Status, j.Phase, j.Progress,
		nullString(j.OutputPath), nullString(j.Warning), nullString(j.Error),
		boolToInt(j.Transcoded),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, phase, progress, output_path, warning, error, transcoded, created_at, updated_at
		FROM render_jobs WHERE id = ?
	`, id)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var outputPath, warning, errMsg sql.NullString
	var transcoded int
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Status, &j.Phase, &j.Progress, &outputPath, &warning, &errMsg, &transcoded, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.OutputPath = outputPath.String
	j.Warning = warning.String
	j.Error = errMsg.String
	j.Transcoded = transcoded == 1
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, phase, progress, output_path, warning, error, transcoded, created_at, updated_at
		FROM render_jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		var outputPath, warning, errMsg sql.NullString
		var transcoded int
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.Status, &j.Phase, &j.Progress, &outputPath, &warning, &errMsg, &transcoded, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.OutputPath = outputPath.String
		j.Warning = warning.String
		j.Error = errMsg.String
		j.Transcoded = transcoded == 1
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE render_jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) UpdateJobPhase(ctx context.Context, id, phase string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE render_jobs SET phase = ?, updated_at = datetime('now') WHERE id = ?
	`, phase, id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE render_jobs SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

func (r *SQLiteRepository) MarkJobDone(ctx context.Context, id, outputPath, warning string, transcoded bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = ?, phase = 'done', progress = 100, output_path = ?, warning = ?, transcoded = ?, updated_at = datetime('now')
		WHERE id = ?
	`, StatusCompleted, outputPath, nullString(warning), boolToInt(transcoded), id)
	return err
}

func (r *SQLiteRepository) MarkJobFailed(ctx context.Context, id, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = ?, phase = 'failed', error = ?, updated_at = datetime('now')
		WHERE id = ?
	`, StatusFailed, nullString(errorMsg), id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
