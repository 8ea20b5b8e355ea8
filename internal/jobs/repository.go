package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	SetJobAnnotation(ctx context.Context, id, annotation string) error
	// CompleteJob stores the reports and the analysis outcome and marks the
	// job completed in one transaction.
	CompleteJob(ctx context.Context, id, room, diagnostic string, reports []*Report) error
	ListReports(ctx context.Context, jobID string) ([]*Report, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const jobColumns = `id, status, camera_id, user_id, room, video_path, annotation, diagnostic, progress, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Status, j.CameraID, j.UserID, nullString(j.Room), j.VideoPath,
		nullString(j.Annotation), nullString(j.Diagnostic), j.Progress, nullString(j.Error),
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

// GetJob returns nil, nil when no job has the id.
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var room, annotation, diagnostic, errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&j.ID, &j.Status, &j.CameraID, &j.UserID, &room, &j.VideoPath,
		&annotation, &diagnostic, &j.Progress, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.Room = room.String
	j.Annotation = annotation.String
	j.Diagnostic = diagnostic.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), formatTime(r.now()), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, formatTime(r.now()), id)
	return err
}

func (r *SQLiteRepository) SetJobAnnotation(ctx context.Context, id, annotation string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET annotation = ?, updated_at = ? WHERE id = ?
	`, annotation, formatTime(r.now()), id)
	return err
}

func (r *SQLiteRepository) CompleteJob(ctx context.Context, id, room, diagnostic string, reports []*Report) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rep := range reports {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO breach_reports (id, job_id, rule_id, description, detected_at)
			VALUES (?, ?, ?, ?, ?)
		`, rep.ID, id, rep.RuleID, rep.Description, formatTime(rep.DetectedAt)); err != nil {
			return fmt.Errorf("insert report for rule %q: %w", rep.RuleID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, room = ?, diagnostic = ?, progress = 100, error = NULL, updated_at = ?
		WHERE id = ?
	`, JobStatusCompleted, nullString(room), nullString(diagnostic), formatTime(r.now()), id); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) ListReports(ctx context.Context, jobID string) ([]*Report, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, rule_id, description, detected_at
		FROM breach_reports WHERE job_id = ? ORDER BY rowid
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*Report{}
	for rows.Next() {
		var rep Report
		var detectedAt string
		if err := rows.Scan(&rep.ID, &rep.JobID, &rep.RuleID, &rep.Description, &detectedAt); err != nil {
			return nil, err
		}
		rep.DetectedAt = parseTime(detectedAt)
		reports = append(reports, &rep)
	}
	return reports, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
