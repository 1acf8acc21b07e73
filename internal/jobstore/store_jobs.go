package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Create records a newly launched job in the running state.
func (s *Store) Create(ctx context.Context, jobID, sessionID string) (*Job, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, session_id, status, phase, percentage, created_at, updated_at)
         VALUES (?, ?, ?, 'preparing', 0, ?, ?)`,
		jobID,
		sessionID,
		StatusRunning,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(ctx, jobID)
}

// UpdateProgress records the latest phase and percentage for a running job.
func (s *Store) UpdateProgress(ctx context.Context, jobID, phase string, percentage int) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET phase = ?, percentage = ?, updated_at = ? WHERE id = ?`,
		phase,
		percentage,
		timestamp,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// Finish moves a job to a terminal status. outputPath and errMessage may be
// empty depending on the outcome.
func (s *Store) Finish(ctx context.Context, jobID string, status Status, outputPath, errMessage string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish job: %s is not a terminal status", status)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	percentExpr := "percentage"
	if status == StatusCompleted {
		percentExpr = "100"
	}
	err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, percentage = `+percentExpr+`, output_path = ?, error_message = ?,
            updated_at = ?, completed_at = ? WHERE id = ?`,
		status,
		nullableString(outputPath),
		nullableString(errMessage),
		timestamp,
		timestamp,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// GetByID returns one job or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, jobID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectJobColumns+` WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := selectJobColumns + ` ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// MarkInterrupted fails any job still marked running. Called at daemon
// startup: a running row at that point belongs to a previous process.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?, completed_at = ? WHERE status = ?`,
			StatusFailed,
			"interrupted by daemon restart",
			timestamp,
			timestamp,
			StatusRunning,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return affected, nil
}

const selectJobColumns = `SELECT id, session_id, status, phase, percentage,
    output_path, error_message, created_at, updated_at, completed_at FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		outputPath  sql.NullString
		errMessage  sql.NullString
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.SessionID,
		&job.Status,
		&job.Phase,
		&job.Percentage,
		&outputPath,
		&errMessage,
		&createdAt,
		&updatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	job.OutputPath = outputPath.String
	job.Error = errMessage.String
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	if completedAt.Valid {
		t := parseTimestamp(completedAt.String)
		job.CompletedAt = &t
	}
	return &job, nil
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
