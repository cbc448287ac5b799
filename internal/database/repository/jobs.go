package repository

import (
	"context"
	"database/sql"
	"time"
)

// JobRepo handles backup_jobs rows.
type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

const jobColumns = `id, kind, argument, status, attempts, last_error, created_at, updated_at`

func (r *JobRepo) Insert(ctx context.Context, j Job) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO backup_jobs(id, kind, argument, status, attempts, created_at, updated_at)
	VALUES (?, ?, ?, ?, 0, ?, ?);
	`, j.ID, j.Kind, j.Argument, JobPending, j.CreatedAt, j.CreatedAt)
	return err
}

// ClaimNext marks the oldest pending job running and returns it, or nil when
// the queue is empty.
func (r *JobRepo) ClaimNext(ctx context.Context, now time.Time) (*Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM backup_jobs
	WHERE status = ? ORDER BY created_at, rowid LIMIT 1`, JobPending)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE backup_jobs SET status = ?, attempts = attempts + 1, updated_at = ?
	WHERE id = ? AND status = ?`, JobRunning, now, j.ID, JobPending)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	j.Status = JobRunning
	j.Attempts++
	j.UpdatedAt = now
	return &j, nil
}

func (r *JobRepo) MarkDone(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE backup_jobs SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`, JobDone, now, id)
	return err
}

// MarkFailed records cause. retry puts the job back in the pending queue.
func (r *JobRepo) MarkFailed(ctx context.Context, id, cause string, retry bool, now time.Time) error {
	status := JobFailed
	if retry {
		status = JobPending
	}
	_, err := r.db.ExecContext(ctx, `UPDATE backup_jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`, status, cause, now, id)
	return err
}

// RequeueRunning returns jobs left running by a crashed worker to the queue.
func (r *JobRepo) RequeueRunning(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE backup_jobs SET status = ?, updated_at = ? WHERE status = ?`, JobPending, now, JobRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *JobRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM backup_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// List returns jobs newest first, optionally filtered by status.
func (r *JobRepo) List(ctx context.Context, status string) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM backup_jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(s scanner) (Job, error) {
	var j Job
	var lastErr sql.NullString
	if err := s.Scan(&j.ID, &j.Kind, &j.Argument, &j.Status, &j.Attempts, &lastErr, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return Job{}, err
	}
	if lastErr.Valid {
		e := lastErr.String
		j.LastError = &e
	}
	return j, nil
}
