// Package jobs is the durable task queue between the settings screen and the
// backup worker. Producers append rows; a single worker claims them in order.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/database/repository"
)

// Queue wraps the backup_jobs table with an in-process wake-up signal.
type Queue struct {
	repo *repository.JobRepo
	wake chan struct{}
	now  func() time.Time
}

func New(repo *repository.JobRepo) *Queue {
	return &Queue{repo: repo, wake: make(chan struct{}, 1), now: database.Now}
}

// Enqueue stores a pending job and returns its id. It never waits on the worker.
func (q *Queue) Enqueue(ctx context.Context, kind, argument string) (string, error) {
	id := uuid.NewString()
	if err := q.repo.Insert(ctx, repository.Job{ID: id, Kind: kind, Argument: argument, CreatedAt: q.now()}); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// Wake fires after an in-process Enqueue. Other processes are seen by polling.
func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Claim returns the next pending job, or nil.
func (q *Queue) Claim(ctx context.Context) (*repository.Job, error) {
	return q.repo.ClaimNext(ctx, q.now())
}

func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.repo.MarkDone(ctx, id, q.now())
}

// Fail records cause; retry returns the job to the pending queue.
func (q *Queue) Fail(ctx context.Context, id string, cause error, retry bool) error {
	return q.repo.MarkFailed(ctx, id, cause.Error(), retry, q.now())
}

// Recover requeues jobs a crashed worker left running.
func (q *Queue) Recover(ctx context.Context) (int64, error) {
	return q.repo.RequeueRunning(ctx, q.now())
}

// Pending lists queued jobs, newest first.
func (q *Queue) Pending(ctx context.Context) ([]repository.Job, error) {
	return q.repo.List(ctx, repository.JobPending)
}

// Recent lists jobs of any status, newest first.
func (q *Queue) Recent(ctx context.Context, limit int) ([]repository.Job, error) {
	all, err := q.repo.List(ctx, "")
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
