// Package worker drains the backup job queue. It runs either as a goroutine
// next to the TUI or as the standalone `jasknotes worker` process.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/database/repository"
	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/metrics"
	"github.com/jask/jasknotes/internal/storage"
)

// Queue is the consumer side of the job queue.
type Queue interface {
	Claim(ctx context.Context) (*repository.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error, retry bool) error
	Recover(ctx context.Context) (int64, error)
	Pending(ctx context.Context) ([]repository.Job, error)
	Wake() <-chan struct{}
}

// Executor performs one backup action.
type Executor interface {
	Execute(ctx context.Context, a backup.Action) (backup.Result, error)
}

// Completion reports the outcome of one job to whoever listens.
type Completion struct {
	JobID  string
	Action backup.Action
	Result backup.Result
	Err    error
}

// Runner claims and executes jobs until its context ends.
type Runner struct {
	queue        Queue
	exec         Executor
	log          *zap.Logger
	pollInterval time.Duration
	maxAttempts  int
	done         chan Completion
}

// NewRunner builds a runner. Completions are buffered; when nobody drains
// them the oldest outcomes are dropped rather than stalling the worker.
func NewRunner(q Queue, exec Executor, pollInterval time.Duration, maxAttempts int, log *zap.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Runner{
		queue:        q,
		exec:         exec,
		log:          logging.OrNop(log).Named("worker"),
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		done:         make(chan Completion, 16),
	}
}

// Completions delivers job outcomes.
func (r *Runner) Completions() <-chan Completion { return r.done }

// Run processes jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if n, err := r.queue.Recover(ctx); err != nil {
		r.log.Warn("requeue interrupted jobs", zap.Error(err))
	} else if n > 0 {
		r.log.Info("requeued interrupted jobs", zap.Int64("count", n))
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		r.Drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.queue.Wake():
		case <-ticker.C:
		}
	}
}

// Drain executes pending jobs until the queue is empty or a job is put back
// for retry; retries wait for the next poll. It returns the number of jobs
// attempted.
func (r *Runner) Drain(ctx context.Context) int {
	if pending, err := r.queue.Pending(ctx); err == nil {
		metrics.SetQueueDepth(len(pending))
	}
	n := 0
	for ctx.Err() == nil {
		job, err := r.queue.Claim(ctx)
		if err != nil {
			r.log.Error("claim job", zap.Error(err))
			return n
		}
		if job == nil {
			return n
		}
		n++
		if requeued := r.process(ctx, *job); requeued {
			return n
		}
	}
	return n
}

func (r *Runner) process(ctx context.Context, job repository.Job) (requeued bool) {
	log := r.log.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempt", job.Attempts))
	start := time.Now()

	action, err := backup.ParseAction(job.Kind, job.Argument)
	if err != nil {
		// unreachable from the UI; the dispatcher validates first
		log.Error("unrecognized job", zap.String("argument", job.Argument), zap.Error(err))
		if ferr := r.queue.Fail(ctx, job.ID, err, false); ferr != nil {
			log.Error("record job failure", zap.Error(ferr))
		}
		metrics.RecordJob(job.Kind, "rejected", time.Since(start))
		r.publish(Completion{JobID: job.ID, Action: action, Err: err})
		return false
	}

	res, err := r.exec.Execute(ctx, action)
	if err != nil {
		retry := retryable(err) && job.Attempts < r.maxAttempts
		log.Warn("backup job failed", zap.Error(err), zap.Bool("retry", retry))
		if ferr := r.queue.Fail(ctx, job.ID, err, retry); ferr != nil {
			log.Error("record job failure", zap.Error(ferr))
		}
		status := "failed"
		if retry {
			status = "retry"
		}
		metrics.RecordJob(job.Kind, status, time.Since(start))
		if !retry {
			r.publish(Completion{JobID: job.ID, Action: action, Result: res, Err: err})
		}
		return retry
	}

	if err := r.queue.Complete(ctx, job.ID); err != nil {
		log.Error("record job completion", zap.Error(err))
	}
	metrics.RecordJob(job.Kind, "done", time.Since(start))
	log.Info("backup job done", zap.Int("notes", res.Notes), zap.Duration("took", time.Since(start)))
	r.publish(Completion{JobID: job.ID, Action: action, Result: res})
	return false
}

func (r *Runner) publish(c Completion) {
	for {
		select {
		case r.done <- c:
			return
		default:
		}
		select {
		case <-r.done:
		default:
		}
	}
}

// retryable separates transient failures from ones another attempt cannot fix.
func retryable(err error) bool {
	switch {
	case errors.Is(err, backup.ErrNothingSelected),
		errors.Is(err, backup.ErrUnknownAction),
		errors.Is(err, backup.ErrBackupNotFound),
		errors.Is(err, backup.ErrInvalidArchive),
		errors.Is(err, storage.ErrNeedsUserGrant),
		errors.Is(err, storage.ErrPermissionDenied),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
