package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/database/repository"
	"github.com/jask/jasknotes/internal/jobs"
	"github.com/jask/jasknotes/internal/storage"
)

type scriptedExec struct {
	mu    sync.Mutex
	calls []backup.Action
	errs  []error
}

func (e *scriptedExec) Execute(_ context.Context, a backup.Action) (backup.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, a)
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		if err != nil {
			return backup.Result{Action: a}, err
		}
	}
	return backup.Result{Action: a, Notes: 3}, nil
}

func (e *scriptedExec) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func newQueue(t *testing.T) (*jobs.Queue, *repository.JobRepo) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "worker.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.NewJobRepo(db)
	return jobs.New(repo), repo
}

func TestDrainExecutesAndPublishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, repo := newQueue(t)
	exec := &scriptedExec{}
	r := NewRunner(q, exec, time.Second, 3, nil)

	id, err := q.Enqueue(ctx, string(backup.KindExport), "weekly")
	require.NoError(t, err)

	require.Equal(t, 1, r.Drain(ctx))
	c := <-r.Completions()
	require.Equal(t, id, c.JobID)
	require.NoError(t, c.Err)
	require.Equal(t, backup.Action{Kind: backup.KindExport, Target: "weekly"}, c.Action)
	require.Equal(t, 3, c.Result.Notes)

	job, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.JobDone, job.Status)
}

func TestDrainRejectsUnknownJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, repo := newQueue(t)
	exec := &scriptedExec{}
	r := NewRunner(q, exec, time.Second, 3, nil)

	require.NoError(t, repo.Insert(ctx, repository.Job{ID: "bogus", Kind: "teleport", Argument: "x", CreatedAt: database.Now()}))
	require.Equal(t, 1, r.Drain(ctx))
	require.Zero(t, exec.count())

	c := <-r.Completions()
	require.ErrorIs(t, c.Err, backup.ErrUnknownAction)
	job, err := repo.Get(ctx, "bogus")
	require.NoError(t, err)
	require.Equal(t, repository.JobFailed, job.Status)
}

func TestTransientFailureRetriesOnNextDrain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, repo := newQueue(t)
	exec := &scriptedExec{errs: []error{errors.New("disk busy")}}
	r := NewRunner(q, exec, time.Second, 3, nil)

	id, err := q.Enqueue(ctx, string(backup.KindImport), "a.zip")
	require.NoError(t, err)

	require.Equal(t, 1, r.Drain(ctx))
	job, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.JobPending, job.Status)
	require.Empty(t, r.Completions())

	require.Equal(t, 1, r.Drain(ctx))
	c := <-r.Completions()
	require.NoError(t, c.Err)
	require.Equal(t, 2, exec.count())
}

func TestPermanentFailureNotRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, repo := newQueue(t)
	exec := &scriptedExec{errs: []error{storage.ErrNeedsUserGrant}}
	r := NewRunner(q, exec, time.Second, 3, nil)

	id, err := q.Enqueue(ctx, string(backup.KindDelete), "a.zip")
	require.NoError(t, err)
	r.Drain(ctx)

	c := <-r.Completions()
	require.ErrorIs(t, c.Err, storage.ErrNeedsUserGrant)
	job, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.JobFailed, job.Status)
	require.Equal(t, 1, exec.count())
}

func TestInvalidArchiveFailsOnFirstAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, repo := newQueue(t)
	exec := &scriptedExec{errs: []error{fmt.Errorf("read notes.txt: %w: zip: not a valid zip file", backup.ErrInvalidArchive)}}
	r := NewRunner(q, exec, time.Second, 3, nil)

	id, err := q.Enqueue(ctx, string(backup.KindImport), "notes.txt")
	require.NoError(t, err)
	require.Equal(t, 1, r.Drain(ctx))

	c := <-r.Completions()
	require.ErrorIs(t, c.Err, backup.ErrInvalidArchive)
	job, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.JobFailed, job.Status)
	require.Equal(t, 1, job.Attempts)
	require.Zero(t, r.Drain(ctx))
	require.Equal(t, 1, exec.count())
}

func TestMaxAttemptsStopsRetrying(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, repo := newQueue(t)
	exec := &scriptedExec{errs: []error{errors.New("a"), errors.New("b")}}
	r := NewRunner(q, exec, time.Second, 2, nil)

	id, err := q.Enqueue(ctx, string(backup.KindExport), "x")
	require.NoError(t, err)
	r.Drain(ctx)
	r.Drain(ctx)

	job, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.JobFailed, job.Status)
	require.Equal(t, "b", *job.LastError)
	require.Zero(t, r.Drain(ctx))
}

func TestRunWakesOnEnqueue(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q, _ := newQueue(t)
	exec := &scriptedExec{}
	r := NewRunner(q, exec, time.Hour, 1, nil)

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	_, err := q.Enqueue(context.Background(), string(backup.KindExport), "now")
	require.NoError(t, err)

	select {
	case c := <-r.Completions():
		require.Equal(t, "now", c.Action.Target)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not pick up job")
	}
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	r := NewRunner(nil, nil, time.Second, 1, nil)
	for i := 0; i < cap(r.done)+5; i++ {
		r.publish(Completion{JobID: string(rune('a' + i))})
	}
	require.Len(t, r.done, cap(r.done))
	first := <-r.done
	require.Equal(t, string(rune('a'+5)), first.JobID)
}
