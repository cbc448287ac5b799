package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/database/repository"
)

func newQueue(t *testing.T) *Queue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(repository.NewJobRepo(db))
}

func TestEnqueueWakesAndClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newQueue(t)

	id, err := q.Enqueue(ctx, "export", "weekly")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case <-q.Wake():
	default:
		t.Fatal("expected wake signal")
	}

	// a second enqueue with nobody listening must not block
	_, err = q.Enqueue(ctx, "delete", "old.zip")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "delete", "older.zip")
	require.NoError(t, err)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.Equal(t, "weekly", job.Argument)
}

func TestCompleteAndFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newQueue(t)

	_, err := q.Enqueue(ctx, "import", "a.zip")
	require.NoError(t, err)
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, errors.New("locked"), true))

	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, again.ID)
	require.Equal(t, 2, again.Attempts)
	require.NoError(t, q.Complete(ctx, again.ID))

	recent, err := q.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, repository.JobDone, recent[0].Status)
	require.Nil(t, recent[0].LastError)
}

func TestRecover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newQueue(t)
	_, err := q.Enqueue(ctx, "export", "x")
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
}
