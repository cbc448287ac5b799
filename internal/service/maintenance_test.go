package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/database/repository"
	"github.com/jask/jasknotes/internal/prefs"
)

func TestReset(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	notes := repository.NewNoteRepo(db)
	jobs := repository.NewJobRepo(db)
	now := database.Now()
	require.NoError(t, notes.Upsert(ctx, repository.Note{ID: "n1", Title: "t", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, jobs.Insert(ctx, repository.Job{ID: "queued", Kind: "export", Argument: "x", CreatedAt: now}))
	require.NoError(t, jobs.Insert(ctx, repository.Job{ID: "old", Kind: "export", Argument: "y", CreatedAt: now}))
	require.NoError(t, jobs.MarkDone(ctx, "old", now))

	store := prefs.NewMemory()
	require.NoError(t, store.PutString(prefs.KeyPassword, "secret"))

	svc := &MaintenanceService{DB: db, Prefs: store}
	require.NoError(t, svc.Reset(ctx))

	n, err := notes.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	remaining, err := jobs.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "queued", remaining[0].ID)
	require.Empty(t, store.GetString(prefs.KeyPassword, ""))
}

func TestResetWithoutDB(t *testing.T) {
	t.Parallel()
	svc := &MaintenanceService{}
	require.Error(t, svc.Reset(context.Background()))
}
