package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/jask/jasknotes/internal/database/repository"
)

// SeedDefaults writes a welcome note into an empty database.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	notes := repository.NewNoteRepo(db)
	n, err := notes.Count(ctx)
	if err != nil || n > 0 {
		return err
	}
	now := Now()
	return notes.Upsert(ctx, repository.Note{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("note:welcome")).String(),
		Title:     "Welcome to jasknotes",
		Content:   "Settings > Export saves every note into your backup folder.",
		CreatedAt: now,
		UpdatedAt: now,
	})
}
