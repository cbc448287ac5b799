package repository

import (
	"context"
	"database/sql"
)

// NoteRepo handles notes.
type NoteRepo struct {
	db *sql.DB
}

func NewNoteRepo(db *sql.DB) *NoteRepo { return &NoteRepo{db: db} }

const noteColumns = `id, title, content, category, archived, trashed, created_at, updated_at`

func (r *NoteRepo) Upsert(ctx context.Context, n Note) error {
	return upsertNote(ctx, r.db, n)
}

// UpsertAll writes notes inside tx.
func (r *NoteRepo) UpsertAll(ctx context.Context, tx *sql.Tx, notes []Note) error {
	for _, n := range notes {
		if err := upsertNote(ctx, tx, n); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertNote(ctx context.Context, ex execer, n Note) error {
	_, err := ex.ExecContext(ctx, `
	INSERT INTO notes(`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 title=excluded.title, content=excluded.content, category=excluded.category,
	 archived=excluded.archived, trashed=excluded.trashed, updated_at=excluded.updated_at;
	`, n.ID, n.Title, n.Content, n.Category, n.Archived, n.Trashed, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r *NoteRepo) Get(ctx context.Context, id string) (*Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

// List returns every note, most recently updated first.
func (r *NoteRepo) List(ctx context.Context) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NoteRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n)
	return n, err
}

func (r *NoteRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (Note, error) {
	var n Note
	var category sql.NullString
	if err := s.Scan(&n.ID, &n.Title, &n.Content, &category, &n.Archived, &n.Trashed, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return Note{}, err
	}
	if category.Valid {
		c := category.String
		n.Category = &c
	}
	return n, nil
}
