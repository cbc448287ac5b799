package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/database/repository"
	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/prefs"
	"github.com/jask/jasknotes/internal/storage"
)

// HandleResolver yields the backup location for one job.
type HandleResolver interface {
	Resolve(ctx context.Context) (storage.Handle, error)
}

// PreferenceArchive is the part of the preference store a backup carries.
type PreferenceArchive interface {
	Snapshot() map[string]string
	Restore(values map[string]string) error
}

// deviceLocal preferences describe this installation, not the user's data,
// and never travel inside a backup.
var deviceLocal = map[string]bool{
	prefs.KeyBackupFolderURI:   true,
	prefs.KeyStoragePermission: true,
	prefs.KeyPassword:          true,
}

// Service performs the long-running backup work on behalf of the worker.
type Service struct {
	DB      *sql.DB
	Notes   *repository.NoteRepo
	Prefs   PreferenceArchive
	Storage HandleResolver
	Now     func() time.Time
	Log     *zap.Logger
}

// Result summarises one executed action.
type Result struct {
	Action Action
	Notes  int
	Path   string
}

// Execute routes a to its entry point.
func (s *Service) Execute(ctx context.Context, a Action) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{Action: a}, err
	}
	switch a.Kind {
	case KindExport:
		return s.Export(ctx, a.Target)
	case KindImport:
		return s.Import(ctx, a.Target)
	case KindDelete:
		return s.Delete(ctx, a.Target)
	case KindCrossAppImport:
		return s.ImportCrossApp(ctx, a.Source)
	}
	return Result{Action: a}, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
}

// Export writes every note and the portable preferences into name.zip.
func (s *Service) Export(ctx context.Context, name string) (Result, error) {
	res := Result{Action: Action{Kind: KindExport, Target: name}}
	h, err := s.Storage.Resolve(ctx)
	if err != nil {
		return res, err
	}
	notes, err := s.Notes.List(ctx)
	if err != nil {
		return res, fmt.Errorf("load notes: %w", err)
	}
	contents := archiveContents{
		Manifest:    manifest{FormatVersion: formatVersion, CreatedAt: s.now(), NoteCount: len(notes)},
		Notes:       notes,
		Preferences: s.portablePrefs(),
	}

	dest := filepath.Join(h.Dir(), ArchiveName(name))
	tmp, err := os.CreateTemp(h.Dir(), "."+ArchiveName(name)+".*.tmp")
	if err != nil {
		return res, fmt.Errorf("create export: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if err := writeArchive(tmp, contents); err != nil {
		return res, err
	}
	if err := tmp.Sync(); err != nil {
		return res, err
	}
	if err := tmp.Close(); err != nil {
		return res, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return res, fmt.Errorf("finish export: %w", err)
	}
	res.Notes, res.Path = len(notes), dest
	s.log().Info("backup exported", zap.String("path", dest), zap.Int("notes", len(notes)))
	return res, nil
}

// Import restores notes and preferences from the named backup. Existing notes
// with the same id are overwritten; others are left alone.
func (s *Service) Import(ctx context.Context, name string) (Result, error) {
	res := Result{Action: Action{Kind: KindImport, Target: name}}
	h, err := s.Storage.Resolve(ctx)
	if err != nil {
		return res, err
	}
	path := filepath.Join(h.Dir(), name)
	f, size, err := openEntry(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	contents, err := readArchive(f, size)
	if err != nil {
		return res, fmt.Errorf("read %s: %w: %w", name, ErrInvalidArchive, err)
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return s.Notes.UpsertAll(ctx, tx, contents.Notes)
	}); err != nil {
		return res, fmt.Errorf("restore notes: %w", err)
	}
	restored := map[string]string{}
	for k, v := range contents.Preferences {
		if !deviceLocal[k] {
			restored[k] = v
		}
	}
	if s.Prefs != nil && len(restored) > 0 {
		if err := s.Prefs.Restore(restored); err != nil {
			return res, fmt.Errorf("restore preferences: %w", err)
		}
	}
	res.Notes, res.Path = len(contents.Notes), path
	s.log().Info("backup imported", zap.String("path", path), zap.Int("notes", len(contents.Notes)))
	return res, nil
}

// Delete removes the named backup.
func (s *Service) Delete(ctx context.Context, name string) (Result, error) {
	res := Result{Action: Action{Kind: KindDelete, Target: name}}
	h, err := s.Storage.Resolve(ctx)
	if err != nil {
		return res, err
	}
	path := filepath.Join(h.Dir(), name)
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrBackupNotFound, name)
		}
		return res, err
	}
	if err := os.RemoveAll(path); err != nil {
		return res, fmt.Errorf("delete %s: %w", name, err)
	}
	res.Path = path
	s.log().Info("backup deleted", zap.String("path", path))
	return res, nil
}

// ImportCrossApp adds the notes of a predecessor application's zip export.
// It reads from an arbitrary path and needs no backup folder grant.
func (s *Service) ImportCrossApp(ctx context.Context, source string) (Result, error) {
	res := Result{Action: Action{Kind: KindCrossAppImport, Source: source}}
	f, size, err := openEntry(source)
	if err != nil {
		return res, err
	}
	defer f.Close()

	items, err := readCrossApp(f, size)
	if err != nil {
		return res, fmt.Errorf("read %s: %w: %w", filepath.Base(source), ErrInvalidArchive, err)
	}
	now := s.now()
	notes := make([]repository.Note, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" && strings.TrimSpace(it.Text) == "" {
			continue
		}
		created := now
		if t, err := time.Parse(time.RFC3339, it.Created); err == nil {
			created = t.UTC()
		}
		n := repository.Note{
			ID:        uuid.NewString(),
			Title:     strings.TrimSpace(it.Name),
			Content:   it.Text,
			CreatedAt: created,
			UpdatedAt: now,
		}
		if nb := strings.TrimSpace(it.Notebook); nb != "" {
			n.Category = &nb
		}
		notes = append(notes, n)
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return s.Notes.UpsertAll(ctx, tx, notes)
	}); err != nil {
		return res, fmt.Errorf("store imported notes: %w", err)
	}
	res.Notes, res.Path = len(notes), source
	s.log().Info("cross-app archive imported", zap.String("path", source), zap.Int("notes", len(notes)))
	return res, nil
}

func (s *Service) portablePrefs() map[string]string {
	out := map[string]string{}
	if s.Prefs == nil {
		return out
	}
	for k, v := range s.Prefs.Snapshot() {
		if !deviceLocal[k] {
			out[k] = v
		}
	}
	return out
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return database.Now()
}

func (s *Service) log() *zap.Logger { return logging.OrNop(s.Log) }

func openEntry(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrBackupNotFound, filepath.Base(path))
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is a folder", ErrInvalidArchive, filepath.Base(path))
	}
	return f, fi.Size(), nil
}
