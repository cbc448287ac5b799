package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/logging"
)

// Clearer is the part of the preference store a reset wipes.
type Clearer interface {
	Clear() error
}

// MaintenanceService houses destructive/ops actions surfaced through the TUI.
type MaintenanceService struct {
	DB    *sql.DB
	Prefs Clearer
	Log   *zap.Logger
}

// Reset wipes all notes, finished jobs and preferences. It keeps the schema
// intact so the app can continue running. Pending and running jobs survive so
// the worker is not pulled out from under an in-flight export.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM notes"); err != nil {
			return fmt.Errorf("reset table notes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM backup_jobs WHERE status IN ('done', 'failed')"); err != nil {
			return fmt.Errorf("reset table backup_jobs: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	if s.Prefs != nil {
		if err := s.Prefs.Clear(); err != nil {
			return fmt.Errorf("maintenance: clear preferences: %w", err)
		}
	}
	logging.OrNop(s.Log).Info("all data reset")
	return nil
}
