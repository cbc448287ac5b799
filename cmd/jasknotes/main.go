// Package main provides the jasknotes CLI.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/config"
	"github.com/jask/jasknotes/internal/database"
	"github.com/jask/jasknotes/internal/database/repository"
	"github.com/jask/jasknotes/internal/jobs"
	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/platform"
	"github.com/jask/jasknotes/internal/prefs"
	"github.com/jask/jasknotes/internal/service"
	"github.com/jask/jasknotes/internal/settings"
	"github.com/jask/jasknotes/internal/storage"
	"github.com/jask/jasknotes/internal/tui"
	"github.com/jask/jasknotes/internal/worker"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "jasknotes",
	Short:        "jasknotes settings: backup, restore and import notes",
	RunE:         runSettings,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(backupsCmd)
}

// app is everything the commands share once config is loaded.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	db       *sql.DB
	prefs    *prefs.FileStore
	perms    platform.Permissions
	resolver *storage.Resolver
	queue    *jobs.Queue
	service  *backup.Service
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Path: cfg.Log.Path})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.SeedDefaults(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	store, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: %w", err)
	}
	perms := platform.PrefPermissions{Store: store}
	resolver := storage.NewResolver(cfg.Storage.Mode, cfg.Backup.Dir, store, perms, log)

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		prefs:    store,
		perms:    perms,
		resolver: resolver,
		queue:    jobs.New(repository.NewJobRepo(db)),
		service: &backup.Service{
			DB:      db,
			Notes:   repository.NewNoteRepo(db),
			Prefs:   store,
			Storage: resolver,
			Log:     log,
		},
	}, nil
}

func (a *app) close() {
	_ = a.db.Close()
	_ = logging.Sync()
}

func (a *app) runner() *worker.Runner {
	return worker.NewRunner(a.queue, a.service, a.cfg.Worker.PollInterval, a.cfg.Worker.MaxAttempts, a.log)
}

// startRunner runs r in the background. stop cancels it and waits for Run to
// return, so the database can be closed afterwards.
func startRunner(ctx context.Context, r *worker.Runner, log *zap.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("worker stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runSettings starts the settings screen. In inprocess mode the worker runs
// alongside it and reports completions to the screen.
func runSettings(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var completions <-chan worker.Completion
	if a.cfg.Worker.Mode == config.WorkerInProcess {
		r := a.runner()
		completions = r.Completions()
		stop := startRunner(ctx, r, a.log)
		defer stop()
	}

	ctrl := settings.New(settings.Deps{
		Resolver:    a.resolver,
		Catalog:     backup.NewCatalog(a.log),
		Dispatcher:  backup.NewDispatcher(a.queue, a.log),
		Permissions: a.perms,
		Prefs:       a.prefs,
		NameLayout:  a.cfg.Backup.NameLayout,
		Log:         a.log,
	})
	maintenance := &service.MaintenanceService{DB: a.db, Prefs: a.prefs, Log: a.log}

	p := tea.NewProgram(tui.New(ctx, ctrl, tui.Services{Maintenance: maintenance}, completions, a.log), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("settings screen: %w", err)
	}
	return nil
}
