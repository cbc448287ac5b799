package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/config"
	"github.com/jask/jasknotes/internal/metrics"
)

var errInProcessWorker = errors.New("worker.mode is inprocess: the settings screen runs the worker itself; set worker.mode = external to use this command")

// checkWorkerMode refuses a second runner next to the settings screen's own.
// Its startup requeue would hand running jobs out twice.
func checkWorkerMode(cfg config.Config) error {
	if cfg.Worker.Mode != config.WorkerExternal {
		return errInProcessWorker
	}
	return nil
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the backup worker",
	Long:  "Drain the backup job queue until interrupted. Use with worker.mode = external.",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := checkWorkerMode(a.cfg); err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.log.Info("serving metrics", zap.String("addr", addr))
	}

	a.log.Info("worker started", zap.Duration("poll_interval", a.cfg.Worker.PollInterval))
	r := a.runner()
	go func() {
		// nobody watches outcomes in this process; the job table records them
		for range r.Completions() {
		}
	}()
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("worker stopped")
	return nil
}
