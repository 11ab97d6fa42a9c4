package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/trobanga/enzflow/internal/api"
	"github.com/trobanga/enzflow/internal/api/handler"
	"github.com/trobanga/enzflow/internal/dbprep"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/queue"
	"github.com/trobanga/enzflow/internal/registry"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job queue",
	Long: `Run the HTTP API.

On start the job database is migrated, reference preparation begins in the
background, and stuck jobs are reaped. Uploads are queued and run one at a
time in detached job processes, so restarting the server does not stop a
running job.

Example:
  enzflow serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if serveAddr != "" {
		config.Server.Addr = serveAddr
	}

	reg := registry.New(0, logger)
	ctx, stop := reg.HandleSignals(cmd.Context())
	defer stop()

	st, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	exec := runner.New(reg, logger)
	prep := dbprep.New(config, exec, logger)
	go func() {
		if _, err := prep.Initialize(ctx); err != nil {
			logger.Error("Reference preparation failed", "error", err)
		}
	}()

	ctrl, err := newController(config, st, logger)
	if err != nil {
		return err
	}

	h := &handler.Handlers{
		Store:     st,
		Queue:     ctrl,
		Importer:  services.NewImporter(services.NewWorkspace(config.DataDir), st, logger),
		Workspace: services.NewWorkspace(config.DataDir),
		Logger:    logger,
		Ready: func() bool {
			_, ok := prep.Cached()
			return ok
		},
		MaxUpload: config.Server.MaxUploadMB << 20,
	}

	srv := &http.Server{
		Addr:         config.Server.Addr,
		Handler:      api.NewRouter(h, logger),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	// Jobs left behind by a previous server are resolved before serving
	if _, err := ctrl.Reap(ctx); err != nil {
		logger.Warn("Initial reap failed", "error", err)
	}
	ctrl.Kick(ctx)
	go reapLoop(ctx, ctrl, config.Server.ReapInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", config.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server", "timeout", config.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func reapLoop(ctx context.Context, ctrl *queue.Controller, interval time.Duration, logger *lib.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := ctrl.Reap(ctx)
			if err != nil {
				logger.Warn("Reaper pass failed", "error", err)
				continue
			}
			if n := len(res.Completed) + len(res.Failed); n > 0 {
				logger.Info("Reaper resolved stuck jobs", "completed", len(res.Completed), "failed", len(res.Failed))
			}
		}
	}
}
