package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"photo-tagger/internal/database"
	"photo-tagger/internal/dates"
	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/handlers"
	"photo-tagger/internal/ingest"
	"photo-tagger/internal/logging"
	"photo-tagger/internal/media"
	"photo-tagger/internal/memory"
	"photo-tagger/internal/metrics"
	"photo-tagger/internal/middleware"
	"photo-tagger/internal/startup"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch the media directory and serve the API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.bindServeFlags(cmd)
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().String("port", "", "HTTP port")
	cmd.Flags().Bool("prune-missing", false, "remove index entries for deleted files during reconciliation")

	return cmd
}

// bindServeFlags binds at run time; reconcile shares the prune key and
// binding both at construction would leave only the last one effective.
func (a *app) bindServeFlags(cmd *cobra.Command) {
	a.bindFlag(cmd, "port", "port")
	a.bindFlag(cmd, "reconcile.prune_missing", "prune-missing")
}

// components holds what serve and reconcile share.
type components struct {
	config *startup.Config
	db     *database.Database
	coord  *ingest.Coordinator
	memory *memory.Monitor
}

func (a *app) setup(ctx context.Context) (*components, error) {
	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig(a.v)
	if err != nil {
		return nil, err
	}
	startup.LogMemoryConfig(memResult)

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"media":      config.MediaDir,
		"thumbnails": config.ThumbnailDir,
		"database":   config.DatabaseDir,
	}))

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		return nil, err
	}
	count, err := db.Count(ctx)
	if err != nil {
		logging.Warn("Failed to count indexed images: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), count)

	startup.LogThumbnailInit(config.ThumbnailsEnabled, config.ThumbnailMaxWidth, config.ThumbnailMaxHeight)

	coord := ingest.New(db, media.NewThumbnailGenerator(config.ThumbnailQuality), dates.NewExtractor(config.UseEXIF), ingest.Config{
		MediaDir:          config.MediaDir,
		ThumbnailDir:      config.ThumbnailDir,
		MaxWidth:          config.ThumbnailMaxWidth,
		MaxHeight:         config.ThumbnailMaxHeight,
		StabilityDelay:    config.StabilityDelay,
		PruneMissing:      config.PruneMissing,
		Workers:           config.ReconcileWorkers,
		ReconcileInterval: config.ReconcileInterval,
	})

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	coord.SetMemoryMonitor(monitor)

	return &components{config: config, db: db, coord: coord, memory: monitor}, nil
}

func (rt *components) close() {
	rt.coord.Stop()
	rt.memory.Stop()
	if err := rt.db.Close(); err != nil {
		logging.Warn("Failed to close database: %v", err)
	}
}

func (a *app) serve(parent context.Context) error {
	startTime := time.Now()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := a.setup(ctx)
	if err != nil {
		return err
	}
	config := rt.config

	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(rt.db, config.MetricsCollectInterval)
		collector.Start()
	}

	startup.LogIngestInit(config)
	if err := rt.coord.Start(ctx); err != nil {
		rt.close()
		return err
	}
	startup.LogIngestStarted()

	h := handlers.New(rt.db, rt.coord, config)
	router := handlers.NewRouter(h, handlers.RouterOptions{
		MetricsEnabled: config.MetricsEnabled,
		ServeImages:    true,
		ServeThumbs:    config.ThumbnailsEnabled,
	})
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           middleware.Logger(loggingConfig)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	var runErr error
	select {
	case <-ctx.Done():
		startup.LogShutdownInitiated(signalName(parent))
	case err := <-serverErr:
		runErr = err
		logging.Error("Server error: %v", err)
		startup.LogShutdownInitiated("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if collector != nil {
		startup.LogShutdownStep("Stopping metrics collector")
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownStep("Stopping ingestion")
	rt.close()
	startup.LogShutdownStepComplete("Ingestion stopped, database closed")

	startup.LogShutdownComplete()
	return runErr
}

func signalName(parent context.Context) string {
	if parent.Err() != nil {
		return "context cancellation"
	}
	return "signal"
}
