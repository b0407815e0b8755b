package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-import/internal/api"
	"github.com/dvloznov/ledger-import/internal/api/handlers"
	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/jobs"
	"github.com/dvloznov/ledger-import/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-import/internal/logger"
	progressmem "github.com/dvloznov/ledger-import/internal/progress/inmemory"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config file (default ./ledger-import.yaml)")
		addr       = flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Initialize logger
	log, err := logger.NewWithLevel(cfg.Log.Level)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid log level")
	}
	ctx := logger.WithContext(context.Background(), log)

	// Initialize import service
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise import service")
	}
	defer application.Close()

	// Initialize job infrastructure
	progressStore := progressmem.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.Server.JobWorkers)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.Server.JobWorkers).Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobs.NewImportHandler(application.Service, progressStore)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	// Initialize handlers
	importsHandler := handlers.NewImportsHandler(application.Service, jobQueue, progressStore, log)
	aiCacheHandler := handlers.NewAICacheHandler(application.Categorizer, log)

	// Synchronous imports are paced by the executor, so writes get a long timeout.
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(importsHandler, aiCacheHandler, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
