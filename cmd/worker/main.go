// Package main provides the entry point for the question generator session worker.
// It drains generation sessions that are still pending in the database, then exits.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"questgen/internal/config"
	"questgen/internal/database"
	"questgen/internal/observability"
	"questgen/internal/services"
	"questgen/internal/worker"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the drain on SIGINT/SIGTERM so sessions stop between topics
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "questgen-worker")
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		if tp != nil {
			if err := tp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "worker"
	}

	logger.Info(ctx, "Starting question generator worker", map[string]interface{}{
		"instance": instance,
		"logLevel": cfg.Server.LogLevel,
		"debug":    cfg.Server.Debug,
	})

	// Initialize database manager with logger
	dbManager := database.NewManager(logger)

	// Initialize database connection without running migrations (migrations are managed elsewhere)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize database", err, map[string]interface{}{"db_url": cfg.Database.URL})
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database", map[string]interface{}{"error": err.Error(), "db_url": cfg.Database.URL})
		}
	}()

	// Initialize services
	questionService := services.NewQuestionService(db, logger)
	sessionService := services.NewSessionService(db, logger)
	pool, err := services.NewCredentialPool(cfg.Generation.APIKeys, logger)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to build credential pool", err, nil)
	}
	client := services.NewLLMClient(&cfg.Generation, logger)
	generator := services.NewGenerationService(&cfg.Generation, pool, client, logger)
	emailService := services.CreateEmailService(cfg, logger)

	// Initialize the session engine with the observability logger
	engine := worker.NewEngine(sessionService, questionService, generator, emailService, cfg, logger, instance)

	// Recover sessions a crashed worker left running so the drain starts clean
	cleanupService := services.NewCleanupService(db, logger)
	if marked, err := cleanupService.FailStaleSessions(ctx, services.DefaultStaleSessionAge); err != nil {
		logger.Warn(ctx, "Failed to check for stale sessions", map[string]interface{}{"error": err.Error()})
	} else if marked > 0 {
		logger.Warn(ctx, "Marked stale running sessions as failed", map[string]interface{}{"count": marked})
	}

	ran, err := engine.DrainPending(ctx)
	if err != nil {
		logger.Error(ctx, "Drain run finished with an error", err, map[string]interface{}{
			"sessions_run": ran,
		})
		os.Exit(1)
	}

	logger.Info(ctx, "Drain run completed", map[string]interface{}{
		"sessions_run": ran,
	})
}
