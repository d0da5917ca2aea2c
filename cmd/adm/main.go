// Package main provides the main entry point for the question generator admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"questgen/cmd/adm/commands"
	"questgen/internal/config"
	"questgen/internal/database"
	"questgen/internal/observability"
	"questgen/internal/services"

	"github.com/spf13/cobra"
)

// Global variables for shared resources
var (
	cfg    *config.Config
	logger *observability.Logger
)

func main() {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv("QUESTGEN_CONFIG_FILE") == "" {
		// Try to find the config file in common locations
		defaultPaths := []string{
			"../config.yaml",    // From cmd/adm/
			"../../config.yaml", // From cmd/adm/ (alternative)
			"config.yaml",       // Current directory
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("QUESTGEN_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set QUESTGEN_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	// Load configuration
	var err error
	cfg, err = config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level for admin tool
	cfg.Server.LogLevel = "error"

	// Disable all OpenTelemetry features for admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	// Setup observability (tracing/metrics/logging)
	tp, mp, loggerInstance, err := observability.SetupObservability(&cfg.OpenTelemetry, "questgen-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	// Store logger globally
	logger = loggerInstance

	// Defer cleanup
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

	// Initialize database manager
	dbManager := database.NewManager(logger)

	// Initialize database connection with configuration (no migrations for admin tool)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error(), "db_url": cfg.Database.URL})
		}
	}()

	// Initialize services
	questionService := services.NewQuestionService(db, logger)
	sessionService := services.NewSessionService(db, logger)
	pool, err := services.NewCredentialPool(cfg.Generation.APIKeys, logger)
	if err != nil {
		logger.Error(ctx, "Failed to build credential pool", err, nil)
		os.Exit(1)
	}
	client := services.NewLLMClient(&cfg.Generation, logger)
	generator := services.NewGenerationService(&cfg.Generation, pool, client, logger)

	// Create the root command
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Question Generator Administration Tool",
		Long: `Question Generator Administration Tool

A CLI tool for administering the question generator.
Provides commands for migrations, credential management, one-off
generation, and generation session inspection.`,

		Run: func(cmd *cobra.Command, _ []string) {
			// Show help if no subcommand provided
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	// Add subcommands with initialized services
	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, logger, db))
	rootCmd.AddCommand(commands.CredentialCommands(cfg, pool, logger))
	rootCmd.AddCommand(commands.GenerateCommand(questionService, generator, logger))
	rootCmd.AddCommand(commands.SessionCommands(sessionService, logger, cfg.Database.URL))
	rootCmd.AddCommand(commands.VersionCommand())

	// Execute the command
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
