// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"os"

	"questgen/internal/database"
	"questgen/internal/observability"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the question generator.

Available commands:
  migrate   - Run schema and pending migrations
  stats     - Show database statistics
  cleanup   - Run database cleanup operations`,
	}

	// Add subcommands
	dbCmd.AddCommand(migrateCmd(dbManager, logger, db))
	dbCmd.AddCommand(statsCmd(logger, db))
	dbCmd.AddCommand(cleanupCmd(logger, db))

	return dbCmd
}

// migrateCmd returns the migrate command
func migrateCmd(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run the application schema and any pending migrations against the configured database.`,
		RunE:  runMigrate(dbManager, logger, db),
	}
}

// statsCmd returns the stats command
func statsCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show database statistics including catalog and generated-question counts.`,
		RunE:  runStats(logger, db),
	}
}

// cleanupCmd returns the cleanup command
func cleanupCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	var statsOnly bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run database cleanup operations",
		Long: `Run database cleanup operations to remove old data.

This command will:
- Remove generated questions with legacy question types
- Remove generation sessions whose course no longer exists
- Mark abandoned running sessions as failed

Use --stats flag to see what would be cleaned up without actually performing the cleanup.`,
		RunE: runCleanup(logger, &statsOnly, db),
	}

	// Add flags
	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only show cleanup statistics, don't perform cleanup")

	return cmd
}

// runMigrate returns a function that runs migrations
func runMigrate(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QUESTGEN_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		logger.Info(ctx, "Running database migrations", map[string]interface{}{})

		if err := dbManager.RunMigrations(db); err != nil {
			logger.Error(ctx, "Migrations failed", err, map[string]interface{}{})
			return contextutils.WrapError(err, "migrations failed")
		}

		logger.Info(ctx, "Migrations completed successfully", map[string]interface{}{})
		return nil
	}
}

// runStats returns a function that shows database statistics
func runStats(logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QUESTGEN_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		if db == nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "database connection not available")
		}

		counts := map[string]int{}
		for _, table := range []string{"exams", "courses", "topics", "questions_topic_wise", "new_questions", "generation_sessions"} {
			var n int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
				logger.Error(ctx, "Failed to count table", err, map[string]interface{}{"table": table})
				return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to count %s: %v", table, err)
			}
			counts[table] = n
		}

		logger.Info(ctx, "Database statistics", map[string]interface{}{
			"exams":               counts["exams"],
			"courses":             counts["courses"],
			"topics":              counts["topics"],
			"bank_questions":      counts["questions_topic_wise"],
			"generated_questions": counts["new_questions"],
			"generation_sessions": counts["generation_sessions"],
			"database":            "PostgreSQL",
			"status":              "Connected",
		})

		return nil
	}
}

// runCleanup returns a function that runs database cleanup
func runCleanup(logger *observability.Logger, statsOnly *bool, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QUESTGEN_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		logger.Info(ctx, "Running database cleanup", map[string]interface{}{"stats_only": *statsOnly})

		// Use the database connection passed as parameter
		if db == nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "database connection not available")
		}

		// Initialize cleanup service
		cleanupService := services.NewCleanupService(db, logger)

		if *statsOnly {
			// Show cleanup statistics only
			stats, err := cleanupService.GetCleanupStats(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to get cleanup stats", err, map[string]interface{}{"stats_only": true})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get cleanup stats: %v", err)
			}

			logger.Info(ctx, "Database cleanup statistics", map[string]interface{}{"legacy_questions": stats["legacy_questions"], "orphaned_sessions": stats["orphaned_sessions"], "stale_running_sessions": stats["stale_running_sessions"]})

			total := stats["legacy_questions"] + stats["orphaned_sessions"] + stats["stale_running_sessions"]
			if total == 0 {
				logger.Info(ctx, "No cleanup needed - database is clean", map[string]interface{}{"total": total})
			} else {
				logger.Info(ctx, "Cleanup would touch items", map[string]interface{}{"total": total})
			}
			return nil
		}

		// Run full cleanup
		logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"service": "cleanup"})

		if err := cleanupService.RunFullCleanup(ctx); err != nil {
			logger.Error(ctx, "Cleanup failed", err, map[string]interface{}{"service": "cleanup"})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "cleanup failed: %v", err)
		}

		logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"service": "cleanup"})
		return nil
	}
}
