// Package main provides a utility to set up the test database with initial data.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"questgen/internal/catalog"
	"questgen/internal/config"
	"questgen/internal/database"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"go.uber.org/zap/zapcore"
)

func resetTestDatabase(databaseURL, testDB string, logger *observability.Logger) error {
	ctx := context.Background()

	// Create admin connection string by replacing the database name with 'postgres'
	// This connects to the admin database to drop/create the test database
	adminConnStr := strings.Replace(databaseURL, "/"+testDB+"?", "/postgres?", 1)
	if !strings.Contains(adminConnStr, "/postgres?") {
		// Handle case where there's no query string
		adminConnStr = strings.Replace(databaseURL, "/"+testDB, "/postgres", 1)
	}

	logger.Info(ctx, "Connecting to admin database", map[string]interface{}{"connection_string": adminConnStr})
	adminDB, err := sql.Open("postgres", adminConnStr)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to connect to postgres database for drop/create: %v", err)
	}
	defer func() {
		if err := adminDB.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close adminDB", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info(ctx, "Terminating connections to test DB", map[string]interface{}{"database": testDB})
	_, err = adminDB.Exec(fmt.Sprintf(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = '%s' AND pid <> pg_backend_pid();
	`, testDB))
	if err != nil {
		logger.Warn(ctx, "Warning: failed to terminate connections", map[string]interface{}{"error": err.Error()})
	}

	logger.Info(ctx, "Dropping test database", map[string]interface{}{"database": testDB})
	_, err = adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE);", testDB))
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to drop test database: %v", err)
	}
	logger.Info(ctx, "Successfully dropped test database", map[string]interface{}{"database": testDB})

	logger.Info(ctx, "Creating test database", map[string]interface{}{"database": testDB})
	_, err = adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s;", testDB))
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create test database: %v", err)
	}
	logger.Info(ctx, "Successfully created test database", map[string]interface{}{"database": testDB})

	logger.Info(ctx, "Test database reset complete")
	return nil
}

func main() {
	ctx := context.Background()

	// CLI flags
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	catalogPath := flag.String("catalog", "", "path to the catalog seed file (default data/test_catalog.yaml)")
	flag.Parse()

	// Load configuration first
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics). Suppress logger creation here to avoid startup noise.
	originalLogging := cfg.OpenTelemetry.EnableLogging
	cfg.OpenTelemetry.EnableLogging = false
	tp, mp, _, err := observability.SetupObservability(&cfg.OpenTelemetry, "setup-test-db")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	// Create logger with level based on --verbose flag
	logLevel := zapcore.WarnLevel
	if *verbose {
		logLevel = zapcore.InfoLevel
	}
	// Restore config flag for logger construction (to allow OTLP exporter if enabled)
	cfg.OpenTelemetry.EnableLogging = originalLogging
	logger := observability.NewLoggerWithLevel(&cfg.OpenTelemetry, logLevel)
	defer func() {
		if tp != nil {
			if err := tp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	// Get DB connection info from env or use defaults
	dbUser := "questgen_user"
	dbPassword := "questgen_password"
	dbHost := "localhost"
	dbPort := "5433"
	testDB := "questgen_test_db"

	// Allow override from TEST_DATABASE_URL
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, dbHost, dbPort, testDB)
		// golang-migrate reads the URL from the environment
		if err := os.Setenv("TEST_DATABASE_URL", databaseURL); err != nil {
			logger.Warn(ctx, "Failed to export TEST_DATABASE_URL", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.Info(ctx, "Using database URL", map[string]interface{}{"database_url": databaseURL})

	// --- Drop and recreate the test database ---
	if err := resetTestDatabase(databaseURL, testDB, logger); err != nil {
		logger.Error(ctx, "Failed to reset test database", err)
		os.Exit(1)
	}

	// Now connect to the new test database; InitDB applies the schema and migrations
	logger.Info(ctx, "Connecting to database", map[string]interface{}{"database_url": databaseURL})

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDB(databaseURL)
	if err != nil {
		logger.Error(ctx, "Failed to initialize database", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Paths below are resolved relative to the module root
	rootDir, err := os.Getwd()
	if err != nil {
		logger.Error(ctx, "Failed to get working directory", err)
		os.Exit(1)
	}

	seedPath := *catalogPath
	if seedPath == "" {
		seedPath = filepath.Join(rootDir, "data", "test_catalog.yaml")
	}

	// Load and insert the catalog
	cat, err := catalog.Load(seedPath)
	if err != nil {
		logger.Error(ctx, "Failed to load catalog seed file", err)
		os.Exit(1)
	}

	result, err := catalog.NewSeeder(db, logger).Seed(ctx, cat)
	if err != nil {
		logger.Error(ctx, "Failed to seed catalog", err)
		os.Exit(1)
	}

	// Output catalog IDs to JSON file for E2E tests
	if err := outputCatalogForTests(result.Courses, rootDir, logger); err != nil {
		logger.Error(ctx, "Failed to output catalog data for tests", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Test database created successfully", map[string]interface{}{
		"topics":         result.Stats.TopicsCreated,
		"bank_questions": result.Stats.QuestionsCreated,
	})
}

// outputCatalogForTests outputs the created catalog IDs to a JSON file for E2E tests to read
func outputCatalogForTests(catalogIDs map[string]catalog.CourseIDs, rootDir string, logger *observability.Logger) error {
	outputPath := filepath.Join(rootDir, "data", "test-catalog.json")

	// Ensure the directory exists
	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return contextutils.WrapErrorf(err, "failed to create output directory: %s", outputDir)
	}

	// Marshal to JSON with pretty printing
	jsonData, err := json.MarshalIndent(catalogIDs, "", "  ")
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to marshal catalog data to JSON")
	}

	// Write to file
	if err := os.WriteFile(outputPath, jsonData, 0o644); err != nil {
		return contextutils.WrapErrorf(err, "failed to write catalog data to file: %s", outputPath)
	}

	logger.Info(context.Background(), "Output catalog data for E2E tests", map[string]interface{}{
		"file_path":    outputPath,
		"course_count": len(catalogIDs),
	})

	return nil
}
