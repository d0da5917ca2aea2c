//go:build integration

package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"questgen/internal/config"
	"questgen/internal/database"
	"questgen/internal/observability"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// SharedTestDBSetup provides a clean, isolated database for each integration test.
func SharedTestDBSetup(t *testing.T) *sql.DB {
	observabilityLogger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(observabilityLogger)

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	db, err := dbManager.InitDB(databaseURL)
	require.NoError(t, err)

	CleanupTestDatabase(db, t)

	return db
}

// cleanupDatabase performs the core database cleanup operations.
// Child tables first so the truncates succeed even without CASCADE support.
func cleanupDatabase(db *sql.DB, logger *observability.Logger) {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to begin cleanup transaction", err)
		}
		return
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cleanupQueries := []string{
		"TRUNCATE TABLE generation_sessions CASCADE",
		"TRUNCATE TABLE new_questions CASCADE",
		"TRUNCATE TABLE questions_topic_wise CASCADE",
		"TRUNCATE TABLE topics CASCADE",
		"TRUNCATE TABLE chapters CASCADE",
		"TRUNCATE TABLE units CASCADE",
		"TRUNCATE TABLE subjects CASCADE",
		"TRUNCATE TABLE parts CASCADE",
		"TRUNCATE TABLE slots CASCADE",
		"TRUNCATE TABLE courses CASCADE",
		"TRUNCATE TABLE exams CASCADE",
	}

	for _, query := range cleanupQueries {
		_, err := tx.ExecContext(ctx, query)
		if err != nil {
			if logger != nil {
				logger.Warn(ctx, "Could not execute cleanup query", map[string]interface{}{
					"query": query,
				})
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to commit cleanup transaction", err)
		}
	}
}

// CleanupTestDatabase cleans up the database for integration tests.
// This function can be used by any integration test that needs a clean slate.
func CleanupTestDatabase(db *sql.DB, t *testing.T) {
	cleanupDatabase(db, nil)
}

// catalogFixture holds the IDs of a minimal exam hierarchy created for a test.
type catalogFixture struct {
	ExamID    string
	CourseID  string
	SubjectID string
	UnitID    string
	ChapterID string
	TopicID   string
}

// seedCatalog inserts one full hierarchy path (exam through topic) and
// returns the generated IDs.
func seedCatalog(t *testing.T, db *sql.DB) catalogFixture {
	t.Helper()
	ctx := context.Background()

	var f catalogFixture
	err := db.QueryRowContext(ctx,
		`INSERT INTO exams (name, description) VALUES ($1, $2) RETURNING id`,
		"JEE Advanced", "Engineering entrance exam").Scan(&f.ExamID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`INSERT INTO courses (exam_id, name, description) VALUES ($1, $2, $3) RETURNING id`,
		f.ExamID, "Physics", "Core physics course").Scan(&f.CourseID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`INSERT INTO subjects (course_id, name) VALUES ($1, $2) RETURNING id`,
		f.CourseID, "Mechanics").Scan(&f.SubjectID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`INSERT INTO units (subject_id, name) VALUES ($1, $2) RETURNING id`,
		f.SubjectID, "Kinematics").Scan(&f.UnitID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`INSERT INTO chapters (unit_id, name, description) VALUES ($1, $2, $3) RETURNING id`,
		f.UnitID, "Motion in One Dimension", "Straight line motion").Scan(&f.ChapterID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx,
		`INSERT INTO topics (chapter_id, name, description, weightage) VALUES ($1, $2, $3, $4) RETURNING id`,
		f.ChapterID, "Uniform Acceleration", "Constant acceleration problems", 3.5).Scan(&f.TopicID)
	require.NoError(t, err)

	return f
}

// seedBankQuestion inserts a question into the existing-question bank.
func seedBankQuestion(t *testing.T, db *sql.DB, topicID, statement, questionType string) string {
	t.Helper()

	var id string
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO questions_topic_wise (topic_id, question_statement, question_type, options, answer, solution)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		topicID, statement, questionType,
		pq.StringArray{"Option A", "Option B", "Option C", "Option D"}, "1", "Worked solution").Scan(&id)
	require.NoError(t, err)

	return id
}
