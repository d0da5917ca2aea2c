//go:build integration

package main

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"questgen/internal/config"
	"questgen/internal/database"
	"questgen/internal/observability"
	"questgen/internal/services"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ResetDBIntegrationTestSuite provides integration tests for the reset-db CLI tool
type ResetDBIntegrationTestSuite struct {
	suite.Suite
	DB        *sql.DB
	DBManager *database.Manager
	Logger    *observability.Logger
	Config    *config.Config
}

func TestResetDBIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ResetDBIntegrationTestSuite))
}

func (suite *ResetDBIntegrationTestSuite) SetupSuite() {
	// Load configuration
	cfg, err := config.NewConfig()
	require.NoError(suite.T(), err)
	suite.Config = cfg

	// Setup observability with noop telemetry for tests
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	suite.Logger = logger

	// Initialize database manager
	dbManager := database.NewManager(logger)
	suite.DBManager = dbManager

	testDBURL := os.Getenv("TEST_DATABASE_URL")
	if testDBURL == "" {
		suite.T().Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	// Initialize database connection
	db, err := dbManager.InitDB(testDBURL)
	require.NoError(suite.T(), err)
	suite.DB = db
}

func (suite *ResetDBIntegrationTestSuite) TearDownSuite() {
	if suite.DB != nil {
		suite.DB.Close()
	}
}

func (suite *ResetDBIntegrationTestSuite) SetupTest() {
	suite.cleanupDatabase()
	suite.setupTestData()
}

func (suite *ResetDBIntegrationTestSuite) TearDownTest() {
	suite.cleanupDatabase()
}

func (suite *ResetDBIntegrationTestSuite) cleanupDatabase() {
	// Use the shared database cleanup function
	services.CleanupTestDatabase(suite.DB, suite.T())
}

func (suite *ResetDBIntegrationTestSuite) setupTestData() {
	// Create a minimal catalog path with one topic
	var examID, courseID, subjectID, unitID, chapterID, topicID string
	err := suite.DB.QueryRow(`INSERT INTO exams (name, description) VALUES ('JEE Advanced', 'Engineering entrance exam') RETURNING id`).Scan(&examID)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow(`INSERT INTO courses (exam_id, name, description) VALUES ($1, 'Physics', 'Core physics') RETURNING id`, examID).Scan(&courseID)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow(`INSERT INTO subjects (course_id, name) VALUES ($1, 'Mechanics') RETURNING id`, courseID).Scan(&subjectID)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow(`INSERT INTO units (subject_id, name) VALUES ($1, 'Kinematics') RETURNING id`, subjectID).Scan(&unitID)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow(`INSERT INTO chapters (unit_id, name, description) VALUES ($1, 'Motion in One Dimension', 'Straight line motion') RETURNING id`, unitID).Scan(&chapterID)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow(`INSERT INTO topics (chapter_id, name, description, weightage) VALUES ($1, 'Uniform Acceleration', 'Constant acceleration', 2.0) RETURNING id`, chapterID).Scan(&topicID)
	require.NoError(suite.T(), err)

	// Create bank and generated questions under the topic
	_, err = suite.DB.Exec(`
		INSERT INTO questions_topic_wise (topic_id, question_statement, question_type, options, answer, solution)
		VALUES ($1, 'Bank question', 'MCQ', $2, '0', '')`,
		topicID, pq.StringArray{"A", "B", "C", "D"})
	require.NoError(suite.T(), err)

	_, err = suite.DB.Exec(`
		INSERT INTO new_questions (topic_id, topic_name, question_statement, question_type, options, answer, solution)
		VALUES ($1, 'Uniform Acceleration', 'Generated question', 'MCQ', $2, '1', 'Worked solution')`,
		topicID, pq.StringArray{"A", "B", "C", "D"})
	require.NoError(suite.T(), err)
}

// TestResetDatabase_Integration tests the database reset functionality
func (suite *ResetDBIntegrationTestSuite) TestResetDatabase_Integration() {
	ctx := context.Background()

	// Verify test data exists
	var topicCount, bankCount, generatedCount int64
	err := suite.DB.QueryRow("SELECT COUNT(*) FROM topics").Scan(&topicCount)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM questions_topic_wise").Scan(&bankCount)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM new_questions").Scan(&generatedCount)
	require.NoError(suite.T(), err)

	assert.Greater(suite.T(), topicCount, int64(0), "Should have test topics")
	assert.Greater(suite.T(), bankCount, int64(0), "Should have bank questions")
	assert.Greater(suite.T(), generatedCount, int64(0), "Should have generated questions")

	// Reset the database
	err = suite.DBManager.ResetDatabase(ctx, suite.DB)
	require.NoError(suite.T(), err)

	// Verify all data was cleared
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM topics").Scan(&topicCount)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM questions_topic_wise").Scan(&bankCount)
	require.NoError(suite.T(), err)
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM new_questions").Scan(&generatedCount)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), int64(0), topicCount, "All topics should be deleted")
	assert.Equal(suite.T(), int64(0), bankCount, "All bank questions should be deleted")
	assert.Equal(suite.T(), int64(0), generatedCount, "All generated questions should be deleted")
}

// TestResetDatabaseWithNoData_Integration tests reset with empty database
func (suite *ResetDBIntegrationTestSuite) TestResetDatabaseWithNoData_Integration() {
	ctx := context.Background()

	// Clean up all data first
	suite.cleanupDatabase()

	// Verify database is empty
	var examCount int64
	err := suite.DB.QueryRow("SELECT COUNT(*) FROM exams").Scan(&examCount)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), examCount, "Database should be empty")

	// Reset empty database - should succeed
	err = suite.DBManager.ResetDatabase(ctx, suite.DB)
	require.NoError(suite.T(), err)

	// Verify database is still empty
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM exams").Scan(&examCount)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), examCount, "Database should remain empty")
}

// TestResetThenMigrate_Integration tests that migrations run cleanly after a reset
func (suite *ResetDBIntegrationTestSuite) TestResetThenMigrate_Integration() {
	ctx := context.Background()

	err := suite.DBManager.ResetDatabase(ctx, suite.DB)
	require.NoError(suite.T(), err)

	err = suite.DBManager.RunMigrations(suite.DB)
	require.NoError(suite.T(), err)

	// Schema should still be queryable after reset plus migrate
	var sessionCount int64
	err = suite.DB.QueryRow("SELECT COUNT(*) FROM generation_sessions").Scan(&sessionCount)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), sessionCount)
}

// TestResetDatabaseErrorHandling_Integration tests error handling scenarios
func (suite *ResetDBIntegrationTestSuite) TestResetDatabaseErrorHandling_Integration() {
	ctx := context.Background()

	// Test with cancelled context
	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel() // Cancel immediately

	// Should handle cancelled context gracefully
	err := suite.DBManager.ResetDatabase(cancelledCtx, suite.DB)
	// The error handling depends on the implementation, but it shouldn't panic
	suite.Logger.Info(ctx, "Reset with cancelled context handled", map[string]interface{}{
		"error": err,
	})
}

// TestResetDatabaseTimeout_Integration tests timeout handling
func (suite *ResetDBIntegrationTestSuite) TestResetDatabaseTimeout_Integration() {
	// Test with context timeout
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	// Run reset with timeout - should handle gracefully
	err := suite.DBManager.ResetDatabase(ctx, suite.DB)
	// Should either complete quickly or handle timeout gracefully
	suite.Logger.Info(context.Background(), "Reset with timeout handled", map[string]interface{}{
		"error": err,
	})
}

// TestResetDBCLI_Integration tests the CLI tool configuration path
func (suite *ResetDBIntegrationTestSuite) TestResetDBCLI_Integration() {
	ctx := context.Background()

	// Test that the config can be loaded (this is what the CLI does first)
	cfg, err := config.NewConfig()
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), cfg, "Config should be loaded successfully")

	// Test that the database URL is set
	assert.NotEmpty(suite.T(), cfg.Database.URL, "Database URL should be set")

	suite.Logger.Info(ctx, "CLI functionality test completed", map[string]interface{}{
		"database_url": cfg.Database.URL,
	})
}

// TestResetDBCLIConfigError_Integration tests CLI configuration error handling
func (suite *ResetDBIntegrationTestSuite) TestResetDBCLIConfigError_Integration() {
	// Test with invalid config file
	originalConfigFile := os.Getenv("QUESTGEN_CONFIG_FILE")
	defer os.Setenv("QUESTGEN_CONFIG_FILE", originalConfigFile)

	// Set invalid config file
	os.Setenv("QUESTGEN_CONFIG_FILE", "/nonexistent/config.yaml")

	// Test that config loading fails with invalid config file
	_, err := config.NewConfig()
	assert.Error(suite.T(), err, "Config should fail with invalid config file")

	suite.Logger.Info(context.Background(), "CLI config error handling test completed", map[string]interface{}{
		"error": err,
	})
}

// TestMain sets up the test environment
func TestMain(m *testing.M) {
	// Run the tests
	code := m.Run()

	// Clean up
	os.Exit(code)
}
