package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"questgen/internal/models"
	"questgen/internal/observability"
)

// DefaultStaleSessionAge is how long a running session may go without a
// progress update before it is considered abandoned. The engine touches
// updated_at after every topic, so a genuinely running session stays fresh.
const DefaultStaleSessionAge = 2 * time.Hour

// CleanupService handles database maintenance and cleanup tasks
type CleanupService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db *sql.DB, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:     db,
		logger: logger,
	}
}

// CleanupLegacyQuestionTypes removes generated questions with unsupported question types
func (c *CleanupService) CleanupLegacyQuestionTypes(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_legacy_question_types")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	// Get count of legacy questions first
	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM new_questions
		WHERE question_type NOT IN ('MCQ', 'MSQ', 'NAT', 'SUB')
	`).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.legacy_questions_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No legacy question types found to cleanup", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_legacy_questions"))
		return nil
	}

	c.logger.Info(ctx, "Found questions with legacy types to cleanup", map[string]interface{}{"count": count})

	// Delete questions with unsupported types
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM new_questions
		WHERE question_type NOT IN ('MCQ', 'MSQ', 'NAT', 'SUB')
	`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully cleaned up questions with legacy types", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// CleanupOrphanedSessions removes generation sessions whose course no longer
// exists. The sessions table carries no foreign key to courses, so deleting
// a course strands its sessions.
func (c *CleanupService) CleanupOrphanedSessions(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_orphaned_sessions")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM generation_sessions gs
		LEFT JOIN courses co ON gs.course_id = co.id
		WHERE co.id IS NULL
	`).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.orphaned_sessions_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No orphaned sessions found to cleanup", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_orphaned_sessions"))
		return nil
	}

	c.logger.Info(ctx, "Found orphaned sessions to cleanup", map[string]interface{}{"count": count})

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM generation_sessions
		WHERE course_id NOT IN (SELECT id FROM courses)
	`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully cleaned up orphaned sessions", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// FailStaleSessions marks running sessions without a progress update within
// olderThan as failed. Sessions stuck in running state after a crashed
// engine would otherwise report progress forever.
func (c *CleanupService) FailStaleSessions(ctx context.Context, olderThan time.Duration) (result0 int64, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "fail_stale_sessions",
		attribute.String("cleanup.stale_age", olderThan.String()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return 0, errors.New("database connection not available")
	}

	cutoff := time.Now().Add(-olderThan)
	result, err := c.db.ExecContext(ctx, `
		UPDATE generation_sessions
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE status = $3 AND updated_at < $4
	`, models.SessionStatusFailed, "session abandoned without progress, marked failed by cleanup", models.SessionStatusRunning, cutoff)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return 0, err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	if rowsAffected > 0 {
		c.logger.Warn(ctx, "Marked stale running sessions as failed", map[string]interface{}{
			"rows_affected": rowsAffected,
			"stale_age":     olderThan.String(),
		})
	} else {
		c.logger.Info(ctx, "No stale running sessions found", map[string]interface{}{})
	}
	return rowsAffected, nil
}

// RunFullCleanup performs all cleanup operations
func (c *CleanupService) RunFullCleanup(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "run_full_cleanup")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	span.SetAttributes(attribute.String("cleanup.start_time", time.Now().Format(time.RFC3339)))

	c.logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"start_time": time.Now().Format(time.RFC3339)})

	if err = c.CleanupLegacyQuestionTypes(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup legacy question types", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err := c.CleanupOrphanedSessions(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup orphaned sessions", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if _, err := c.FailStaleSessions(ctx, DefaultStaleSessionAge); err != nil {
		c.logger.Error(ctx, "Failed to fail stale sessions", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.String("cleanup.end_time", time.Now().Format(time.RFC3339)),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"end_time": time.Now().Format(time.RFC3339)})
	return nil
}

// GetCleanupStats returns statistics about cleanup operations
func (c *CleanupService) GetCleanupStats(ctx context.Context) (result0 map[string]int, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "get_cleanup_stats")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return nil, errors.New("database connection not available")
	}

	stats := make(map[string]int)

	// Count legacy question types
	var legacyCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM new_questions
		WHERE question_type NOT IN ('MCQ', 'MSQ', 'NAT', 'SUB')
	`).Scan(&legacyCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["legacy_questions"] = legacyCount

	// Count orphaned sessions
	var orphanedCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM generation_sessions gs
		LEFT JOIN courses co ON gs.course_id = co.id
		WHERE co.id IS NULL
	`).Scan(&orphanedCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["orphaned_sessions"] = orphanedCount

	// Count stale running sessions
	var staleCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM generation_sessions
		WHERE status = $1 AND updated_at < $2
	`, models.SessionStatusRunning, time.Now().Add(-DefaultStaleSessionAge)).Scan(&staleCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["stale_running_sessions"] = staleCount

	span.SetAttributes(
		attribute.Int("cleanup.stats.legacy_questions", legacyCount),
		attribute.Int("cleanup.stats.orphaned_sessions", orphanedCount),
		attribute.Int("cleanup.stats.stale_running_sessions", staleCount),
	)

	return stats, nil
}
