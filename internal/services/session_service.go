package services

import (
	"context"
	"database/sql"
	"errors"

	"questgen/internal/models"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"github.com/google/uuid"
)

// SessionServiceInterface defines persistence operations for
// auto-generation sessions.
type SessionServiceInterface interface {
	CreateSession(ctx context.Context, session *models.GenerationSession) error
	GetSessionByID(ctx context.Context, sessionID string) (*models.GenerationSession, error)
	ListRecentSessions(ctx context.Context, limit int) ([]models.GenerationSession, error)
	ListPendingSessions(ctx context.Context) ([]models.GenerationSession, error)
	MarkSessionRunning(ctx context.Context, sessionID string) error
	UpdateSessionProgress(ctx context.Context, sessionID string, completedTopics, failedTopics int) error
	MarkSessionCompleted(ctx context.Context, sessionID string) error
	MarkSessionFailed(ctx context.Context, sessionID, lastError string) error
}

const sessionSelectFields = `id, exam_id, course_id, generation_mode, status, total_topics, completed_topics, failed_topics, correct_marks, incorrect_marks, skipped_marks, time_minutes, total_questions, last_error, created_at, updated_at`

// SessionService tracks the lifecycle of auto-generation sessions.
type SessionService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSessionService creates a session service backed by db.
func NewSessionService(db *sql.DB, logger *observability.Logger) *SessionService {
	return &SessionService{db: db, logger: logger}
}

// CreateSession persists a new session, assigning its ID and initial
// pending status when the caller left them unset.
func (s *SessionService) CreateSession(ctx context.Context, session *models.GenerationSession) (err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "create_session")
	defer observability.FinishSpan(span, &err)

	if session == nil {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "session is required")
	}
	if session.ExamID == "" || session.CourseID == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "session requires exam and course IDs")
	}
	if !session.GenerationMode.IsValid() {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unsupported generation mode %q", session.GenerationMode)
	}

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusPending
	}
	span.SetAttributes(
		observability.AttributeSessionID(session.ID),
		observability.AttributeCourseID(session.CourseID),
		observability.AttributeGenerationMode(string(session.GenerationMode)),
	)

	query := `
		INSERT INTO generation_sessions (id, exam_id, course_id, generation_mode, status, total_topics, correct_marks, incorrect_marks, skipped_marks, time_minutes, total_questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		session.ID,
		session.ExamID,
		session.CourseID,
		session.GenerationMode,
		session.Status,
		session.TotalTopics,
		session.CorrectMarks,
		session.IncorrectMarks,
		session.SkippedMarks,
		session.TimeMinutes,
		session.TotalQuestions,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to create generation session")
	}

	s.logger.Info(ctx, "Generation session created", map[string]interface{}{
		"session_id":      session.ID,
		"course_id":       session.CourseID,
		"generation_mode": string(session.GenerationMode),
		"total_topics":    session.TotalTopics,
	})

	return nil
}

// GetSessionByID retrieves a single session.
func (s *SessionService) GetSessionByID(ctx context.Context, sessionID string) (result0 *models.GenerationSession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "get_session_by_id", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	session := &models.GenerationSession{}
	err = s.db.QueryRowContext(ctx, `SELECT `+sessionSelectFields+` FROM generation_sessions WHERE id = $1`, sessionID).Scan(
		&session.ID,
		&session.ExamID,
		&session.CourseID,
		&session.GenerationMode,
		&session.Status,
		&session.TotalTopics,
		&session.CompletedTopics,
		&session.FailedTopics,
		&session.CorrectMarks,
		&session.IncorrectMarks,
		&session.SkippedMarks,
		&session.TimeMinutes,
		&session.TotalQuestions,
		&session.LastError,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrSessionNotFound
		}
		return nil, contextutils.WrapError(err, "failed to get generation session")
	}

	return session, nil
}

// ListRecentSessions retrieves the most recently created sessions.
func (s *SessionService) ListRecentSessions(ctx context.Context, limit int) (result0 []models.GenerationSession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "list_recent_sessions", observability.AttributeLimit(limit))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionSelectFields+` FROM generation_sessions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query recent sessions")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	return s.collectSessions(rows)
}

// ListPendingSessions retrieves pending sessions oldest first, the order
// the worker drains them in.
func (s *SessionService) ListPendingSessions(ctx context.Context) (result0 []models.GenerationSession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "list_pending_sessions")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionSelectFields+` FROM generation_sessions WHERE status = $1 ORDER BY created_at`, models.SessionStatusPending)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query pending sessions")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	return s.collectSessions(rows)
}

// MarkSessionRunning transitions a session to running.
func (s *SessionService) MarkSessionRunning(ctx context.Context, sessionID string) (err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "mark_session_running", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	return s.updateSession(ctx, sessionID,
		`UPDATE generation_sessions SET status = $2, updated_at = NOW() WHERE id = $1`,
		models.SessionStatusRunning)
}

// UpdateSessionProgress records per-topic progress counters.
func (s *SessionService) UpdateSessionProgress(ctx context.Context, sessionID string, completedTopics, failedTopics int) (err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "update_session_progress", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	err = s.updateSession(ctx, sessionID,
		`UPDATE generation_sessions SET completed_topics = $2, failed_topics = $3, updated_at = NOW() WHERE id = $1`,
		completedTopics, failedTopics)
	if err != nil {
		return err
	}

	s.logger.Debug(ctx, "Session progress updated", map[string]interface{}{
		"session_id":       sessionID,
		"completed_topics": completedTopics,
		"failed_topics":    failedTopics,
	})

	return nil
}

// MarkSessionCompleted transitions a session to completed and clears any
// stale error from earlier attempts.
func (s *SessionService) MarkSessionCompleted(ctx context.Context, sessionID string) (err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "mark_session_completed", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	err = s.updateSession(ctx, sessionID,
		`UPDATE generation_sessions SET status = $2, last_error = NULL, updated_at = NOW() WHERE id = $1`,
		models.SessionStatusCompleted)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Generation session completed", map[string]interface{}{
		"session_id": sessionID,
	})

	return nil
}

// MarkSessionFailed transitions a session to failed, recording the error
// that aborted it.
func (s *SessionService) MarkSessionFailed(ctx context.Context, sessionID, lastError string) (err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "mark_session_failed", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	err = s.updateSession(ctx, sessionID,
		`UPDATE generation_sessions SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		models.SessionStatusFailed, sql.NullString{String: lastError, Valid: lastError != ""})
	if err != nil {
		return err
	}

	s.logger.Warn(ctx, "Generation session failed", map[string]interface{}{
		"session_id": sessionID,
		"last_error": lastError,
	})

	return nil
}

// updateSession runs an UPDATE keyed on session ID and converts a zero
// row count into a not-found error.
func (s *SessionService) updateSession(ctx context.Context, sessionID, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, append([]interface{}{sessionID}, args...)...)
	if err != nil {
		return contextutils.WrapError(err, "failed to update generation session")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read affected rows")
	}
	if affected == 0 {
		return contextutils.ErrSessionNotFound
	}

	return nil
}

// collectSessions scans the remaining rows into a slice.
func (s *SessionService) collectSessions(rows *sql.Rows) ([]models.GenerationSession, error) {
	var sessions []models.GenerationSession
	for rows.Next() {
		var session models.GenerationSession
		if err := rows.Scan(
			&session.ID,
			&session.ExamID,
			&session.CourseID,
			&session.GenerationMode,
			&session.Status,
			&session.TotalTopics,
			&session.CompletedTopics,
			&session.FailedTopics,
			&session.CorrectMarks,
			&session.IncorrectMarks,
			&session.SkippedMarks,
			&session.TimeMinutes,
			&session.TotalQuestions,
			&session.LastError,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan generation session")
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate generation sessions")
	}

	return sessions, nil
}
