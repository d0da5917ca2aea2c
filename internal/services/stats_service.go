package services

import (
	"context"
	"database/sql"
	"time"

	"questgen/internal/models"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.opentelemetry.io/otel/attribute"
)

// StatsServiceInterface defines aggregate reporting over generated
// questions.
type StatsServiceInterface interface {
	GetDailyGenerationCounts(ctx context.Context, courseID string) ([]*GenerationDailyCount, error)
	GetGenerationTypeCounts(ctx context.Context, courseID string) ([]*GenerationTypeCount, error)
}

// GenerationDailyCount is the number of questions generated for a course
// on a single calendar day.
type GenerationDailyCount struct {
	Date  openapi_types.Date `json:"date"`
	Count int                `json:"count"`
}

// GenerationTypeCount is the number of generated questions of one type.
type GenerationTypeCount struct {
	QuestionType models.QuestionType `json:"question_type"`
	Count        int                 `json:"count"`
}

// StatsService aggregates generation activity for reporting endpoints.
type StatsService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewStatsService creates a stats service backed by db.
func NewStatsService(db *sql.DB, logger *observability.Logger) *StatsService {
	return &StatsService{db: db, logger: logger}
}

// GetDailyGenerationCounts returns per-day generated-question counts for
// a course, newest day first. Dates are calendar days, not timestamps.
func (s *StatsService) GetDailyGenerationCounts(ctx context.Context, courseID string) (stats []*GenerationDailyCount, err error) {
	ctx, span := observability.TraceStatsFunction(ctx, "get_daily_generation_counts",
		attribute.String("course.id", courseID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT DATE(nq.created_at) AS generation_date, COUNT(*) AS generated
		FROM new_questions nq
		JOIN topics t ON nq.topic_id = t.id
		JOIN chapters ch ON t.chapter_id = ch.id
		JOIN units u ON ch.unit_id = u.id
		JOIN subjects sub ON u.subject_id = sub.id
		WHERE sub.course_id = $1
		GROUP BY DATE(nq.created_at)
		ORDER BY generation_date DESC`

	rows, err := s.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query daily generation counts")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close daily generation counts query", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	stats = []*GenerationDailyCount{}
	for rows.Next() {
		var stat GenerationDailyCount
		var day time.Time
		if err = rows.Scan(&day, &stat.Count); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan daily generation count")
		}
		stat.Date = openapi_types.Date{Time: day}
		stats = append(stats, &stat)
	}

	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating daily generation counts")
	}

	return stats, nil
}

// GetGenerationTypeCounts returns how many questions of each type have
// been generated for a course.
func (s *StatsService) GetGenerationTypeCounts(ctx context.Context, courseID string) (stats []*GenerationTypeCount, err error) {
	ctx, span := observability.TraceStatsFunction(ctx, "get_generation_type_counts",
		attribute.String("course.id", courseID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT nq.question_type, COUNT(*) AS generated
		FROM new_questions nq
		JOIN topics t ON nq.topic_id = t.id
		JOIN chapters ch ON t.chapter_id = ch.id
		JOIN units u ON ch.unit_id = u.id
		JOIN subjects sub ON u.subject_id = sub.id
		WHERE sub.course_id = $1
		GROUP BY nq.question_type
		ORDER BY nq.question_type`

	rows, err := s.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query generation type counts")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close generation type counts query", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	stats = []*GenerationTypeCount{}
	for rows.Next() {
		var stat GenerationTypeCount
		if err = rows.Scan(&stat.QuestionType, &stat.Count); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan generation type count")
		}
		stats = append(stats, &stat)
	}

	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating generation type counts")
	}

	return stats, nil
}
