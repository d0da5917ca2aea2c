package services

import (
	"context"
	"database/sql"
	"errors"

	"questgen/internal/models"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QuestionServiceInterface defines catalog and question persistence
// operations. This allows for easier mocking in tests.
type QuestionServiceInterface interface {
	GetExams(ctx context.Context) ([]models.Exam, error)
	GetCoursesByExam(ctx context.Context, examID string) ([]models.Course, error)
	GetSubjectsByCourse(ctx context.Context, courseID string) ([]models.Subject, error)
	GetUnitsBySubject(ctx context.Context, subjectID string) ([]models.Unit, error)
	GetChaptersByUnit(ctx context.Context, unitID string) ([]models.Chapter, error)
	GetTopicsByChapter(ctx context.Context, chapterID string) ([]models.Topic, error)
	GetTopicByID(ctx context.Context, topicID string) (*models.Topic, error)
	GetChapterByID(ctx context.Context, chapterID string) (*models.Chapter, error)
	GetPartsByCourse(ctx context.Context, courseID string) ([]models.Part, error)
	GetSlotsByCourse(ctx context.Context, courseID string) ([]models.Slot, error)
	GetAllTopicsWithWeightage(ctx context.Context, courseID string) ([]models.TopicWeightage, error)
	GetExistingQuestions(ctx context.Context, topicID string, limit int) ([]models.Question, error)
	GetGeneratedQuestions(ctx context.Context, topicID string, limit int) ([]models.GeneratedQuestion, error)
	CreateGeneratedQuestion(ctx context.Context, question *models.GeneratedQuestion) error
	DB() *sql.DB
}

// defaultDifficulty is stored when the generated payload omits a
// difficulty level.
const defaultDifficulty = "Medium"

// QuestionService provides catalog walks and question persistence on the
// exam hierarchy.
type QuestionService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewQuestionService creates a question service backed by db.
func NewQuestionService(db *sql.DB, logger *observability.Logger) *QuestionService {
	return &QuestionService{db: db, logger: logger}
}

// DB exposes the underlying database handle.
func (s *QuestionService) DB() *sql.DB {
	return s.db
}

// GetExams retrieves every exam in the catalog.
func (s *QuestionService) GetExams(ctx context.Context) (result0 []models.Exam, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_exams")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM exams ORDER BY name`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query exams")
	}
	defer s.closeRows(ctx, rows)

	var exams []models.Exam
	for rows.Next() {
		var exam models.Exam
		if err = rows.Scan(&exam.ID, &exam.Name, &exam.Description, &exam.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan exam")
		}
		exams = append(exams, exam)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate exams")
	}

	return exams, nil
}

// GetCoursesByExam retrieves the courses offered under an exam.
func (s *QuestionService) GetCoursesByExam(ctx context.Context, examID string) (result0 []models.Course, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_courses_by_exam", observability.AttributeExamID(examID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, exam_id, name, description, created_at FROM courses WHERE exam_id = $1 ORDER BY name`, examID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query courses")
	}
	defer s.closeRows(ctx, rows)

	var courses []models.Course
	for rows.Next() {
		var course models.Course
		if err = rows.Scan(&course.ID, &course.ExamID, &course.Name, &course.Description, &course.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan course")
		}
		courses = append(courses, course)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate courses")
	}

	return courses, nil
}

// GetSubjectsByCourse retrieves the subjects within a course.
func (s *QuestionService) GetSubjectsByCourse(ctx context.Context, courseID string) (result0 []models.Subject, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_subjects_by_course", observability.AttributeCourseID(courseID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, course_id, name, description, created_at FROM subjects WHERE course_id = $1 ORDER BY name`, courseID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query subjects")
	}
	defer s.closeRows(ctx, rows)

	var subjects []models.Subject
	for rows.Next() {
		var subject models.Subject
		if err = rows.Scan(&subject.ID, &subject.CourseID, &subject.Name, &subject.Description, &subject.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan subject")
		}
		subjects = append(subjects, subject)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate subjects")
	}

	return subjects, nil
}

// GetUnitsBySubject retrieves the units within a subject.
func (s *QuestionService) GetUnitsBySubject(ctx context.Context, subjectID string) (result0 []models.Unit, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_units_by_subject")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, subject_id, name, description, created_at FROM units WHERE subject_id = $1 ORDER BY name`, subjectID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query units")
	}
	defer s.closeRows(ctx, rows)

	var units []models.Unit
	for rows.Next() {
		var unit models.Unit
		if err = rows.Scan(&unit.ID, &unit.SubjectID, &unit.Name, &unit.Description, &unit.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan unit")
		}
		units = append(units, unit)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate units")
	}

	return units, nil
}

// GetChaptersByUnit retrieves the chapters within a unit.
func (s *QuestionService) GetChaptersByUnit(ctx context.Context, unitID string) (result0 []models.Chapter, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_chapters_by_unit")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, unit_id, name, description, created_at FROM chapters WHERE unit_id = $1 ORDER BY name`, unitID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query chapters")
	}
	defer s.closeRows(ctx, rows)

	var chapters []models.Chapter
	for rows.Next() {
		var chapter models.Chapter
		if err = rows.Scan(&chapter.ID, &chapter.UnitID, &chapter.Name, &chapter.Description, &chapter.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan chapter")
		}
		chapters = append(chapters, chapter)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate chapters")
	}

	return chapters, nil
}

// GetTopicsByChapter retrieves the topics within a chapter.
func (s *QuestionService) GetTopicsByChapter(ctx context.Context, chapterID string) (result0 []models.Topic, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_topics_by_chapter")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, chapter_id, name, description, weightage, created_at FROM topics WHERE chapter_id = $1 ORDER BY name`, chapterID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query topics")
	}
	defer s.closeRows(ctx, rows)

	var topics []models.Topic
	for rows.Next() {
		var topic models.Topic
		if err = rows.Scan(&topic.ID, &topic.ChapterID, &topic.Name, &topic.Description, &topic.Weightage, &topic.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan topic")
		}
		topics = append(topics, topic)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate topics")
	}

	return topics, nil
}

// GetTopicByID retrieves a single topic.
func (s *QuestionService) GetTopicByID(ctx context.Context, topicID string) (result0 *models.Topic, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_topic_by_id", observability.AttributeTopicID(topicID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	topic := &models.Topic{}
	err = s.db.QueryRowContext(ctx, `SELECT id, chapter_id, name, description, weightage, created_at FROM topics WHERE id = $1`, topicID).
		Scan(&topic.ID, &topic.ChapterID, &topic.Name, &topic.Description, &topic.Weightage, &topic.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrTopicNotFound
		}
		return nil, contextutils.WrapError(err, "failed to get topic")
	}

	return topic, nil
}

// GetChapterByID retrieves a single chapter, used for prompt context.
func (s *QuestionService) GetChapterByID(ctx context.Context, chapterID string) (result0 *models.Chapter, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_chapter_by_id")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	chapter := &models.Chapter{}
	err = s.db.QueryRowContext(ctx, `SELECT id, unit_id, name, description, created_at FROM chapters WHERE id = $1`, chapterID).
		Scan(&chapter.ID, &chapter.UnitID, &chapter.Name, &chapter.Description, &chapter.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to get chapter")
	}

	return chapter, nil
}

// GetPartsByCourse retrieves the exam parts defined for a course.
func (s *QuestionService) GetPartsByCourse(ctx context.Context, courseID string) (result0 []models.Part, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_parts_by_course", observability.AttributeCourseID(courseID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, course_id, part_name, created_at FROM parts WHERE course_id = $1 ORDER BY part_name`, courseID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query parts")
	}
	defer s.closeRows(ctx, rows)

	var parts []models.Part
	for rows.Next() {
		var part models.Part
		if err = rows.Scan(&part.ID, &part.CourseID, &part.PartName, &part.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan part")
		}
		parts = append(parts, part)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate parts")
	}

	return parts, nil
}

// GetSlotsByCourse retrieves the exam slots defined for a course.
func (s *QuestionService) GetSlotsByCourse(ctx context.Context, courseID string) (result0 []models.Slot, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_slots_by_course", observability.AttributeCourseID(courseID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT id, course_id, slot_name, created_at FROM slots WHERE course_id = $1 ORDER BY slot_name`, courseID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query slots")
	}
	defer s.closeRows(ctx, rows)

	var slots []models.Slot
	for rows.Next() {
		var slot models.Slot
		if err = rows.Scan(&slot.ID, &slot.CourseID, &slot.SlotName, &slot.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan slot")
		}
		slots = append(slots, slot)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate slots")
	}

	return slots, nil
}

// GetAllTopicsWithWeightage retrieves every topic under a course, joined
// down the hierarchy, with missing weightage reported as zero.
func (s *QuestionService) GetAllTopicsWithWeightage(ctx context.Context, courseID string) (result0 []models.TopicWeightage, err error) {
	ctx, span := observability.TraceCatalogFunction(ctx, "get_all_topics_with_weightage", observability.AttributeCourseID(courseID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `
		SELECT t.id, t.name, COALESCE(t.weightage, 0) AS weightage
		FROM topics t
		JOIN chapters ch ON t.chapter_id = ch.id
		JOIN units u ON ch.unit_id = u.id
		JOIN subjects sub ON u.subject_id = sub.id
		WHERE sub.course_id = $1
		ORDER BY t.name
	`

	rows, err := s.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query topics with weightage")
	}
	defer s.closeRows(ctx, rows)

	var topics []models.TopicWeightage
	for rows.Next() {
		var topic models.TopicWeightage
		if err = rows.Scan(&topic.TopicID, &topic.TopicName, &topic.Weightage); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan topic weightage")
		}
		topics = append(topics, topic)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate topic weightages")
	}

	return topics, nil
}

// GetExistingQuestions retrieves reference questions from the bank for a
// topic, oldest first.
func (s *QuestionService) GetExistingQuestions(ctx context.Context, topicID string, limit int) (result0 []models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "get_existing_questions",
		observability.AttributeTopicID(topicID),
		observability.AttributeLimit(limit),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `
		SELECT id, topic_id, question_statement, question_type, options, answer, solution, created_at
		FROM questions_topic_wise
		WHERE topic_id = $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, topicID, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query existing questions")
	}
	defer s.closeRows(ctx, rows)

	var questions []models.Question
	for rows.Next() {
		var question models.Question
		if err = rows.Scan(
			&question.ID,
			&question.TopicID,
			&question.QuestionStatement,
			&question.QuestionType,
			&question.Options,
			&question.Answer,
			&question.Solution,
			&question.CreatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan existing question")
		}
		questions = append(questions, question)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate existing questions")
	}

	return questions, nil
}

// GetGeneratedQuestions retrieves the most recently generated questions
// for a topic.
func (s *QuestionService) GetGeneratedQuestions(ctx context.Context, topicID string, limit int) (result0 []models.GeneratedQuestion, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "get_generated_questions",
		observability.AttributeTopicID(topicID),
		observability.AttributeLimit(limit),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `
		SELECT id, topic_id, topic_name, question_statement, question_type, options, answer, solution, difficulty_level, part_id, slot_id, created_at, updated_at
		FROM new_questions
		WHERE topic_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, topicID, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query generated questions")
	}
	defer s.closeRows(ctx, rows)

	var questions []models.GeneratedQuestion
	for rows.Next() {
		var question models.GeneratedQuestion
		if err = rows.Scan(
			&question.ID,
			&question.TopicID,
			&question.TopicName,
			&question.QuestionStatement,
			&question.QuestionType,
			&question.Options,
			&question.Answer,
			&question.Solution,
			&question.DifficultyLevel,
			&question.PartID,
			&question.SlotID,
			&question.CreatedAt,
			&question.UpdatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan generated question")
		}
		questions = append(questions, question)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate generated questions")
	}

	return questions, nil
}

// CreateGeneratedQuestion persists a generated question and fills in its
// database-assigned fields. Options are stored only for question types
// that carry them; difficulty defaults when the payload omitted it.
func (s *QuestionService) CreateGeneratedQuestion(ctx context.Context, question *models.GeneratedQuestion) (err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "create_generated_question",
		observability.AttributeTopicID(question.TopicID),
		observability.AttributeQuestionType(question.QuestionType),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !question.QuestionType.IsValid() {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unsupported question type %q", question.QuestionType)
	}
	if question.DifficultyLevel == "" {
		question.DifficultyLevel = defaultDifficulty
	}
	if !question.QuestionType.HasOptions() {
		question.Options = nil
	}

	query := `
		INSERT INTO new_questions (topic_id, topic_name, question_statement, question_type, options, answer, solution, difficulty_level, part_id, slot_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		question.TopicID,
		question.TopicName,
		question.QuestionStatement,
		question.QuestionType,
		question.Options,
		question.Answer,
		question.Solution,
		question.DifficultyLevel,
		question.PartID,
		question.SlotID,
	).Scan(&question.ID, &question.CreatedAt, &question.UpdatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to save generated question")
	}

	return nil
}

// closeRows closes rows, logging the rare close failure.
func (s *QuestionService) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": err.Error()})
	}
}
