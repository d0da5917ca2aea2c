package handlers

import (
	"net/http"

	"questgen/internal/config"
	"questgen/internal/observability"
	"questgen/internal/services"

	"github.com/gin-gonic/gin"
)

// CatalogHandler handles read requests against the exam hierarchy
type CatalogHandler struct {
	questionService services.QuestionServiceInterface
	cfg             *config.Config
	logger          *observability.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(
	questionService services.QuestionServiceInterface,
	config *config.Config,
	logger *observability.Logger,
) *CatalogHandler {
	return &CatalogHandler{
		questionService: questionService,
		cfg:             config,
		logger:          logger,
	}
}

// GetExams handles requests for all exams
func (h *CatalogHandler) GetExams(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_exams")
	defer observability.FinishSpan(span, nil)

	exams, err := h.questionService.GetExams(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, exams)
}

// GetCourses handles requests for the courses of an exam
func (h *CatalogHandler) GetCourses(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_courses")
	defer observability.FinishSpan(span, nil)

	examID := c.Param("examID")
	if examID == "" {
		HandleValidationError(c, "exam_id", examID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeExamID(examID))

	courses, err := h.questionService.GetCoursesByExam(ctx, examID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, courses)
}

// GetSubjects handles requests for the subjects of a course
func (h *CatalogHandler) GetSubjects(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_subjects")
	defer observability.FinishSpan(span, nil)

	courseID := c.Param("courseID")
	if courseID == "" {
		HandleValidationError(c, "course_id", courseID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeCourseID(courseID))

	subjects, err := h.questionService.GetSubjectsByCourse(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, subjects)
}

// GetUnits handles requests for the units of a subject
func (h *CatalogHandler) GetUnits(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_units")
	defer observability.FinishSpan(span, nil)

	subjectID := c.Param("subjectID")
	if subjectID == "" {
		HandleValidationError(c, "subject_id", subjectID, "must not be empty")
		return
	}

	units, err := h.questionService.GetUnitsBySubject(ctx, subjectID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, units)
}

// GetChapters handles requests for the chapters of a unit
func (h *CatalogHandler) GetChapters(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_chapters")
	defer observability.FinishSpan(span, nil)

	unitID := c.Param("unitID")
	if unitID == "" {
		HandleValidationError(c, "unit_id", unitID, "must not be empty")
		return
	}

	chapters, err := h.questionService.GetChaptersByUnit(ctx, unitID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, chapters)
}

// GetTopics handles requests for the topics of a chapter
func (h *CatalogHandler) GetTopics(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_topics")
	defer observability.FinishSpan(span, nil)

	chapterID := c.Param("chapterID")
	if chapterID == "" {
		HandleValidationError(c, "chapter_id", chapterID, "must not be empty")
		return
	}

	topics, err := h.questionService.GetTopicsByChapter(ctx, chapterID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, topics)
}

// GetParts handles requests for the parts of a course
func (h *CatalogHandler) GetParts(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_parts")
	defer observability.FinishSpan(span, nil)

	courseID := c.Param("courseID")
	if courseID == "" {
		HandleValidationError(c, "course_id", courseID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeCourseID(courseID))

	parts, err := h.questionService.GetPartsByCourse(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, parts)
}

// GetSlots handles requests for the slots of a course
func (h *CatalogHandler) GetSlots(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_slots")
	defer observability.FinishSpan(span, nil)

	courseID := c.Param("courseID")
	if courseID == "" {
		HandleValidationError(c, "course_id", courseID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeCourseID(courseID))

	slots, err := h.questionService.GetSlotsByCourse(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, slots)
}

// GetAllTopicsWithWeightage handles requests for every topic under a course
// joined down the hierarchy, with its weightage
func (h *CatalogHandler) GetAllTopicsWithWeightage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_all_topics_with_weightage")
	defer observability.FinishSpan(span, nil)

	courseID := c.Param("courseID")
	if courseID == "" {
		HandleValidationError(c, "course_id", courseID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeCourseID(courseID))

	topics, err := h.questionService.GetAllTopicsWithWeightage(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, topics)
}
