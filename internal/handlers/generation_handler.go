package handlers

import (
	"net/http"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/gin-gonic/gin"
)

// SessionLauncher starts a background generation run for a session that
// already exists in the database.
type SessionLauncher interface {
	LaunchSession(sessionID string)
}

// GenerationHandler handles auto-generation sessions and reporting
type GenerationHandler struct {
	sessionService  services.SessionServiceInterface
	questionService services.QuestionServiceInterface
	statsService    services.StatsServiceInterface
	launcher        SessionLauncher
	cfg             *config.Config
	logger          *observability.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(
	sessionService services.SessionServiceInterface,
	questionService services.QuestionServiceInterface,
	statsService services.StatsServiceInterface,
	launcher SessionLauncher,
	config *config.Config,
	logger *observability.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		sessionService:  sessionService,
		questionService: questionService,
		statsService:    statsService,
		launcher:        launcher,
		cfg:             config,
		logger:          logger,
	}
}

// StartAutoGeneration creates a generation session for a course and
// launches the background run
func (h *GenerationHandler) StartAutoGeneration(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "start_auto_generation")
	defer observability.FinishSpan(span, nil)

	examID := c.Query("exam_id")
	if examID == "" {
		HandleValidationError(c, "exam_id", examID, "must not be empty")
		return
	}
	courseID := c.Query("course_id")
	if courseID == "" {
		HandleValidationError(c, "course_id", courseID, "must not be empty")
		return
	}
	mode := models.GenerationMode(c.Query("generation_mode"))
	if !mode.IsValid() {
		HandleValidationError(c, "generation_mode", c.Query("generation_mode"), "must be new_questions or pyq_solutions")
		return
	}
	span.SetAttributes(
		observability.AttributeExamID(examID),
		observability.AttributeCourseID(courseID),
		observability.AttributeGenerationMode(string(mode)),
	)

	var req models.MarksScheme
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request format",
			"",
			err,
		))
		return
	}

	topics, err := h.questionService.GetAllTopicsWithWeightage(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if len(topics) == 0 {
		HandleAppError(c, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "course %s has no topics to generate for", courseID))
		return
	}

	session := &models.GenerationSession{
		ExamID:         examID,
		CourseID:       courseID,
		GenerationMode: mode,
		TotalTopics:    len(topics),
		CorrectMarks:   req.CorrectMarks,
		IncorrectMarks: req.IncorrectMarks,
		SkippedMarks:   req.SkippedMarks,
		TimeMinutes:    req.TimeMinutes,
		TotalQuestions: req.TotalQuestions,
	}
	if err := h.sessionService.CreateSession(ctx, session); err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeSessionID(session.ID))

	h.launcher.LaunchSession(session.ID)

	h.logger.Info(ctx, "Auto-generation session started", map[string]interface{}{
		"session_id":      session.ID,
		"course_id":       courseID,
		"generation_mode": string(mode),
		"total_topics":    session.TotalTopics,
		"total_questions": session.TotalQuestions,
	})

	c.JSON(http.StatusOK, models.StartAutoGenerationResponse{
		SessionID:   session.ID,
		TotalTopics: session.TotalTopics,
		Status:      session.Status,
	})
}

// GetAutoGenerationStatus reports the progress of a generation session
func (h *GenerationHandler) GetAutoGenerationStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_auto_generation_status")
	defer observability.FinishSpan(span, nil)

	sessionID := c.Param("sessionID")
	if sessionID == "" {
		HandleValidationError(c, "session_id", sessionID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeSessionID(sessionID))

	session, err := h.sessionService.GetSessionByID(ctx, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetGenerationStats reports generated-question counts for a course
func (h *GenerationHandler) GetGenerationStats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_generation_stats")
	defer observability.FinishSpan(span, nil)

	courseID := c.Param("courseID")
	if courseID == "" {
		HandleValidationError(c, "course_id", courseID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeCourseID(courseID))

	daily, err := h.statsService.GetDailyGenerationCounts(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	byType, err := h.statsService.GetGenerationTypeCounts(ctx, courseID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course_id":    courseID,
		"daily_counts": daily,
		"type_counts":  byType,
	})
}
