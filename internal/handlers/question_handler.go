package handlers

import (
	"database/sql"
	"net/http"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/gin-gonic/gin"
)

// QuestionHandler handles question retrieval and single-question generation
type QuestionHandler struct {
	questionService   services.QuestionServiceInterface
	generationService services.GenerationServiceInterface
	cfg               *config.Config
	logger            *observability.Logger
}

// NewQuestionHandler creates a new QuestionHandler
func NewQuestionHandler(
	questionService services.QuestionServiceInterface,
	generationService services.GenerationServiceInterface,
	config *config.Config,
	logger *observability.Logger,
) *QuestionHandler {
	return &QuestionHandler{
		questionService:   questionService,
		generationService: generationService,
		cfg:               config,
		logger:            logger,
	}
}

// GetExistingQuestions handles requests for a topic's reference questions
// from the bank
func (h *QuestionHandler) GetExistingQuestions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_existing_questions")
	defer observability.FinishSpan(span, nil)

	topicID := c.Param("topicID")
	if topicID == "" {
		HandleValidationError(c, "topic_id", topicID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeTopicID(topicID))

	questions, err := h.questionService.GetExistingQuestions(ctx, topicID, config.DefaultExistingQuestionLimit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

// GetGeneratedQuestions handles requests for a topic's most recently
// generated questions
func (h *QuestionHandler) GetGeneratedQuestions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_generated_questions")
	defer observability.FinishSpan(span, nil)

	topicID := c.Param("topicID")
	if topicID == "" {
		HandleValidationError(c, "topic_id", topicID, "must not be empty")
		return
	}
	span.SetAttributes(observability.AttributeTopicID(topicID))

	questions, err := h.questionService.GetGeneratedQuestions(ctx, topicID, config.DefaultGeneratedQuestionLimit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

// GenerateQuestion generates a single question for a topic and stores it
func (h *QuestionHandler) GenerateQuestion(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "generate_question")
	defer observability.FinishSpan(span, nil)

	var req models.GenerateQuestionRequest
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

	if !req.QuestionType.IsValid() {
		HandleValidationError(c, "question_type", req.QuestionType, "must be one of MCQ, MSQ, NAT, SUB")
		return
	}
	span.SetAttributes(
		observability.AttributeTopicID(req.TopicID),
		observability.AttributeQuestionType(req.QuestionType),
	)

	topic, err := h.questionService.GetTopicByID(ctx, req.TopicID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	promptCtx := &services.PromptContext{
		TopicName:        topic.Name,
		TopicDescription: topic.Description.String,
		QuestionType:     req.QuestionType,
	}
	if chapter, chapterErr := h.questionService.GetChapterByID(ctx, topic.ChapterID); chapterErr == nil {
		promptCtx.ChapterName = chapter.Name
	} else {
		h.logger.Warn(ctx, "Chapter lookup failed, prompting without chapter context", map[string]interface{}{
			"topic_id":   req.TopicID,
			"chapter_id": topic.ChapterID,
			"error":      chapterErr.Error(),
		})
	}

	existing, err := h.questionService.GetExistingQuestions(ctx, req.TopicID, config.DefaultExistingQuestionLimit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	for _, question := range existing {
		promptCtx.ExistingQuestions = append(promptCtx.ExistingQuestions, question.QuestionStatement)
	}

	generated, err := h.questionService.GetGeneratedQuestions(ctx, req.TopicID, config.DefaultGeneratedQuestionLimit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	for _, question := range generated {
		promptCtx.GeneratedQuestions = append(promptCtx.GeneratedQuestions, question.QuestionStatement)
	}

	payload, err := h.generationService.GenerateValidated(ctx, &services.GenerationRequest{
		Prompt:       services.BuildQuestionPrompt(promptCtx),
		QuestionType: req.QuestionType,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}

	question := services.GeneratedQuestionFromPayload(payload, req.TopicID, topic.Name, req.QuestionType)
	if req.PartID != nil && *req.PartID != "" {
		question.PartID = sql.NullString{String: *req.PartID, Valid: true}
	}
	if req.SlotID != nil && *req.SlotID != "" {
		question.SlotID = sql.NullString{String: *req.SlotID, Valid: true}
	}

	if err := h.questionService.CreateGeneratedQuestion(ctx, question); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}
