package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockGenerationService implements services.GenerationServiceInterface for testing
type mockGenerationService struct {
	mock.Mock
}

func (m *mockGenerationService) Invoke(ctx context.Context, req *services.GenerationRequest) (map[string]interface{}, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *mockGenerationService) GenerateValidated(ctx context.Context, req *services.GenerationRequest) (map[string]interface{}, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *mockGenerationService) Validator() *services.AnswerValidator {
	args := m.Called()
	return args.Get(0).(*services.AnswerValidator)
}

func (m *mockGenerationService) Pool() *services.CredentialPool {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*services.CredentialPool)
}

func setupQuestionTestRouter(questionService *mockQuestionService, generationService *mockGenerationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewQuestionHandler(questionService, generationService, &config.Config{}, newTestLogger())

	router.GET("/existing-questions/:topicID", handler.GetExistingQuestions)
	router.GET("/generated-questions/:topicID", handler.GetGeneratedQuestions)
	router.POST("/generate-question", handler.GenerateQuestion)

	return router
}

func mcqPayload(statement string) map[string]interface{} {
	return map[string]interface{}{
		"question_statement": statement,
		"options":            []interface{}{"2 m/s", "4 m/s", "6 m/s", "8 m/s"},
		"answer":             "1",
		"solution":           "Apply v = u + at with u = 0.",
		"difficulty_level":   "Medium",
	}
}

func TestQuestionHandler_GetExistingQuestions(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	questionService.On("GetExistingQuestions", mock.Anything, "topic-1", config.DefaultExistingQuestionLimit).
		Return([]models.Question{
			{ID: "q-1", TopicID: "topic-1", QuestionStatement: "What is inertia?", QuestionType: models.SUB},
		}, nil)

	req, _ := http.NewRequest("GET", "/existing-questions/topic-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var questions []models.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &questions))
	require.Len(t, questions, 1)
	assert.Equal(t, "What is inertia?", questions[0].QuestionStatement)

	questionService.AssertExpectations(t)
}

func TestQuestionHandler_GetGeneratedQuestions(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	questionService.On("GetGeneratedQuestions", mock.Anything, "topic-1", config.DefaultGeneratedQuestionLimit).
		Return([]models.GeneratedQuestion{
			{ID: "gq-1", TopicID: "topic-1", TopicName: "Friction", QuestionType: models.MCQ},
		}, nil)

	req, _ := http.NewRequest("GET", "/generated-questions/topic-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var questions []models.GeneratedQuestion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &questions))
	require.Len(t, questions, 1)
	assert.Equal(t, "Friction", questions[0].TopicName)

	questionService.AssertExpectations(t)
}

func TestQuestionHandler_GenerateQuestion(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	topic := &models.Topic{
		ID:          "topic-1",
		ChapterID:   "chapter-1",
		Name:        "Uniform Acceleration",
		Description: sql.NullString{String: "Motion with constant acceleration", Valid: true},
	}
	questionService.On("GetTopicByID", mock.Anything, "topic-1").Return(topic, nil)
	questionService.On("GetChapterByID", mock.Anything, "chapter-1").Return(&models.Chapter{
		ID: "chapter-1", UnitID: "unit-1", Name: "Motion in One Dimension",
	}, nil)
	questionService.On("GetExistingQuestions", mock.Anything, "topic-1", config.DefaultExistingQuestionLimit).
		Return([]models.Question{
			{QuestionStatement: "A body starts from rest and accelerates uniformly."},
		}, nil)
	questionService.On("GetGeneratedQuestions", mock.Anything, "topic-1", config.DefaultGeneratedQuestionLimit).
		Return([]models.GeneratedQuestion{}, nil)

	generationService.On("GenerateValidated", mock.Anything, mock.MatchedBy(func(genReq *services.GenerationRequest) bool {
		return genReq.QuestionType == models.MCQ &&
			strings.Contains(genReq.Prompt, "Uniform Acceleration") &&
			strings.Contains(genReq.Prompt, "Motion in One Dimension") &&
			strings.Contains(genReq.Prompt, "A body starts from rest")
	})).Return(mcqPayload("A car accelerates from rest at 2 m/s². What is its speed after 2 s?"), nil)

	var created *models.GeneratedQuestion
	questionService.On("CreateGeneratedQuestion", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*models.GeneratedQuestion)
		}).
		Return(nil)

	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "topic-1",
		QuestionType: "MCQ",
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, created)
	assert.Equal(t, "topic-1", created.TopicID)
	assert.Equal(t, "Uniform Acceleration", created.TopicName)
	assert.Equal(t, models.MCQ, created.QuestionType)
	assert.Len(t, created.Options, 4)
	assert.Equal(t, "1", created.Answer)
	assert.False(t, created.PartID.Valid)

	var response models.GeneratedQuestion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response.QuestionStatement, "A car accelerates from rest")

	questionService.AssertExpectations(t)
	generationService.AssertExpectations(t)
}

func TestQuestionHandler_GenerateQuestion_PartAndSlot(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	topic := &models.Topic{ID: "topic-1", ChapterID: "chapter-1", Name: "Friction"}
	questionService.On("GetTopicByID", mock.Anything, "topic-1").Return(topic, nil)
	questionService.On("GetChapterByID", mock.Anything, "chapter-1").Return(&models.Chapter{
		ID: "chapter-1", Name: "Laws of Motion",
	}, nil)
	questionService.On("GetExistingQuestions", mock.Anything, "topic-1", mock.Anything).
		Return([]models.Question{}, nil)
	questionService.On("GetGeneratedQuestions", mock.Anything, "topic-1", mock.Anything).
		Return([]models.GeneratedQuestion{}, nil)
	generationService.On("GenerateValidated", mock.Anything, mock.Anything).
		Return(mcqPayload("A block rests on a rough incline."), nil)

	var created *models.GeneratedQuestion
	questionService.On("CreateGeneratedQuestion", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*models.GeneratedQuestion)
		}).
		Return(nil)

	partID := "part-1"
	slotID := "slot-2"
	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "topic-1",
		QuestionType: "MCQ",
		PartID:       &partID,
		SlotID:       &slotID,
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, created)
	assert.Equal(t, sql.NullString{String: "part-1", Valid: true}, created.PartID)
	assert.Equal(t, sql.NullString{String: "slot-2", Valid: true}, created.SlotID)
}

func TestQuestionHandler_GenerateQuestion_InvalidType(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "topic-1",
		QuestionType: "ESSAY",
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "INVALID_INPUT", response["code"])

	questionService.AssertNotCalled(t, "GetTopicByID", mock.Anything, mock.Anything)
}

func TestQuestionHandler_GenerateQuestion_MissingBody(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBufferString(`{"question_type":"MCQ"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestionHandler_GenerateQuestion_TopicNotFound(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	questionService.On("GetTopicByID", mock.Anything, "missing").
		Return(nil, contextutils.WrapErrorf(contextutils.ErrTopicNotFound, "topic %s not found", "missing"))

	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "missing",
		QuestionType: "MCQ",
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "TOPIC_NOT_FOUND", response["code"])
}

func TestQuestionHandler_GenerateQuestion_CredentialExhaustion(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	topic := &models.Topic{ID: "topic-1", ChapterID: "chapter-1", Name: "Friction"}
	questionService.On("GetTopicByID", mock.Anything, "topic-1").Return(topic, nil)
	questionService.On("GetChapterByID", mock.Anything, "chapter-1").Return(&models.Chapter{ID: "chapter-1", Name: "Laws of Motion"}, nil)
	questionService.On("GetExistingQuestions", mock.Anything, "topic-1", mock.Anything).Return([]models.Question{}, nil)
	questionService.On("GetGeneratedQuestions", mock.Anything, "topic-1", mock.Anything).Return([]models.GeneratedQuestion{}, nil)

	generationService.On("GenerateValidated", mock.Anything, mock.Anything).
		Return(nil, contextutils.WrapError(contextutils.ErrCredentialExhausted, "every credential was quarantined"))

	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "topic-1",
		QuestionType: "MCQ",
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "CREDENTIAL_EXHAUSTED", response["code"])
	assert.Equal(t, true, response["retryable"])

	questionService.AssertNotCalled(t, "CreateGeneratedQuestion", mock.Anything, mock.Anything)
}

func TestQuestionHandler_GenerateQuestion_ValidationRejected(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	topic := &models.Topic{ID: "topic-1", ChapterID: "chapter-1", Name: "Friction"}
	questionService.On("GetTopicByID", mock.Anything, "topic-1").Return(topic, nil)
	questionService.On("GetChapterByID", mock.Anything, "chapter-1").Return(&models.Chapter{ID: "chapter-1", Name: "Laws of Motion"}, nil)
	questionService.On("GetExistingQuestions", mock.Anything, "topic-1", mock.Anything).Return([]models.Question{}, nil)
	questionService.On("GetGeneratedQuestions", mock.Anything, "topic-1", mock.Anything).Return([]models.GeneratedQuestion{}, nil)

	generationService.On("GenerateValidated", mock.Anything, mock.Anything).
		Return(nil, contextutils.NewAppError(
			contextutils.ErrorCodeValidationFailed,
			contextutils.SeverityWarn,
			"generated answer does not satisfy MCQ rules",
			"answer must be a single option index between 0 and 3",
		))

	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "topic-1",
		QuestionType: "MCQ",
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "VALIDATION_FAILED", response["code"])
	assert.Equal(t, false, response["retryable"])
}

func TestQuestionHandler_GenerateQuestion_ChapterLookupTolerated(t *testing.T) {
	questionService := new(mockQuestionService)
	generationService := new(mockGenerationService)
	router := setupQuestionTestRouter(questionService, generationService)

	topic := &models.Topic{ID: "topic-1", ChapterID: "chapter-1", Name: "Friction"}
	questionService.On("GetTopicByID", mock.Anything, "topic-1").Return(topic, nil)
	questionService.On("GetChapterByID", mock.Anything, "chapter-1").
		Return(nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "chapter not found"))
	questionService.On("GetExistingQuestions", mock.Anything, "topic-1", mock.Anything).Return([]models.Question{}, nil)
	questionService.On("GetGeneratedQuestions", mock.Anything, "topic-1", mock.Anything).Return([]models.GeneratedQuestion{}, nil)

	generationService.On("GenerateValidated", mock.Anything, mock.MatchedBy(func(genReq *services.GenerationRequest) bool {
		return strings.Contains(genReq.Prompt, "Chapter: \n")
	})).Return(mcqPayload("A block slides on a frictionless plane."), nil)

	questionService.On("CreateGeneratedQuestion", mock.Anything, mock.Anything).Return(nil)

	body, _ := json.Marshal(models.GenerateQuestionRequest{
		TopicID:      "topic-1",
		QuestionType: "MCQ",
	})
	req, _ := http.NewRequest("POST", "/generate-question", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	generationService.AssertExpectations(t)
}
