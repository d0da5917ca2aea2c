// Package worker contains the background engine that executes question
// generation sessions. A run walks every topic of the session's course,
// splits the question budget across topics by weightage, calls the
// generation orchestrator for each, and records progress on the session
// row so the run can be observed over HTTP while it is in flight. The
// engine is launched in-process when a session is created and by
// cmd/worker, which drains sessions still pending in the database.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services"
	"questgen/internal/services/mailer"
	contextutils "questgen/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// Status represents the current state of the engine.
type Status struct {
	Instance        string    `json:"instance"`
	IsRunning       bool      `json:"is_running"`
	CurrentSession  string    `json:"current_session,omitempty"`
	CurrentTopic    string    `json:"current_topic,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunSummary  string    `json:"last_run_summary,omitempty"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	SessionsRun     int       `json:"sessions_run"`
	QuestionsStored int       `json:"questions_stored"`
}

// runResult summarizes one session run.
type runResult struct {
	completed int
	failed    int
	stored    int
	aborted   bool
	lastErr   error
}

// Engine executes generation sessions in the background.
type Engine struct {
	sessionService  services.SessionServiceInterface
	questionService services.QuestionServiceInterface
	generator       services.GenerationServiceInterface
	emailService    mailer.Mailer
	instance        string
	cfg             *config.Config
	logger          *observability.Logger

	status Status
	mu     sync.RWMutex

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Time function for testing, defaults to time.Now.
	timeNow func() time.Time
}

// NewEngine creates an engine bound to the given services. The instance
// name distinguishes engines when several run against one database.
func NewEngine(
	sessionService services.SessionServiceInterface,
	questionService services.QuestionServiceInterface,
	generator services.GenerationServiceInterface,
	emailService mailer.Mailer,
	cfg *config.Config,
	logger *observability.Logger,
	instance string,
) *Engine {
	if instance == "" {
		instance = "default"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		sessionService:  sessionService,
		questionService: questionService,
		generator:       generator,
		emailService:    emailService,
		instance:        instance,
		cfg:             cfg,
		logger:          logger,
		status:          Status{Instance: instance},
		baseCtx:         ctx,
		cancel:          cancel,
		timeNow:         time.Now,
	}
}

// LaunchSession runs the session in the background. The run detaches
// from the caller's context so writing an HTTP response does not cancel
// generation already under way.
func (e *Engine) LaunchSession(sessionID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.RunSession(e.baseCtx, sessionID); err != nil {
			e.logger.Error(e.baseCtx, "Background session run failed", err, map[string]interface{}{
				"session_id": sessionID,
			})
		}
	}()
}

// RunSession executes one generation session through to its terminal
// state. Individual topic failures are recorded on the session row, not
// returned; the error return covers runs that could not execute at all
// or were cut short.
func (e *Engine) RunSession(ctx context.Context, sessionID string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "run_session",
		observability.AttributeSessionID(sessionID),
		attribute.String("worker.instance", e.instance),
	)
	defer observability.FinishSpan(span, &err)

	session, err := e.sessionService.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		e.logger.Info(ctx, "Session already finished, nothing to run", map[string]interface{}{
			"session_id": sessionID,
			"status":     session.Status,
		})
		return nil
	}

	if err = e.sessionService.MarkSessionRunning(ctx, sessionID); err != nil {
		return err
	}
	e.beginRun(sessionID)
	e.logger.Info(ctx, "Starting generation session", map[string]interface{}{
		"session_id":      session.ID,
		"course_id":       session.CourseID,
		"generation_mode": session.GenerationMode,
		"total_questions": session.TotalQuestions,
	})

	result := e.walkTopics(ctx, session)

	// The terminal state and the completion report must land even when
	// the run context was cancelled by shutdown.
	finalCtx := context.WithoutCancel(ctx)
	summary := e.finalizeSession(finalCtx, session, result)
	e.finishRun(result, summary)

	span.SetAttributes(
		attribute.Int("session.completed_topics", result.completed),
		attribute.Int("session.failed_topics", result.failed),
		attribute.Int("session.questions_stored", result.stored),
	)
	e.logger.Info(ctx, "Generation session finished", map[string]interface{}{
		"session_id": session.ID,
		"summary":    summary,
	})

	if result.aborted && result.lastErr != nil {
		err = result.lastErr
		return err
	}
	return nil
}

// walkTopics iterates the course's topics, generating each topic's share
// of the question budget and updating session progress as it goes. The
// walk stops early when the context dies or the credential pool is
// exhausted, since every later call would fail the same way.
func (e *Engine) walkTopics(ctx context.Context, session *models.GenerationSession) runResult {
	var result runResult

	topics, err := e.questionService.GetAllTopicsWithWeightage(ctx, session.CourseID)
	if err != nil {
		result.aborted = true
		result.lastErr = err
		return result
	}
	if len(topics) == 0 {
		result.lastErr = contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "course %s has no topics to generate for", session.CourseID)
		return result
	}

	counts := distributeQuestions(topics, session.TotalQuestions)

	for i := range topics {
		topic := topics[i]
		if ctx.Err() != nil {
			result.aborted = true
			result.lastErr = ctx.Err()
			break
		}
		e.setCurrentTopic(topic.TopicName)

		stored, topicErr := e.processTopic(ctx, session, topic, counts[topic.TopicID])
		result.stored += stored
		if topicErr != nil {
			result.failed++
			result.lastErr = topicErr
			e.logger.Warn(ctx, "Topic generation failed", map[string]interface{}{
				"session_id": session.ID,
				"topic_id":   topic.TopicID,
				"topic_name": topic.TopicName,
				"error":      topicErr.Error(),
			})
		} else {
			result.completed++
		}

		if err := e.sessionService.UpdateSessionProgress(ctx, session.ID, result.completed, result.failed); err != nil {
			e.logger.Warn(ctx, "Failed to update session progress", map[string]interface{}{
				"session_id": session.ID,
				"error":      err.Error(),
			})
		}

		if contextutils.GetErrorCode(topicErr) == contextutils.ErrorCodeCredentialExhausted {
			result.aborted = true
			break
		}
		if i < len(topics)-1 {
			if err := sleepContext(ctx, e.cfg.Generation.SessionPause); err != nil {
				result.aborted = true
				result.lastErr = err
				break
			}
		}
	}
	e.setCurrentTopic("")
	return result
}

// finalizeSession records the terminal state, reloads the fresh row, and
// sends the completion report. A session counts as completed when the
// walk visited every topic and at least one of them succeeded.
func (e *Engine) finalizeSession(ctx context.Context, session *models.GenerationSession, result runResult) string {
	if result.aborted || result.completed == 0 {
		message := "generation finished with no completed topics"
		if result.lastErr != nil {
			message = result.lastErr.Error()
		}
		if err := e.sessionService.MarkSessionFailed(ctx, session.ID, message); err != nil {
			e.logger.Error(ctx, "Failed to mark session failed", err, map[string]interface{}{
				"session_id": session.ID,
			})
		}
	} else {
		if err := e.sessionService.MarkSessionCompleted(ctx, session.ID); err != nil {
			e.logger.Error(ctx, "Failed to mark session completed", err, map[string]interface{}{
				"session_id": session.ID,
			})
		}
	}

	summary := fmt.Sprintf("session %s: %d topics completed, %d failed, %d questions stored",
		session.ID, result.completed, result.failed, result.stored)

	fresh, err := e.sessionService.GetSessionByID(ctx, session.ID)
	if err != nil {
		e.logger.Warn(ctx, "Failed to reload session for completion report", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
		return summary
	}
	if err := e.emailService.SendSessionReport(ctx, fresh); err != nil {
		e.logger.Warn(ctx, "Failed to send session completion report", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
	return summary
}

// processTopic generates the requested number of questions for one topic
// according to the session's generation mode.
func (e *Engine) processTopic(ctx context.Context, session *models.GenerationSession, topic models.TopicWeightage, count int) (stored int, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "process_topic",
		observability.AttributeTopicID(topic.TopicID),
		observability.AttributeGenerationMode(string(session.GenerationMode)),
	)
	defer observability.FinishSpan(span, &err)
	span.SetAttributes(attribute.Int("topic.question_count", count))

	if count <= 0 {
		return 0, nil
	}

	if session.GenerationMode == models.GenerationModePYQSolutions {
		stored, err = e.solveBankQuestions(ctx, topic, count)
		return stored, err
	}
	stored, err = e.generateNewQuestions(ctx, topic, count)
	return stored, err
}

// generateNewQuestions asks the orchestrator for count fresh questions
// on the topic and stores each one as it arrives.
func (e *Engine) generateNewQuestions(ctx context.Context, topic models.TopicWeightage, count int) (int, error) {
	promptCtx, err := e.buildPromptContext(ctx, topic)
	if err != nil {
		return 0, err
	}

	stored := 0
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := sleepContext(ctx, e.cfg.Generation.SessionPause); err != nil {
				return stored, err
			}
		}

		payload, err := e.generator.GenerateValidated(ctx, &services.GenerationRequest{
			Prompt:       services.BuildQuestionPrompt(promptCtx),
			QuestionType: promptCtx.QuestionType,
		})
		if err != nil {
			return stored, err
		}

		question := services.GeneratedQuestionFromPayload(payload, topic.TopicID, topic.TopicName, promptCtx.QuestionType)
		if err := e.questionService.CreateGeneratedQuestion(ctx, question); err != nil {
			return stored, err
		}
		stored++
		e.countQuestion()

		// Feed the fresh statement back so consecutive questions for the
		// same topic do not repeat each other.
		promptCtx.GeneratedQuestions = append(promptCtx.GeneratedQuestions, question.QuestionStatement)
	}
	return stored, nil
}

// buildPromptContext loads the catalog and question-bank context a
// topic's prompts are built from. A missing chapter only degrades the
// prompt, it does not fail the topic.
func (e *Engine) buildPromptContext(ctx context.Context, topic models.TopicWeightage) (*services.PromptContext, error) {
	full, err := e.questionService.GetTopicByID(ctx, topic.TopicID)
	if err != nil {
		return nil, err
	}

	promptCtx := &services.PromptContext{
		TopicName:        full.Name,
		TopicDescription: full.Description.String,
		QuestionType:     models.MCQ,
	}
	if chapter, chapterErr := e.questionService.GetChapterByID(ctx, full.ChapterID); chapterErr == nil {
		promptCtx.ChapterName = chapter.Name
	} else {
		e.logger.Warn(ctx, "Chapter lookup failed, prompting without chapter context", map[string]interface{}{
			"topic_id":   topic.TopicID,
			"chapter_id": full.ChapterID,
			"error":      chapterErr.Error(),
		})
	}

	existing, err := e.questionService.GetExistingQuestions(ctx, topic.TopicID, config.DefaultExistingQuestionLimit)
	if err != nil {
		return nil, err
	}
	for _, question := range existing {
		promptCtx.ExistingQuestions = append(promptCtx.ExistingQuestions, question.QuestionStatement)
	}

	generated, err := e.questionService.GetGeneratedQuestions(ctx, topic.TopicID, config.DefaultGeneratedQuestionLimit)
	if err != nil {
		return nil, err
	}
	for _, question := range generated {
		promptCtx.GeneratedQuestions = append(promptCtx.GeneratedQuestions, question.QuestionStatement)
	}
	return promptCtx, nil
}

// solveBankQuestions re-derives answers and solutions for up to count of
// the topic's bank questions and stores the results as generated
// questions, keeping the original statement, type and options.
func (e *Engine) solveBankQuestions(ctx context.Context, topic models.TopicWeightage, count int) (int, error) {
	bank, err := e.questionService.GetExistingQuestions(ctx, topic.TopicID, count)
	if err != nil {
		return 0, err
	}
	if len(bank) == 0 {
		return 0, &services.NoBankQuestionsError{TopicID: topic.TopicID, TopicName: topic.TopicName}
	}

	stored := 0
	for i := range bank {
		if i > 0 {
			if err := sleepContext(ctx, e.cfg.Generation.SessionPause); err != nil {
				return stored, err
			}
		}
		question := bank[i]

		payload, err := e.generator.Invoke(ctx, &services.GenerationRequest{
			Prompt:       services.BuildSolutionPrompt(&question, topic.TopicName),
			QuestionType: question.QuestionType,
			Schema:       json.RawMessage(services.SolutionSchema),
		})
		if err != nil {
			return stored, err
		}

		answer, _ := payload["answer"].(string)
		solution, _ := payload["solution"].(string)
		if answer == "" || solution == "" {
			return stored, contextutils.NewAppError(
				contextutils.ErrorCodeAIResponseInvalid,
				contextutils.SeverityError,
				"solution payload is missing answer or solution",
				fmt.Sprintf("question %s", question.ID))
		}
		if valid, reason := e.generator.Validator().Validate(question.QuestionType, question.Options, answer); !valid {
			return stored, contextutils.NewAppError(
				contextutils.ErrorCodeValidationFailed,
				contextutils.SeverityWarn,
				fmt.Sprintf("derived answer does not satisfy %s rules", question.QuestionType),
				reason)
		}

		difficulty, _ := payload["difficulty_level"].(string)
		generated := &models.GeneratedQuestion{
			TopicID:           topic.TopicID,
			TopicName:         topic.TopicName,
			QuestionStatement: question.QuestionStatement,
			QuestionType:      question.QuestionType,
			Options:           question.Options,
			Answer:            answer,
			Solution:          solution,
			DifficultyLevel:   difficulty,
		}
		if err := e.questionService.CreateGeneratedQuestion(ctx, generated); err != nil {
			return stored, err
		}
		stored++
		e.countQuestion()
	}
	return stored, nil
}

// DrainPending executes every pending session sequentially, oldest
// first, and reports how many it ran.
func (e *Engine) DrainPending(ctx context.Context) (ran int, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "drain_pending",
		attribute.String("worker.instance", e.instance),
	)
	defer observability.FinishSpan(span, &err)

	pending, err := e.sessionService.ListPendingSessions(ctx)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("worker.pending_sessions", len(pending)))
	if len(pending) == 0 {
		e.logger.Info(ctx, "No pending sessions to drain", nil)
		return 0, nil
	}

	for i := range pending {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if runErr := e.RunSession(ctx, pending[i].ID); runErr != nil {
			e.logger.Warn(ctx, "Pending session run failed", map[string]interface{}{
				"session_id": pending[i].ID,
				"error":      runErr.Error(),
			})
		}
		ran++
	}
	return ran, nil
}

// Shutdown cancels background runs and waits for them to wind down or
// the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info(ctx, "Worker engine stopped", map[string]interface{}{"instance": e.instance})
		return nil
	case <-ctx.Done():
		return contextutils.WrapError(ctx.Err(), "worker engine shutdown timed out")
	}
}

// GetStatus returns a copy of the engine status.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Engine) beginRun(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.IsRunning = true
	e.status.CurrentSession = sessionID
	e.status.CurrentTopic = ""
	e.status.LastRunStart = e.timeNow()
	e.status.LastRunError = ""
}

func (e *Engine) setCurrentTopic(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.CurrentTopic = name
}

func (e *Engine) countQuestion() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.QuestionsStored++
}

func (e *Engine) finishRun(result runResult, summary string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.IsRunning = false
	e.status.CurrentSession = ""
	e.status.CurrentTopic = ""
	e.status.LastRunFinish = e.timeNow()
	e.status.LastRunSummary = summary
	e.status.SessionsRun++
	if result.lastErr != nil {
		e.status.LastRunError = result.lastErr.Error()
	}
}

// distributeQuestions splits a question budget across topics in
// proportion to weightage. Every topic receives at least one question,
// so the split can exceed the budget when the budget is smaller than the
// topic count. Leftovers from flooring go to the heaviest topics first.
func distributeQuestions(topics []models.TopicWeightage, total int) map[string]int {
	counts := make(map[string]int, len(topics))
	if len(topics) == 0 {
		return counts
	}
	if total < len(topics) {
		total = len(topics)
	}

	var weightSum float64
	for _, topic := range topics {
		weightSum += topic.Weightage
	}

	assigned := 0
	if weightSum > 0 {
		for _, topic := range topics {
			share := int(math.Floor(float64(total) * topic.Weightage / weightSum))
			if share < 1 {
				share = 1
			}
			counts[topic.TopicID] = share
			assigned += share
		}
	} else {
		for _, topic := range topics {
			counts[topic.TopicID] = 1
		}
		assigned = len(topics)
	}
	if assigned >= total {
		return counts
	}

	ordered := make([]models.TopicWeightage, len(topics))
	copy(ordered, topics)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Weightage > ordered[j].Weightage
	})
	for i := 0; assigned < total; i = (i + 1) % len(ordered) {
		counts[ordered[i].TopicID]++
		assigned++
	}
	return counts
}

// sleepContext pauses for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
