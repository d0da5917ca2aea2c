package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"github.com/lib/pq"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// JSON Schema definitions for generated payloads. Each schema is sent to
// the generation API as responseSchema to bias the model toward the right
// shape, and applied again with gojsonschema after parsing because the
// bias is not a guarantee.
const (
	// ChoiceQuestionSchema covers MCQ and MSQ payloads.
	ChoiceQuestionSchema = `{
		"type": "object",
		"properties": {
			"question_statement": {"type": "string"},
			"options": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4},
			"answer": {"type": "string"},
			"solution": {"type": "string"},
			"difficulty_level": {"type": "string"}
		},
		"required": ["question_statement", "options", "answer", "solution"]
	}`

	// OpenQuestionSchema covers NAT and SUB payloads, which carry no options.
	OpenQuestionSchema = `{
		"type": "object",
		"properties": {
			"question_statement": {"type": "string"},
			"answer": {"type": "string"},
			"solution": {"type": "string"},
			"difficulty_level": {"type": "string"}
		},
		"required": ["question_statement", "answer", "solution"]
	}`

	// SolutionSchema covers re-derived solutions for existing bank questions.
	SolutionSchema = `{
		"type": "object",
		"properties": {
			"answer": {"type": "string"},
			"solution": {"type": "string"},
			"difficulty_level": {"type": "string"}
		},
		"required": ["answer", "solution"]
	}`
)

// questionSchema returns the payload schema for a question type.
func questionSchema(questionType models.QuestionType) json.RawMessage {
	if questionType.HasOptions() {
		return json.RawMessage(ChoiceQuestionSchema)
	}
	return json.RawMessage(OpenQuestionSchema)
}

// credentialFaultMarkers are upstream message fragments indicating the
// credential itself is the problem (quota, rate limit, bad key) rather
// than the request. Matched case-insensitively against the error text.
var credentialFaultMarkers = []string{
	"quota",
	"429",
	"exceeded",
	"invalid api key",
}

// isCredentialFault reports whether err looks like a per-credential
// failure that rotating to another credential could fix. Anything else
// is treated as non-retryable and surfaces immediately.
func isCredentialFault(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range credentialFaultMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// GenerationRequest describes one generation call. Schema and Temperature
// are optional; when unset they default from QuestionType and config.
type GenerationRequest struct {
	Prompt       string
	QuestionType models.QuestionType
	Schema       json.RawMessage
	Temperature  float64
}

// GenerationServiceInterface defines the generation operations handlers
// and the worker depend on.
type GenerationServiceInterface interface {
	Invoke(ctx context.Context, req *GenerationRequest) (map[string]interface{}, error)
	GenerateValidated(ctx context.Context, req *GenerationRequest) (map[string]interface{}, error)
	Validator() *AnswerValidator
	Pool() *CredentialPool
}

// GenerationService orchestrates upstream calls: it rotates credentials
// across attempts, repairs and parses responses, and validates answers
// against the question type contract.
type GenerationService struct {
	cfg       *config.GenerationConfig
	pool      *CredentialPool
	client    *LLMClient
	sanitizer *ResponseSanitizer
	validator *AnswerValidator
	logger    *observability.Logger
}

// NewGenerationService creates the orchestrator on top of a credential
// pool and an upstream client.
func NewGenerationService(cfg *config.GenerationConfig, pool *CredentialPool, client *LLMClient, logger *observability.Logger) *GenerationService {
	return &GenerationService{
		cfg:       cfg,
		pool:      pool,
		client:    client,
		sanitizer: NewResponseSanitizer(logger),
		validator: NewAnswerValidator(),
		logger:    logger,
	}
}

// Pool exposes the credential pool for health reporting.
func (s *GenerationService) Pool() *CredentialPool {
	return s.pool
}

// Client exposes the upstream client for health reporting and shutdown.
func (s *GenerationService) Client() *LLMClient {
	return s.client
}

// Invoke runs one generation with credential rotation and returns the
// parsed payload. The attempt budget equals the pool size, so a run never
// cycles through the same credential twice. A credential fault quarantines
// the credential and moves on; a parse failure consumes the attempt
// without quarantining; any other upstream error surfaces immediately.
func (s *GenerationService) Invoke(ctx context.Context, req *GenerationRequest) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceGenerationFunction(ctx, "invoke_generation",
		observability.AttributeModel(s.cfg.Model),
	)
	defer observability.FinishSpan(span, &err)

	if req == nil {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "generation request is required")
	}
	if req.Prompt == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "generation prompt cannot be empty")
	}

	schema := req.Schema
	if schema == nil {
		schema = questionSchema(req.QuestionType)
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = s.cfg.Temperature
	}

	budget := s.pool.Size()
	span.SetAttributes(attribute.Int("generation.attempt_budget", budget))

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		credential := s.pool.Next(ctx)

		raw, callErr := s.client.GenerateContent(ctx, credential, req.Prompt, schema, temperature)
		if callErr != nil {
			if !isCredentialFault(callErr) {
				span.SetAttributes(attribute.String("generation.result", "upstream_error"))
				return nil, callErr
			}
			s.logger.Warn(ctx, "Credential fault from upstream, rotating", map[string]interface{}{
				"attempt":    attempt,
				"credential": contextutils.MaskAPIKey(credential),
				"error":      callErr.Error(),
			})
			s.pool.Quarantine(ctx, credential)
			lastErr = callErr
			continue
		}

		payload, parseErr := s.sanitizer.Parse(ctx, raw)
		if parseErr != nil {
			s.logger.Warn(ctx, "Generated response failed to parse", map[string]interface{}{
				"attempt": attempt,
				"error":   parseErr.Error(),
			})
			lastErr = parseErr
			continue
		}

		span.SetAttributes(attribute.String("generation.result", "success"), attribute.Int("generation.attempts_used", attempt))
		return payload, nil
	}

	// A parse failure on the final attempt surfaces as-is. Otherwise every
	// attempt died on a credential fault and the run is exhausted.
	if contextutils.GetErrorCode(lastErr) == contextutils.ErrorCodeAIResponseInvalid {
		span.SetAttributes(attribute.String("generation.result", "parse_failed"))
		return nil, lastErr
	}

	span.SetAttributes(attribute.String("generation.result", "credentials_exhausted"))
	details := ""
	if lastErr != nil {
		details = lastErr.Error()
	}
	return nil, contextutils.NewAppErrorWithCause(
		contextutils.ErrorCodeCredentialExhausted,
		contextutils.SeverityWarn,
		fmt.Sprintf("all %d credentials exhausted", budget),
		details, lastErr)
}

// GenerateValidated runs Invoke and then checks the payload: first the
// structural schema, then the answer against the question type rules.
// Validation failures are rejections, never retried here.
func (s *GenerationService) GenerateValidated(ctx context.Context, req *GenerationRequest) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceGenerationFunction(ctx, "generate_validated")
	defer observability.FinishSpan(span, &err)

	if req == nil {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "generation request is required")
	}
	if !req.QuestionType.IsValid() {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unsupported question type %q", req.QuestionType)
	}
	span.SetAttributes(observability.AttributeQuestionType(req.QuestionType))

	payload, err := s.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	schema := req.Schema
	if schema == nil {
		schema = questionSchema(req.QuestionType)
	}
	if err = s.validatePayloadShape(schema, payload); err != nil {
		span.SetAttributes(attribute.String("generation.result", "schema_invalid"))
		return nil, err
	}

	options := ExtractOptions(payload)
	answer, _ := payload["answer"].(string)
	if valid, reason := s.validator.Validate(req.QuestionType, options, answer); !valid {
		span.SetAttributes(attribute.String("generation.result", "validation_failed"), attribute.String("validation.reason", reason))
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeValidationFailed,
			contextutils.SeverityWarn,
			fmt.Sprintf("generated answer does not satisfy %s rules", req.QuestionType),
			reason)
	}

	span.SetAttributes(attribute.String("generation.result", "success"))
	return payload, nil
}

// Validator exposes answer validation for callers that check answers
// against options the payload does not carry, such as re-derived
// solutions for bank questions.
func (s *GenerationService) Validator() *AnswerValidator {
	return s.validator
}

// validatePayloadShape applies the structural schema to a parsed payload.
func (s *GenerationService) validatePayloadShape(schema json.RawMessage, payload map[string]interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to marshal payload for schema validation")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(payloadBytes),
	)
	if err != nil {
		return contextutils.WrapErrorf(err, "schema validation failed")
	}

	if !result.Valid() {
		var messages []string
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}
		return contextutils.NewAppError(
			contextutils.ErrorCodeAIResponseInvalid,
			contextutils.SeverityError,
			"generated payload does not match the expected shape",
			strings.Join(messages, "; "))
	}
	return nil
}

// ExtractOptions pulls the options list out of a parsed payload. Missing
// or null options yield nil.
func ExtractOptions(payload map[string]interface{}) []string {
	raw, ok := payload["options"].([]interface{})
	if !ok {
		return nil
	}
	options := make([]string, 0, len(raw))
	for _, item := range raw {
		if text, ok := item.(string); ok {
			options = append(options, text)
		}
	}
	return options
}

// GeneratedQuestionFromPayload maps a validated generation payload onto a
// GeneratedQuestion for the given topic.
func GeneratedQuestionFromPayload(payload map[string]interface{}, topicID, topicName string, questionType models.QuestionType) *models.GeneratedQuestion {
	question := &models.GeneratedQuestion{
		TopicID:      topicID,
		TopicName:    topicName,
		QuestionType: questionType,
	}
	question.QuestionStatement, _ = payload["question_statement"].(string)
	question.Answer, _ = payload["answer"].(string)
	question.Solution, _ = payload["solution"].(string)
	question.DifficultyLevel, _ = payload["difficulty_level"].(string)
	if questionType.HasOptions() {
		question.Options = pq.StringArray(ExtractOptions(payload))
	}
	return question
}

// PromptContext carries the catalog context a question prompt is built from.
type PromptContext struct {
	TopicName        string
	TopicDescription string
	ChapterName      string
	QuestionType     models.QuestionType

	// ExistingQuestions are reference statements from the question bank.
	// At most three are shown to the model.
	ExistingQuestions []string

	// GeneratedQuestions are statements already generated for the topic,
	// listed so the model avoids repeating them.
	GeneratedQuestions []string
}

const maxExistingQuestionsInPrompt = 3

// BuildQuestionPrompt renders the generation prompt for a fresh question.
func BuildQuestionPrompt(pc *PromptContext) string {
	existing := pc.ExistingQuestions
	if len(existing) > maxExistingQuestionsInPrompt {
		existing = existing[:maxExistingQuestionsInPrompt]
	}

	return fmt.Sprintf(`You are an expert question creator for educational content. Generate a %s type question for the following topic:

Topic: %s
Description: %s
Chapter: %s

Question Type Rules:
- MCQ: Multiple Choice Question with exactly ONE correct answer (4 options)
- MSQ: Multiple Select Question with ONE OR MORE correct answers (4 options)
- NAT: Numerical Answer Type with a numerical answer (no options)
- SUB: Subjective question with descriptive answer (no options)

Context from existing questions (DO NOT COPY, use for inspiration only):
%s

Previously generated questions (AVOID similar content):
%s

Requirements:
1. Generate a FRESH, ORIGINAL question that tests understanding of the topic
2. Make it educationally valuable and appropriately challenging
3. For MCQ/MSQ: Provide exactly 4 options
4. Ensure the answer follows the question type rules
5. Provide a detailed solution explanation

Please respond in the following JSON format:
{
    "question_statement": "Your question here",
    "options": ["Option 1", "Option 2", "Option 3", "Option 4"] or null for NAT/SUB,
    "answer": "For MCQ: single number (0-3), for MSQ: comma-separated numbers (0,1,2), for NAT: numerical value, for SUB: descriptive answer",
    "solution": "Detailed step-by-step solution",
    "difficulty_level": "Easy/Medium/Hard"
}`,
		pc.QuestionType,
		pc.TopicName,
		pc.TopicDescription,
		pc.ChapterName,
		statementList(existing),
		statementList(pc.GeneratedQuestions),
	)
}

// BuildSolutionPrompt renders the prompt for re-deriving the answer and
// solution of an existing bank question.
func BuildSolutionPrompt(question *models.Question, topicName string) string {
	var optionsBlock string
	if len(question.Options) > 0 {
		var sb strings.Builder
		sb.WriteString("Options:\n")
		for i, option := range question.Options {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i, option))
		}
		optionsBlock = sb.String()
	}

	return fmt.Sprintf(`You are an expert at solving exam questions. Solve the following %s type question from the topic "%s":

Question: %s
%s
Answer Format Rules:
- MCQ: single option index (0-3)
- MSQ: comma-separated option indices (e.g. 0,2)
- NAT: numerical value
- SUB: descriptive answer

Please respond in the following JSON format:
{
    "answer": "the correct answer following the format rules",
    "solution": "Detailed step-by-step solution",
    "difficulty_level": "Easy/Medium/Hard"
}`,
		question.QuestionType,
		topicName,
		question.QuestionStatement,
		optionsBlock,
	)
}

// statementList renders question statements as indented JSON, the shape
// the model sees in the prompt. An empty list renders as [].
func statementList(statements []string) string {
	if statements == nil {
		statements = []string{}
	}
	rendered, err := json.MarshalIndent(statements, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(rendered)
}
