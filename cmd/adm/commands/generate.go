package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/spf13/cobra"
)

// GenerateCommand returns the one-off question generation command
func GenerateCommand(questionService *services.QuestionService, generator *services.GenerationService, logger *observability.Logger) *cobra.Command {
	var topicID string
	var questionType string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a single question for a topic",
		Long: `Generate a single question for a topic and store it.

The command follows the same flow as the API endpoint: it loads the topic,
collects recent bank and generated questions as prompt context, calls the
model, validates the answer, and stores the result.`,
		RunE: runGenerate(questionService, generator, logger, &topicID, &questionType),
	}

	cmd.Flags().StringVar(&topicID, "topic", "", "Topic ID to generate for (required)")
	cmd.Flags().StringVar(&questionType, "type", "MCQ", "Question type (MCQ, MSQ, NAT, SUB)")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

// runGenerate returns a function that generates and stores one question
func runGenerate(questionService *services.QuestionService, generator *services.GenerationService, logger *observability.Logger, topicID, questionType *string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		qType := models.QuestionType(strings.ToUpper(strings.TrimSpace(*questionType)))
		if !qType.IsValid() {
			return contextutils.ErrorWithContextf("invalid question type %q, must be one of MCQ, MSQ, NAT, SUB", *questionType)
		}

		logger.Info(ctx, "Generating question", map[string]interface{}{
			"topic_id":      *topicID,
			"question_type": qType,
		})

		topic, err := questionService.GetTopicByID(ctx, *topicID)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to load topic %s", *topicID)
		}

		promptCtx := &services.PromptContext{
			TopicName:        topic.Name,
			TopicDescription: topic.Description.String,
			QuestionType:     qType,
		}
		if chapter, chapterErr := questionService.GetChapterByID(ctx, topic.ChapterID); chapterErr == nil {
			promptCtx.ChapterName = chapter.Name
		} else {
			logger.Warn(ctx, "Chapter lookup failed, prompting without chapter context", map[string]interface{}{
				"topic_id":   *topicID,
				"chapter_id": topic.ChapterID,
				"error":      chapterErr.Error(),
			})
		}

		existing, err := questionService.GetExistingQuestions(ctx, *topicID, config.DefaultExistingQuestionLimit)
		if err != nil {
			return contextutils.WrapError(err, "failed to load bank questions")
		}
		for _, question := range existing {
			promptCtx.ExistingQuestions = append(promptCtx.ExistingQuestions, question.QuestionStatement)
		}

		generated, err := questionService.GetGeneratedQuestions(ctx, *topicID, config.DefaultGeneratedQuestionLimit)
		if err != nil {
			return contextutils.WrapError(err, "failed to load generated questions")
		}
		for _, question := range generated {
			promptCtx.GeneratedQuestions = append(promptCtx.GeneratedQuestions, question.QuestionStatement)
		}

		payload, err := generator.GenerateValidated(ctx, &services.GenerationRequest{
			Prompt:       services.BuildQuestionPrompt(promptCtx),
			QuestionType: qType,
		})
		if err != nil {
			return contextutils.WrapError(err, "generation failed")
		}

		question := services.GeneratedQuestionFromPayload(payload, *topicID, topic.Name, qType)
		if err := questionService.CreateGeneratedQuestion(ctx, question); err != nil {
			return contextutils.WrapError(err, "failed to store question")
		}

		fmt.Printf("Stored question %s for topic %q\n\n", question.ID, topic.Name)
		fmt.Printf("Type:       %s\n", question.QuestionType)
		fmt.Printf("Difficulty: %s\n", question.DifficultyLevel)
		fmt.Printf("Statement:  %s\n", question.QuestionStatement)
		for i, option := range question.Options {
			fmt.Printf("Option %d:   %s\n", i+1, option)
		}
		fmt.Printf("Answer:     %s\n", question.Answer)
		if question.Solution != "" {
			fmt.Printf("Solution:   %s\n", question.Solution)
		}
		return nil
	}
}
