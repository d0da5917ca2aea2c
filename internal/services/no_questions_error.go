package services

import (
	"fmt"

	contextutils "questgen/internal/utils"
)

// NoBankQuestionsError is returned when a topic holds no bank questions
// to derive solutions from.
type NoBankQuestionsError struct {
	TopicID   string
	TopicName string
}

func (e *NoBankQuestionsError) Error() string {
	return fmt.Sprintf("no bank questions available for topic %q (id=%s)", e.TopicName, e.TopicID)
}

// Unwrap allows errors.Is(..., contextutils.ErrQuestionNotFound) to work.
func (e *NoBankQuestionsError) Unwrap() error {
	return contextutils.ErrQuestionNotFound
}
