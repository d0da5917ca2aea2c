// Package models defines data structures used throughout the question generation backend.
package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// QuestionType represents the type of question being generated or validated
type QuestionType string

// Question types supported by the system
const (
	// MCQ is a multiple choice question with exactly one correct answer
	MCQ QuestionType = "MCQ"
	// MSQ is a multiple select question with one or more correct answers
	MSQ QuestionType = "MSQ"
	// NAT is a numerical answer type question with no options
	NAT QuestionType = "NAT"
	// SUB is a subjective question with a descriptive answer
	SUB QuestionType = "SUB"
)

// IsValid reports whether the question type is one the system knows how to handle
func (qt QuestionType) IsValid() bool {
	switch qt {
	case MCQ, MSQ, NAT, SUB:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type carry an options list
func (qt QuestionType) HasOptions() bool {
	return qt == MCQ || qt == MSQ
}

// GenerationMode represents what an auto-generation session produces
type GenerationMode string

const (
	// GenerationModeNewQuestions generates fresh questions for each topic
	GenerationModeNewQuestions GenerationMode = "new_questions"
	// GenerationModePYQSolutions re-derives solutions for existing bank questions
	GenerationModePYQSolutions GenerationMode = "pyq_solutions"
)

// IsValid reports whether the generation mode is supported
func (gm GenerationMode) IsValid() bool {
	return gm == GenerationModeNewQuestions || gm == GenerationModePYQSolutions
}

// SessionStatus represents the lifecycle state of an auto-generation session
type SessionStatus string

const (
	// SessionStatusPending is for sessions accepted but not yet picked up
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusRunning is for sessions currently being processed
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusCompleted is for sessions that finished every topic
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusFailed is for sessions aborted by an unrecoverable error
	SessionStatusFailed SessionStatus = "failed"
)

// Exam represents a top-level exam in the catalog hierarchy
type Exam struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description" db:"description"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Course represents a course offered under an exam
type Course struct {
	ID          string         `json:"id" db:"id"`
	ExamID      string         `json:"exam_id" db:"exam_id"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description" db:"description"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Subject represents a subject within a course
type Subject struct {
	ID          string         `json:"id" db:"id"`
	CourseID    string         `json:"course_id" db:"course_id"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description" db:"description"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Unit represents a unit within a subject
type Unit struct {
	ID          string         `json:"id" db:"id"`
	SubjectID   string         `json:"subject_id" db:"subject_id"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description" db:"description"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Chapter represents a chapter within a unit
type Chapter struct {
	ID          string         `json:"id" db:"id"`
	UnitID      string         `json:"unit_id" db:"unit_id"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description" db:"description"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Topic represents a topic within a chapter, the unit of question generation
type Topic struct {
	ID          string          `json:"id" db:"id"`
	ChapterID   string          `json:"chapter_id" db:"chapter_id"`
	Name        string          `json:"name" db:"name"`
	Description sql.NullString  `json:"description" db:"description"`
	Weightage   sql.NullFloat64 `json:"weightage" db:"weightage"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Part represents an exam part a question can be assigned to
type Part struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	PartName  string    `json:"part_name" db:"part_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Slot represents an exam slot a question can be assigned to
type Slot struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	SlotName  string    `json:"slot_name" db:"slot_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Question represents an existing question from the past-year bank
type Question struct {
	ID                string         `json:"id" db:"id"`
	TopicID           string         `json:"topic_id" db:"topic_id"`
	QuestionStatement string         `json:"question_statement" db:"question_statement"`
	QuestionType      QuestionType   `json:"question_type" db:"question_type"`
	Options           pq.StringArray `json:"options" db:"options"`
	Answer            string         `json:"answer" db:"answer"`
	Solution          string         `json:"solution" db:"solution"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// GeneratedQuestion represents a question produced by the generation pipeline
type GeneratedQuestion struct {
	ID                string         `json:"id" db:"id"`
	TopicID           string         `json:"topic_id" db:"topic_id"`
	TopicName         string         `json:"topic_name" db:"topic_name"`
	QuestionStatement string         `json:"question_statement" db:"question_statement"`
	QuestionType      QuestionType   `json:"question_type" db:"question_type"`
	Options           pq.StringArray `json:"options" db:"options"`
	Answer            string         `json:"answer" db:"answer"`
	Solution          string         `json:"solution" db:"solution"`
	DifficultyLevel   string         `json:"difficulty_level" db:"difficulty_level"`
	PartID            sql.NullString `json:"part_id" db:"part_id"`
	SlotID            sql.NullString `json:"slot_id" db:"slot_id"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// GenerationSession represents a bulk auto-generation run over a course
type GenerationSession struct {
	ID              string         `json:"id" db:"id"`
	ExamID          string         `json:"exam_id" db:"exam_id"`
	CourseID        string         `json:"course_id" db:"course_id"`
	GenerationMode  GenerationMode `json:"generation_mode" db:"generation_mode"`
	Status          SessionStatus  `json:"status" db:"status"`
	TotalTopics     int            `json:"total_topics" db:"total_topics"`
	CompletedTopics int            `json:"completed_topics" db:"completed_topics"`
	FailedTopics    int            `json:"failed_topics" db:"failed_topics"`
	CorrectMarks    float64        `json:"correct_marks" db:"correct_marks"`
	IncorrectMarks  float64        `json:"incorrect_marks" db:"incorrect_marks"`
	SkippedMarks    float64        `json:"skipped_marks" db:"skipped_marks"`
	TimeMinutes     float64        `json:"time_minutes" db:"time_minutes"`
	TotalQuestions  int            `json:"total_questions" db:"total_questions"`
	LastError       sql.NullString `json:"last_error" db:"last_error"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Progress returns the percentage of topics already processed
func (gs *GenerationSession) Progress() float64 {
	if gs.TotalTopics == 0 {
		return 0.0
	}
	return float64(gs.CompletedTopics+gs.FailedTopics) / float64(gs.TotalTopics) * 100
}

// IsTerminal reports whether the session has reached a final state
func (gs *GenerationSession) IsTerminal() bool {
	return gs.Status == SessionStatusCompleted || gs.Status == SessionStatusFailed
}

// TopicWeightage pairs a topic with its weightage for distribution planning
type TopicWeightage struct {
	TopicID   string  `json:"topic_id" db:"topic_id"`
	TopicName string  `json:"topic_name" db:"topic_name"`
	Weightage float64 `json:"weightage" db:"weightage"`
}

// GenerateQuestionRequest represents a request to generate a single question
type GenerateQuestionRequest struct {
	TopicID      string       `json:"topic_id" binding:"required"`
	QuestionType QuestionType `json:"question_type" binding:"required"`
	PartID       *string      `json:"part_id,omitempty"`
	SlotID       *string      `json:"slot_id,omitempty"`
}

// MarksScheme represents the scoring scheme supplied when starting an
// auto-generation session
type MarksScheme struct {
	CorrectMarks   float64 `json:"correct_marks"`
	IncorrectMarks float64 `json:"incorrect_marks"`
	SkippedMarks   float64 `json:"skipped_marks"`
	TimeMinutes    float64 `json:"time_minutes"`
	TotalQuestions int     `json:"total_questions" binding:"required,gt=0"`
}

// StartAutoGenerationResponse acknowledges an accepted auto-generation session
type StartAutoGenerationResponse struct {
	SessionID   string        `json:"session_id"`
	TotalTopics int           `json:"total_topics"`
	Status      SessionStatus `json:"status"`
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullFloat64ToPointer(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		return &nf.Float64
	}
	return nil
}

// MarshalJSON customizes JSON marshaling for Exam to handle sql.NullString properly
func (e Exam) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          e.ID,
		Name:        e.Name,
		Description: nullStringToPointer(e.Description),
		CreatedAt:   e.CreatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for Course to handle sql.NullString properly
func (c Course) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          string    `json:"id"`
		ExamID      string    `json:"exam_id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          c.ID,
		ExamID:      c.ExamID,
		Name:        c.Name,
		Description: nullStringToPointer(c.Description),
		CreatedAt:   c.CreatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for Subject to handle sql.NullString properly
func (s Subject) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          string    `json:"id"`
		CourseID    string    `json:"course_id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          s.ID,
		CourseID:    s.CourseID,
		Name:        s.Name,
		Description: nullStringToPointer(s.Description),
		CreatedAt:   s.CreatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for Unit to handle sql.NullString properly
func (u Unit) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          string    `json:"id"`
		SubjectID   string    `json:"subject_id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          u.ID,
		SubjectID:   u.SubjectID,
		Name:        u.Name,
		Description: nullStringToPointer(u.Description),
		CreatedAt:   u.CreatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for Chapter to handle sql.NullString properly
func (ch Chapter) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          string    `json:"id"`
		UnitID      string    `json:"unit_id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          ch.ID,
		UnitID:      ch.UnitID,
		Name:        ch.Name,
		Description: nullStringToPointer(ch.Description),
		CreatedAt:   ch.CreatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for Topic to handle sql.Null types properly
func (t Topic) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          string    `json:"id"`
		ChapterID   string    `json:"chapter_id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		Weightage   *float64  `json:"weightage"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          t.ID,
		ChapterID:   t.ChapterID,
		Name:        t.Name,
		Description: nullStringToPointer(t.Description),
		Weightage:   nullFloat64ToPointer(t.Weightage),
		CreatedAt:   t.CreatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for GeneratedQuestion to handle sql.NullString properly
func (gq GeneratedQuestion) MarshalJSON() (result0 []byte, err error) {
	var options []string
	if gq.Options != nil {
		options = []string(gq.Options)
	}
	return json.Marshal(&struct {
		ID                string       `json:"id"`
		TopicID           string       `json:"topic_id"`
		TopicName         string       `json:"topic_name"`
		QuestionStatement string       `json:"question_statement"`
		QuestionType      QuestionType `json:"question_type"`
		Options           []string     `json:"options"`
		Answer            string       `json:"answer"`
		Solution          string       `json:"solution"`
		DifficultyLevel   string       `json:"difficulty_level"`
		PartID            *string      `json:"part_id"`
		SlotID            *string      `json:"slot_id"`
		CreatedAt         time.Time    `json:"created_at"`
		UpdatedAt         time.Time    `json:"updated_at"`
	}{
		ID:                gq.ID,
		TopicID:           gq.TopicID,
		TopicName:         gq.TopicName,
		QuestionStatement: gq.QuestionStatement,
		QuestionType:      gq.QuestionType,
		Options:           options,
		Answer:            gq.Answer,
		Solution:          gq.Solution,
		DifficultyLevel:   gq.DifficultyLevel,
		PartID:            nullStringToPointer(gq.PartID),
		SlotID:            nullStringToPointer(gq.SlotID),
		CreatedAt:         gq.CreatedAt,
		UpdatedAt:         gq.UpdatedAt,
	})
}

// MarshalJSON customizes JSON marshaling for GenerationSession to handle sql.NullString properly
func (gs GenerationSession) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              string         `json:"id"`
		ExamID          string         `json:"exam_id"`
		CourseID        string         `json:"course_id"`
		GenerationMode  GenerationMode `json:"generation_mode"`
		Status          SessionStatus  `json:"status"`
		TotalTopics     int            `json:"total_topics"`
		CompletedTopics int            `json:"completed_topics"`
		FailedTopics    int            `json:"failed_topics"`
		CorrectMarks    float64        `json:"correct_marks"`
		IncorrectMarks  float64        `json:"incorrect_marks"`
		SkippedMarks    float64        `json:"skipped_marks"`
		TimeMinutes     float64        `json:"time_minutes"`
		TotalQuestions  int            `json:"total_questions"`
		Progress        float64        `json:"progress"`
		LastError       *string        `json:"last_error"`
		CreatedAt       time.Time      `json:"created_at"`
		UpdatedAt       time.Time      `json:"updated_at"`
	}{
		ID:              gs.ID,
		ExamID:          gs.ExamID,
		CourseID:        gs.CourseID,
		GenerationMode:  gs.GenerationMode,
		Status:          gs.Status,
		TotalTopics:     gs.TotalTopics,
		CompletedTopics: gs.CompletedTopics,
		FailedTopics:    gs.FailedTopics,
		CorrectMarks:    gs.CorrectMarks,
		IncorrectMarks:  gs.IncorrectMarks,
		SkippedMarks:    gs.SkippedMarks,
		TimeMinutes:     gs.TimeMinutes,
		TotalQuestions:  gs.TotalQuestions,
		Progress:        gs.Progress(),
		LastError:       nullStringToPointer(gs.LastError),
		CreatedAt:       gs.CreatedAt,
		UpdatedAt:       gs.UpdatedAt,
	})
}
