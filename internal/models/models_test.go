package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionType_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		qt    QuestionType
		valid bool
	}{
		{"MCQ is valid", MCQ, true},
		{"MSQ is valid", MSQ, true},
		{"NAT is valid", NAT, true},
		{"SUB is valid", SUB, true},
		{"empty is invalid", QuestionType(""), false},
		{"lowercase is invalid", QuestionType("mcq"), false},
		{"unknown is invalid", QuestionType("TRUEFALSE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.qt.IsValid())
		})
	}
}

func TestQuestionType_HasOptions(t *testing.T) {
	assert.True(t, MCQ.HasOptions())
	assert.True(t, MSQ.HasOptions())
	assert.False(t, NAT.HasOptions())
	assert.False(t, SUB.HasOptions())
}

func TestGenerationMode_IsValid(t *testing.T) {
	assert.True(t, GenerationModeNewQuestions.IsValid())
	assert.True(t, GenerationModePYQSolutions.IsValid())
	assert.False(t, GenerationMode("").IsValid())
	assert.False(t, GenerationMode("bulk").IsValid())
}

func TestTopic_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		topic    Topic
		expected string
	}{
		{
			name: "topic with all fields",
			topic: Topic{
				ID:          "t-1",
				ChapterID:   "ch-1",
				Name:        "Thermodynamics",
				Description: sql.NullString{String: "Laws of thermodynamics", Valid: true},
				Weightage:   sql.NullFloat64{Float64: 3.5, Valid: true},
				CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			expected: `{"id":"t-1","chapter_id":"ch-1","name":"Thermodynamics","description":"Laws of thermodynamics","weightage":3.5,"created_at":"2024-01-01T00:00:00Z"}`,
		},
		{
			name: "topic with null description and weightage",
			topic: Topic{
				ID:          "t-2",
				ChapterID:   "ch-1",
				Name:        "Kinematics",
				Description: sql.NullString{Valid: false},
				Weightage:   sql.NullFloat64{Valid: false},
				CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			expected: `{"id":"t-2","chapter_id":"ch-1","name":"Kinematics","description":null,"weightage":null,"created_at":"2024-01-01T00:00:00Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

// TestGeneratedQuestion_MarshalJSON verifies that our custom MarshalJSON logic
// correctly handles nullable options, part and slot assignments: valid values
// appear as-is, absent ones become null in JSON.
func TestGeneratedQuestion_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		question GeneratedQuestion
		expected string
	}{
		{
			name: "MCQ with options and assignments",
			question: GeneratedQuestion{
				ID:                "q-1",
				TopicID:           "t-1",
				TopicName:         "Thermodynamics",
				QuestionStatement: "Which law applies?",
				QuestionType:      MCQ,
				Options:           pq.StringArray{"First", "Second", "Third", "Zeroth"},
				Answer:            "3",
				Solution:          "The zeroth law defines thermal equilibrium.",
				DifficultyLevel:   "Easy",
				PartID:            sql.NullString{String: "p-1", Valid: true},
				SlotID:            sql.NullString{String: "s-1", Valid: true},
				CreatedAt:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				UpdatedAt:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			},
			expected: `{"id":"q-1","topic_id":"t-1","topic_name":"Thermodynamics","question_statement":"Which law applies?","question_type":"MCQ","options":["First","Second","Third","Zeroth"],"answer":"3","solution":"The zeroth law defines thermal equilibrium.","difficulty_level":"Easy","part_id":"p-1","slot_id":"s-1","created_at":"2024-01-01T12:00:00Z","updated_at":"2024-01-01T12:00:00Z"}`,
		},
		{
			name: "NAT without options or assignments",
			question: GeneratedQuestion{
				ID:                "q-2",
				TopicID:           "t-1",
				TopicName:         "Thermodynamics",
				QuestionStatement: "Compute the efficiency.",
				QuestionType:      NAT,
				Options:           nil,
				Answer:            "0.42",
				Solution:          "Carnot efficiency is 1 - Tc/Th.",
				DifficultyLevel:   "Medium",
				PartID:            sql.NullString{Valid: false},
				SlotID:            sql.NullString{Valid: false},
				CreatedAt:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				UpdatedAt:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			},
			expected: `{"id":"q-2","topic_id":"t-1","topic_name":"Thermodynamics","question_statement":"Compute the efficiency.","question_type":"NAT","options":null,"answer":"0.42","solution":"Carnot efficiency is 1 - Tc/Th.","difficulty_level":"Medium","part_id":null,"slot_id":null,"created_at":"2024-01-01T12:00:00Z","updated_at":"2024-01-01T12:00:00Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.question)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

func TestGenerationSession_Progress(t *testing.T) {
	tests := []struct {
		name     string
		session  GenerationSession
		expected float64
	}{
		{
			name:     "no topics",
			session:  GenerationSession{TotalTopics: 0},
			expected: 0.0,
		},
		{
			name:     "half done",
			session:  GenerationSession{TotalTopics: 10, CompletedTopics: 4, FailedTopics: 1},
			expected: 50.0,
		},
		{
			name:     "all done",
			session:  GenerationSession{TotalTopics: 5, CompletedTopics: 5},
			expected: 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.session.Progress(), 0.001)
		})
	}
}

func TestGenerationSession_IsTerminal(t *testing.T) {
	assert.False(t, (&GenerationSession{Status: SessionStatusPending}).IsTerminal())
	assert.False(t, (&GenerationSession{Status: SessionStatusRunning}).IsTerminal())
	assert.True(t, (&GenerationSession{Status: SessionStatusCompleted}).IsTerminal())
	assert.True(t, (&GenerationSession{Status: SessionStatusFailed}).IsTerminal())
}

func TestGenerationSession_MarshalJSON(t *testing.T) {
	session := GenerationSession{
		ID:              "sess-1",
		ExamID:          "e-1",
		CourseID:        "c-1",
		GenerationMode:  GenerationModeNewQuestions,
		Status:          SessionStatusRunning,
		TotalTopics:     4,
		CompletedTopics: 1,
		FailedTopics:    1,
		CorrectMarks:    4.0,
		IncorrectMarks:  -1.0,
		SkippedMarks:    0.0,
		TimeMinutes:     2.0,
		TotalQuestions:  10,
		LastError:       sql.NullString{String: "quota exceeded", Valid: true},
		CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(session)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "sess-1", decoded["id"])
	assert.Equal(t, "new_questions", decoded["generation_mode"])
	assert.Equal(t, "running", decoded["status"])
	assert.InDelta(t, 50.0, decoded["progress"], 0.001)
	assert.Equal(t, "quota exceeded", decoded["last_error"])

	// Null last_error marshals as null
	session.LastError = sql.NullString{Valid: false}
	data, err = json.Marshal(session)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["last_error"])
}
