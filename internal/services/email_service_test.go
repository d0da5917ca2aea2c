package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services/mailer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestLogger creates a logger for testing
func createTestLogger() *observability.Logger {
	cfg := &config.OpenTelemetryConfig{
		EnableLogging: false,
	}
	return observability.NewLogger(cfg)
}

func smtpTestConfig() *config.Config {
	return &config.Config{
		Email: config.EmailConfig{
			Enabled: true,
			SMTP: config.SMTPConfig{
				Host:        "smtp.example.com",
				Port:        587,
				Username:    "user",
				Password:    "pass",
				FromAddress: "noreply@questgen.example.com",
				FromName:    "Question Generator",
			},
			SessionReport: config.SessionReportConfig{
				Enabled:   true,
				Recipient: "ops@example.com",
			},
		},
	}
}

func finishedSession(status models.SessionStatus) *models.GenerationSession {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	return &models.GenerationSession{
		ID:              "4f5a9c1e-session",
		ExamID:          "exam-1",
		CourseID:        "course-1",
		GenerationMode:  models.GenerationModeNewQuestions,
		Status:          status,
		TotalTopics:     8,
		CompletedTopics: 6,
		FailedTopics:    2,
		TotalQuestions:  20,
		CreatedAt:       now,
		UpdatedAt:       now.Add(14 * time.Minute),
	}
}

func TestNewEmailService(t *testing.T) {
	service := NewEmailService(smtpTestConfig(), createTestLogger())

	assert.NotNil(t, service)
	assert.True(t, service.IsEnabled())
}

func TestNewEmailService_Disabled(t *testing.T) {
	cfg := &config.Config{
		Email: config.EmailConfig{
			Enabled: false,
		},
	}

	service := NewEmailService(cfg, createTestLogger())

	assert.NotNil(t, service)
	assert.False(t, service.IsEnabled())
}

func TestEmailService_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		expected bool
	}{
		{
			name:     "enabled with valid config",
			cfg:      smtpTestConfig(),
			expected: true,
		},
		{
			name: "disabled",
			cfg: &config.Config{
				Email: config.EmailConfig{
					Enabled: false,
				},
			},
			expected: false,
		},
		{
			name: "enabled but no host",
			cfg: &config.Config{
				Email: config.EmailConfig{
					Enabled: true,
					SMTP: config.SMTPConfig{
						Host: "",
					},
				},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewEmailService(tt.cfg, createTestLogger())
			assert.Equal(t, tt.expected, service.IsEnabled())
		})
	}
}

func TestEmailService_SendSessionReport_Disabled(t *testing.T) {
	cfg := &config.Config{
		Email: config.EmailConfig{
			Enabled: false,
		},
	}

	service := NewEmailService(cfg, createTestLogger())

	err := service.SendSessionReport(context.Background(), finishedSession(models.SessionStatusCompleted))
	assert.NoError(t, err)
}

func TestEmailService_SendSessionReport_NoRecipient(t *testing.T) {
	cfg := smtpTestConfig()
	cfg.Email.SessionReport.Recipient = ""

	service := NewEmailService(cfg, createTestLogger())

	err := service.SendSessionReport(context.Background(), finishedSession(models.SessionStatusCompleted))
	assert.NoError(t, err)
}

func TestEmailService_SendSessionReport_ReportsDisabled(t *testing.T) {
	cfg := smtpTestConfig()
	cfg.Email.SessionReport.Enabled = false

	service := NewEmailService(cfg, createTestLogger())

	err := service.SendSessionReport(context.Background(), finishedSession(models.SessionStatusFailed))
	assert.NoError(t, err)
}

func TestEmailService_GenerateSessionReportTemplate(t *testing.T) {
	service := NewEmailService(smtpTestConfig(), createTestLogger())

	data := map[string]interface{}{
		"SessionID":       "4f5a9c1e-session",
		"CourseID":        "course-1",
		"Mode":            "new_questions",
		"Status":          "completed",
		"TotalTopics":     8,
		"CompletedTopics": 6,
		"FailedTopics":    2,
		"TotalQuestions":  20,
		"Progress":        "100.0%",
		"LastError":       "",
		"StartedAt":       "June 10, 2025 09:00 UTC",
		"Duration":        "14m0s",
	}

	content, err := service.generateEmailContent("session_report", data)
	require.NoError(t, err)
	assert.Contains(t, content, "Session completed")
	assert.Contains(t, content, "4f5a9c1e-session")
	assert.Contains(t, content, "6 of 8")
	assert.Contains(t, content, "new_questions")
	assert.Contains(t, content, "14m0s")
	assert.NotContains(t, content, "Last error")
}

func TestEmailService_GenerateSessionReportTemplate_WithError(t *testing.T) {
	service := NewEmailService(smtpTestConfig(), createTestLogger())

	data := map[string]interface{}{
		"SessionID":       "4f5a9c1e-session",
		"CourseID":        "course-1",
		"Mode":            "pyq_solutions",
		"Status":          "failed",
		"TotalTopics":     8,
		"CompletedTopics": 3,
		"FailedTopics":    5,
		"TotalQuestions":  20,
		"Progress":        "100.0%",
		"LastError":       "all 3 credentials exhausted",
		"StartedAt":       "June 10, 2025 09:00 UTC",
		"Duration":        "3m20s",
	}

	content, err := service.generateEmailContent("session_report", data)
	require.NoError(t, err)
	assert.Contains(t, content, "Session failed")
	assert.Contains(t, content, "Last error")
	assert.Contains(t, content, "all 3 credentials exhausted")
}

func TestEmailService_GenerateEmailContent_UnknownTemplate(t *testing.T) {
	service := NewEmailService(smtpTestConfig(), createTestLogger())

	_, err := service.generateEmailContent("unknown_template", map[string]interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestEmailService_GenerateTestEmailTemplate(t *testing.T) {
	service := NewEmailService(smtpTestConfig(), createTestLogger())

	data := map[string]interface{}{
		"TestTime": "January 15, 2025 10:30:00",
		"Message":  "This is a test email",
	}

	content, err := service.generateTestEmailTemplate(data)

	require.NoError(t, err)
	assert.NotEmpty(t, content)
	assert.Contains(t, content, "Test Email")
	assert.Contains(t, content, "This is a test email")
	assert.Contains(t, content, "January 15, 2025 10:30:00")
}

func TestEmailService_SendEmail_DisabledSkips(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "email disabled",
			cfg: &config.Config{
				Email: config.EmailConfig{
					Enabled: false,
					SMTP: config.SMTPConfig{
						Host: "smtp.example.com",
						Port: 587,
					},
				},
			},
		},
		{
			name: "email enabled but no host",
			cfg: &config.Config{
				Email: config.EmailConfig{
					Enabled: true,
					SMTP: config.SMTPConfig{
						Host: "",
						Port: 587,
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewEmailService(tt.cfg, createTestLogger())

			err := service.SendEmail(context.Background(), "ops@example.com", "Test Subject", "test_email", map[string]interface{}{})
			assert.NoError(t, err)
		})
	}
}

func TestEmailService_TemplateParsing(t *testing.T) {
	service := NewEmailService(smtpTestConfig(), createTestLogger())

	// Templates tolerate whatever value types the caller provides.
	testData := map[string]interface{}{
		"String":      "test string",
		"Int":         42,
		"Float":       3.14,
		"Bool":        true,
		"Slice":       []string{"item1", "item2"},
		"Map":         map[string]string{"key": "value"},
		"Nil":         nil,
		"EmptyString": "",
	}

	content, err := service.generateSessionReportTemplate(testData)
	assert.NoError(t, err)
	assert.NotEmpty(t, content)

	content, err = service.generateTestEmailTemplate(testData)
	assert.NoError(t, err)
	assert.NotEmpty(t, content)
}

// TestEmailServiceInterface ensures EmailService implements the Mailer interface
func TestEmailServiceInterface(_ *testing.T) {
	var _ mailer.Mailer = (*EmailService)(nil)
}

func TestTestEmailService_RecordsEmails(t *testing.T) {
	service := NewTestEmailService(smtpTestConfig(), createTestLogger())

	assert.True(t, service.IsEnabled())

	session := finishedSession(models.SessionStatusCompleted)
	session.LastError = sql.NullString{}
	require.NoError(t, service.SendSessionReport(context.Background(), session))

	require.NoError(t, service.SendEmail(context.Background(), "ops@example.com", "Hello", "test_email", map[string]interface{}{"Message": "hi"}))

	sent := service.SentEmails()
	require.Len(t, sent, 2)
	assert.Equal(t, "session_report", sent[0].Template)
	assert.Equal(t, "ops@example.com", sent[0].To)
	assert.Equal(t, "4f5a9c1e-session", sent[0].Data["SessionID"])
	assert.Equal(t, "Hello", sent[1].Subject)
}
