// Package services provides business logic services for the question generator.
package services

import (
	"context"
	"sync"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services/mailer"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordedEmail captures one email the TestEmailService would have sent.
type RecordedEmail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]interface{}
}

// TestEmailService implements the Mailer interface for testing purposes.
// It doesn't actually send emails but logs the operations and records them
// in memory for assertions.
type TestEmailService struct {
	cfg    *config.Config
	logger *observability.Logger

	mu   sync.Mutex
	sent []RecordedEmail
}

// Ensure TestEmailService implements the Mailer interface
var _ mailer.Mailer = (*TestEmailService)(nil)

// NewTestEmailService creates a new TestEmailService instance
func NewTestEmailService(cfg *config.Config, logger *observability.Logger) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
	}
}

// SendSessionReport logs a session report instead of sending it
func (e *TestEmailService) SendSessionReport(ctx context.Context, session *models.GenerationSession) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendSessionReport",
		trace.WithAttributes(
			attribute.String("session.id", session.ID),
			attribute.String("session.status", string(session.Status)),
		),
	)
	defer span.End()

	e.logger.Info(ctx, "TEST MODE: Would send session report", map[string]interface{}{
		"session_id": session.ID,
		"status":     string(session.Status),
		"template":   "session_report",
		"test_mode":  true,
	})

	e.record(RecordedEmail{
		To:       e.cfg.Email.SessionReport.Recipient,
		Subject:  "Question generation " + string(session.Status),
		Template: "session_report",
		Data: map[string]interface{}{
			"SessionID": session.ID,
			"Status":    string(session.Status),
		},
	})

	return nil
}

// SendEmail logs a generic email instead of sending it
func (e *TestEmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer span.End()

	e.logger.Info(ctx, "TEST MODE: Would send email", map[string]interface{}{
		"to":        to,
		"subject":   subject,
		"template":  templateName,
		"test_mode": true,
		"data_keys": getMapKeys(data),
	})

	e.record(RecordedEmail{To: to, Subject: subject, Template: templateName, Data: data})

	return nil
}

// IsEnabled returns whether email functionality is enabled (always true for test service)
func (e *TestEmailService) IsEnabled() bool {
	return true
}

// SentEmails returns a copy of every email recorded so far.
func (e *TestEmailService) SentEmails() []RecordedEmail {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecordedEmail, len(e.sent))
	copy(out, e.sent)
	return out
}

func (e *TestEmailService) record(email RecordedEmail) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, email)
}

// getMapKeys returns the keys of a map as a slice of strings
func getMapKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	return keys
}
