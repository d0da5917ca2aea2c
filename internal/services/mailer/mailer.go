// Package mailer defines the outgoing email surface of the question generator.
package mailer

import (
	"context"

	"questgen/internal/models"
)

// Mailer defines the interface for email sending functionality
type Mailer interface {
	// SendSessionReport sends a completion report for a finished generation session
	SendSessionReport(ctx context.Context, session *models.GenerationSession) error

	// SendEmail sends a generic email with the given parameters
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error

	// IsEnabled returns whether email functionality is enabled
	IsEnabled() bool
}
