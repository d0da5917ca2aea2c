// Package services provides business logic services for the question generator.
package services

import (
	"context"

	"questgen/internal/config"
	"questgen/internal/observability"
	"questgen/internal/services/mailer"
)

// CreateEmailService creates an appropriate email service based on configuration.
// If the application is running in test mode, it returns a TestEmailService.
// Otherwise, it returns the regular EmailService.
func CreateEmailService(cfg *config.Config, logger *observability.Logger) mailer.Mailer {
	if cfg.IsTest {
		logger.Info(context.Background(), "Using test email service", map[string]interface{}{
			"test_mode": true,
		})
		return NewTestEmailService(cfg, logger)
	}

	return NewEmailService(cfg, logger)
}
