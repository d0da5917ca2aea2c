// Package services provides business logic services for the question generator.
package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"questgen/internal/config"
	"questgen/internal/models"
	"questgen/internal/observability"
	"questgen/internal/services/mailer"
	contextutils "questgen/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// EmailService implements the mailer.Mailer interface using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
}

// Ensure EmailService implements the Mailer interface
var _ mailer.Mailer = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// SendSessionReport sends a completion report for a finished generation session
func (e *EmailService) SendSessionReport(ctx context.Context, session *models.GenerationSession) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendSessionReport",
		trace.WithAttributes(
			attribute.String("session.id", session.ID),
			attribute.String("session.status", string(session.Status)),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping session report", map[string]interface{}{
			"session_id": session.ID,
		})
		return nil
	}

	report := e.cfg.Email.SessionReport
	if !report.Enabled || report.Recipient == "" {
		e.logger.Info(ctx, "Session reports not configured, skipping", map[string]interface{}{
			"session_id": session.ID,
		})
		return nil
	}
	if !contextutils.IsValidEmail(report.Recipient) {
		e.logger.Warn(ctx, "Session report recipient is not a valid email address, skipping", map[string]interface{}{
			"session_id": session.ID,
			"recipient":  report.Recipient,
		})
		return nil
	}

	lastError := ""
	if session.LastError.Valid {
		lastError = session.LastError.String
	}

	data := map[string]interface{}{
		"SessionID":       session.ID,
		"CourseID":        session.CourseID,
		"Mode":            string(session.GenerationMode),
		"Status":          string(session.Status),
		"TotalTopics":     session.TotalTopics,
		"CompletedTopics": session.CompletedTopics,
		"FailedTopics":    session.FailedTopics,
		"TotalQuestions":  session.TotalQuestions,
		"Progress":        fmt.Sprintf("%.1f%%", session.Progress()),
		"LastError":       lastError,
		"StartedAt":       session.CreatedAt.Format("January 2, 2006 15:04 MST"),
		"Duration":        session.UpdatedAt.Sub(session.CreatedAt).Round(time.Second).String(),
	}

	subject := fmt.Sprintf("Question generation %s: %d/%d topics", session.Status, session.CompletedTopics, session.TotalTopics)

	err = e.SendEmail(ctx, report.Recipient, subject, "session_report", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send session report")
	}

	e.logger.Info(ctx, "Session report sent successfully", map[string]interface{}{
		"session_id": session.ID,
		"recipient":  report.Recipient,
		"status":     string(session.Status),
	})

	return nil
}

// SendEmail sends a generic email with the given parameters
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	content, err := e.generateEmailContent(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	m.SetBody("text/html", content)

	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       to,
			"template": templateName,
			"subject":  subject,
		})
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       to,
		"template": templateName,
		"subject":  subject,
	})

	return nil
}

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

// generateEmailContent generates email content from templates
func (e *EmailService) generateEmailContent(templateName string, data map[string]interface{}) (string, error) {
	switch templateName {
	case "session_report":
		return e.generateSessionReportTemplate(data)
	case "test_email":
		return e.generateTestEmailTemplate(data)
	default:
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}
}

// generateSessionReportTemplate generates the session completion report email
func (e *EmailService) generateSessionReportTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generation Session Report</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #3F51B5; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .report { width: 100%; border-collapse: collapse; margin: 15px 0; }
        .report td { padding: 8px 12px; border-bottom: 1px solid #ddd; }
        .report td:first-child { font-weight: bold; width: 45%; }
        .error { background-color: #FFEBEE; border-left: 4px solid #F44336; padding: 12px; margin: 15px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Generation Session Report</h1>
        </div>
        <div class="content">
            <h2>Session {{.Status}}</h2>
            <table class="report">
                <tr><td>Session ID</td><td>{{.SessionID}}</td></tr>
                <tr><td>Course</td><td>{{.CourseID}}</td></tr>
                <tr><td>Mode</td><td>{{.Mode}}</td></tr>
                <tr><td>Topics completed</td><td>{{.CompletedTopics}} of {{.TotalTopics}}</td></tr>
                <tr><td>Topics failed</td><td>{{.FailedTopics}}</td></tr>
                <tr><td>Questions requested</td><td>{{.TotalQuestions}}</td></tr>
                <tr><td>Progress</td><td>{{.Progress}}</td></tr>
                <tr><td>Started</td><td>{{.StartedAt}}</td></tr>
                <tr><td>Duration</td><td>{{.Duration}}</td></tr>
            </table>
            {{if .LastError}}
            <div class="error">
                <strong>Last error:</strong> {{.LastError}}
            </div>
            {{end}}
        </div>
        <div class="footer">
            <p>This report was sent automatically after a question generation session finished.</p>
        </div>
    </div>
</body>
</html>`

	tmpl, err := template.New("session_report").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}

// generateTestEmailTemplate generates the test email template
func (e *EmailService) generateTestEmailTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Test Email</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2196F3; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Test Email</h1>
        </div>
        <div class="content">
            <p>This is a test email to verify that your email settings are working correctly.</p>
            <p><strong>Test Time:</strong> {{.TestTime}}</p>
            <p><strong>Message:</strong> {{.Message}}</p>
            <p>If you received this email, your email configuration is working properly!</p>
        </div>
        <div class="footer">
            <p>This is a test email from the question generator. No action is required.</p>
        </div>
    </div>
</body>
</html>
`

	tmpl, err := template.New("test_email").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}
