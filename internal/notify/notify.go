/*
Package notify delivers the run report by email when SMTP settings are
configured. Delivery failures are logged and returned, never fatal to the
run that produced the report.
*/
package notify

import (
	"fmt"
	"log/slog"
	"time"

	gomail "gopkg.in/mail.v2"
)

// EmailConfig holds SMTP settings for report delivery.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
	Enabled    bool
}

// SendReport emails the rendered run report as a plain text body.
func SendReport(cfg EmailConfig, subject, body string) error {
	if !cfg.Enabled {
		return nil
	}

	from := cfg.FromEmail
	if from == "" {
		from = cfg.SMTPUser
	}

	message := gomail.NewMessage()
	message.SetHeader("From", from)
	message.SetHeader("To", cfg.ToEmail)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	dialer := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second

	if err := dialer.DialAndSend(message); err != nil {
		slog.Warn("failed to email report", "to", cfg.ToEmail, "subject", subject, "error", err)
		return fmt.Errorf("failed to send report email: %w", err)
	}
	slog.Info("report emailed", "to", cfg.ToEmail, "subject", subject)
	return nil
}
