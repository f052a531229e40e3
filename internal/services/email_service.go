package services

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/boscod/trackwatch/config"
)

type EmailService struct {
	cfg config.SMTPConfig
}

func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// Enabled reports whether SMTP is configured well enough to send.
func (s *EmailService) Enabled() bool {
	return s != nil && s.cfg.Host != "" && s.cfg.User != "" && s.cfg.Password != ""
}

func (s *EmailService) SendEmail(to []string, subject string, body string) error {
	if !s.Enabled() {
		return fmt.Errorf("SMTP configuration missing")
	}
	if len(to) == 0 {
		return nil
	}

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #1f2937; background-color: #f3f4f6; margin: 0; padding: 0; }
    .container { background-color: #ffffff; border-radius: 8px; max-width: 600px; margin: 24px auto; padding: 32px; }
    .footer { text-align: center; margin-top: 32px; font-size: 12px; color: #9ca3af; letter-spacing: 0.1em; text-transform: uppercase; }
</style>
</head>
<body>
<div class="container">
    %s
    <div class="footer">TrackWatch</div>
</div>
</body>
</html>
`, body)

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"From: \"%s\" <%s>\r\n"+
		"Subject: %s\r\n"+
		"MIME-version: 1.0;\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\";\r\n"+
		"\r\n"+
		"%s", strings.Join(to, ","), s.cfg.FromName, from, subject, htmlBody))

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	if err := smtp.SendMail(addr, auth, from, to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
