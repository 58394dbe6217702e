// internal/email/email.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"trackhub/internal/levels"
	"trackhub/internal/logger"
)

const (
	defaultAlertRecipient = "admin@yourdomain.org"
	defaultAlertSender    = "alerts@yourdomain.org"
	sendmailPath          = "/usr/sbin/sendmail"
)

// EmailConfig holds email configuration
type EmailConfig struct {
	AlertRecipient string
	AlertSender    string
	SendAlerts     bool
	MockMode       bool
	LogEmails      bool
}

// LoadEmailConfig loads email configuration from environment variables
func LoadEmailConfig() EmailConfig {
	return EmailConfig{
		AlertRecipient: getEnvOrDefault("EMAIL_ALERT_RECIPIENT", defaultAlertRecipient),
		AlertSender:    getEnvOrDefault("EMAIL_ALERT_SENDER", defaultAlertSender),
		SendAlerts:     getEnvOrDefault("SEND_ALERT_EMAILS", "true") == "true",
		MockMode:       getEnvOrDefault("EMAIL_MOCK_MODE", "false") == "true",
		LogEmails:      getEnvOrDefault("EMAIL_LOG_MODE", "true") == "true",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// PartialWriteAlert describes an event that was published without its
// ticket levels.
type PartialWriteAlert struct {
	PostID     string
	UserID     string
	Levels     []levels.Selection
	Cause      string
	OccurredAt time.Time
}

const partialWriteTemplate = `Subject: Event {{.PostID}} is missing ticket levels

An event was created but its ticket levels could not be saved.

Post ID: {{.PostID}}
User ID: {{.UserID}}
When:    {{.OccurredAt.Format "January 2, 2006 at 3:04 PM MST"}}
Error:   {{.Cause}}

Levels that were not saved:
{{- range .Levels}}
  • level {{.LevelID}}: price {{.Price}}, quantity {{.Quantity}}
{{- else}}
  (none)
{{- end}}

The post is live without tickets. Re-add the levels or remove the post.
`

var partialWriteTmpl = template.Must(template.New("partialWrite").Parse(partialWriteTemplate))

// Mailer sends operator alerts.
type Mailer struct {
	config EmailConfig
	send   func(to, from, subject, body string) error
}

func NewMailer(config EmailConfig) *Mailer {
	m := &Mailer{config: config}
	m.send = m.sendMail
	return m
}

// NotifyPartialWrite emails the alert recipient about an event saved without
// its levels.
func (m *Mailer) NotifyPartialWrite(ctx context.Context, alert PartialWriteAlert) error {
	if !m.config.SendAlerts {
		logger.LogInfo("Alert emails disabled, skipping partial write alert for %s", alert.PostID)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := renderTemplate(partialWriteTmpl, alert)
	if err != nil {
		return err
	}

	logger.LogInfo("Sending partial write alert for post %s", alert.PostID)
	if err := m.send(m.config.AlertRecipient, m.config.AlertSender, subject, body); err != nil {
		logger.LogError("Failed to send partial write alert for %s: %v", alert.PostID, err)
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

// Alert sends a free-form alert to administrators.
func (m *Mailer) Alert(subject, body string) error {
	if !m.config.SendAlerts {
		return nil
	}
	return m.send(m.config.AlertRecipient, m.config.AlertSender, subject, body)
}

// renderTemplate executes tmpl and splits the leading Subject line off.
func renderTemplate(tmpl *template.Template, data interface{}) (string, string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute %s template: %w", tmpl.Name(), err)
	}

	lines := strings.Split(buf.String(), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "Subject: ") {
		return "", "", fmt.Errorf("invalid template format: missing subject line")
	}

	subject := strings.TrimPrefix(lines[0], "Subject: ")
	body := strings.Join(lines[2:], "\n") // Skip subject and empty line
	return subject, body, nil
}

// sendMail sends an email using sendmail or logs it in mock mode
func (m *Mailer) sendMail(to, from, subject, body string) error {
	// Mock mode - just log it
	if m.config.MockMode {
		logger.LogInfo("========== MOCK EMAIL ==========")
		logger.LogInfo("To: %s", to)
		logger.LogInfo("From: %s", from)
		logger.LogInfo("Subject: %s", subject)
		logger.LogInfo("---")
		for _, line := range strings.Split(body, "\n") {
			logger.LogInfo("   %s", line)
		}
		logger.LogInfo("================================")
		return nil
	}

	if m.config.LogEmails {
		logger.LogInfo("Sending real email to %s with subject: %s", to, subject)
	}

	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
	}

	message := strings.Join(headers, "\r\n") + body
	cmd := exec.Command(sendmailPath, "-t")
	cmd.Stdin = bytes.NewBufferString(message)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sendmail command failed: %w", err)
	}

	if m.config.LogEmails {
		logger.LogInfo("Real email sent successfully to %s", to)
	}
	return nil
}
