// Package email sends report notifications over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	for _, addr := range to {
		if strings.ContainsAny(addr, "\r\n") {
			return fmt.Errorf("email: invalid recipient %q", addr)
		}
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-dossier"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerSafe(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// ExportReadyData describes a finished export.
type ExportReadyData struct {
	CaseNumber  string
	TargetName  string
	Format      string
	Filename    string
	Pages       int
	DownloadURL string
	ExpiresAt   time.Time
}

// SendExportReady tells recipients that a report export can be downloaded.
func (s *Service) SendExportReady(to []string, data ExportReadyData) error {
	html, err := renderTemplate(exportReadyTmpl, data)
	if err != nil {
		return fmt.Errorf("render export template: %w", err)
	}
	subject := fmt.Sprintf("Report %s is ready", data.CaseNumber)
	text := fmt.Sprintf("The %s export of report %s (%s, %d pages) is ready: %s",
		strings.ToUpper(data.Format), data.CaseNumber, data.TargetName, data.Pages, data.DownloadURL)
	return s.SendHTMLEmail(to, subject, text, html)
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

var exportReadyTmpl = template.Must(template.New("export-ready").Parse(exportReadyTemplate))

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const exportReadyTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Report {{.CaseNumber}} is ready</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #8b0000; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #8b0000; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #8b0000; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Intelligence Report {{.CaseNumber}}</h1>
    </div>

    <p>The report on <strong>{{.TargetName}}</strong> has been exported as {{.Format}} ({{.Pages}} pages).</p>

    <p>
        <a href="{{.DownloadURL}}" class="button">Download {{.Filename}}</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.DownloadURL}}</p>
{{if not .ExpiresAt.IsZero}}
    <p>This link expires {{.ExpiresAt.UTC.Format "2006-01-02 15:04 UTC"}}.</p>
{{end}}
    <div class="footer">
        <p>This message concerns restricted material. Do not forward it.</p>
    </div>
</body>
</html>`
