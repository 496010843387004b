// Package email provides Notifier implementations that deliver
// provisioned API keys by email.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"time"

	"github.com/artpar/promptgate/ports"
)

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender email address
	FromName string // sender display name

	// TLS settings
	UseTLS      bool // Use STARTTLS
	SkipVerify  bool // Skip TLS certificate verification (for testing)
	UseImplicit bool // Use implicit TLS (port 465)

	Timeout time.Duration

	AppName string // Application name for the email template
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() SMTPConfig {
	return SMTPConfig{
		Host:     "localhost",
		Port:     25,
		From:     "noreply@localhost",
		FromName: "PromptGate",
		UseTLS:   true,
		Timeout:  30 * time.Second,
		AppName:  "PromptGate",
	}
}

const keyEmailHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
  <h2>Your {{.AppName}} API key</h2>
  <p>Thanks for your purchase. Your <strong>{{.TierName}}</strong> plan is active.</p>
  <p>Your API key:</p>
  <pre style="background: #f4f4f4; padding: 12px; border-radius: 4px;">{{.APIKey}}</pre>
  <p>Send it in the <code>X-API-Key</code> header with every request.</p>
  <p>Keep this key secret. It cannot be recovered if lost, only replaced.</p>
</body>
</html>`

const keyEmailText = `Your {{.AppName}} API key

Thanks for your purchase. Your {{.TierName}} plan is active.

API key: {{.APIKey}}

Send it in the X-API-Key header with every request.
Keep this key secret. It cannot be recovered if lost, only replaced.
`

type keyEmailData struct {
	AppName  string
	TierName string
	APIKey   string
}

// SMTPNotifier implements ports.Notifier using SMTP.
type SMTPNotifier struct {
	config   SMTPConfig
	htmlTmpl *template.Template
	textTmpl *template.Template
}

// NewSMTPNotifier creates a new SMTP notifier.
func NewSMTPNotifier(config SMTPConfig) (*SMTPNotifier, error) {
	htmlTmpl, err := template.New("keyHTML").Parse(keyEmailHTML)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	textTmpl, err := template.New("keyText").Parse(keyEmailText)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &SMTPNotifier{config: config, htmlTmpl: htmlTmpl, textTmpl: textTmpl}, nil
}

// Send delivers the API key to the recipient.
func (s *SMTPNotifier) Send(ctx context.Context, recipient, apiKey, tierName string) error {
	data := keyEmailData{
		AppName:  s.config.AppName,
		TierName: tierName,
		APIKey:   apiKey,
	}

	var htmlBody, textBody bytes.Buffer
	if err := s.htmlTmpl.Execute(&htmlBody, data); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	if err := s.textTmpl.Execute(&textBody, data); err != nil {
		return fmt.Errorf("render text: %w", err)
	}

	subject := fmt.Sprintf("Your %s API key", s.config.AppName)
	message := s.buildMessage(recipient, subject, htmlBody.String(), textBody.String())

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if s.config.UseImplicit {
		return s.sendImplicitTLS(ctx, addr, recipient, message)
	}
	return s.sendSTARTTLS(ctx, addr, recipient, message)
}

// buildMessage assembles a multipart/alternative MIME message.
func (s *SMTPNotifier) buildMessage(to, subject, htmlBody, textBody string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	boundary := fmt.Sprintf("boundary-%d", time.Now().UnixNano())
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%s\r\n", boundary))
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(textBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return buf.Bytes()
}

// sendSTARTTLS sends email using STARTTLS (port 587/25).
func (s *SMTPNotifier) sendSTARTTLS(ctx context.Context, addr, to string, message []byte) error {
	dialer := &net.Dialer{Timeout: s.config.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if s.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName:         s.config.Host,
				InsecureSkipVerify: s.config.SkipVerify,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	return send(client, s.config.From, to, message)
}

// sendImplicitTLS sends email using implicit TLS (port 465).
func (s *SMTPNotifier) sendImplicitTLS(ctx context.Context, addr, to string, message []byte) error {
	tlsConfig := &tls.Config{
		ServerName:         s.config.Host,
		InsecureSkipVerify: s.config.SkipVerify,
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.config.Timeout},
		Config:    tlsConfig,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tls: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	return send(client, s.config.From, to, message)
}

// send runs the MAIL/RCPT/DATA exchange on an established client.
func send(client *smtp.Client, from, to string, message []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// Ensure interface compliance.
var _ ports.Notifier = (*SMTPNotifier)(nil)
