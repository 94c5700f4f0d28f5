// Package mail delivers invitation messages over SMTP.
package mail

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/louisbranch/surveycast/internal/services/invitations/domain"
)

// smtpEnv holds raw env values before post-parse validation.
type smtpEnv struct {
	Host     string `env:"SURVEYCAST_SMTP_HOST"`
	Port     int    `env:"SURVEYCAST_SMTP_PORT"     envDefault:"587"`
	Username string `env:"SURVEYCAST_SMTP_USERNAME"`
	Password string `env:"SURVEYCAST_SMTP_PASSWORD"`
	From     string `env:"SURVEYCAST_SMTP_FROM"`
}

// SMTPConfig defines how invitation mail is submitted.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// LoadSMTPConfigFromEnv reads SMTP submission configuration. An empty host
// means mail delivery is not configured.
func LoadSMTPConfigFromEnv() (SMTPConfig, error) {
	var raw smtpEnv
	if err := env.Parse(&raw); err != nil {
		return SMTPConfig{}, fmt.Errorf("parse smtp env: %w", err)
	}
	cfg := SMTPConfig{
		Host:     strings.TrimSpace(raw.Host),
		Port:     raw.Port,
		Username: strings.TrimSpace(raw.Username),
		Password: raw.Password,
		From:     strings.TrimSpace(raw.From),
	}
	if cfg.Host == "" {
		return cfg, nil
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return SMTPConfig{}, fmt.Errorf("smtp port %d is out of range", cfg.Port)
	}
	if cfg.From == "" {
		return SMTPConfig{}, fmt.Errorf("SURVEYCAST_SMTP_FROM is required when SURVEYCAST_SMTP_HOST is set")
	}
	return cfg, nil
}

// Configured reports whether an SMTP host was provided.
func (c SMTPConfig) Configured() bool {
	return c.Host != ""
}

// sendMailFunc matches smtp.SendMail so tests can intercept submission.
type sendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender submits invitation messages to an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

// NewSMTPSender validates the configuration and returns an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp port %d is out of range", cfg.Port)
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}, nil
}

// Send submits one invitation message. The context deadline is honored only
// up to submission; SMTP has no cancellation once the dialog starts.
func (s *SMTPSender) Send(ctx context.Context, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(message.To)
	if to == "" {
		return fmt.Errorf("message recipient is required")
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	payload := formatMessage(s.cfg.From, to, message.Subject, message.Body)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, payload); err != nil {
		return fmt.Errorf("submit mail to %s: %w", s.cfg.Host, err)
	}
	return nil
}

func formatMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\r\n") {
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// sanitizeHeader strips CR and LF so message fields cannot inject headers.
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

// LogSender logs invitation messages instead of delivering them. It backs
// local development and environments without an SMTP relay.
type LogSender struct {
	logf func(format string, args ...any)
}

// NewLogSender returns a LogSender writing through logf, defaulting to the
// standard logger.
func NewLogSender(logf func(format string, args ...any)) *LogSender {
	if logf == nil {
		logf = log.Printf
	}
	return &LogSender{logf: logf}
}

// Send logs the message and reports success.
func (s *LogSender) Send(ctx context.Context, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logf("invitation mail (dry run): to=%s survey=%s respondent=%s subject=%q",
		message.To, message.SurveyID, message.RespondentID, sanitizeHeader(message.Subject))
	return nil
}
