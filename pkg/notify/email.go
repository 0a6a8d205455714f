package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/mail.v2"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	SMTPHost string        `yaml:"smtp_host" env:"SMTP_HOST"` // e.g. "smtp.gmail.com"
	SMTPPort int           `yaml:"smtp_port" env:"SMTP_PORT"` // 465 implies implicit TLS
	Username string        `yaml:"username" env:"SMTP_USERNAME"`
	Password string        `yaml:"password" env:"SMTP_PASSWORD"`
	From     string        `yaml:"from" env:"EMAIL_FROM"`
	FromName string        `yaml:"from_name" env:"EMAIL_FROM_NAME"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Enabled reports whether enough settings are present to talk to a server.
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.From != ""
}

type emailNotifier struct {
	cfg    EmailConfig
	dialer *mail.Dialer
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(cfg EmailConfig) (Notifier, error) {
	if !cfg.Enabled() {
		return nil, errors.New("email: smtp_host and from are required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	username := cfg.Username
	if username == "" {
		username = cfg.From
	}
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, username, cfg.Password)
	d.Timeout = cfg.Timeout
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return &emailNotifier{cfg: cfg, dialer: d}, nil
}

func (e *emailNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("email: empty recipient")
	}
	m := buildMessage(e.cfg, msg)

	// mail.v2 has no context support; the dialer timeout bounds the goroutine.
	done := make(chan error, 1)
	go func() { done <- e.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}

func buildMessage(cfg EmailConfig, msg Message) *mail.Message {
	m := mail.NewMessage()
	if cfg.FromName != "" {
		m.SetAddressHeader("From", cfg.From, cfg.FromName)
	} else {
		m.SetHeader("From", cfg.From)
	}
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Title)

	body := msg.Body
	if body == "" && msg.HTMLBody == "" {
		body = msg.Title
	}
	if body != "" {
		m.SetBody("text/plain", body)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}
	return m
}
