// Package notify provides the outbound mail capability and the shared HTML
// email skeleton used by the digest formatters.
package notify

import (
	"context"
	"log/slog"
)

// Message represents one outbound email.
type Message struct {
	Title    string `json:"title"` // subject line
	Body     string `json:"body"`  // plain-text part
	HTMLBody string `json:"html_body,omitempty"`
	To       string `json:"to"`
	ToName   string `json:"to_name,omitempty"`
}

// Notifier sends a single message. Implementations must honour ctx cancellation.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that only logs, used when SMTP is not configured.
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (l *logNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("email (dry run)", "to", msg.To, "subject", msg.Title, "text_bytes", len(msg.Body), "html_bytes", len(msg.HTMLBody))
	return nil
}
