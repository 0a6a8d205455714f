package dispatcher

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/tracking"
	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
)

var welcomePerks = []string{
	"Latest sports news and analysis",
	"Upcoming fixtures and match schedules",
	"Big matches you should not miss",
}

// Welcomer sends the subscription confirmation.
type Welcomer struct {
	notifier notify.Notifier
	links    tracking.Links
	siteName string
	timeout  time.Duration
}

// NewWelcomer creates a welcomer. An empty siteName defaults to "Sports Digest".
func NewWelcomer(notifier notify.Notifier, links tracking.Links, siteName string, cfg Config) *Welcomer {
	if siteName == "" {
		siteName = "Sports Digest"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	return &Welcomer{notifier: notifier, links: links, siteName: siteName, timeout: cfg.SendTimeout}
}

// SendWelcome emails sub a welcome message with its preference and unsubscribe links.
func (w *Welcomer) SendWelcome(ctx context.Context, sub *model.Subscriber) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.notifier.Send(ctx, w.Message(sub)); err != nil {
		return fmt.Errorf("send welcome to %s: %w", sub.Email, err)
	}
	return nil
}

// Message builds the welcome email for sub.
func (w *Welcomer) Message(sub *model.Subscriber) notify.Message {
	title := "Welcome to " + w.siteName + "!"
	prefs := w.links.Preferences(sub.Token)
	unsub := w.links.Unsubscribe(sub.Token)
	name := sub.Name
	if name == "" {
		name = "there"
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\nHi %s, thank you for subscribing. Every week you'll receive:\n", title, name)
	for _, p := range welcomePerks {
		text.WriteString("- " + p + "\n")
	}
	if len(sub.Preferences.Sports) > 0 {
		fmt.Fprintf(&text, "\nYour sports: %s\n", joinSports(sub.Preferences.Sports))
	}
	text.WriteString("\n")
	if prefs != "" {
		text.WriteString("Manage your preferences: " + prefs + "\n")
	}
	if unsub != "" {
		text.WriteString("Unsubscribe: " + unsub + "\n")
	}

	var h strings.Builder
	h.WriteString(notify.EmailWrapperOpen(title))
	h.WriteString(notify.EmailHeader(title, "Your weekly sports digest"))
	h.WriteString(`<tr><td style="background-color:#161616;padding:24px 40px;color:#f2f2f2;font-size:15px;line-height:1.6;">`)
	fmt.Fprintf(&h, "<p>Hi %s, thank you for subscribing. Every week you'll receive:</p><ul>", html.EscapeString(name))
	for _, p := range welcomePerks {
		h.WriteString("<li>" + html.EscapeString(p) + "</li>")
	}
	h.WriteString("</ul>")
	if len(sub.Preferences.Sports) > 0 {
		var badges strings.Builder
		for _, s := range sub.Preferences.Sports {
			badges.WriteString(notify.BadgeHTML(string(s)))
		}
		h.WriteString("<p>" + badges.String() + "</p>")
	}
	h.WriteString("</td></tr>")
	h.WriteString(notify.EmailFooter(w.siteName, []notify.FooterLink{
		{Label: "Manage preferences", URL: prefs},
		{Label: "Unsubscribe", URL: unsub},
	}))
	h.WriteString(notify.EmailWrapperClose())

	return notify.Message{
		Title:    title,
		Body:     text.String(),
		HTMLBody: h.String(),
		To:       sub.Email,
		ToName:   sub.Name,
	}
}

func joinSports(sports []model.Sport) string {
	names := make([]string, len(sports))
	for i, s := range sports {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
