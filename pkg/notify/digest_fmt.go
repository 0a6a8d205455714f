// DigestEmailFormatter renders the weekly sports digest without templates.
// It is the fallback used when template rendering fails.

package notify

import (
	"fmt"
	"html"
	"strings"
)

// DigestData holds the content of one personalised digest email.
type DigestData struct {
	SiteName   string
	Title      string
	Edition    string // e.g. "Week 1, 2024"
	Greeting   string
	TopStories []DigestStory
	Sections   []DigestSection
	Matches    []DigestMatch // "don't miss" fixtures
	Fixtures   []DigestMatch // remaining upcoming fixtures
	Links      []FooterLink
	PixelURL   string
}

// DigestStory is one article entry. URL is already tracking-wrapped by the caller.
type DigestStory struct {
	Title     string
	Summary   string
	URL       string
	Source    string
	Sport     string
	Published string
	Premium   bool
}

// DigestSection groups stories under a sport heading.
type DigestSection struct {
	Name    string
	Icon    string
	Stories []DigestStory
}

// DigestMatch is one fixture line.
type DigestMatch struct {
	Sport       string
	Home        string
	Away        string
	When        string
	Venue       string
	Competition string
}

// Label renders "Home vs Away".
func (m DigestMatch) Label() string { return m.Home + " vs " + m.Away }

// DigestEmailFormatter produces the HTML and plain-text digest bodies.
type DigestEmailFormatter struct{}

func NewDigestEmailFormatter() *DigestEmailFormatter { return &DigestEmailFormatter{} }

func (f *DigestEmailFormatter) Format(data DigestData) Message {
	var sb strings.Builder

	sb.WriteString(EmailWrapperOpen(data.Title))
	sb.WriteString(EmailHeader(data.Title, data.Edition))

	if data.Greeting != "" {
		sb.WriteString(fmt.Sprintf(`
<tr><td style="background-color:%s;padding:24px 40px 0;">
  <p style="margin:0;font-size:15px;color:%s;">%s</p>
</td></tr>
`, colorCard, colorText, html.EscapeString(data.Greeting)))
	}

	if len(data.TopStories) > 0 {
		sb.WriteString(EmailSectionTitle("Top Stories"))
		for i, s := range data.TopStories {
			sb.WriteString(f.storyRow(i, s))
		}
	}

	for _, sec := range data.Sections {
		if len(sec.Stories) == 0 {
			continue
		}
		sb.WriteString(EmailSectionTitle(strings.TrimSpace(sec.Icon + " " + sec.Name)))
		for i, s := range sec.Stories {
			sb.WriteString(f.storyRow(i, s))
		}
	}

	if len(data.Matches) > 0 {
		sb.WriteString(EmailSectionTitle("Don't Miss These Matches"))
		for i, m := range data.Matches {
			sb.WriteString(f.matchRow(i, m))
		}
	}

	if len(data.Fixtures) > 0 {
		sb.WriteString(EmailSectionTitle("Upcoming Fixtures"))
		for i, m := range data.Fixtures {
			sb.WriteString(f.matchRow(i, m))
		}
	}

	sb.WriteString(EmailFooter(data.SiteName, data.Links))
	sb.WriteString(TrackingPixelHTML(data.PixelURL))
	sb.WriteString(EmailWrapperClose())

	return Message{
		Title:    data.Title,
		Body:     f.formatPlainText(data),
		HTMLBody: sb.String(),
	}
}

func (f *DigestEmailFormatter) storyRow(i int, s DigestStory) string {
	badges := ""
	if s.Sport != "" {
		badges += BadgeHTML(s.Sport)
	}
	if s.Premium {
		badges += BadgeHTML("Premium")
	}
	meta := s.Source
	if s.Published != "" {
		meta = strings.TrimSpace(meta + " · " + s.Published)
	}
	return fmt.Sprintf(`
<tr><td style="background-color:%s;padding:16px 40px;border-bottom:1px solid rgba(255,255,255,0.04);">
  <p style="margin:0 0 6px;">%s</p>
  <a href="%s" style="font-size:16px;font-weight:700;color:%s;line-height:1.4;text-decoration:none;">%s</a>
  <p style="margin:8px 0 0;font-size:14px;line-height:1.6;color:%s;">%s</p>
  <p style="margin:6px 0 0;font-size:11px;color:%s;">%s</p>
</td></tr>
`, EmailRowBgColor(i), badges, html.EscapeString(s.URL), colorText, html.EscapeString(s.Title),
		colorMuted, html.EscapeString(s.Summary), colorMuted, html.EscapeString(meta))
}

func (f *DigestEmailFormatter) matchRow(i int, m DigestMatch) string {
	where := m.Competition
	if m.Venue != "" {
		where = strings.TrimSpace(where + " · " + m.Venue)
	}
	return fmt.Sprintf(`
<tr><td style="background-color:%s;padding:12px 40px;">
  <span style="font-size:14px;font-weight:700;color:%s;">%s</span>
  <span style="font-size:12px;color:%s;margin-left:8px;">%s</span>
  <p style="margin:4px 0 0;font-size:12px;color:%s;">%s</p>
</td></tr>
`, EmailRowBgColor(i), colorText, html.EscapeString(m.Label()), colorAccent, html.EscapeString(m.When),
		colorMuted, html.EscapeString(where))
}

func (f *DigestEmailFormatter) formatPlainText(data DigestData) string {
	var sb strings.Builder
	sb.WriteString(data.Title + "\n")
	if data.Edition != "" {
		sb.WriteString(data.Edition + "\n")
	}
	sb.WriteString("\n")
	if data.Greeting != "" {
		sb.WriteString(data.Greeting + "\n\n")
	}

	writeStories := func(title string, stories []DigestStory) {
		if len(stories) == 0 {
			return
		}
		sb.WriteString(strings.ToUpper(title) + "\n")
		for i, s := range stories {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s.Title))
			if s.Summary != "" {
				sb.WriteString("   " + s.Summary + "\n")
			}
			if s.URL != "" {
				sb.WriteString("   " + s.URL + "\n")
			}
		}
		sb.WriteString("\n")
	}
	writeMatches := func(title string, matches []DigestMatch) {
		if len(matches) == 0 {
			return
		}
		sb.WriteString(strings.ToUpper(title) + "\n")
		for _, m := range matches {
			sb.WriteString(fmt.Sprintf("- %s (%s) %s\n", m.Label(), m.Competition, m.When))
		}
		sb.WriteString("\n")
	}

	writeStories("Top Stories", data.TopStories)
	for _, sec := range data.Sections {
		writeStories(sec.Name, sec.Stories)
	}
	writeMatches("Don't Miss These Matches", data.Matches)
	writeMatches("Upcoming Fixtures", data.Fixtures)

	sb.WriteString("---\n" + data.SiteName + "\n")
	for _, l := range data.Links {
		if l.URL != "" {
			sb.WriteString(l.Label + ": " + l.URL + "\n")
		}
	}
	return sb.String()
}
