// formatter.go provides the shared email skeleton.
//
// Layout:
//
//	formatter.go   wrapper, header, footer, section and badge helpers
//	digest_fmt.go  DigestData + DigestEmailFormatter (weekly sports digest)
//
// The helpers return inline-styled table markup so the output survives
// webmail clients that strip <style> blocks.

package notify

import (
	"fmt"
	"html"
	"strings"
)

// Palette used by the digest emails.
const (
	colorBackground = "#0b0b0b"
	colorCard       = "#161616"
	colorCardAlt    = "#1d1d1d"
	colorAccent     = "#d4af37"
	colorText       = "#f2f2f2"
	colorMuted      = "#9a9a9a"
)

// EmailWrapperOpen renders the opening HTML for an email body.
func EmailWrapperOpen(title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"><title>%s</title></head>
<body style="margin:0;padding:0;background-color:%s;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,'Helvetica Neue',Arial,sans-serif;">
<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" style="background-color:%s;">
<tr><td align="center" style="padding:20px 10px;">
<table role="presentation" width="640" cellpadding="0" cellspacing="0" style="max-width:640px;width:100%%;">
`, html.EscapeString(title), colorBackground, colorBackground)
}

// EmailWrapperClose renders the closing HTML for an email body.
func EmailWrapperClose() string {
	return `
</table>
</td></tr>
</table>
</body>
</html>`
}

// EmailHeader renders the title block.
func EmailHeader(title, subtitle string) string {
	return fmt.Sprintf(`
<!-- Header -->
<tr><td style="background:%s;border-top:4px solid %s;border-radius:12px 12px 0 0;padding:32px 40px;text-align:center;">
  <h1 style="margin:0;font-size:26px;font-weight:800;color:%s;letter-spacing:-0.5px;">%s</h1>
  <p style="margin:8px 0 0;font-size:14px;color:%s;font-weight:600;text-transform:uppercase;letter-spacing:1.5px;">%s</p>
</td></tr>
`, colorCard, colorAccent, colorText, html.EscapeString(title), colorAccent, html.EscapeString(subtitle))
}

// EmailSectionTitle renders a section heading row.
func EmailSectionTitle(title string) string {
	return fmt.Sprintf(`
<tr><td style="background-color:%s;padding:24px 40px 8px;">
  <p style="margin:0;font-size:12px;font-weight:700;text-transform:uppercase;letter-spacing:1.5px;color:%s;">%s</p>
</td></tr>
`, colorCard, colorAccent, html.EscapeString(title))
}

// EmailFooter renders the footer with links. Empty URLs are omitted.
func EmailFooter(siteName string, links []FooterLink) string {
	var parts []string
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`<a href="%s" style="color:%s;text-decoration:none;">%s</a>`,
			html.EscapeString(l.URL), colorMuted, html.EscapeString(l.Label)))
	}
	return fmt.Sprintf(`
<!-- Footer -->
<tr><td style="background-color:%s;border-radius:0 0 12px 12px;padding:24px 40px;text-align:center;">
  <p style="margin:0 0 8px;font-size:12px;color:%s;"><strong style="color:%s;">%s</strong></p>
  <p style="margin:0;font-size:12px;color:%s;line-height:1.8;">%s</p>
</td></tr>
`, colorCardAlt, colorMuted, colorAccent, html.EscapeString(siteName), colorMuted, strings.Join(parts, " &middot; "))
}

// FooterLink is one footer link.
type FooterLink struct {
	Label string
	URL   string
}

// EmailRowBgColor returns alternating row colors.
func EmailRowBgColor(index int) string {
	if index%2 == 1 {
		return colorCardAlt
	}
	return colorCard
}

// BadgeHTML renders a small pill, used for sport names and "Premium".
func BadgeHTML(label string) string {
	return fmt.Sprintf(`<span style="display:inline-block;background:rgba(212,175,55,0.15);color:%s;font-size:11px;padding:2px 8px;border-radius:10px;margin:2px 4px 2px 0;font-weight:600;">%s</span>`,
		colorAccent, html.EscapeString(label))
}

// TrackingPixelHTML renders an invisible open-tracking image; empty url renders nothing.
func TrackingPixelHTML(url string) string {
	if url == "" {
		return ""
	}
	return fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:block;border:0;width:1px;height:1px;">`, html.EscapeString(url))
}
