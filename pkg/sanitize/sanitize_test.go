package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestStripHTML(t *testing.T) {
	in := `<p>Arsenal <b>beat</b> Chelsea</p><script>track()</script><p>2-1 at&nbsp;home</p>`
	got := StripHTML(in)
	if got != "Arsenal beat Chelsea 2-1 at home" && got != "Arsenal beat Chelsea 2-1 at home" {
		t.Errorf("unexpected text: %q", got)
	}
	if strings.Contains(got, "track") {
		t.Errorf("script content leaked: %q", got)
	}
}

func TestStripHTML_PlainText(t *testing.T) {
	if got := StripHTML("  Hamilton   takes pole \n in Monaco "); got != "Hamilton takes pole in Monaco" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("expected untouched string, got %q", got)
	}
	if got := Truncate("Manchester United", 10); got != "Manchester" {
		t.Errorf("expected 'Manchester', got %q", got)
	}
	if got := Truncate("Paris Saint", 6); got != "Paris" {
		t.Errorf("expected trailing space trimmed, got %q", got)
	}
	s := Truncate(strings.Repeat("é", 600), 500)
	if utf8.RuneCountInString(s) != 500 || !utf8.ValidString(s) {
		t.Errorf("expected 500 valid runes, got %d", utf8.RuneCountInString(s))
	}
	if Truncate("x", 0) != "" {
		t.Error("expected empty string for zero limit")
	}
}

func TestFirstImage(t *testing.T) {
	in := `<div><img src="/relative.png"><img src="https://cdn.example.com/a.jpg"><img src="https://cdn.example.com/b.jpg"></div>`
	if got := FirstImage(in); got != "https://cdn.example.com/a.jpg" {
		t.Errorf("unexpected image: %q", got)
	}
	if got := FirstImage("no images here"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
