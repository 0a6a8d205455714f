package compiler

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"strings"
	texttemplate "text/template"

	"github.com/yuin/goldmark"

	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// Renderer turns digest data into an email body pair.
type Renderer interface {
	Render(data notify.DigestData) (notify.Message, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(data notify.DigestData) (notify.Message, error)

func (f RendererFunc) Render(data notify.DigestData) (notify.Message, error) { return f(data) }

var funcs = map[string]any{
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
}

// TemplateRenderer renders digest.html.tmpl and digest.txt.tmpl.
type TemplateRenderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewTemplateRenderer parses the digest templates from dir, or the built-in
// ones when dir is empty.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	var fsys fs.FS = embedded
	prefix := "templates/"
	if dir != "" {
		fsys = os.DirFS(dir)
		prefix = ""
	}
	h, err := htmltemplate.New("digest.html.tmpl").Funcs(funcs).ParseFS(fsys, prefix+"digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	t, err := texttemplate.New("digest.txt.tmpl").Funcs(funcs).ParseFS(fsys, prefix+"digest.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &TemplateRenderer{html: h, text: t}, nil
}

func (r *TemplateRenderer) Render(data notify.DigestData) (notify.Message, error) {
	var hb, tb bytes.Buffer
	if err := r.html.Execute(&hb, data); err != nil {
		return notify.Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := r.text.Execute(&tb, data); err != nil {
		return notify.Message{}, fmt.Errorf("render text: %w", err)
	}
	return notify.Message{Title: data.Title, Body: tb.String(), HTMLBody: hb.String()}, nil
}

// MarkdownRenderer produces the stored snapshot: markdown as the body and
// goldmark HTML for the online view.
type MarkdownRenderer struct {
	tmpl *texttemplate.Template
	md   goldmark.Markdown
}

func NewMarkdownRenderer() *MarkdownRenderer {
	r := &MarkdownRenderer{md: goldmark.New()}
	tmpl, err := texttemplate.New("digest.md.tmpl").Funcs(funcs).ParseFS(embedded, "templates/digest.md.tmpl")
	if err == nil {
		r.tmpl = tmpl
	}
	return r
}

func (r *MarkdownRenderer) Render(data notify.DigestData) (notify.Message, error) {
	src := r.markdown(data)
	var body bytes.Buffer
	if err := r.md.Convert([]byte(src), &body); err != nil {
		return notify.Message{}, fmt.Errorf("convert markdown: %w", err)
	}
	var page strings.Builder
	page.WriteString(notify.EmailWrapperOpen(data.Title))
	page.WriteString(`<tr><td style="background-color:#161616;color:#f2f2f2;padding:24px 40px;line-height:1.6;">`)
	page.Write(body.Bytes())
	page.WriteString("</td></tr>")
	page.WriteString(notify.EmailWrapperClose())
	return notify.Message{Title: data.Title, Body: src, HTMLBody: page.String()}, nil
}

// markdown executes the template, falling back to a plain builder.
func (r *MarkdownRenderer) markdown(data notify.DigestData) string {
	if r.tmpl != nil {
		var buf bytes.Buffer
		if err := r.tmpl.Execute(&buf, data); err == nil {
			return buf.String()
		}
	}
	return plainMarkdown(data)
}

func plainMarkdown(data notify.DigestData) string {
	var sb strings.Builder
	sb.WriteString("# " + data.Title + "\n\n")
	if data.Edition != "" {
		sb.WriteString("_" + data.Edition + "_\n\n")
	}
	stories := func(title string, list []notify.DigestStory) {
		if len(list) == 0 {
			return
		}
		sb.WriteString("## " + title + "\n\n")
		for _, s := range list {
			sb.WriteString(fmt.Sprintf("- [%s](%s)", s.Title, s.URL))
			if s.Source != "" {
				sb.WriteString(" (" + s.Source + ")")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	matches := func(title string, list []notify.DigestMatch) {
		if len(list) == 0 {
			return
		}
		sb.WriteString("## " + title + "\n\n")
		for _, m := range list {
			sb.WriteString(fmt.Sprintf("- **%s** %s, %s\n", m.Label(), m.When, m.Competition))
		}
		sb.WriteString("\n")
	}
	stories("Top Stories", data.TopStories)
	for _, sec := range data.Sections {
		stories(strings.TrimSpace(sec.Icon+" "+sec.Name), sec.Stories)
	}
	matches("Don't Miss These Matches", data.Matches)
	matches("Upcoming Fixtures", data.Fixtures)
	return sb.String()
}

// FormatterRenderer wraps the template-free notify formatter.
type FormatterRenderer struct {
	f *notify.DigestEmailFormatter
}

func NewFormatterRenderer() *FormatterRenderer {
	return &FormatterRenderer{f: notify.NewDigestEmailFormatter()}
}

func (r *FormatterRenderer) Render(data notify.DigestData) (notify.Message, error) {
	return r.f.Format(data), nil
}
