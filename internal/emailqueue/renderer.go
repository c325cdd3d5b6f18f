package emailqueue

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const layoutFile = "templates/layout.tmpl"

// AppInfo contains product-wide values available to every template.
type AppInfo struct {
	Name         string
	BaseURL      string
	SupportEmail string
}

// Content is a rendered email.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// renderContext is the root object templates execute against.
type renderContext struct {
	App  AppInfo
	Data TemplateData
	Year int
}

// Renderer renders queue entries from embedded templates.
// Each template file defines "subject", "text" and "html" blocks.
type Renderer struct {
	app  AppInfo
	text map[Template]*texttemplate.Template
	html map[Template]*htmltemplate.Template
	now  func() time.Time
}

// NewRenderer parses the templates of every supported template name.
func NewRenderer(app AppInfo) (*Renderer, error) {
	r := &Renderer{
		app:  app,
		text: make(map[Template]*texttemplate.Template),
		html: make(map[Template]*htmltemplate.Template),
		now:  time.Now,
	}

	for _, name := range Templates() {
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		txt, err := texttemplate.New(string(name)).
			Funcs(textFuncMap()).
			ParseFS(templatesFS, layoutFile, filename)
		if err != nil {
			return nil, fmt.Errorf("parse text template %s: %w", name, err)
		}

		html, err := htmltemplate.New(string(name)).
			Funcs(htmlFuncMap()).
			ParseFS(templatesFS, layoutFile, filename)
		if err != nil {
			return nil, fmt.Errorf("parse html template %s: %w", name, err)
		}

		for _, block := range []string{"subject", "text"} {
			if txt.Lookup(block) == nil {
				return nil, fmt.Errorf("template %s: missing %q block", name, block)
			}
		}
		if html.Lookup("html") == nil {
			return nil, fmt.Errorf("template %s: missing \"html\" block", name)
		}

		r.text[name] = txt
		r.html[name] = html
	}

	return r, nil
}

// Render renders subject, HTML and plain-text bodies for data.
func (r *Renderer) Render(data TemplateData) (*Content, error) {
	if data == nil {
		return nil, fmt.Errorf("render: template data is required")
	}

	name := data.Template()
	txt, ok := r.text[name]
	if !ok {
		return nil, fmt.Errorf("render: %w %q", ErrUnknownTemplate, name)
	}

	rc := renderContext{
		App:  r.app,
		Data: data,
		Year: r.now().Year(),
	}

	var buf bytes.Buffer
	if err := txt.ExecuteTemplate(&buf, "subject", rc); err != nil {
		return nil, fmt.Errorf("execute subject %s: %w", name, err)
	}
	subject := singleLine(buf.String())
	if subject == "" {
		return nil, fmt.Errorf("template %s rendered an empty subject", name)
	}

	buf.Reset()
	if err := txt.ExecuteTemplate(&buf, "text", rc); err != nil {
		return nil, fmt.Errorf("execute text %s: %w", name, err)
	}
	text := strings.TrimSpace(buf.String())

	buf.Reset()
	if err := r.html[name].ExecuteTemplate(&buf, "html", rc); err != nil {
		return nil, fmt.Errorf("execute html %s: %w", name, err)
	}
	html := strings.TrimSpace(buf.String())

	return &Content{Subject: subject, HTML: html, Text: text}, nil
}

// singleLine collapses whitespace so a subject never spans header lines.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Template functions

// A Caser is stateful, so each call gets its own.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// truncRunes keeps the first n runes of s. Sprig's trunc cuts bytes and can
// split a multi-byte character.
func truncRunes(n int, s string) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func textFuncMap() texttemplate.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["title"] = titleCase
	funcs["truncRunes"] = truncRunes
	return funcs
}

func htmlFuncMap() htmltemplate.FuncMap {
	funcs := sprig.HtmlFuncMap()
	funcs["title"] = titleCase
	funcs["truncRunes"] = truncRunes
	return funcs
}
