// Package render turns book text into the reader page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	tmpl    *template.Template
	once    sync.Once
	initErr error
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Typographer,
		highlighting.NewHighlighting(highlighting.WithStyle("github")),
	),
	// book text is user content; raw HTML stays escaped
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// BookVM is the data for the reader page.
type BookVM struct {
	ID       string
	Title    string
	AudioURL string
	Body     template.HTML
}

func initTemplates() error {
	once.Do(func() {
		tmpl, initErr = template.ParseFS(templateFS, "templates/*.html")
	})
	return initErr
}

// Markdown converts book text to HTML.
func Markdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Book writes the full reader page.
func Book(w io.Writer, vm BookVM) error {
	if err := initTemplates(); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	return tmpl.ExecuteTemplate(w, "book.html", vm)
}
