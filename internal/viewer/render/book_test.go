package render

import (
	"strings"
	"testing"
)

func TestMarkdown(t *testing.T) {
	out, err := Markdown("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>alert(1)</script>\n")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	s := string(out)
	for _, want := range []string{"<h1", "Title", "<table>", "<td>1</td>"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "<script>") {
		t.Errorf("raw html passed through:\n%s", s)
	}
}

func TestMarkdownHighlightsCode(t *testing.T) {
	out, err := Markdown("```go\nfunc main() {}\n```\n")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(string(out), "<span") {
		t.Fatalf("code block not highlighted:\n%s", out)
	}
}

func TestBookPage(t *testing.T) {
	body, _ := Markdown("Hello *world*")
	var sb strings.Builder
	err := Book(&sb, BookVM{ID: "b1", Title: "A <Title>", AudioURL: "/api/books/b1/audio", Body: body})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	s := sb.String()
	if !strings.Contains(s, "<title>A &lt;Title&gt;</title>") {
		t.Errorf("title not escaped:\n%s", s)
	}
	if !strings.Contains(s, "<em>world</em>") || !strings.Contains(s, `href="/api/books/b1/audio"`) {
		t.Errorf("page incomplete:\n%s", s)
	}
}
