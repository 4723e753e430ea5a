package markdown

import (
	"strings"
	"testing"
)

func render(t *testing.T, source string) string {
	t.Helper()
	out, err := RenderString(source)
	if err != nil {
		t.Fatalf("RenderString(%q): %v", source, err)
	}
	return out
}

func TestRenderBasics(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"# Heading", "<h1"},
		{"**bold**", "<strong>bold</strong>"},
		{"*italic*", "<em>italic</em>"},
		{"`code`", "<code>code</code>"},
		{"[link](https://example.com)", `href="https://example.com"`},
		{"- one\n- two", "<li>one</li>"},
		{"> quoted", "<blockquote>"},
	}
	for _, tt := range tests {
		if got := render(t, tt.source); !strings.Contains(got, tt.want) {
			t.Errorf("render(%q) = %q, want it to contain %q", tt.source, got, tt.want)
		}
	}
}

func TestRenderGFMTable(t *testing.T) {
	got := render(t, "| a | b |\n|---|---|\n| 1 | 2 |")
	if !strings.Contains(got, "<table>") {
		t.Errorf("table not rendered: %q", got)
	}
}

func TestRenderStripsScripts(t *testing.T) {
	cases := []string{
		"<script>alert(1)</script>",
		"hello <img src=x onerror=alert(1)>",
		`[click](javascript:alert(1))`,
	}
	for _, source := range cases {
		got := render(t, source)
		if strings.Contains(got, "script") || strings.Contains(got, "onerror") || strings.Contains(got, "javascript:") {
			t.Errorf("render(%q) = %q, dangerous content survived", source, got)
		}
	}
}

func TestRenderKeepsCodeBlockClass(t *testing.T) {
	got := render(t, "```go\nfmt.Println()\n```")
	if !strings.Contains(got, "language-go") {
		t.Errorf("fenced code language lost: %q", got)
	}
}

func TestMarkdownComponent(t *testing.T) {
	var sb strings.Builder
	if err := Markdown("**hi**").Render(t.Context(), &sb); err != nil {
		t.Fatalf("component render: %v", err)
	}
	if !strings.Contains(sb.String(), "<strong>hi</strong>") {
		t.Errorf("component output = %q", sb.String())
	}
}
