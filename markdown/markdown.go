// Package markdown renders post content from Markdown to sanitized HTML,
// exposed both as a plain writer function and as a templ component.
package markdown

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	engine   goldmark.Markdown
	policy   *bluemonday.Policy
	initOnce sync.Once
)

func initEngine() {
	initOnce.Do(func() {
		engine = goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Typographer),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		)

		// The sanitizer, not the renderer, is the safety boundary: goldmark
		// passes raw HTML through and bluemonday strips anything dangerous.
		policy = bluemonday.UGCPolicy()
		policy.AllowAttrs("class").OnElements("pre", "code", "span")
		policy.AllowAttrs("width", "height", "loading").OnElements("img")
	})
}

// Render writes the sanitized HTML representation of source to w.
func Render(w io.Writer, source string) error {
	initEngine()
	var buf bytes.Buffer
	if err := engine.Convert([]byte(source), &buf); err != nil {
		return err
	}
	_, err := w.Write(policy.SanitizeBytes(buf.Bytes()))
	return err
}

// RenderString returns the sanitized HTML representation of source.
func RenderString(source string) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, source); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markdown returns a templ.Component that renders source as HTML.
func Markdown(source string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Render(w, source)
	})
}
