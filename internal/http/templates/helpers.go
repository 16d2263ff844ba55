package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// RawHTML returns a templ component that writes the provided HTML without escaping.
func RawHTML(html string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.WriteString(w, html)
		return err
	})
}

// Text returns a component writing s with HTML escaping.
func Text(s string) templ.Component {
	return RawHTML(templ.EscapeString(s))
}

// Paragraphs renders plain text as escaped <p> blocks split on blank lines.
func Paragraphs(text string) templ.Component {
	var b strings.Builder
	for _, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(templ.EscapeString(block), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return RawHTML(b.String())
}

func join(components ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, component := range components {
			if component == nil {
				continue
			}
			if err := component.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}
