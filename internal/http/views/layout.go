package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Layout wraps a page body in the shared document shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		ew.printf(`<title>%s</title>`, esc(title))
		ew.raw(`<link rel="stylesheet" href="/static/panel.css"></head><body><main class="panel">`)
		if ew.err != nil {
			return ew.err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		ew.raw(`</main></body></html>`)
		return ew.err
	})
}

// Alert renders the transient non-field error banner.
func Alert(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if message == "" {
			return nil
		}
		ew := &errWriter{w: w}
		ew.printf(`<div class="alert alert-error" role="alert">%s</div>`, esc(message))
		return ew.err
	})
}
