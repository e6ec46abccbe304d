// Package views renders the panel pages as templ components.
package views

import (
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// errWriter accumulates the first write error so render code can stay
// linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) raw(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = io.WriteString(ew.w, s)
}

func esc(s string) string {
	return templ.EscapeString(s)
}

func checked(b bool) string {
	if b {
		return " checked"
	}
	return ""
}

func selected(b bool) string {
	if b {
		return " selected"
	}
	return ""
}

func disabled(b bool) string {
	if b {
		return " disabled"
	}
	return ""
}

// FieldRowClass marks rows carrying a validation error.
func FieldRowClass(hasError bool) string {
	if hasError {
		return "field-row field-row-error"
	}
	return "field-row"
}

// HumanizeFieldName strips the wire prefixes for display.
func HumanizeFieldName(name string) string {
	name = strings.TrimPrefix(name, "prop:encrypted:secure:")
	name = strings.TrimPrefix(name, "prop:")
	return strings.TrimPrefix(name, "__")
}
