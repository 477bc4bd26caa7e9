// Package output renders list and run reports for humans and machines.
package output

import (
	"io"
	"strings"
)

// Renderer renders the two report kinds.
type Renderer interface {
	RenderList(list ListReport) error
	RenderRun(run RunReport) error
}

// Format names accepted by New.
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// New returns the renderer for format, defaulting to pretty.
func New(format string, out io.Writer) Renderer {
	if strings.EqualFold(format, FormatJSON) {
		return NewJSON(out)
	}
	return NewPretty(out)
}
