package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/matrixrun/internal/report"
)

// RunReport is the rendered result of a run.
type RunReport struct {
	Provider string `json:"provider"`
	report.Run
	Warnings []string `json:"warnings,omitempty"`
}

// JSONRenderer emits structured execution data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

func (j *JSONRenderer) RenderList(list ListReport) error {
	return j.encode(list)
}

func (j *JSONRenderer) RenderRun(run RunReport) error {
	return j.encode(run)
}

func (j *JSONRenderer) encode(v any) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
