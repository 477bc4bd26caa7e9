package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
)

// StreamRenderer prints instance progress while a run is in flight. It is
// safe for concurrent use by parallel instances.
type StreamRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	theme Theme
}

var _ runner.Observer = (*StreamRenderer)(nil)

// NewStream creates a streaming progress printer.
func NewStream(out io.Writer) *StreamRenderer {
	return &StreamRenderer{out: out, theme: newTheme(out)}
}

func (s *StreamRenderer) InstanceStarted(inst runner.Instance) {
	s.printf("%s %s\n", s.theme.Running.Render("▶"), inst.Name)
}

func (s *StreamRenderer) StepFinished(runner.Instance, report.StepResult) {}

func (s *StreamRenderer) InstanceFinished(inst runner.Instance, res report.InstanceResult) {
	status := instanceStepStatus(res.Status)
	line := fmt.Sprintf("%s %s", statusGlyph(status), inst.Name)
	suffix := formatDuration(res.Duration)
	if res.Reason != "" && !res.Ok() {
		suffix += " " + res.Reason
	}
	s.printf("%s %s\n", s.theme.status(status).Render(line), s.theme.Dim.Render(suffix))
}

func (s *StreamRenderer) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
