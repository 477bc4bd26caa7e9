package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bgricker/matrixrun/internal/history"
)

// InstanceHistory is the recent status sequence of one job instance.
type InstanceHistory struct {
	InstanceID string   `json:"instance_id"`
	Statuses   []string `json:"statuses"`
}

// RenderHistory prints stored runs, newest first.
func RenderHistory(format string, out io.Writer, entries []history.Entry) error {
	if strings.EqualFold(format, FormatJSON) {
		if entries == nil {
			entries = []history.Entry{}
		}
		return NewJSON(out).encode(entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded")
		return err
	}

	theme := newTheme(out)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STARTED", "EVENT", "STATUS", "INSTANCES", "PASSED", "FAILED", "TIMED OUT", "DURATION")
	for _, e := range entries {
		event := e.EventKind
		if event == "" {
			event = "manual"
		}
		if e.Branch != "" {
			event += "@" + e.Branch
		}
		t.Row(
			shortID(e.ID),
			e.StartedAt.Local().Format(time.DateTime),
			event,
			e.Status,
			strconv.Itoa(e.Instances),
			strconv.Itoa(e.Passed),
			strconv.Itoa(e.Failed),
			strconv.Itoa(e.TimedOut),
			formatDuration(e.Duration),
		)
	}
	_, err := fmt.Fprintln(out, theme.Dim.Render(t.String()))
	return err
}

// RenderInstanceHistory prints an instance's recent statuses, newest first.
func RenderInstanceHistory(format string, out io.Writer, h InstanceHistory) error {
	if strings.EqualFold(format, FormatJSON) {
		return NewJSON(out).encode(h)
	}
	if len(h.Statuses) == 0 {
		_, err := fmt.Fprintf(out, "No runs recorded for instance %s\n", h.InstanceID)
		return err
	}
	theme := newTheme(out)
	glyphs := make([]string, 0, len(h.Statuses))
	for _, s := range h.Statuses {
		status := instanceStepStatus(s)
		glyphs = append(glyphs, theme.status(status).Render(statusGlyph(status)+" "+s))
	}
	_, err := fmt.Fprintf(out, "Instance %s: %s\n", h.InstanceID, strings.Join(glyphs, ", "))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
