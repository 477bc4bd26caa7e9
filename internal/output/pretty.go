package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bgricker/matrixrun/internal/report"
)

// PrettyRenderer renders execution results in a human-friendly format.
type PrettyRenderer struct {
	out   io.Writer
	theme Theme
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out, theme: newTheme(out)}
}

// RenderList renders workflows, their trigger decision and planned instances.
func (p *PrettyRenderer) RenderList(list ListReport) error {
	var buf bytes.Buffer
	if list.Event != nil && list.Event.Kind != "" {
		fmt.Fprintf(&buf, "%s %s\n", p.theme.Dim.Render("Event"), describeEvent(list.Event.Kind, list.Event.Branch, len(list.Event.ChangedPaths)))
	}
	for _, wf := range list.Workflows {
		fmt.Fprintf(&buf, "%s %s\n", p.theme.Header.Render("Workflow"), decorateName(wf.Name, wf.Path))
		if !wf.Triggered {
			fmt.Fprintf(&buf, "  %s\n", p.theme.Skipped.Render("not triggered: "+wf.Reason))
			continue
		}
		for _, inst := range wf.Instances {
			fmt.Fprintf(&buf, "  Job %s %s\n", inst.Name, p.theme.Dim.Render("["+inst.ID+"]"))
			for _, step := range inst.Steps {
				fmt.Fprintf(&buf, "    • %s\n", step)
			}
		}
	}
	p.writeWarnings(&buf, list.Warnings)
	_, err := buf.WriteTo(p.out)
	return err
}

// RenderRun shows instance outcomes grouped by workflow, then the summary.
// Healthy instances get one line; the rest list their steps and output tail.
func (p *PrettyRenderer) RenderRun(run RunReport) error {
	var buf bytes.Buffer
	currentWorkflow := ""
	for i, inst := range run.Instances {
		if i == 0 || inst.WorkflowPath != currentWorkflow {
			currentWorkflow = inst.WorkflowPath
			fmt.Fprintf(&buf, "%s %s\n", p.theme.Header.Render("Workflow"), decorateName(inst.WorkflowName, inst.WorkflowPath))
		}
		p.writeInstance(&buf, inst)
	}
	p.writeWarnings(&buf, run.Warnings)
	buf.WriteString(p.summaryLine(run.Summary))
	buf.WriteByte('\n')
	_, err := buf.WriteTo(p.out)
	return err
}

func (p *PrettyRenderer) writeInstance(buf *bytes.Buffer, inst report.InstanceResult) {
	glyph := instanceGlyph(inst.Status)
	line := fmt.Sprintf("%s %s", glyph, inst.Name)
	style := p.theme.status(instanceStepStatus(inst.Status))

	// Skipped instances never ran, so list what would have run instead of a duration.
	if inst.Status == report.InstanceSkipped {
		fmt.Fprintf(buf, "  %s\n", style.Render(line))
		for _, step := range inst.Steps {
			fmt.Fprintf(buf, "      %s\n", p.theme.Skipped.Render(statusGlyph(step.Status)+" "+step.Label()))
		}
		return
	}
	fmt.Fprintf(buf, "  %s %s\n", style.Render(line), p.theme.Dim.Render(formatDuration(durationOf(inst.Duration, inst.DurationMS))))

	if inst.Ok() {
		for _, step := range inst.Steps {
			if step.Note != "" {
				fmt.Fprintf(buf, "      %s\n", p.theme.Note.Render(step.Label()+": "+step.Note))
			}
		}
		return
	}

	if inst.Reason != "" {
		fmt.Fprintf(buf, "      %s\n", inst.Reason)
	}
	for _, step := range inst.Steps {
		label := fmt.Sprintf("%s %s", statusGlyph(step.Status), step.Label())
		fmt.Fprintf(buf, "      %s", p.theme.status(step.Status).Render(label))
		if d := durationOf(step.Duration, step.DurationMS); step.Status != report.StepSkipped || d > 0 {
			fmt.Fprintf(buf, " %s", p.theme.Dim.Render(formatDuration(d)))
		}
		buf.WriteByte('\n')
		if step.Note != "" {
			fmt.Fprintf(buf, "        %s\n", p.theme.Note.Render(step.Note))
		}
		if step.Status == report.StepPassed || step.Status == report.StepSkipped {
			continue
		}
		if out := indent(step.Stdout, "          "); out != "" {
			fmt.Fprintf(buf, "        stdout:\n%s\n", out)
		}
		if out := indent(step.Stderr, "          "); out != "" {
			fmt.Fprintf(buf, "        stderr:\n%s\n", out)
		}
	}
}

func (p *PrettyRenderer) writeWarnings(buf *bytes.Buffer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	buf.WriteString(p.theme.Note.Render("Warnings:"))
	buf.WriteByte('\n')
	for _, w := range warnings {
		fmt.Fprintf(buf, "  - %s\n", w)
	}
}

func (p *PrettyRenderer) summaryLine(s report.Summary) string {
	line := fmt.Sprintf("SUMMARY: %d passed, %d failed, %d timed out, %d skipped", s.Passed, s.Failed, s.TimedOut, s.Skipped)
	if s.Cancelled > 0 {
		line += fmt.Sprintf(", %d cancelled", s.Cancelled)
	}
	line += fmt.Sprintf(" (%s)", formatDuration(durationOf(s.Duration, s.DurationMS)))
	if s.ExitCode != 0 {
		return p.theme.Failed.Render(line)
	}
	return p.theme.Passed.Render(line)
}

// instanceStepStatus maps an instance status onto the step vocabulary used for styling.
func instanceStepStatus(status string) string {
	switch status {
	case report.InstanceSucceeded:
		return report.StepPassed
	case report.InstanceFailed:
		return report.StepFailed
	case report.InstanceTimedOut:
		return report.StepTimedOut
	case report.InstanceCancelled:
		return report.StepCancelled
	default:
		return report.StepSkipped
	}
}

func instanceGlyph(status string) string {
	return statusGlyph(instanceStepStatus(status))
}

func describeEvent(kind, branch string, changed int) string {
	s := kind
	if branch != "" {
		s += " on " + branch
	}
	if changed > 0 {
		s += fmt.Sprintf(" (%d changed paths)", changed)
	}
	return s
}

func decorateName(name, path string) string {
	if name == "" || name == path {
		return path
	}
	return fmt.Sprintf("%s (%s)", name, path)
}

func indent(s, pad string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

// durationOf prefers the exact duration and falls back to the millisecond
// value carried by decoded reports.
func durationOf(d time.Duration, ms int64) time.Duration {
	if d > 0 {
		return d
	}
	return time.Duration(ms) * time.Millisecond
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
