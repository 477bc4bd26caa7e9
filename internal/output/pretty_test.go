package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/trigger"
)

func TestPrettyRenderList(t *testing.T) {
	list := ListReport{
		Provider: "github",
		Event:    &trigger.Event{Kind: "push", Branch: "main", ChangedPaths: []string{"a.py"}},
		Workflows: []ListWorkflow{
			{
				Path:      "ci.yml",
				Name:      "CI",
				Triggered: true,
				Instances: []ListInstance{{ID: "abc123", Name: "test (3.9)", Steps: []string{"Checkout", "pytest"}}},
			},
			{Path: "docs.yml", Name: "Docs", Reason: "no changed path matches paths filters"},
		},
		Warnings: []string{"ci.yml: step 2: if conditions are ignored"},
	}

	buf := &bytes.Buffer{}
	if err := NewPretty(buf).RenderList(list); err != nil {
		t.Fatalf("render list: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Event push on main (1 changed paths)",
		"Workflow CI (ci.yml)",
		"  Job test (3.9) [abc123]",
		"    • pytest",
		"Workflow Docs (docs.yml)\n  not triggered: no changed path matches paths filters",
		"Warnings:\n  - ci.yml: step 2: if conditions are ignored",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestPrettyRenderRun(t *testing.T) {
	run := RunReport{
		Provider: "github",
		Run: report.Run{
			Instances: []report.InstanceResult{
				{
					WorkflowPath: "ci.yml",
					WorkflowName: "CI",
					Name:         "test (3.9, 1)",
					Status:       report.InstanceSucceeded,
					Duration:     1500 * time.Millisecond,
					Steps: []report.StepResult{
						{StepUses: "actions/setup-python@v5", Status: report.StepPassed, Note: "using local python 3.11.4"},
					},
				},
				{
					WorkflowPath: "ci.yml",
					WorkflowName: "CI",
					Name:         "test (3.9, 2)",
					Status:       report.InstanceFailed,
					Reason:       "failed at step 2 (pytest), exit code 1",
					Steps: []report.StepResult{
						{StepName: "Install", Status: report.StepPassed, Duration: 10 * time.Millisecond},
						{StepRun: "pytest", Status: report.StepFailed, Stderr: "boom\nassert 1 == 2"},
						{StepName: "Upload", Status: report.StepSkipped},
					},
				},
				{
					WorkflowPath: "slow.yml",
					Name:         "soak",
					Status:       report.InstanceTimedOut,
					Reason:       "timed out after 1m0s during step 1 (sleep 100)",
					Steps:        []report.StepResult{{StepRun: "sleep 100", Status: report.StepTimedOut}},
				},
			},
			Summary: report.Summary{Passed: 1, Failed: 1, TimedOut: 1, DurationMS: 2500, ExitCode: 1},
		},
	}

	buf := &bytes.Buffer{}
	if err := NewPretty(buf).RenderRun(run); err != nil {
		t.Fatalf("render run: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Workflow CI (ci.yml)",
		"  ✓ test (3.9, 1) 1.5s",
		"      actions/setup-python@v5: using local python 3.11.4",
		"  ✗ test (3.9, 2)",
		"      failed at step 2 (pytest), exit code 1",
		"      ✓ Install 10ms",
		"      ✗ pytest",
		"        stderr:\n          boom\n          assert 1 == 2",
		"      - Upload\n",
		"Workflow slow.yml",
		"  ⏱ soak",
		"SUMMARY: 1 passed, 1 failed, 1 timed out, 0 skipped (2.5s)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no escape codes when writing to a buffer, got %q", out)
	}
}

func TestPrettyRenderDryRun(t *testing.T) {
	run := RunReport{Run: report.Run{
		Instances: []report.InstanceResult{{
			WorkflowPath: "ci.yml",
			Name:         "build",
			Status:       report.InstanceSkipped,
			Reason:       "dry run",
			Steps: []report.StepResult{
				{StepUses: "actions/checkout@v4", Status: report.StepSkipped, DryRun: true},
				{StepName: "Test", StepRun: "go test ./...", Status: report.StepSkipped, DryRun: true},
			},
		}},
		Summary: report.Summary{Skipped: 1, DurationMS: 1},
	}}

	buf := &bytes.Buffer{}
	if err := NewPretty(buf).RenderRun(run); err != nil {
		t.Fatalf("render run: %v", err)
	}
	want := "Workflow ci.yml\n  - build\n      - actions/checkout@v4\n      - Test\nSUMMARY: 0 passed, 0 failed, 0 timed out, 1 skipped (1ms)\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestSummaryLineCancelled(t *testing.T) {
	p := NewPretty(&bytes.Buffer{})
	line := p.summaryLine(report.Summary{Passed: 2, Cancelled: 1, DurationMS: 40})
	if line != "SUMMARY: 2 passed, 0 failed, 0 timed out, 0 skipped, 1 cancelled (40ms)" {
		t.Fatalf("unexpected summary line %q", line)
	}
}
