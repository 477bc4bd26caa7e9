package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
)

func TestStreamRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewStream(buf)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst := runner.Instance{Name: name}
			s.InstanceStarted(inst)
			s.InstanceFinished(inst, report.InstanceResult{Status: report.InstanceSucceeded, Duration: time.Second})
		}()
	}
	wg.Wait()
	s.InstanceFinished(runner.Instance{Name: "d"}, report.InstanceResult{Status: report.InstanceFailed, Reason: "failed at step 1 (x), exit code 2"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 whole lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(buf.String(), "✓ b 1s") {
		t.Fatalf("expected finished line, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "✗ d 0s failed at step 1 (x), exit code 2") {
		t.Fatalf("expected failure reason, got %q", buf.String())
	}
}
