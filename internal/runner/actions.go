package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/version"
)

// ActionRequest is a `uses:` step with its resolved inputs.
type ActionRequest struct {
	Uses string
	With map[string]string
	Root string
}

// ActionOutcome is what a handler reports back for the step.
type ActionOutcome struct {
	Status string
	Note   string
}

// ActionHandler runs a local stand-in for a hosted action.
type ActionHandler func(ctx context.Context, req ActionRequest) ActionOutcome

// ActionRegistry maps action names such as "actions/setup-python" to handlers.
type ActionRegistry struct {
	handlers map[string]ActionHandler
}

// NewActionRegistry returns an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionHandler)}
}

// DefaultActions registers checkout and the interpreter setup actions.
func DefaultActions() *ActionRegistry {
	reg := NewActionRegistry()
	reg.Register("actions/checkout", func(context.Context, ActionRequest) ActionOutcome {
		return ActionOutcome{Status: report.StepPassed, Note: "using local workspace as checkout"}
	})
	reg.Register("actions/setup-python", SetupAction("python", "python-version", version.DetectPython))
	reg.Register("actions/setup-node", SetupAction("node", "node-version", version.DetectNode))
	reg.Register("ruby/setup-ruby", SetupAction("ruby", "ruby-version", version.DetectRuby))
	reg.Register("actions/setup-ruby", SetupAction("ruby", "ruby-version", version.DetectRuby))
	return reg
}

// Register binds name (without @ref) to h.
func (a *ActionRegistry) Register(name string, h ActionHandler) {
	a.handlers[actionName(name)] = h
}

// Run dispatches req to its handler. Unknown actions are skipped with a note.
func (a *ActionRegistry) Run(ctx context.Context, req ActionRequest) ActionOutcome {
	h, ok := a.handlers[actionName(req.Uses)]
	if !ok {
		return ActionOutcome{Status: report.StepSkipped, Note: fmt.Sprintf("action %s is not supported locally", req.Uses)}
	}
	return h(ctx, req)
}

// SetupAction verifies the local interpreter against the requested version.
// A mismatch is reported as a note; the step still passes.
func SetupAction(name, input string, detect version.Detector) ActionHandler {
	return func(ctx context.Context, req ActionRequest) ActionOutcome {
		want := strings.TrimSpace(req.With[input])
		if want == "" {
			return ActionOutcome{Status: report.StepPassed, Note: fmt.Sprintf("no %s requested; using local %s", input, name)}
		}
		info, err := detect(ctx)
		if msg := version.Describe(name, want, input, info.Version, err); msg != "" {
			return ActionOutcome{Status: report.StepPassed, Note: msg}
		}
		return ActionOutcome{Status: report.StepPassed, Note: fmt.Sprintf("using local %s %s", name, info.Version)}
	}
}

func actionName(uses string) string {
	uses = strings.TrimSpace(uses)
	if i := strings.Index(uses, "@"); i >= 0 {
		uses = uses[:i]
	}
	return strings.ToLower(uses)
}
