// Package trigger decides whether an event starts a workflow run.
package trigger

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bgricker/matrixrun/internal/provider"
)

// Event is an external occurrence that may start a run.
type Event struct {
	Kind         string   `json:"kind"`
	Branch       string   `json:"branch,omitempty"`
	ChangedPaths []string `json:"changed_paths,omitempty"`
}

// Decision reports whether a workflow runs for an event and why.
type Decision struct {
	Run    bool   `json:"run"`
	Reason string `json:"reason"`
}

// Evaluate applies the workflow's trigger rules to ev. A mismatch is a normal
// outcome, not an error.
func Evaluate(rules []provider.TriggerRule, ev Event) Decision {
	var rule *provider.TriggerRule
	for i := range rules {
		if rules[i].Event == ev.Kind {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		return Decision{Reason: fmt.Sprintf("workflow does not trigger on %s", ev.Kind)}
	}

	if ev.Branch != "" {
		if len(rule.Branches) > 0 && !matchList(rule.Branches, ev.Branch) {
			return Decision{Reason: fmt.Sprintf("branch %q does not match branches filter", ev.Branch)}
		}
		if len(rule.BranchesIgnore) > 0 && matchAny(rule.BranchesIgnore, ev.Branch) {
			return Decision{Reason: fmt.Sprintf("branch %q is ignored", ev.Branch)}
		}
	}

	if len(rule.Paths) > 0 {
		for _, p := range ev.ChangedPaths {
			if matchList(rule.Paths, normalize(p)) {
				return Decision{Run: true, Reason: fmt.Sprintf("%s matches paths filter", p)}
			}
		}
		return Decision{Reason: "no changed path matches paths filter"}
	}

	if len(rule.PathsIgnore) > 0 {
		for _, p := range ev.ChangedPaths {
			if !matchAny(rule.PathsIgnore, normalize(p)) {
				return Decision{Run: true, Reason: fmt.Sprintf("%s is not ignored", p)}
			}
		}
		if len(ev.ChangedPaths) > 0 {
			return Decision{Reason: "every changed path is ignored"}
		}
	}

	return Decision{Run: true, Reason: fmt.Sprintf("triggered by %s", ev.Kind)}
}

// Select keeps the workflows ev triggers and reports a decision per workflow path.
func Select(workflows []provider.Workflow, ev Event) ([]provider.Workflow, map[string]Decision) {
	decisions := make(map[string]Decision, len(workflows))
	selected := make([]provider.Workflow, 0, len(workflows))
	for _, wf := range workflows {
		d := Evaluate(wf.Triggers, ev)
		decisions[wf.Path] = d
		if d.Run {
			selected = append(selected, wf)
		}
	}
	return selected, decisions
}

// ValidPatterns reports the first malformed glob in rules, if any.
func ValidPatterns(rules []provider.TriggerRule) error {
	for _, rule := range rules {
		for _, list := range [][]string{rule.Branches, rule.BranchesIgnore, rule.Paths, rule.PathsIgnore} {
			for _, pattern := range list {
				if !doublestar.ValidatePattern(strings.TrimPrefix(pattern, "!")) {
					return fmt.Errorf("on.%s: invalid pattern %q", rule.Event, pattern)
				}
			}
		}
	}
	return nil
}

// matchList evaluates patterns in order; a later "!pattern" can negate an
// earlier match.
func matchList(patterns []string, name string) bool {
	matched := false
	for _, pattern := range patterns {
		negate := strings.HasPrefix(pattern, "!")
		pattern = strings.TrimPrefix(pattern, "!")
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			matched = !negate
		}
	}
	return matched
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(path.Clean(p), "./")
}
