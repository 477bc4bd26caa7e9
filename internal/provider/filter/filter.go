// Package filter narrows parsed workflows down to the jobs, steps and matrix
// cells selected on the command line.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bgricker/matrixrun/internal/provider"
)

// Pattern is one compiled selector. "/expr/" is a regular expression, a
// selector with glob metacharacters is matched as a whole-name glob, anything
// else is a case-insensitive substring.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	glob  string
	lower string
}

func (p Pattern) String() string { return p.raw }

// Match reports whether the pattern matches s. Empty strings never match.
func (p Pattern) Match(s string) bool {
	switch {
	case s == "":
		return false
	case p.regex != nil:
		return p.regex.MatchString(s)
	case p.glob != "":
		ok, _ := doublestar.Match(p.glob, strings.ToLower(s))
		return ok
	default:
		return strings.Contains(strings.ToLower(s), p.lower)
	}
}

// Set matches when any of its patterns does. An empty set matches nothing.
type Set []Pattern

// Any reports whether any pattern in the set matches any of values.
func (s Set) Any(values ...string) bool {
	for _, p := range s {
		for _, v := range values {
			if p.Match(v) {
				return true
			}
		}
	}
	return false
}

// Compile turns raw selectors into a Set. Blank selectors are dropped.
func Compile(patterns []string) (Set, error) {
	set := make(Set, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p := Pattern{raw: raw}
		switch {
		case len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/"):
			re, err := regexp.Compile(raw[1 : len(raw)-1])
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			p.regex = re
		case strings.ContainsAny(raw, "*?[{"):
			p.glob = strings.ToLower(raw)
			if !doublestar.ValidatePattern(p.glob) {
				return nil, fmt.Errorf("invalid glob %q", raw)
			}
		default:
			p.lower = strings.ToLower(raw)
		}
		set = append(set, p)
	}
	return set, nil
}

// Selection is the complete set of filters for one invocation.
type Selection struct {
	Jobs   Set
	Only   Set
	Skip   Set
	Matrix map[string]string
}

// NewSelection compiles job, step and matrix selectors.
func NewSelection(jobs, only, skip, matrix []string) (Selection, error) {
	var (
		sel Selection
		err error
	)
	if sel.Jobs, err = Compile(jobs); err != nil {
		return Selection{}, fmt.Errorf("job filter: %w", err)
	}
	if sel.Only, err = Compile(only); err != nil {
		return Selection{}, fmt.Errorf("only-step filter: %w", err)
	}
	if sel.Skip, err = Compile(skip); err != nil {
		return Selection{}, fmt.Errorf("skip-step filter: %w", err)
	}
	if sel.Matrix, err = ParseMatrix(matrix); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// Apply returns copies of workflows holding only the selected jobs and steps.
// Jobs left without executable steps and workflows left without jobs are
// dropped. Matrix selectors are applied later, during expansion.
func (s Selection) Apply(workflows []provider.Workflow) []provider.Workflow {
	var out []provider.Workflow
	for _, wf := range workflows {
		var jobs []provider.Job
		for _, job := range wf.Jobs {
			if len(s.Jobs) > 0 && !s.Jobs.Any(job.Name, job.RawID) {
				continue
			}
			steps := s.steps(job.Steps)
			if len(steps) == 0 {
				continue
			}
			job.Steps = steps
			jobs = append(jobs, job)
		}
		if len(jobs) == 0 {
			continue
		}
		wf.Jobs = jobs
		out = append(out, wf)
	}
	return out
}

func (s Selection) steps(steps []provider.Step) []provider.Step {
	out := make([]provider.Step, 0, len(steps))
	for _, step := range steps {
		if step.Run == "" && step.Uses == "" {
			continue
		}
		if len(s.Only) > 0 && !s.Only.Any(step.Name, step.Run, step.Uses) {
			continue
		}
		if s.Skip.Any(step.Name, step.Run, step.Uses) {
			continue
		}
		out = append(out, step)
	}
	return out
}

// ParseMatrix turns repeated "axis=value" selectors into a filter map.
// Repeating an axis with a different value is an error.
func ParseMatrix(selectors []string) (map[string]string, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(selectors))
	for _, raw := range selectors {
		key, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid matrix selector %q; expected axis=value", raw)
		}
		value = strings.TrimSpace(value)
		if prev, seen := out[key]; seen && prev != value {
			return nil, fmt.Errorf("matrix selector %q conflicts with %s=%s", raw, key, prev)
		}
		out[key] = value
	}
	return out, nil
}
