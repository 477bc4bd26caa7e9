package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bgricker/matrixrun/internal/provider"
)

var integrationRules = []provider.TriggerRule{
	{
		Event:    provider.EventPush,
		Branches: []string{"main"},
		Paths:    []string{"ai/integrations/**", ".github/workflows/integrations.yml"},
	},
	{
		Event: provider.EventPullRequest,
		Paths: []string{"ai/integrations/**"},
	},
}

func TestEvaluatePushPaths(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantRun bool
	}{
		{
			name:    "matching path",
			event:   Event{Kind: provider.EventPush, Branch: "main", ChangedPaths: []string{"README.md", "ai/integrations/dspy/toolkit.py"}},
			wantRun: true,
		},
		{
			name:    "workflow file itself",
			event:   Event{Kind: provider.EventPush, Branch: "main", ChangedPaths: []string{"./.github/workflows/integrations.yml"}},
			wantRun: true,
		},
		{
			name:  "no matching path",
			event: Event{Kind: provider.EventPush, Branch: "main", ChangedPaths: []string{"README.md", "docs/index.md"}},
		},
		{
			name:  "no changed paths",
			event: Event{Kind: provider.EventPush, Branch: "main"},
		},
		{
			name:  "other branch",
			event: Event{Kind: provider.EventPush, Branch: "feature/x", ChangedPaths: []string{"ai/integrations/a.py"}},
		},
		{
			name:    "pull request matching",
			event:   Event{Kind: provider.EventPullRequest, Branch: "feature/x", ChangedPaths: []string{"ai/integrations/litellm/utils.py"}},
			wantRun: true,
		},
		{
			name:  "undeclared event",
			event: Event{Kind: provider.EventWorkflowDispatch},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(integrationRules, tt.event)
			assert.Equal(t, tt.wantRun, d.Run, d.Reason)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestEvaluateWithoutFilters(t *testing.T) {
	rules := []provider.TriggerRule{{Event: provider.EventPush}}
	assert.True(t, Evaluate(rules, Event{Kind: provider.EventPush}).Run)
	assert.True(t, Evaluate(rules, Event{Kind: provider.EventPush, Branch: "any", ChangedPaths: []string{"x"}}).Run)
	assert.False(t, Evaluate(nil, Event{Kind: provider.EventPush}).Run)
}

func TestEvaluateNegatedPaths(t *testing.T) {
	rules := []provider.TriggerRule{{
		Event: provider.EventPush,
		Paths: []string{"src/**", "!src/**/*.md"},
	}}
	assert.True(t, Evaluate(rules, Event{Kind: provider.EventPush, ChangedPaths: []string{"src/a/b.go"}}).Run)
	assert.False(t, Evaluate(rules, Event{Kind: provider.EventPush, ChangedPaths: []string{"src/a/README.md"}}).Run)
}

func TestEvaluatePathsIgnore(t *testing.T) {
	rules := []provider.TriggerRule{{
		Event:       provider.EventPush,
		PathsIgnore: []string{"docs/**", "*.md"},
	}}
	assert.False(t, Evaluate(rules, Event{Kind: provider.EventPush, ChangedPaths: []string{"docs/a.md", "README.md"}}).Run)
	assert.True(t, Evaluate(rules, Event{Kind: provider.EventPush, ChangedPaths: []string{"docs/a.md", "main.go"}}).Run)
	assert.True(t, Evaluate(rules, Event{Kind: provider.EventPush}).Run)
}

func TestEvaluateBranchGlobs(t *testing.T) {
	rules := []provider.TriggerRule{{
		Event:          provider.EventPush,
		Branches:       []string{"releases/**", "main"},
		BranchesIgnore: []string{"releases/**-alpha"},
	}}
	assert.True(t, Evaluate(rules, Event{Kind: provider.EventPush, Branch: "releases/v1/rc"}).Run)
	assert.False(t, Evaluate(rules, Event{Kind: provider.EventPush, Branch: "releases/v2-alpha"}).Run)
	assert.False(t, Evaluate(rules, Event{Kind: provider.EventPush, Branch: "dev"}).Run)
}

func TestSelect(t *testing.T) {
	workflows := []provider.Workflow{
		{Path: "a.yml", Triggers: integrationRules},
		{Path: "b.yml", Triggers: []provider.TriggerRule{{Event: provider.EventPush}}},
	}
	selected, decisions := Select(workflows, Event{Kind: provider.EventPush, Branch: "main", ChangedPaths: []string{"README.md"}})
	assert.Len(t, selected, 1)
	assert.Equal(t, "b.yml", selected[0].Path)
	assert.False(t, decisions["a.yml"].Run)
	assert.True(t, decisions["b.yml"].Run)
}

func TestValidPatterns(t *testing.T) {
	assert.NoError(t, ValidPatterns(integrationRules))
	assert.Error(t, ValidPatterns([]provider.TriggerRule{{Event: provider.EventPush, Paths: []string{"src/[a"}}}))
}
