package github

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bgricker/matrixrun/internal/provider"
	"gopkg.in/yaml.v3"
)

const ProviderName = "github"

// Parser loads GitHub Actions workflow files from disk.
type Parser struct {
	Root string
}

// NewParser constructs a Parser that resolves workflow paths relative to root.
func NewParser(root string) *Parser {
	return &Parser{Root: root}
}

// Parse reads the supplied workflow paths and produces a Pipeline data model.
func (p *Parser) Parse(paths []string) (provider.Pipeline, error) {
	pipeline := provider.Pipeline{Provider: ProviderName}
	for _, relPath := range paths {
		full := relPath
		if !filepath.IsAbs(full) {
			full = filepath.Join(p.Root, relPath)
		}
		wf, warnings, err := parseWorkflow(full, relPath)
		if err != nil {
			return provider.Pipeline{}, err
		}
		pipeline.Workflows = append(pipeline.Workflows, wf)
		pipeline.Warnings = append(pipeline.Warnings, warnings...)
	}
	return pipeline, nil
}

func parseWorkflow(fullPath, displayPath string) (provider.Workflow, []provider.Warning, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return provider.Workflow{}, nil, fmt.Errorf("open workflow %q: %w", displayPath, err)
	}
	defer f.Close()
	return decodeWorkflow(f, displayPath)
}

func decodeWorkflow(r io.Reader, displayPath string) (provider.Workflow, []provider.Warning, error) {
	decoder := yaml.NewDecoder(r)

	var wfDoc workflowDocument
	if err := decoder.Decode(&wfDoc); err != nil && err != io.EOF {
		return provider.Workflow{}, nil, fmt.Errorf("parse workflow %q: %w", displayPath, err)
	}

	wf := provider.Workflow{
		Path: displayPath,
		Name: wfDoc.Name,
		Env:  convertEnv(wfDoc.Env),
		Defaults: provider.Defaults{
			RunShell:         wfDoc.Defaults.Run.Shell,
			WorkingDirectory: wfDoc.Defaults.Run.WorkingDirectory,
		},
	}

	if wf.Name == "" {
		wf.Name = filepath.Base(displayPath)
	}

	warnings := make([]provider.Warning, 0)
	warn := func(job, msg string) {
		warnings = append(warnings, provider.Warning{Workflow: displayPath, Job: job, Message: msg})
	}

	triggers, err := decodeTriggers(&wfDoc.On)
	if err != nil {
		return provider.Workflow{}, nil, fmt.Errorf("parse workflow %q: %w", displayPath, err)
	}
	wf.Triggers = triggers

	jobIDs := make([]string, 0, len(wfDoc.Jobs))
	for id := range wfDoc.Jobs {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)

	wf.Jobs = make([]provider.Job, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		jobDoc := wfDoc.Jobs[jobID]
		job := provider.Job{
			RawID: jobID,
			Name:  jobDoc.Name,
			Env:   convertEnv(jobDoc.Env),
			Defaults: provider.Defaults{
				RunShell:         jobDoc.Defaults.Run.Shell,
				WorkingDirectory: jobDoc.Defaults.Run.WorkingDirectory,
			},
		}
		if job.Name == "" {
			job.Name = jobID
		}

		if jobDoc.Services != nil {
			warn(jobID, "services are not supported")
		}
		if jobDoc.If != "" {
			warn(jobID, "job-level if condition is ignored")
		}
		if jobDoc.Strategy.FailFast != nil && *jobDoc.Strategy.FailFast {
			warn(jobID, "strategy.fail-fast is ignored; matrix instances run independently")
		}

		matrix, matrixWarnings, err := decodeMatrix(&jobDoc.Strategy.Matrix)
		if err != nil {
			return provider.Workflow{}, nil, fmt.Errorf("parse workflow %q job %q: %w", displayPath, jobID, err)
		}
		job.Matrix = matrix
		for _, msg := range matrixWarnings {
			warn(jobID, msg)
		}

		if jobDoc.TimeoutMinutes.Kind != 0 {
			minutes, err := strconv.Atoi(strings.TrimSpace(jobDoc.TimeoutMinutes.Value))
			if err != nil || minutes <= 0 {
				warn(jobID, fmt.Sprintf("timeout-minutes %q is not a positive integer; using default", jobDoc.TimeoutMinutes.Value))
			} else {
				job.TimeoutMinutes = minutes
			}
		}

		job.Steps = make([]provider.Step, 0, len(jobDoc.Steps))
		for idx, stepDoc := range jobDoc.Steps {
			step := provider.Step{
				Name:             stepDoc.Name,
				Run:              stepDoc.Run,
				Uses:             stepDoc.Uses,
				With:             convertEnv(stepDoc.With),
				Env:              convertEnv(stepDoc.Env),
				Shell:            stepDoc.Shell,
				WorkingDirectory: stepDoc.WorkingDirectory,
				If:               stepDoc.If,
			}
			if step.Name == "" {
				step.Name = fmt.Sprintf("step %d", idx+1)
			}
			if stepDoc.If != "" {
				warn(jobID, fmt.Sprintf("step %q has unsupported if condition", step.Name))
			}
			job.Steps = append(job.Steps, step)
		}

		wf.Jobs = append(wf.Jobs, job)
	}

	return wf, warnings, nil
}

// decodeTriggers accepts the string, list, and map forms of `on:`.
func decodeTriggers(node *yaml.Node) ([]provider.TriggerRule, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Value == "" {
			return nil, nil
		}
		return []provider.TriggerRule{{Event: node.Value}}, nil
	case yaml.SequenceNode:
		rules := make([]provider.TriggerRule, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("on: list entries must be event names")
			}
			rules = append(rules, provider.TriggerRule{Event: item.Value})
		}
		return rules, nil
	case yaml.MappingNode:
		rules := make([]provider.TriggerRule, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			event := node.Content[i].Value
			rule := provider.TriggerRule{Event: event}
			body := node.Content[i+1]
			if body.Kind == yaml.MappingNode {
				var doc triggerDocument
				if err := body.Decode(&doc); err != nil {
					return nil, fmt.Errorf("on.%s: %w", event, err)
				}
				rule.Branches = doc.Branches
				rule.BranchesIgnore = doc.BranchesIgnore
				rule.Paths = doc.Paths
				rule.PathsIgnore = doc.PathsIgnore
			}
			rules = append(rules, rule)
		}
		return rules, nil
	default:
		return nil, fmt.Errorf("on: unsupported value")
	}
}

// decodeMatrix walks the raw node so axis order and scalar text (3.10 vs 3.1) survive.
func decodeMatrix(node *yaml.Node) (provider.Matrix, []string, error) {
	var m provider.Matrix
	var warnings []string

	switch node.Kind {
	case 0:
		return m, nil, nil
	case yaml.ScalarNode:
		if strings.TrimSpace(node.Value) == "" {
			return m, nil, nil
		}
		warnings = append(warnings, fmt.Sprintf("strategy.matrix expression %q is not supported", node.Value))
		return m, warnings, nil
	case yaml.MappingNode:
	default:
		return m, nil, fmt.Errorf("strategy.matrix must be a mapping")
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "include", "exclude":
			entries, err := decodeMatrixEntries(key, value)
			if err != nil {
				return provider.Matrix{}, nil, err
			}
			if key == "include" {
				m.Include = entries
			} else {
				m.Exclude = entries
			}
		default:
			axis := provider.Axis{Name: key}
			switch value.Kind {
			case yaml.SequenceNode:
				axis.Values = make([]string, 0, len(value.Content))
				for _, item := range value.Content {
					axis.Values = append(axis.Values, scalarText(item))
				}
			case yaml.ScalarNode:
				// A bare "axis:" declares no values; matrix validation rejects it.
				if value.Tag == "!!null" {
					break
				}
				if strings.Contains(value.Value, "${{") {
					warnings = append(warnings, fmt.Sprintf("matrix axis %q uses an unsupported expression", key))
					continue
				}
				axis.Values = []string{value.Value}
			default:
				return provider.Matrix{}, nil, fmt.Errorf("matrix axis %q must be a list", key)
			}
			m.Axes = append(m.Axes, axis)
		}
	}
	return m, warnings, nil
}

func decodeMatrixEntries(key string, node *yaml.Node) ([]map[string]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("matrix %s must be a list", key)
	}
	entries := make([]map[string]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("matrix %s entries must be mappings", key)
		}
		entry := make(map[string]string, len(item.Content)/2)
		for i := 0; i+1 < len(item.Content); i += 2 {
			entry[item.Content[i].Value] = scalarText(item.Content[i+1])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func scalarText(node *yaml.Node) string {
	if node.Kind == yaml.ScalarNode {
		return node.Value
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

type workflowDocument struct {
	Name     string                 `yaml:"name"`
	On       yaml.Node              `yaml:"on"`
	Env      map[string]yaml.Node   `yaml:"env"`
	Defaults defaultsDocument       `yaml:"defaults"`
	Jobs     map[string]jobDocument `yaml:"jobs"`
}

type triggerDocument struct {
	Branches       []string `yaml:"branches"`
	BranchesIgnore []string `yaml:"branches-ignore"`
	Paths          []string `yaml:"paths"`
	PathsIgnore    []string `yaml:"paths-ignore"`
}

type defaultsDocument struct {
	Run runDefaults `yaml:"run"`
}

type runDefaults struct {
	Shell            string `yaml:"shell"`
	WorkingDirectory string `yaml:"working-directory"`
}

type jobDocument struct {
	Name           string               `yaml:"name"`
	Env            map[string]yaml.Node `yaml:"env"`
	Defaults       defaultsDocument     `yaml:"defaults"`
	Steps          []stepDocument       `yaml:"steps"`
	Services       interface{}          `yaml:"services"`
	Strategy       strategyDocument     `yaml:"strategy"`
	TimeoutMinutes yaml.Node            `yaml:"timeout-minutes"`
	If             string               `yaml:"if"`
}

type strategyDocument struct {
	Matrix   yaml.Node `yaml:"matrix"`
	FailFast *bool     `yaml:"fail-fast"`
}

type stepDocument struct {
	Name             string               `yaml:"name"`
	Run              string               `yaml:"run"`
	Uses             string               `yaml:"uses"`
	With             map[string]yaml.Node `yaml:"with"`
	Env              map[string]yaml.Node `yaml:"env"`
	Shell            string               `yaml:"shell"`
	WorkingDirectory string               `yaml:"working-directory"`
	If               string               `yaml:"if"`
}

// convertEnv flattens scalar values keeping their literal text.
func convertEnv(input map[string]yaml.Node) map[string]string {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]string, len(input))
	for k, node := range input {
		node := node
		out[k] = scalarText(&node)
	}
	return out
}
