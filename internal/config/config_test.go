package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return root
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Format != FormatPretty || cfg.Provider != ProviderAuto || !cfg.Warn.VersionMismatch {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DefaultTimeout != 360*time.Minute || cfg.Parallelism < 1 {
		t.Fatalf("unexpected execution defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesOnlyPresentKeys(t *testing.T) {
	root := writeConfig(t, `
format: json
parallelism: 3
default_timeout: 45m
matrix: ["python-version=3.10"]
event:
  kind: push
  branch: main
warn:
  version_mismatch: false
serve:
  secret: s3cret
watch:
  debounce: 2s
`)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Format != FormatJSON || cfg.Parallelism != 3 || cfg.DefaultTimeout != 45*time.Minute {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.Event.Kind != "push" || cfg.Event.Branch != "main" {
		t.Fatalf("unexpected event: %+v", cfg.Event)
	}
	if cfg.Warn.VersionMismatch {
		t.Fatalf("expected version_mismatch disabled by file")
	}
	if cfg.Serve.Secret != "s3cret" || cfg.Serve.Listen != ":8080" {
		t.Fatalf("expected serve defaults kept alongside secret: %+v", cfg.Serve)
	}
	if cfg.Watch.Debounce != 2*time.Second || len(cfg.Watch.Exclude) == 0 {
		t.Fatalf("unexpected watch config: %+v", cfg.Watch)
	}
	if len(cfg.Matrix) != 1 || cfg.Matrix[0] != "python-version=3.10" {
		t.Fatalf("unexpected matrix selectors: %v", cfg.Matrix)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	root := writeConfig(t, "formatt: json\n")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	root := writeConfig(t, "")
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Format != FormatPretty {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.Format = "xml" }},
		{"provider", func(c *Config) { c.Provider = "gitlab" }},
		{"event", func(c *Config) { c.Event.Kind = "release" }},
		{"parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"timeout", func(c *Config) { c.DefaultTimeout = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"debounce", func(c *Config) { c.Watch.Debounce = -time.Second }},
		{"body limit", func(c *Config) { c.Serve.MaxBodyBytes = 0 }},
		{"serve path", func(c *Config) { c.Serve.Path = "hook" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	ApplyFlags(&cfg, FlagValues{
		Format:         StringFlag{Value: FormatJSON, Set: true},
		DryRun:         BoolFlag{Value: true, Set: true},
		Parallelism:    IntFlag{Value: 8, Set: true},
		DefaultTimeout: DurationFlag{Value: time.Minute, Set: true},
		Event:          StringFlag{Value: "pull_request", Set: true},
		Changed:        SliceFlag{Values: []string{"a.py"}},
		Matrix:         SliceFlag{Values: []string{"os=linux"}},
		NoHistory:      BoolFlag{Value: true, Set: true},
	})
	if cfg.Format != FormatJSON || !cfg.DryRun || cfg.Parallelism != 8 || cfg.DefaultTimeout != time.Minute {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Event.Kind != "pull_request" || cfg.Event.Changed[0] != "a.py" || cfg.Matrix[0] != "os=linux" {
		t.Fatalf("event flags not applied: %+v", cfg.Event)
	}
	if !cfg.History.Disabled {
		t.Fatalf("expected history disabled")
	}

	unchanged := Default()
	ApplyFlags(&unchanged, FlagValues{Verbose: BoolFlag{Value: false}})
	if unchanged.Format != FormatPretty || unchanged.Verbose {
		t.Fatalf("unset flags must not override: %+v", unchanged)
	}
}
