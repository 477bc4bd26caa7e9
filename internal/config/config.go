package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional repository-level config file.
const FileName = ".matrixrun.yml"

// Config captures CLI options sourced from config files or flags.
type Config struct {
	Provider  string   `yaml:"provider"`
	Workflows []string `yaml:"workflows"`
	Jobs      []string `yaml:"jobs"`

	OnlySteps []string `yaml:"only_step"`
	SkipSteps []string `yaml:"skip_step"`
	Matrix    []string `yaml:"matrix"`

	DryRun  bool   `yaml:"dry_run"`
	Verbose bool   `yaml:"verbose"`
	Format  string `yaml:"format"`

	Parallelism    int           `yaml:"parallelism"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	LogLevel       string        `yaml:"log_level"`

	Event   EventConfig   `yaml:"event"`
	History HistoryConfig `yaml:"history"`
	Serve   ServeConfig   `yaml:"serve"`
	Watch   WatchConfig   `yaml:"watch"`

	Warn                      WarnConfig `yaml:"warn"`
	PrivilegedCommandPatterns []string   `yaml:"privileged_command_patterns"`
	AllowPrivileged           bool       `yaml:"allow_privileged"`
}

// EventConfig describes the event a local run simulates. An empty kind runs
// the selected workflows without evaluating trigger rules.
type EventConfig struct {
	Kind    string   `yaml:"kind"`
	Branch  string   `yaml:"branch"`
	Changed []string `yaml:"changed"`
	Since   string   `yaml:"since"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// ServeConfig controls the webhook listener.
type ServeConfig struct {
	Listen       string `yaml:"listen"`
	Path         string `yaml:"path"`
	Secret       string `yaml:"secret"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// WatchConfig controls file-watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Exclude  []string      `yaml:"exclude"`
}

// WarnConfig controls additional warning behaviour.
type WarnConfig struct {
	VersionMismatch bool `yaml:"version_mismatch"`
}

const (
	// ProviderAuto selects the provider based on repository contents.
	ProviderAuto = "auto"
	// ProviderGitHub forces GitHub Actions provider.
	ProviderGitHub = "github"

	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"
)

// Default returns the baseline configuration used when no flags or config file specify values.
func Default() Config {
	return Config{
		Provider:       ProviderAuto,
		Format:         FormatPretty,
		Parallelism:    runtime.NumCPU(),
		DefaultTimeout: 360 * time.Minute,
		History: HistoryConfig{
			Path: filepath.Join(".matrixrun", "history.db"),
		},
		Serve: ServeConfig{
			Listen:       ":8080",
			Path:         "/webhook",
			MaxBodyBytes: 5 << 20,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			Exclude: []string{
				".git/**", ".matrixrun/**",
				"**/__pycache__/**", "**/.pytest_cache/**", "**/node_modules/**",
			},
		},
		Warn: WarnConfig{
			VersionMismatch: true,
		},
	}
}

// Load reads .matrixrun.yml from the repository root when present. Missing files are ignored.
// Keys present in the file override defaults; absent keys keep them.
func Load(root string) (Config, error) {
	cfg := Default()
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Default(), fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no command can act on.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case "", ProviderAuto, ProviderGitHub:
	default:
		errs = append(errs, fmt.Errorf("unsupported provider %q", c.Provider))
	}
	switch strings.ToLower(c.Format) {
	case FormatPretty, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unsupported format %q", c.Format))
	}
	switch c.Event.Kind {
	case "", "push", "pull_request", "workflow_dispatch":
	default:
		errs = append(errs, fmt.Errorf("unsupported event kind %q", c.Event.Kind))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level %q", c.LogLevel))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism))
	}
	if c.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("default_timeout must be positive, got %s", c.DefaultTimeout))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce))
	}
	if c.Serve.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("serve.max_body_bytes must be positive, got %d", c.Serve.MaxBodyBytes))
	}
	if c.Serve.Path != "" && !strings.HasPrefix(c.Serve.Path, "/") {
		errs = append(errs, fmt.Errorf("serve.path must start with '/', got %q", c.Serve.Path))
	}
	return errors.Join(errs...)
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if flags.Provider.Set {
		cfg.Provider = flags.Provider.Value
	}
	if len(flags.Workflows.Values) > 0 {
		cfg.Workflows = append([]string{}, flags.Workflows.Values...)
	}
	if len(flags.Jobs.Values) > 0 {
		cfg.Jobs = append([]string{}, flags.Jobs.Values...)
	}
	if len(flags.OnlySteps.Values) > 0 {
		cfg.OnlySteps = append([]string{}, flags.OnlySteps.Values...)
	}
	if len(flags.SkipSteps.Values) > 0 {
		cfg.SkipSteps = append([]string{}, flags.SkipSteps.Values...)
	}
	if len(flags.Matrix.Values) > 0 {
		cfg.Matrix = append([]string{}, flags.Matrix.Values...)
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.DryRun.Set {
		cfg.DryRun = flags.DryRun.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
	if flags.Parallelism.Set {
		cfg.Parallelism = flags.Parallelism.Value
	}
	if flags.DefaultTimeout.Set {
		cfg.DefaultTimeout = flags.DefaultTimeout.Value
	}
	if flags.LogLevel.Set {
		cfg.LogLevel = flags.LogLevel.Value
	}
	if flags.Event.Set {
		cfg.Event.Kind = flags.Event.Value
	}
	if flags.Branch.Set {
		cfg.Event.Branch = flags.Branch.Value
	}
	if len(flags.Changed.Values) > 0 {
		cfg.Event.Changed = append([]string{}, flags.Changed.Values...)
	}
	if flags.Since.Set {
		cfg.Event.Since = flags.Since.Value
	}
	if flags.HistoryPath.Set {
		cfg.History.Path = flags.HistoryPath.Value
	}
	if flags.NoHistory.Set {
		cfg.History.Disabled = flags.NoHistory.Value
	}
	if flags.AllowPrivileged.Set {
		cfg.AllowPrivileged = flags.AllowPrivileged.Value
	}
	if flags.Listen.Set {
		cfg.Serve.Listen = flags.Listen.Value
	}
	if flags.Debounce.Set {
		cfg.Watch.Debounce = flags.Debounce.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Provider        StringFlag
	Workflows       SliceFlag
	Jobs            SliceFlag
	OnlySteps       SliceFlag
	SkipSteps       SliceFlag
	Matrix          SliceFlag
	Format          StringFlag
	DryRun          BoolFlag
	Verbose         BoolFlag
	Parallelism     IntFlag
	DefaultTimeout  DurationFlag
	LogLevel        StringFlag
	Event           StringFlag
	Branch          StringFlag
	Changed         SliceFlag
	Since           StringFlag
	HistoryPath     StringFlag
	NoHistory       BoolFlag
	AllowPrivileged BoolFlag
	Listen          StringFlag
	Debounce        DurationFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}

// DurationFlag represents a duration flag and whether it was set.
type DurationFlag struct {
	Value time.Duration
	Set   bool
}
