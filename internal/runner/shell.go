package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bgricker/matrixrun/internal/provider"
)

// scriptPlaceholder marks where a custom shell template receives the script path.
const scriptPlaceholder = "{0}"

// command is a resolved step invocation. cleanup removes any script file
// written for a custom shell template and is never nil.
type command struct {
	args    []string
	cleanup func()
}

// buildCommand resolves the step's shell, falling back to the job then
// workflow defaults, and wraps the script for it.
func buildCommand(step provider.Step, job provider.Job, wf provider.Workflow, env []string) (command, error) {
	shell := firstNonEmpty(step.Shell, job.Defaults.RunShell, wf.Defaults.RunShell)
	return shellCommand(shell, step.Run, env)
}

func shellCommand(spec, script string, env []string) (command, error) {
	noop := func() {}
	if spec == "" {
		if runtime.GOOS == "windows" {
			return command{args: []string{"cmd", "/C", script}, cleanup: noop}, nil
		}
		// Login shells pick up version managers the same way a developer's terminal does.
		return command{args: []string{"bash", "-l", "-c", prelude(env, "bash", "set -e") + script}, cleanup: noop}, nil
	}

	if strings.Contains(spec, scriptPlaceholder) {
		return templateCommand(spec, script)
	}

	fields := strings.Fields(spec)
	name, extra := fields[0], fields[1:]
	args := append([]string{name}, extra...)
	switch base := strings.ToLower(filepath.Base(name)); base {
	case "bash":
		args = append(args, "-l", "-c", prelude(env, base, "set -eo pipefail")+script)
	case "zsh", "ksh":
		args = append(args, "-l", "-c", prelude(env, base, "set -e")+script)
	case "fish":
		args = append(args, "-l", "-c", prelude(env, base, "")+script)
	case "sh":
		// sh may be dash, which has no login flag.
		args = append(args, "-c", prelude(env, base, "set -e")+script)
	case "cmd", "cmd.exe":
		args = append(args, "/C", script)
	case "pwsh", "powershell", "powershell.exe":
		args = append(args, "-Command", script)
	case "python", "python3", "python.exe":
		args = append(args, "-c", script)
	default:
		args = append(args, script)
	}
	return command{args: args, cleanup: noop}, nil
}

// templateCommand writes script to a temporary file and substitutes its path
// for {0}, e.g. "perl {0}".
func templateCommand(spec, script string) (command, error) {
	f, err := os.CreateTemp("", "matrixrun-step-*")
	if err != nil {
		return command{}, fmt.Errorf("create script file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.WriteString(script); err != nil {
		_ = f.Close()
		cleanup()
		return command{}, fmt.Errorf("write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return command{}, fmt.Errorf("close script file: %w", err)
	}

	fields := strings.Fields(spec)
	args := make([]string, len(fields))
	for i, field := range fields {
		args[i] = strings.ReplaceAll(field, scriptPlaceholder, path)
	}
	return command{args: args, cleanup: cleanup}, nil
}

// prelude returns the lines run before the script: version manager
// initialisation when asdf is installed, then the shell's error options.
func prelude(env []string, shell, options string) string {
	var b strings.Builder
	if script := asdfScript(env); script != "" {
		switch shell {
		case "bash", "zsh":
			fmt.Fprintf(&b, "source %q\n", script)
		case "ksh", "sh":
			fmt.Fprintf(&b, ". %q\n", script)
		case "fish":
			if fish := strings.TrimSuffix(script, ".sh") + ".fish"; fileExists(fish) {
				fmt.Fprintf(&b, "source %q; ", fish)
			}
		}
	}
	if options != "" {
		b.WriteString(options)
		b.WriteByte('\n')
	}
	return b.String()
}

// asdfScript locates asdf.sh through ASDF_DIR, then the home directory.
func asdfScript(env []string) string {
	var candidates []string
	if dir := envValue(env, "ASDF_DIR"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "asdf.sh"))
	}
	home := envValue(env, "HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, ".asdf", "asdf.sh"))
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return ""
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
