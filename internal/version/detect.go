package version

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Info captures a language version installed on the system.
type Info struct {
	Name    string
	Version string
}

// Detector reports the locally installed version of a language toolchain.
type Detector func(ctx context.Context) (Info, error)

var (
	rubyRegex   = regexp.MustCompile(`(?i)ruby\s+(\d+\.\d+(?:\.\d+)?)`)
	nodeRegex   = regexp.MustCompile(`(?i)v?(\d+\.\d+(?:\.\d+)?)`)
	pythonRegex = regexp.MustCompile(`(?i)python\s+(\d+\.\d+(?:\.\d+)?)`)
)

// DetectRuby returns the system Ruby version by calling `ruby -v`.
func DetectRuby(ctx context.Context) (Info, error) {
	out, err := runCommand(ctx, "ruby", "-v")
	if err != nil {
		return Info{}, err
	}
	match := rubyRegex.FindStringSubmatch(out)
	if len(match) < 2 {
		return Info{}, fmt.Errorf("unable to parse ruby version from %q", out)
	}
	return Info{Name: "ruby", Version: match[1]}, nil
}

// DetectNode returns the system Node.js version by calling `node -v`.
func DetectNode(ctx context.Context) (Info, error) {
	out, err := runCommand(ctx, "node", "-v")
	if err != nil {
		return Info{}, err
	}
	match := nodeRegex.FindStringSubmatch(out)
	if len(match) < 2 {
		return Info{}, fmt.Errorf("unable to parse node version from %q", out)
	}
	return Info{Name: "node", Version: match[1]}, nil
}

// DetectPython returns the system Python version, preferring python3 over python.
func DetectPython(ctx context.Context) (Info, error) {
	out, err := runCommand(ctx, "python3", "--version")
	if err != nil && Missing(err) {
		out, err = runCommand(ctx, "python", "--version")
	}
	if err != nil {
		return Info{}, err
	}
	match := pythonRegex.FindStringSubmatch(out)
	if len(match) < 2 {
		return Info{}, fmt.Errorf("unable to parse python version from %q", out)
	}
	return Info{Name: "python", Version: match[1]}, nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// CompareMajorMinor compares major.minor portions of two semver-like versions.
// An unknown side compares equal; a wildcard minor ("3.x") compares majors only.
func CompareMajorMinor(desired, actual string) bool {
	d := semverPrefix(desired)
	a := semverPrefix(actual)
	if d == "" || a == "" {
		return true
	}
	dMajor, dMinor, _ := strings.Cut(d, ".")
	aMajor, _, _ := strings.Cut(a, ".")
	if dMinor == "x" || dMinor == "*" {
		return strings.EqualFold(dMajor, aMajor)
	}
	return strings.EqualFold(d, a)
}

func semverPrefix(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// Missing reports whether executing the command returns a not-found error.
func Missing(cmdErr error) bool {
	return errors.Is(cmdErr, exec.ErrNotFound)
}

// FileCheck ties a version pin file to the detector that verifies it.
type FileCheck struct {
	Name   string
	File   string
	Detect Detector
}

// DefaultFileChecks covers .ruby-version, .node-version and .python-version.
func DefaultFileChecks() []FileCheck {
	return []FileCheck{
		{Name: "ruby", File: ".ruby-version", Detect: DetectRuby},
		{Name: "node", File: ".node-version", Detect: DetectNode},
		{Name: "python", File: ".python-version", Detect: DetectPython},
	}
}

// Mismatch is a pinned version that the local toolchain does not satisfy.
type Mismatch struct {
	File    string
	Message string
}

// CheckFiles reads each pin file under root and reports toolchains that are
// missing or disagree with the pin.
func CheckFiles(ctx context.Context, root string, checks []FileCheck) []Mismatch {
	var out []Mismatch
	for _, check := range checks {
		contents, err := os.ReadFile(filepath.Join(root, check.File))
		if err != nil {
			continue
		}
		required := strings.TrimSpace(string(contents))
		if required == "" {
			continue
		}
		info, detectErr := check.Detect(ctx)
		if msg := Describe(check.Name, required, check.File, info.Version, detectErr); msg != "" {
			out = append(out, Mismatch{File: check.File, Message: msg})
		}
	}
	return out
}

// Describe returns a human message for a failed version check, or "" when the
// installed version satisfies required.
func Describe(name, required, source, actual string, detectErr error) string {
	if detectErr != nil {
		if Missing(detectErr) {
			return fmt.Sprintf("%s executable not found; required %s", name, required)
		}
		return fmt.Sprintf("unable to detect %s version: %v", name, detectErr)
	}
	if !CompareMajorMinor(required, actual) {
		return fmt.Sprintf("%s version mismatch: required %s (from %s) but found %s", name, required, source, actual)
	}
	return ""
}
