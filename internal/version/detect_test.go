package version

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestSemverPrefix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2.6.9", "2.6"},
		{"14.17.0", "14.17"},
		{"v20.1.0", "20.1"},
		{"3.10", "3.10"},
		{"", ""},
		{"1", ""},
	}
	for _, c := range cases {
		if got := semverPrefix(c.in); got != c.want {
			t.Fatalf("semverPrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCompareMajorMinor(t *testing.T) {
	tests := []struct {
		desired string
		actual  string
		match   bool
	}{
		{"2.6.9", "2.6.3", true},
		{"2.6", "2.6.3", true},
		{"14.17", "14.18.1", false},
		{"3.10", "3.1.4", false},
		{"3.x", "3.12.1", true},
		{"3.x", "2.7.18", false},
		{"", "14.18.1", true},
		{"14.17", "", true},
	}
	for _, tt := range tests {
		if got := CompareMajorMinor(tt.desired, tt.actual); got != tt.match {
			t.Fatalf("CompareMajorMinor(%q,%q)=%v want %v", tt.desired, tt.actual, got, tt.match)
		}
	}
}

func TestCheckFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".python-version"), []byte("3.11\n"), 0o644); err != nil {
		t.Fatalf("write pin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".node-version"), []byte("20.1\n"), 0o644); err != nil {
		t.Fatalf("write pin: %v", err)
	}
	checks := []FileCheck{
		{Name: "python", File: ".python-version", Detect: fixed("3.9.18", nil)},
		{Name: "node", File: ".node-version", Detect: fixed("20.1.4", nil)},
		{Name: "ruby", File: ".ruby-version", Detect: fixed("", errors.New("unreachable"))},
	}

	got := CheckFiles(context.Background(), root, checks)
	if len(got) != 1 {
		t.Fatalf("expected one mismatch, got %+v", got)
	}
	if got[0].File != ".python-version" || !strings.Contains(got[0].Message, "required 3.11") {
		t.Fatalf("unexpected mismatch: %+v", got[0])
	}
}

func TestDescribeMissingExecutable(t *testing.T) {
	err := &exec.Error{Name: "python3", Err: exec.ErrNotFound}
	msg := Describe("python", "3.11", ".python-version", "", err)
	if msg != "python executable not found; required 3.11" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func fixed(v string, err error) Detector {
	return func(context.Context) (Info, error) {
		return Info{Version: v}, err
	}
}
