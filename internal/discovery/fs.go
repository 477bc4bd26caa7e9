// Package discovery locates workflow files.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoWorkflows indicates that no workflow files were found during discovery.
var ErrNoWorkflows = errors.New("no workflows discovered")

// DefaultPattern selects GitHub Actions workflow files relative to the root.
const DefaultPattern = ".github/workflows/*.{yml,yaml}"

// Workflows returns workflow file paths. Explicit entries may be files or
// doublestar patterns relative to root; they keep the order given and
// duplicates are dropped. Without explicit entries DefaultPattern is used and
// results are sorted.
func Workflows(root string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return resolveExplicit(root, explicit)
	}
	paths, err := glob(root, DefaultPattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoWorkflows
	}
	return paths, nil
}

func resolveExplicit(root string, explicit []string) ([]string, error) {
	seen := make(map[string]struct{})
	resolved := make([]string, 0, len(explicit))
	add := func(rel string) {
		if _, ok := seen[rel]; ok {
			return
		}
		seen[rel] = struct{}{}
		resolved = append(resolved, rel)
	}

	for _, input := range explicit {
		if !filepath.IsAbs(input) && isPattern(input) {
			matches, err := glob(root, input)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("workflow pattern %q matched no files", input)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		cleaned := input
		if !filepath.IsAbs(cleaned) {
			cleaned = filepath.Join(root, cleaned)
		}
		info, err := os.Stat(cleaned)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("workflow %q not found", input)
			}
			return nil, fmt.Errorf("stat %q: %w", input, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("workflow %q is a directory", input)
		}
		add(relOrClean(root, cleaned))
	}
	if len(resolved) == 0 {
		return nil, ErrNoWorkflows
	}
	return resolved, nil
}

// glob matches pattern against regular files under root and returns sorted
// OS-specific relative paths.
func glob(root, pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid workflow pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.FromSlash(m))
	}
	sort.Strings(paths)
	return paths, nil
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func relOrClean(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Clean(path)
	}
	rel = filepath.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Clean(path)
	}
	return rel
}
