// Package changes derives trigger event inputs from the local git checkout.
package changes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ErrNotRepository indicates root is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Git runs git commands rooted at a work tree.
type Git struct {
	Root string
}

// CurrentBranch returns the checked-out branch name, or "" on a detached HEAD.
func (g Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", nil
	}
	return out, nil
}

// ChangedSince lists paths that differ between since and the work tree,
// including untracked files. An empty since compares against HEAD.
func (g Git) ChangedSince(ctx context.Context, since string) ([]string, error) {
	if since == "" {
		since = "HEAD"
	}
	diff, err := g.run(ctx, "diff", "--name-only", since)
	if err != nil {
		return nil, err
	}
	untracked, err := g.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return uniqueLines(diff, untracked), nil
}

func (g Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "not a git repository") {
			return "", fmt.Errorf("%s: %w", g.Root, ErrNotRepository)
		}
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func uniqueLines(blocks ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, block := range blocks {
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			out = append(out, line)
		}
	}
	sort.Strings(out)
	return out
}
