package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bgricker/matrixrun/internal/provider"
	"github.com/bgricker/matrixrun/internal/trigger"
)

// Delivery is a webhook payload reduced to what trigger evaluation needs.
type Delivery struct {
	ID    string        `json:"id,omitempty"`
	Event trigger.Event `json:"event"`
	// Base is the commit to diff against when the payload lists no files.
	Base string `json:"base,omitempty"`
	Head string `json:"head,omitempty"`
}

type pushPayload struct {
	Ref     string `json:"ref"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Deleted bool   `json:"deleted"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Base struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"base"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

// ignored marks a well-formed delivery that should not start a run.
type ignored struct{ reason string }

func (i ignored) Error() string { return i.reason }

// parseDelivery decodes a push or pull_request payload. Deliveries that can
// never start a run return an ignored error.
func parseDelivery(kind string, body []byte) (Delivery, error) {
	switch kind {
	case provider.EventPush:
		var p pushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return Delivery{}, fmt.Errorf("decode push payload: %w", err)
		}
		if p.Deleted {
			return Delivery{}, ignored{"branch deletion"}
		}
		branch, ok := strings.CutPrefix(p.Ref, "refs/heads/")
		if !ok {
			return Delivery{}, ignored{fmt.Sprintf("ref %q is not a branch", p.Ref)}
		}
		seen := map[string]struct{}{}
		for _, c := range p.Commits {
			for _, list := range [][]string{c.Added, c.Modified, c.Removed} {
				for _, f := range list {
					seen[f] = struct{}{}
				}
			}
		}
		paths := make([]string, 0, len(seen))
		for f := range seen {
			paths = append(paths, f)
		}
		sort.Strings(paths)
		return Delivery{
			Event: trigger.Event{Kind: provider.EventPush, Branch: branch, ChangedPaths: paths},
			Base:  p.Before,
			Head:  p.After,
		}, nil

	case provider.EventPullRequest:
		var p pullRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return Delivery{}, fmt.Errorf("decode pull_request payload: %w", err)
		}
		switch p.Action {
		case "opened", "synchronize", "reopened":
		default:
			return Delivery{}, ignored{fmt.Sprintf("pull_request action %q", p.Action)}
		}
		// Branch filters on pull_request match the base branch.
		return Delivery{
			Event: trigger.Event{Kind: provider.EventPullRequest, Branch: p.PullRequest.Base.Ref},
			Base:  p.PullRequest.Base.SHA,
			Head:  p.PullRequest.Head.SHA,
		}, nil
	}
	return Delivery{}, ignored{fmt.Sprintf("event %q is not handled", kind)}
}
