package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// IssueClient is the slice of the platform client the issue store needs.
type IssueClient interface {
	IssueBody(ctx context.Context, item int) (string, error)
	UpdateIssueBody(ctx context.Context, item int, body string) error
}

// IssueStore keeps the state document inside a fenced YAML block in the
// body of a dedicated tracking issue, so the rotation state is visible and
// auditable where the team already works.
type IssueStore struct {
	client IssueClient
	issue  int
}

// NewIssueStore creates a store backed by the body of the given issue.
func NewIssueStore(client IssueClient, issue int) *IssueStore {
	return &IssueStore{client: client, issue: issue}
}

var yamlBlockRe = regexp.MustCompile("(?s)```ya?ml\n(.*?)\n```")

// Load fetches the tracking issue and parses the embedded YAML block. A
// body without a block is parsed as bare YAML; unparseable content yields
// the default state.
func (is *IssueStore) Load(ctx context.Context) (types.State, error) {
	body, err := is.client.IssueBody(ctx, is.issue)
	if err != nil {
		return types.State{}, fmt.Errorf("failed to load state issue: %w", err)
	}
	return state.Decode([]byte(ExtractDocument(body))), nil
}

// Save rewrites the tracking issue body around the updated YAML block.
func (is *IssueStore) Save(ctx context.Context, s types.State) error {
	data, err := state.Encode(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := is.client.UpdateIssueBody(ctx, is.issue, renderIssueBody(data)); err != nil {
		return fmt.Errorf("failed to save state issue: %w", err)
	}
	return nil
}

// ExtractDocument pulls the YAML document out of an issue body. Falls back
// to the whole body when no fenced block is present.
func ExtractDocument(body string) string {
	if m := yamlBlockRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return body
}

func renderIssueBody(document []byte) string {
	return fmt.Sprintf(`## 📊 Reviewer Rotation State

> ⚠️ **DO NOT EDIT MANUALLY** - This issue is automatically maintained by the rotation bot.
> Use bot commands instead.

This issue tracks the round-robin assignment of reviewers.

### Current State

`+"```yaml\n%s```"+`

### What This Tracks

- **queue**: Active reviewers in rotation order
- **current_index**: Position in queue (who's next)
- **pass_until**: Reviewers temporarily away with return dates
- **recent_assignments**: Last %d assignments for visibility
- **active_reviews**: Per-item tracking of who passed and the current designated reviewer
`, document, state.MaxRecentAssignments)
}
