// Package platform defines the capability surface the rotation engine needs
// from the hosting platform. The engine only ever talks to this interface;
// the GitHub implementation lives in platform/github and tests use the
// programmable mock in internal/testutil.
package platform

import (
	"context"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// Host is everything the dispatcher can ask the hosting platform to do.
type Host interface {
	// PostComment adds a comment to an issue or pull request.
	PostComment(ctx context.Context, item int, body string) error

	// AddLabel applies a label to an item.
	AddLabel(ctx context.Context, item int, label string) error

	// RemoveLabel removes a label from an item.
	RemoveLabel(ctx context.Context, item int, label string) error

	// RepoLabels returns the set of label names defined in the repository.
	RepoLabels(ctx context.Context) (map[string]bool, error)

	// AssignReviewer puts a reviewer on an item. Pull requests get a
	// review request plus an assignee; issues get an assignee only.
	AssignReviewer(ctx context.Context, item int, handle string, isPullRequest bool) error

	// UnassignReviewer removes a reviewer from an item.
	UnassignReviewer(ctx context.Context, item int, handle string, isPullRequest bool) error

	// Assignees returns the current assignees of an item.
	Assignees(ctx context.Context, item int) ([]string, error)

	// HasPermission reports whether a user holds at least the given
	// repository permission level (for example "triage").
	HasPermission(ctx context.Context, handle, level string) (bool, error)

	// FetchMembers returns the reviewer roster from its source of truth.
	FetchMembers(ctx context.Context) ([]types.Member, error)
}
