// Package testutil provides programmable fakes for engine and store tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// PostedComment records one PostComment call.
type PostedComment struct {
	Body string
	Item int
}

// ReviewerChange records one assign or unassign call.
type ReviewerChange struct {
	Handle        string
	Item          int
	IsPullRequest bool
}

// LabelChange records one label mutation.
type LabelChange struct {
	Label string
	Item  int
	Added bool
}

// MockHost implements platform.Host, recording every call and returning
// programmed responses.
type MockHost struct {
	// Programmed responses.
	AssigneesByItem map[int][]string
	Permissions     map[string]bool // handle -> has elevated permission
	Labels          map[string]bool // repository label set
	Members         []types.Member
	Err             error // returned by every call when set

	// Recorded calls.
	Comments   []PostedComment
	Assigned   []ReviewerChange
	Unassigned []ReviewerChange
	LabelOps   []LabelChange

	mu sync.Mutex
}

// NewMockHost creates an empty MockHost.
func NewMockHost() *MockHost {
	return &MockHost{
		AssigneesByItem: make(map[int][]string),
		Permissions:     make(map[string]bool),
		Labels:          make(map[string]bool),
	}
}

// PostComment records the comment.
func (m *MockHost) PostComment(_ context.Context, item int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Comments = append(m.Comments, PostedComment{Item: item, Body: body})
	return nil
}

// AddLabel records the label addition.
func (m *MockHost) AddLabel(_ context.Context, item int, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.LabelOps = append(m.LabelOps, LabelChange{Item: item, Label: label, Added: true})
	return nil
}

// RemoveLabel records the label removal.
func (m *MockHost) RemoveLabel(_ context.Context, item int, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.LabelOps = append(m.LabelOps, LabelChange{Item: item, Label: label, Added: false})
	return nil
}

// RepoLabels returns the programmed repository label set.
func (m *MockHost) RepoLabels(_ context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Labels, nil
}

// AssignReviewer records the assignment and updates the assignee table.
func (m *MockHost) AssignReviewer(_ context.Context, item int, handle string, isPullRequest bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Assigned = append(m.Assigned, ReviewerChange{Item: item, Handle: handle, IsPullRequest: isPullRequest})
	m.AssigneesByItem[item] = append(m.AssigneesByItem[item], handle)
	return nil
}

// UnassignReviewer records the removal and updates the assignee table.
func (m *MockHost) UnassignReviewer(_ context.Context, item int, handle string, isPullRequest bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Unassigned = append(m.Unassigned, ReviewerChange{Item: item, Handle: handle, IsPullRequest: isPullRequest})
	var kept []string
	for _, a := range m.AssigneesByItem[item] {
		if !strings.EqualFold(a, handle) {
			kept = append(kept, a)
		}
	}
	m.AssigneesByItem[item] = kept
	return nil
}

// Assignees returns the programmed assignees for an item.
func (m *MockHost) Assignees(_ context.Context, item int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.AssigneesByItem[item], nil
}

// HasPermission returns the programmed permission for a handle.
func (m *MockHost) HasPermission(_ context.Context, handle, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return m.Permissions[strings.ToLower(handle)], nil
}

// FetchMembers returns the programmed roster.
func (m *MockHost) FetchMembers(_ context.Context) ([]types.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Members, nil
}

// LastComment returns the most recent posted comment body, or "".
func (m *MockHost) LastComment() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Comments) == 0 {
		return ""
	}
	return m.Comments[len(m.Comments)-1].Body
}
