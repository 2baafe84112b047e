package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// PostComment adds a comment to an issue or pull request.
func (c *Client) PostComment(ctx context.Context, item int, body string) error {
	apiURL := c.repoURL("issues/%d/comments", item)
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string]any{"body": body})
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return statusError("post comment", resp)
	}
	slog.Info("Posted comment", "item", item, "bytes", len(body))
	return nil
}

// AddLabel applies a label to an item.
func (c *Client) AddLabel(ctx context.Context, item int, label string) error {
	apiURL := c.repoURL("issues/%d/labels", item)
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string]any{"labels": []string{label}})
	if err != nil {
		return fmt.Errorf("failed to add label: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError("add label", resp)
	}
	slog.Info("Added label", "item", item, "label", label)
	return nil
}

// RemoveLabel removes a label from an item. Removing a label the item does
// not carry is not an error.
func (c *Client) RemoveLabel(ctx context.Context, item int, label string) error {
	apiURL := c.labelURL(item, label)
	resp, err := c.doRequest(ctx, http.MethodDelete, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to remove label: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return statusError("remove label", resp)
	}
	slog.Info("Removed label", "item", item, "label", label)
	return nil
}

// labelURL builds the per-label endpoint. Label names go in the path and
// may carry spaces, slashes, or percent signs, so they are path-escaped
// rather than formatted.
func (c *Client) labelURL(item int, label string) string {
	return c.repoURL("issues/%d/labels/", item) + url.PathEscape(label)
}

// RepoLabels returns the set of label names defined in the repository.
func (c *Client) RepoLabels(ctx context.Context) (map[string]bool, error) {
	labels := make(map[string]bool)
	for page := 1; page <= 10; page++ {
		apiURL := c.repoURL("labels?per_page=100&page=%d", page)
		resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list labels: %w", err)
		}

		var batch []struct {
			Name string `json:"name"`
		}
		err = json.NewDecoder(resp.Body).Decode(&batch)
		drainAndCloseBody(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode labels: %w", err)
		}
		for _, l := range batch {
			labels[l.Name] = true
		}
		if len(batch) < 100 {
			break
		}
	}
	return labels, nil
}

// AssignReviewer puts a reviewer on an item. Pull requests get a review
// request plus an assignee; issues get an assignee only.
func (c *Client) AssignReviewer(ctx context.Context, item int, handle string, isPullRequest bool) error {
	if isPullRequest {
		apiURL := c.repoURL("pulls/%d/requested_reviewers", item)
		resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string]any{"reviewers": []string{handle}})
		if err != nil {
			return fmt.Errorf("failed to request reviewer: %w", err)
		}
		drainAndCloseBody(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("failed to request reviewer: status %d", resp.StatusCode)
		}
	}

	apiURL := c.repoURL("issues/%d/assignees", item)
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string]any{"assignees": []string{handle}})
	if err != nil {
		return fmt.Errorf("failed to assign: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return statusError("assign", resp)
	}
	slog.Info("Assigned reviewer", "item", item, "reviewer", handle, "pr", isPullRequest)
	return nil
}

// UnassignReviewer removes a reviewer from an item, clearing both the
// review request (for PRs) and the assignee.
func (c *Client) UnassignReviewer(ctx context.Context, item int, handle string, isPullRequest bool) error {
	if isPullRequest {
		apiURL := c.repoURL("pulls/%d/requested_reviewers", item)
		resp, err := c.doRequest(ctx, http.MethodDelete, apiURL, map[string]any{"reviewers": []string{handle}})
		if err != nil {
			return fmt.Errorf("failed to remove review request: %w", err)
		}
		drainAndCloseBody(resp.Body)
	}

	apiURL := c.repoURL("issues/%d/assignees", item)
	resp, err := c.doRequest(ctx, http.MethodDelete, apiURL, map[string]any{"assignees": []string{handle}})
	if err != nil {
		return fmt.Errorf("failed to unassign: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError("unassign", resp)
	}
	slog.Info("Unassigned reviewer", "item", item, "reviewer", handle, "pr", isPullRequest)
	return nil
}

// Assignees returns the current assignees of an item.
func (c *Client) Assignees(ctx context.Context, item int) ([]string, error) {
	apiURL := c.repoURL("issues/%d", item)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch item", resp)
	}

	var issue struct {
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	assignees := make([]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, a.Login)
	}
	return assignees, nil
}

// permission levels in ascending order, as the permission endpoint reports
// them.
var permissionRank = map[string]int{
	"none":     0,
	"read":     1,
	"triage":   2,
	"write":    3,
	"maintain": 4,
	"admin":    5,
}

// HasPermission reports whether a user holds at least the given repository
// permission level.
func (c *Client) HasPermission(ctx context.Context, handle, level string) (bool, error) {
	apiURL := c.repoURL("collaborators/%s/permission", handle)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, statusError("check permission", resp)
	}

	var perm struct {
		Permission string `json:"permission"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&perm); err != nil {
		return false, fmt.Errorf("failed to decode permission: %w", err)
	}
	return permissionRank[strings.ToLower(perm.Permission)] >= permissionRank[strings.ToLower(level)], nil
}

// FetchMembers downloads the roster markdown file and extracts the members
// whose role matches the configured value.
func (c *Client) FetchMembers(ctx context.Context) ([]types.Member, error) {
	if c.membersURL == "" {
		return nil, fmt.Errorf("no members URL configured")
	}

	var content []byte
	err := retryWithBackoff(ctx, "GET "+c.membersURL, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.membersURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer drainAndCloseBody(resp.Body)

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http %d: server error", resp.StatusCode)
		}
		content, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read roster: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roster: %w", err)
	}

	members := ParseRoster(string(content), c.memberRole)
	slog.Info("Fetched roster", "members", len(members), "role", c.memberRole)
	return members, nil
}

// ParseRoster extracts members from a markdown table whose Role column
// contains role. Expected columns include "Member Name", "GitHub Username"
// and "Role"; header matching is positional after normalization.
func ParseRoster(content, role string) []types.Member {
	var members []types.Member
	var headers []string
	inTable := false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			continue
		}

		raw := strings.Split(line, "|")
		cells := make([]string, 0, len(raw))
		for _, c := range raw[1 : len(raw)-1] {
			cells = append(cells, strings.TrimSpace(c))
		}

		if !inTable {
			for _, c := range cells {
				if c == "Member Name" {
					headers = make([]string, len(cells))
					for i, h := range cells {
						headers[i] = strings.ToLower(strings.ReplaceAll(h, " ", "_"))
					}
					inTable = true
					break
				}
			}
			continue
		}

		if separatorRow(cells) || len(cells) != len(headers) {
			continue
		}

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = cells[i]
		}
		if !strings.Contains(row["role"], role) {
			continue
		}
		handle := strings.TrimPrefix(strings.TrimSpace(row["github_username"]), "@")
		if handle == "" {
			continue
		}
		members = append(members, types.Member{
			Handle: handle,
			Name:   strings.TrimSpace(row["member_name"]),
		})
	}
	return members
}

func separatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-:") != "" {
			return false
		}
	}
	return true
}

// ItemInfo is a snapshot of an issue or pull request.
type ItemInfo struct {
	State         string
	Labels        []string
	Assignees     []string
	IsPullRequest bool
}

// Item fetches the current state, labels, and assignees of an issue or
// pull request. The issues endpoint serves both kinds.
func (c *Client) Item(ctx context.Context, item int) (ItemInfo, error) {
	apiURL := c.repoURL("issues/%d", item)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return ItemInfo{}, fmt.Errorf("failed to fetch item: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return ItemInfo{}, statusError("fetch item", resp)
	}

	var issue struct {
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
		PullRequest *struct{} `json:"pull_request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return ItemInfo{}, fmt.Errorf("failed to decode item: %w", err)
	}

	info := ItemInfo{
		State:         issue.State,
		IsPullRequest: issue.PullRequest != nil,
	}
	for _, l := range issue.Labels {
		info.Labels = append(info.Labels, l.Name)
	}
	for _, a := range issue.Assignees {
		info.Assignees = append(info.Assignees, a.Login)
	}
	return info, nil
}

// IssueBody fetches the body text of an issue.
func (c *Client) IssueBody(ctx context.Context, item int) (string, error) {
	apiURL := c.repoURL("issues/%d", item)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch issue: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", statusError("fetch issue", resp)
	}

	var issue struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", fmt.Errorf("failed to decode issue: %w", err)
	}
	return issue.Body, nil
}

// UpdateIssueBody replaces the body text of an issue.
func (c *Client) UpdateIssueBody(ctx context.Context, item int, body string) error {
	apiURL := c.repoURL("issues/%d", item)
	resp, err := c.doRequest(ctx, http.MethodPatch, apiURL, map[string]any{"body": body})
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError("update issue", resp)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to %s: status %d (could not read body: %w)", operation, resp.StatusCode, err)
	}
	return fmt.Errorf("failed to %s: status %d: %s", operation, resp.StatusCode, string(body))
}
