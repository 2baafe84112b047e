package engine

import (
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// itemKind returns the assignment-log kind for an item.
func itemKind(isPullRequest bool) string {
	if isPullRequest {
		return "pr"
	}
	return "issue"
}

// assign creates or overwrites the active review for an item. Completion
// fields are cleared; the assignment lands in the recent log.
func assign(s *types.State, item int, reviewer string, method types.AssignmentMethod, isPullRequest bool, now time.Time) {
	r := s.EnsureReview(item)
	r.CurrentReviewer = reviewer
	r.AssignedAt = now
	r.LastReviewerActivity = now
	r.TransitionWarningSent = time.Time{}
	r.CompletedAt = time.Time{}
	r.CompletedBy = ""
	r.CompletionSource = ""
	r.Method = method
	if r.Skipped == nil {
		r.Skipped = []string{}
	}
	state.RecordAssignment(s, reviewer, item, itemKind(isPullRequest), now)
}

// passReview hands the review to the next eligible member. The requester
// must be the current reviewer; they join the item's skip list so repeated
// passes walk the whole queue. An exhausted queue leaves the item
// unassigned, reported by an empty next reviewer.
func passReview(s *types.State, item int, requester string, isPullRequest bool, now time.Time) (string, error) {
	r := s.Review(item)
	if r == nil || !types.EqualHandle(r.CurrentReviewer, requester) {
		return "", ErrNotCurrentReviewer
	}

	if !r.HasSkipped(requester) {
		r.Skipped = append(r.Skipped, requester)
	}

	next, ok := state.NextEligible(s, state.SkipSet(r.Skipped...))
	if !ok {
		r.CurrentReviewer = ""
		return "", nil
	}
	assign(s, item, next, types.MethodRoundRobin, isPullRequest, now)
	return next, nil
}

// release clears the current reviewer without reassignment. Returns the
// released handle, or false when the item has no reviewer.
func release(s *types.State, item int) (string, bool) {
	r := s.Review(item)
	if r == nil || r.CurrentReviewer == "" {
		return "", false
	}
	released := r.CurrentReviewer
	r.CurrentReviewer = ""
	return released, true
}

// claim sets the requester as current reviewer, overwriting any prior
// assignment. Returns the displaced reviewer, if any.
func claim(s *types.State, item int, requester string, isPullRequest bool, now time.Time) string {
	previous := ""
	if r := s.Review(item); r != nil && !types.EqualHandle(r.CurrentReviewer, requester) {
		previous = r.CurrentReviewer
	}
	assign(s, item, requester, types.MethodExplicit, isPullRequest, now)
	return previous
}

// recordActivity processes a submitted review. Comments and
// change-requests by the current reviewer refresh the activity clock and
// clear a pending transition warning. An approval by the current reviewer
// completes the review; approvals by anyone else are not handled.
func recordActivity(s *types.State, item int, actor, reviewState string, now time.Time) (completed, handled bool) {
	r := s.Review(item)
	if r == nil || !types.EqualHandle(r.CurrentReviewer, actor) {
		return false, false
	}
	r.LastReviewerActivity = now
	r.TransitionWarningSent = time.Time{}
	if reviewState == "approved" {
		r.CompletedAt = now
		r.CompletedBy = actor
		r.CompletionSource = "review_approval"
		return true, true
	}
	return false, true
}

// completeViaLabel completes a review in response to the sign-off label.
// Pull requests are excluded; their completion signal is an approval.
func completeViaLabel(s *types.State, item int, label, actor string, isPullRequest bool, now time.Time) bool {
	if isPullRequest {
		return false
	}
	r := s.Review(item)
	if r == nil || r.CurrentReviewer == "" || r.Completed() {
		return false
	}
	r.CompletedAt = now
	r.CompletedBy = actor
	r.CompletionSource = "issue_label: " + label
	return true
}

// closeItem drops the active review for a closed item.
func closeItem(s *types.State, item int) bool {
	key := types.ItemKey(item)
	if _, ok := s.ActiveReviews[key]; !ok {
		return false
	}
	delete(s.ActiveReviews, key)
	return true
}

// refreshActivity updates the activity clock when the current reviewer
// comments on their item, command or not.
func refreshActivity(s *types.State, item int, actor string, now time.Time) bool {
	r := s.Review(item)
	if r == nil || r.Completed() || !types.EqualHandle(r.CurrentReviewer, actor) {
		return false
	}
	r.LastReviewerActivity = now
	r.TransitionWarningSent = time.Time{}
	return true
}

// overdueItem is one finding from checkOverdue.
type overdueItem struct {
	Reviewer        string
	Item            int
	NeedsTransition bool // false: first warning is due
}

// checkOverdue scans active reviews for stalled reviewers. A review with no
// activity past the warning threshold gets a first warning; once the
// warning itself is older than the transition threshold, the review is due
// for reassignment.
func checkOverdue(s *types.State, now time.Time, warnAfter, transitionAfter time.Duration) []overdueItem {
	var findings []overdueItem
	for key, r := range s.ActiveReviews {
		if r == nil || r.CurrentReviewer == "" || r.Completed() {
			continue
		}
		item, ok := parseItemKey(key)
		if !ok {
			continue
		}
		if r.TransitionWarningSent.IsZero() {
			anchor := r.LastReviewerActivity
			if anchor.IsZero() {
				anchor = r.AssignedAt
			}
			if !anchor.IsZero() && now.Sub(anchor) >= warnAfter {
				findings = append(findings, overdueItem{Item: item, Reviewer: r.CurrentReviewer})
			}
			continue
		}
		if now.Sub(r.TransitionWarningSent) >= transitionAfter {
			findings = append(findings, overdueItem{Item: item, Reviewer: r.CurrentReviewer, NeedsTransition: true})
		}
	}
	return findings
}

func parseItemKey(key string) (int, bool) {
	item, err := strconv.Atoi(key)
	if err != nil || item < 0 {
		return 0, false
	}
	return item, true
}
