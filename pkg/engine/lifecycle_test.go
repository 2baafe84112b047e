package engine

import (
	"testing"
	"time"

	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

func threeMemberState() *types.State {
	return &types.State{
		Queue: []types.Member{
			{Handle: "alice"}, {Handle: "bob"}, {Handle: "carol"},
		},
	}
}

func TestAssignCreatesRecord(t *testing.T) {
	s := threeMemberState()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)

	r := s.Review(42)
	if r == nil {
		t.Fatal("expected active review")
	}
	if r.CurrentReviewer != "alice" || !r.AssignedAt.Equal(now) || !r.LastReviewerActivity.Equal(now) {
		t.Errorf("record wrong: %+v", r)
	}
	if r.Completed() {
		t.Error("fresh assignment must not be completed")
	}
	if len(s.Recent) != 1 || s.Recent[0].Handle != "alice" || s.Recent[0].Kind != "issue" {
		t.Errorf("assignment not logged: %+v", s.Recent)
	}
}

func TestAssignClearsCompletion(t *testing.T) {
	s := threeMemberState()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)
	r := s.Review(42)
	r.CompletedAt = now
	r.CompletedBy = "alice"
	r.CompletionSource = "review_approval"

	assign(s, 42, "bob", types.MethodExplicit, false, now.Add(time.Hour))
	if r.Completed() || r.CompletedBy != "" || r.CompletionSource != "" {
		t.Errorf("reassignment must clear completion fields: %+v", r)
	}
}

func TestPassNotCurrentReviewer(t *testing.T) {
	s := threeMemberState()
	now := time.Now()
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)

	if _, err := passReview(s, 42, "bob", false, now); err != ErrNotCurrentReviewer {
		t.Errorf("expected ErrNotCurrentReviewer, got %v", err)
	}
	if s.Review(42).CurrentReviewer != "alice" {
		t.Error("failed pass must not change the reviewer")
	}
}

func TestPassRotation(t *testing.T) {
	// Queue [alice bob carol], cursor 0: opening assigns alice and moves
	// the cursor to 1; alice passing assigns bob and moves it to 2.
	s := threeMemberState()
	now := time.Now()

	first, ok := nextAndAssign(s, 42, now)
	if !ok || first != "alice" || s.CurrentIndex != 1 {
		t.Fatalf("first assignment: got %q cursor=%d", first, s.CurrentIndex)
	}

	next, err := passReview(s, 42, "alice", false, now)
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if next != "bob" || s.CurrentIndex != 2 {
		t.Errorf("after pass: got %q cursor=%d, want bob cursor=2", next, s.CurrentIndex)
	}
	r := s.Review(42)
	if !r.HasSkipped("alice") {
		t.Error("passer must join the skip list")
	}
	if r.Method != types.MethodRoundRobin {
		t.Errorf("method: got %q", r.Method)
	}
}

func TestPassSecondTimeBySkippedReviewer(t *testing.T) {
	s := threeMemberState()
	now := time.Now()
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)
	if _, err := passReview(s, 42, "alice", false, now); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	// alice is skipped and no longer current, so her second pass fails.
	if _, err := passReview(s, 42, "alice", false, now); err != ErrNotCurrentReviewer {
		t.Errorf("expected ErrNotCurrentReviewer, got %v", err)
	}
}

func TestPassExhaustsQueue(t *testing.T) {
	s := &types.State{Queue: []types.Member{{Handle: "alice"}, {Handle: "bob"}}}
	now := time.Now()
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)

	next, err := passReview(s, 42, "alice", false, now)
	if err != nil || next != "bob" {
		t.Fatalf("first pass: next=%q err=%v", next, err)
	}
	next, err = passReview(s, 42, "bob", false, now)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if next != "" {
		t.Errorf("exhausted queue should report empty next, got %q", next)
	}
	if s.Review(42).CurrentReviewer != "" {
		t.Error("item should be unassigned once everyone was skipped")
	}
}

func TestReleaseAndClaim(t *testing.T) {
	s := threeMemberState()
	now := time.Now()
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)

	released, ok := release(s, 42)
	if !ok || released != "alice" {
		t.Fatalf("release: got %q ok=%v", released, ok)
	}
	if s.Review(42).CurrentReviewer != "" {
		t.Error("release must clear the reviewer without reassigning")
	}

	previous := claim(s, 42, "carol", false, now)
	if previous != "" {
		t.Errorf("claiming an unassigned item should displace nobody, got %q", previous)
	}
	r := s.Review(42)
	if r.CurrentReviewer != "carol" || r.Method != types.MethodExplicit {
		t.Errorf("claim result wrong: %+v", r)
	}
}

func TestRecordActivity(t *testing.T) {
	s := threeMemberState()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)
	r := s.Review(42)
	r.TransitionWarningSent = now

	later := now.Add(24 * time.Hour)
	completed, handled := recordActivity(s, 42, "alice", "commented", later)
	if completed || !handled {
		t.Errorf("commented: completed=%v handled=%v", completed, handled)
	}
	if !r.LastReviewerActivity.Equal(later) {
		t.Error("activity clock not refreshed")
	}
	if !r.TransitionWarningSent.IsZero() {
		t.Error("activity must clear the transition warning")
	}

	completed, handled = recordActivity(s, 42, "alice", "approved", later)
	if !completed || !handled {
		t.Errorf("approved: completed=%v handled=%v", completed, handled)
	}
	if r.CompletedBy != "alice" || r.CompletionSource != "review_approval" {
		t.Errorf("completion fields wrong: %+v", r)
	}
}

func TestRecordActivityByOtherActor(t *testing.T) {
	s := threeMemberState()
	now := time.Now()
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)

	if _, handled := recordActivity(s, 42, "mallory", "approved", now); handled {
		t.Error("approval by a non-reviewer must not be handled")
	}
	if s.Review(42).Completed() {
		t.Error("review must not complete from a stranger's approval")
	}
}

func TestCompleteViaLabel(t *testing.T) {
	s := threeMemberState()
	now := time.Now()
	assign(s, 42, "alice", types.MethodRoundRobin, false, now)

	if !completeViaLabel(s, 42, "sign-off: create pr", "maintainer", false, now) {
		t.Fatal("label on an issue should complete the review")
	}
	r := s.Review(42)
	if r.CompletionSource != "issue_label: sign-off: create pr" || r.CompletedBy != "maintainer" {
		t.Errorf("completion fields wrong: %+v", r)
	}

	assign(s, 43, "bob", types.MethodRoundRobin, true, now)
	if completeViaLabel(s, 43, "sign-off: create pr", "maintainer", true, now) {
		t.Error("label on a pull request must be ignored")
	}
	if s.Review(43).Completed() {
		t.Error("pull request review must not complete via label")
	}
}

func TestCloseItem(t *testing.T) {
	s := threeMemberState()
	assign(s, 42, "alice", types.MethodRoundRobin, false, time.Now())
	if !closeItem(s, 42) {
		t.Fatal("close should report removal")
	}
	if s.Review(42) != nil {
		t.Error("close must delete the record")
	}
	if closeItem(s, 42) {
		t.Error("second close should report nothing to do")
	}
}

func TestCheckOverdueWarningThenTransition(t *testing.T) {
	// 10 days of silence against 3-day warning / 7-day transition
	// thresholds: first a warning, and only once the warning itself is
	// old enough, a reassignment.
	s := threeMemberState()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	assign(s, 42, "alice", types.MethodRoundRobin, false, base)

	now := base.Add(10 * 24 * time.Hour)
	warn := 3 * 24 * time.Hour
	transition := 7 * 24 * time.Hour

	findings := checkOverdue(s, now, warn, transition)
	if len(findings) != 1 || findings[0].NeedsTransition {
		t.Fatalf("expected one first-warning finding, got %+v", findings)
	}

	s.Review(42).TransitionWarningSent = now.Add(-10 * 24 * time.Hour)
	findings = checkOverdue(s, now, warn, transition)
	if len(findings) != 1 || !findings[0].NeedsTransition {
		t.Fatalf("expected one transition finding, got %+v", findings)
	}
	if findings[0].Reviewer != "alice" || findings[0].Item != 42 {
		t.Errorf("finding wrong: %+v", findings[0])
	}
}

func TestCheckOverdueSkipsCompletedAndFresh(t *testing.T) {
	s := threeMemberState()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	assign(s, 1, "alice", types.MethodRoundRobin, false, base)
	assign(s, 2, "bob", types.MethodRoundRobin, false, base)
	s.Review(2).CompletedAt = base

	findings := checkOverdue(s, base.Add(time.Hour), 14*24*time.Hour, 14*24*time.Hour)
	if len(findings) != 0 {
		t.Errorf("fresh and completed reviews must not be flagged: %+v", findings)
	}
}

// nextAndAssign mimics the open-item assignment path without the host.
func nextAndAssign(s *types.State, item int, now time.Time) (string, bool) {
	next, ok := state.NextEligible(s, nil)
	if !ok {
		return "", false
	}
	assign(s, item, next, types.MethodRoundRobin, false, now)
	return next, true
}
