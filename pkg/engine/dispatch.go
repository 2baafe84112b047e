package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/codeGROOVE-dev/rota/pkg/command"
	"github.com/codeGROOVE-dev/rota/pkg/state"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// Dispatch applies one event to the state. The state is mutated in place;
// the caller persists it when Outcome.StateChanged is set. User-level
// failures become response comments; only collaborator failures return an
// error, and then the state must not be persisted.
func (e *Engine) Dispatch(ctx context.Context, s *types.State, ev types.Event) (Outcome, error) {
	now := e.now()

	// Reinstatement has no dedicated trigger, so expirations run ahead of
	// every event.
	returned := state.ProcessExpirations(s, now)
	out := Outcome{StateChanged: len(returned) > 0}
	for _, h := range returned {
		slog.Info("Vacation ended, member rejoined queue", "component", "engine", "member", h)
	}

	var err error
	switch ev.Kind {
	case types.EventItemOpened:
		err = e.handleItemOpened(ctx, s, ev, &out)
	case types.EventLabelApplied:
		err = e.handleLabelApplied(ctx, s, ev, &out)
	case types.EventCommentPosted:
		err = e.handleComment(ctx, s, ev, &out)
	case types.EventReviewSubmitted:
		err = e.handleReviewSubmitted(ctx, s, ev, &out)
	case types.EventItemClosed:
		if closeItem(s, ev.Item) {
			out.Handled = true
			out.StateChanged = true
		}
	case types.EventTick:
		err = e.handleTick(ctx, s, &out)
	default:
		slog.Warn("Ignoring unknown event kind", "component", "engine", "kind", ev.Kind)
	}
	if err != nil {
		return Outcome{}, err
	}

	if out.StateChanged {
		s.LastUpdated = e.now()
	}
	return out, nil
}

func (e *Engine) triggerLabel(label string) bool {
	for _, l := range e.cfg.TriggerLabels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

func (e *Engine) handleItemOpened(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	matched := false
	for _, l := range ev.Labels {
		if e.triggerLabel(l) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	return e.assignFresh(ctx, s, ev, out)
}

func (e *Engine) handleLabelApplied(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	if strings.EqualFold(ev.Label, e.cfg.CompletionLabel) {
		if completeViaLabel(s, ev.Item, ev.Label, ev.Actor, ev.IsPullRequest, e.now()) {
			out.Handled = true
			out.StateChanged = true
			out.Response = e.msgCompleted(ev.Item, ev.Actor)
			return e.respond(ctx, ev.Item, out.Response)
		}
		return nil
	}
	if !e.triggerLabel(ev.Label) {
		return nil
	}
	return e.assignFresh(ctx, s, ev, out)
}

// assignFresh assigns the next reviewer to an item that has none yet.
func (e *Engine) assignFresh(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	if r := s.Review(ev.Item); r != nil && r.CurrentReviewer != "" {
		slog.Info("Item already has a tracked reviewer", "component", "engine", "item", ev.Item, "reviewer", r.CurrentReviewer)
		return nil
	}
	assignees, err := e.host.Assignees(ctx, ev.Item)
	if err != nil {
		return fmt.Errorf("failed to list assignees: %w", err)
	}
	if len(assignees) > 0 {
		slog.Info("Item already has assignees", "component", "engine", "item", ev.Item, "assignees", assignees)
		return nil
	}

	next, ok := state.NextEligible(s, nil)
	if !ok {
		slog.Warn("No eligible reviewer in queue", "component", "engine", "item", ev.Item)
		return nil
	}
	assign(s, ev.Item, next, types.MethodRoundRobin, ev.IsPullRequest, e.now())
	out.Handled = true
	out.StateChanged = true
	out.Response = e.msgAssigned(next)

	if err := e.host.AssignReviewer(ctx, ev.Item, next, ev.IsPullRequest); err != nil {
		return fmt.Errorf("failed to assign reviewer: %w", err)
	}
	if err := e.respond(ctx, ev.Item, e.reviewerGuidance(next, ev.IsPullRequest)); err != nil {
		return err
	}
	slog.Info("Assigned reviewer", "component", "engine", "item", ev.Item, "reviewer", next)
	return nil
}

func (e *Engine) handleReviewSubmitted(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	completed, handled := recordActivity(s, ev.Item, ev.Actor, ev.ReviewState, e.now())
	if !handled {
		return nil
	}
	out.Handled = true
	out.StateChanged = true
	if completed {
		out.Response = e.msgCompleted(ev.Item, ev.Actor)
		return e.respond(ctx, ev.Item, out.Response)
	}
	return nil
}

func (e *Engine) handleComment(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	if types.EqualHandle(ev.Actor, e.cfg.BotHandle) {
		return nil
	}

	// A comment by the current reviewer counts as activity, command or not.
	if refreshActivity(s, ev.Item, ev.Actor, e.now()) {
		out.StateChanged = true
	}

	cmd, ok := command.Parse(ev.Body, e.cfg.BotHandle)
	if !ok {
		return nil
	}

	switch cmd.Kind {
	case command.KindPass:
		return e.cmdPass(ctx, s, ev, cmd, out)
	case command.KindAway:
		return e.cmdAway(ctx, s, ev, cmd, out)
	case command.KindRelease:
		return e.cmdRelease(ctx, s, ev, cmd, out)
	case command.KindClaim:
		return e.cmdClaim(ctx, s, ev, out)
	case command.KindAssignUser:
		return e.cmdAssignUser(ctx, s, ev, cmd, out)
	case command.KindAssignNext:
		return e.cmdAssignNext(ctx, s, ev, out)
	case command.KindLabel:
		return e.cmdLabel(ctx, ev, cmd, out)
	case command.KindSyncMembers:
		return e.cmdSyncMembers(ctx, s, ev, out)
	case command.KindQueue:
		out.Response = renderQueue(s)
		return e.respond(ctx, ev.Item, out.Response)
	case command.KindCommands:
		out.Response = command.Help(e.cfg.BotHandle)
		return e.respond(ctx, ev.Item, out.Response)
	case command.KindMultiple:
		out.Response = e.msgMultipleCommands()
		return e.respond(ctx, ev.Item, out.Response)
	case command.KindMalformedKnown:
		out.Response = e.msgMalformedKnown(cmd.Name)
		return e.respond(ctx, ev.Item, out.Response)
	case command.KindMalformedUnknown:
		out.Response = e.msgMalformedUnknown(cmd.Name)
		return e.respond(ctx, ev.Item, out.Response)
	case command.KindUnknown:
		out.Response = e.msgUnknownCommand(cmd.Name)
		return e.respond(ctx, ev.Item, out.Response)
	default:
		return nil
	}
}

func (e *Engine) cmdPass(ctx context.Context, s *types.State, ev types.Event, cmd command.Command, out *Outcome) error {
	next, err := passReview(s, ev.Item, ev.Actor, ev.IsPullRequest, e.now())
	if err != nil {
		current := ""
		if r := s.Review(ev.Item); r != nil {
			current = r.CurrentReviewer
		}
		out.Response = e.msgNotCurrentReviewer(ev.Actor, current)
		return e.respond(ctx, ev.Item, out.Response)
	}

	out.Handled = true
	out.StateChanged = true
	if next == "" {
		out.Response = e.msgPassExhausted(ev.Actor)
		if err := e.host.UnassignReviewer(ctx, ev.Item, ev.Actor, ev.IsPullRequest); err != nil {
			return fmt.Errorf("failed to unassign reviewer: %w", err)
		}
		return e.respond(ctx, ev.Item, out.Response)
	}

	out.Response = e.msgPassed(ev.Actor, next, strings.Join(cmd.Args, " "))
	if err := e.host.UnassignReviewer(ctx, ev.Item, ev.Actor, ev.IsPullRequest); err != nil {
		return fmt.Errorf("failed to unassign reviewer: %w", err)
	}
	if err := e.host.AssignReviewer(ctx, ev.Item, next, ev.IsPullRequest); err != nil {
		return fmt.Errorf("failed to assign reviewer: %w", err)
	}
	return e.respond(ctx, ev.Item, out.Response)
}

func (e *Engine) cmdAway(ctx context.Context, s *types.State, ev types.Event, cmd command.Command, out *Outcome) error {
	if len(cmd.Args) == 0 {
		out.Response = e.msgAwayUsage(ev.Actor)
		return e.respond(ctx, ev.Item, out.Response)
	}
	returnDate, err := state.ParseReturnDate(cmd.Args[0], e.now())
	if err != nil {
		out.Response = fmt.Sprintf("❌ @%s, %v.", ev.Actor, err)
		return e.respond(ctx, ev.Item, out.Response)
	}
	reason := strings.Join(cmd.Args[1:], " ")
	if !state.StartVacation(s, ev.Actor, returnDate, reason) {
		out.Response = fmt.Sprintf("❌ @%s, you're not in the reviewer queue.", ev.Actor)
		return e.respond(ctx, ev.Item, out.Response)
	}
	out.Handled = true
	out.StateChanged = true
	out.Response = e.msgAway(ev.Actor, returnDate)
	return e.respond(ctx, ev.Item, out.Response)
}

func (e *Engine) cmdRelease(ctx context.Context, s *types.State, ev types.Event, cmd command.Command, out *Outcome) error {
	target := cmd.Target
	if target == "" {
		target = ev.Actor
	}

	if !types.EqualHandle(target, ev.Actor) {
		allowed, err := e.host.HasPermission(ctx, ev.Actor, e.cfg.PermissionLevel)
		if err != nil {
			return fmt.Errorf("failed to check permission: %w", err)
		}
		if !allowed {
			out.Response = e.msgReleaseDenied(ev.Actor)
			return e.respond(ctx, ev.Item, out.Response)
		}
	}

	r := s.Review(ev.Item)
	if r == nil || !types.EqualHandle(r.CurrentReviewer, target) {
		out.Response = fmt.Sprintf("❌ @%s is not the current reviewer of this item.", target)
		return e.respond(ctx, ev.Item, out.Response)
	}

	released, _ := release(s, ev.Item)
	out.Handled = true
	out.StateChanged = true
	out.Response = e.msgReleased(released, ev.Actor)
	if err := e.host.UnassignReviewer(ctx, ev.Item, released, ev.IsPullRequest); err != nil {
		return fmt.Errorf("failed to unassign reviewer: %w", err)
	}
	return e.respond(ctx, ev.Item, out.Response)
}

func (e *Engine) cmdClaim(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	previous := claim(s, ev.Item, ev.Actor, ev.IsPullRequest, e.now())
	out.Handled = true
	out.StateChanged = true
	out.Response = e.msgClaimed(ev.Actor, previous)
	if previous != "" {
		if err := e.host.UnassignReviewer(ctx, ev.Item, previous, ev.IsPullRequest); err != nil {
			return fmt.Errorf("failed to unassign reviewer: %w", err)
		}
	}
	if err := e.host.AssignReviewer(ctx, ev.Item, ev.Actor, ev.IsPullRequest); err != nil {
		return fmt.Errorf("failed to assign reviewer: %w", err)
	}
	return e.respond(ctx, ev.Item, out.Response)
}

func (e *Engine) cmdAssignUser(ctx context.Context, s *types.State, ev types.Event, cmd command.Command, out *Outcome) error {
	if cmd.Target == "" {
		out.Response = fmt.Sprintf("❌ Usage: `%s /r? @username` or `%s /r? next`.", e.mention(), e.mention())
		return e.respond(ctx, ev.Item, out.Response)
	}
	for _, v := range s.PassUntil {
		if types.EqualHandle(v.Handle, cmd.Target) {
			out.Response = e.msgAssignTargetAway(cmd.Target, v.ReturnDate)
			return e.respond(ctx, ev.Item, out.Response)
		}
	}
	inQueue := false
	for _, m := range s.Queue {
		if types.EqualHandle(m.Handle, cmd.Target) {
			inQueue = true
			break
		}
	}
	if !inQueue {
		out.Response = e.msgAssignTargetNotMember(cmd.Target)
		return e.respond(ctx, ev.Item, out.Response)
	}
	return e.reassignTo(ctx, s, ev, cmd.Target, types.MethodExplicit, out)
}

func (e *Engine) cmdAssignNext(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	next, ok := state.NextEligible(s, nil)
	if !ok {
		out.Response = "❌ The reviewer queue is empty; nobody can be assigned."
		return e.respond(ctx, ev.Item, out.Response)
	}
	return e.reassignTo(ctx, s, ev, next, types.MethodRoundRobin, out)
}

func (e *Engine) reassignTo(ctx context.Context, s *types.State, ev types.Event, reviewer string, method types.AssignmentMethod, out *Outcome) error {
	previous := ""
	if r := s.Review(ev.Item); r != nil && !types.EqualHandle(r.CurrentReviewer, reviewer) {
		previous = r.CurrentReviewer
	}
	assign(s, ev.Item, reviewer, method, ev.IsPullRequest, e.now())
	out.Handled = true
	out.StateChanged = true
	out.Response = e.msgAssigned(reviewer)

	if previous != "" {
		if err := e.host.UnassignReviewer(ctx, ev.Item, previous, ev.IsPullRequest); err != nil {
			return fmt.Errorf("failed to unassign reviewer: %w", err)
		}
	}
	if err := e.host.AssignReviewer(ctx, ev.Item, reviewer, ev.IsPullRequest); err != nil {
		return fmt.Errorf("failed to assign reviewer: %w", err)
	}
	return e.respond(ctx, ev.Item, out.Response)
}

func (e *Engine) cmdLabel(ctx context.Context, ev types.Event, cmd command.Command, out *Outcome) error {
	repoLabels, err := e.host.RepoLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list repository labels: %w", err)
	}

	var applied []command.LabelOp
	var unknown []string
	for _, op := range cmd.Labels {
		if !repoLabels[op.Name] {
			unknown = append(unknown, op.Name)
			continue
		}
		if op.Add {
			err = e.host.AddLabel(ctx, ev.Item, op.Name)
		} else {
			err = e.host.RemoveLabel(ctx, ev.Item, op.Name)
		}
		if err != nil {
			return fmt.Errorf("failed to change label %q: %w", op.Name, err)
		}
		applied = append(applied, op)
	}

	out.Response = renderLabelResult(applied, unknown)
	return e.respond(ctx, ev.Item, out.Response)
}

func (e *Engine) cmdSyncMembers(ctx context.Context, s *types.State, ev types.Event, out *Outcome) error {
	members, err := e.host.FetchMembers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch roster: %w", err)
	}
	changes := state.SyncRoster(s, members)
	out.Handled = true
	out.StateChanged = len(changes) > 0
	out.Response = renderRosterChanges(changes)
	return e.respond(ctx, ev.Item, out.Response)
}

// handleTick sweeps all active reviews for stalled reviewers.
func (e *Engine) handleTick(ctx context.Context, s *types.State, out *Outcome) error {
	now := e.now()
	findings := checkOverdue(s, now, e.cfg.WarningAfter, e.cfg.TransitionAfter)
	sort.Slice(findings, func(i, j int) bool { return findings[i].Item < findings[j].Item })

	var notes []string
	for _, f := range findings {
		r := s.Review(f.Item)
		if r == nil {
			continue
		}
		if !f.NeedsTransition {
			r.TransitionWarningSent = now
			out.Handled = true
			out.StateChanged = true
			warnDays := int(e.cfg.WarningAfter.Hours() / 24)
			if err := e.respond(ctx, f.Item, e.msgOverdueWarning(f.Reviewer, warnDays)); err != nil {
				return err
			}
			notes = append(notes, fmt.Sprintf("warned @%s on #%d", f.Reviewer, f.Item))
			slog.Info("Posted overdue warning", "component", "engine", "item", f.Item, "reviewer", f.Reviewer)
			continue
		}

		// Transition: reassign like a pass, skip-listing the stalled
		// reviewer. When nobody is eligible the item keeps its reviewer
		// and is retried on the next sweep.
		if !r.HasSkipped(f.Reviewer) {
			r.Skipped = append(r.Skipped, f.Reviewer)
		}
		next, ok := state.NextEligible(s, state.SkipSet(r.Skipped...))
		if !ok {
			slog.Warn("No eligible replacement for overdue review", "component", "engine", "item", f.Item, "reviewer", f.Reviewer)
			continue
		}
		assign(s, f.Item, next, types.MethodRoundRobin, false, now)
		out.Handled = true
		out.StateChanged = true
		if err := e.host.UnassignReviewer(ctx, f.Item, f.Reviewer, false); err != nil {
			return fmt.Errorf("failed to unassign reviewer: %w", err)
		}
		if err := e.host.AssignReviewer(ctx, f.Item, next, false); err != nil {
			return fmt.Errorf("failed to assign reviewer: %w", err)
		}
		if err := e.respond(ctx, f.Item, e.msgTransition(f.Reviewer, next)); err != nil {
			return err
		}
		notes = append(notes, fmt.Sprintf("reassigned #%d from @%s to @%s", f.Item, f.Reviewer, next))
		slog.Info("Reassigned overdue review", "component", "engine", "item", f.Item, "from", f.Reviewer, "to", next)
	}
	out.Response = strings.Join(notes, "; ")
	return nil
}

func (e *Engine) respond(ctx context.Context, item int, body string) error {
	if item == 0 || body == "" {
		return nil
	}
	if err := e.host.PostComment(ctx, item, body); err != nil {
		return fmt.Errorf("failed to post response: %w", err)
	}
	return nil
}
