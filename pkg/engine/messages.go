package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeGROOVE-dev/rota/pkg/command"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

func (e *Engine) mention() string {
	return "@" + strings.TrimPrefix(e.cfg.BotHandle, "@")
}

// reviewerGuidance is the welcome comment posted when a reviewer is
// assigned to an item.
func (e *Engine) reviewerGuidance(reviewer string, isPullRequest bool) string {
	kind := "issue"
	if isPullRequest {
		kind = "pull request"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Hey @%s! You've been assigned to review this %s.\n\n", reviewer, kind)
	b.WriteString("## Your Role as Reviewer\n\n")
	b.WriteString("1. **Begin your review within 14 days**\n")
	b.WriteString("2. **Provide constructive feedback** on the content and examples\n")
	b.WriteString("3. **Iterate with the author** until the change is ready\n\n")
	b.WriteString("## Bot Commands\n\n")
	b.WriteString("If you need to pass this review:\n")
	fmt.Fprintf(&b, "- `%s /pass [reason]` - Pass to the next reviewer in the queue\n", e.mention())
	fmt.Fprintf(&b, "- `%s /away YYYY-MM-DD [reason]` - Step away from the queue until a date\n", e.mention())
	fmt.Fprintf(&b, "- `%s /release [reason]` - Release your assignment (leaves it unassigned)\n\n", e.mention())
	fmt.Fprintf(&b, "Run `%s /commands` for the full command list.\n", e.mention())
	return b.String()
}

func (e *Engine) msgAssigned(reviewer string) string {
	return fmt.Sprintf("📋 @%s has been assigned to review this item.", reviewer)
}

func (e *Engine) msgPassed(from, to, reason string) string {
	msg := fmt.Sprintf("✅ @%s passed this review. @%s is now the reviewer.", from, to)
	if reason != "" {
		msg += "\n\n> " + reason
	}
	return msg
}

func (e *Engine) msgPassExhausted(from string) string {
	return fmt.Sprintf("⚠️ @%s passed this review, but everyone in the queue has already been skipped on this item. It is now unassigned; use `%s /claim` or `%s /r? @username` to pick it up.",
		from, e.mention(), e.mention())
}

func (e *Engine) msgNotCurrentReviewer(requester, current string) string {
	if current == "" {
		return fmt.Sprintf("❌ @%s, this item has no assigned reviewer to pass from.", requester)
	}
	return fmt.Sprintf("❌ @%s, only the current reviewer (@%s) can pass this review.", requester, current)
}

func (e *Engine) msgReleased(target, requester string) string {
	if types.EqualHandle(target, requester) {
		return fmt.Sprintf("✅ @%s released this review. It is now unassigned.", target)
	}
	return fmt.Sprintf("✅ @%s released @%s from this review. It is now unassigned.", requester, target)
}

func (e *Engine) msgReleaseDenied(requester string) string {
	return fmt.Sprintf("❌ @%s, you need %s permission to release someone else's review.", requester, e.cfg.PermissionLevel)
}

func (e *Engine) msgClaimed(requester, previous string) string {
	if previous == "" {
		return fmt.Sprintf("✅ @%s claimed this review.", requester)
	}
	return fmt.Sprintf("✅ @%s claimed this review from @%s.", requester, previous)
}

func (e *Engine) msgAssignTargetAway(handle, returnDate string) string {
	return fmt.Sprintf("⚠️ @%s is currently marked as away until %s. Consider assigning someone else or waiting.", handle, returnDate)
}

func (e *Engine) msgAssignTargetNotMember(handle string) string {
	return fmt.Sprintf("⚠️ @%s is not in the reviewer queue, so they were not assigned. Use `%s /r? next` for the next queue member, or have them comment `%s /claim`.",
		handle, e.mention(), e.mention())
}

func (e *Engine) msgAway(handle, returnDate string) string {
	return fmt.Sprintf("✅ @%s is away until %s and has been removed from the rotation. They'll rejoin at the front of the queue on return.", handle, returnDate)
}

func (e *Engine) msgAwayUsage(requester string) string {
	return fmt.Sprintf("❌ @%s, usage: `%s /away YYYY-MM-DD [reason]` with a date in the future.", requester, e.mention())
}

func (e *Engine) msgCompleted(item int, by string) string {
	return fmt.Sprintf("🎉 Review complete! Thanks @%s for reviewing #%d.", by, item)
}

func (e *Engine) msgOverdueWarning(reviewer string, warnDays int) string {
	return fmt.Sprintf("⏰ @%s, this review has been waiting on you for over %d days. Please take a look, or use `%s /pass` if you can't get to it. It will be reassigned automatically if there's no activity.",
		reviewer, warnDays, e.mention())
}

func (e *Engine) msgTransition(old, next string) string {
	return fmt.Sprintf("🔁 The transition period ended with no activity from @%s. @%s is now the reviewer.", old, next)
}

func (e *Engine) msgMultipleCommands() string {
	return fmt.Sprintf("❌ Please issue one command per comment. Run `%s /commands` to see what's available.", e.mention())
}

func (e *Engine) msgMalformedKnown(word string) string {
	return fmt.Sprintf("❓ Did you mean `%s /%s`? Commands need a leading slash.", e.mention(), word)
}

func (e *Engine) msgMalformedUnknown(word string) string {
	return fmt.Sprintf("❓ `%s` isn't a command I know. Run `%s /commands` to see what's available.", word, e.mention())
}

func (e *Engine) msgUnknownCommand(name string) string {
	return fmt.Sprintf("❓ Unknown command `/%s`. Run `%s /commands` to see what's available.", name, e.mention())
}

// renderQueue shows the rotation with a cursor marker plus the away list.
func renderQueue(s *types.State) string {
	var b strings.Builder
	b.WriteString("## 📊 Reviewer Queue\n\n")
	if len(s.Queue) == 0 {
		b.WriteString("The queue is empty.\n")
	}
	for i, m := range s.Queue {
		marker := "  "
		if i == s.CurrentIndex {
			marker = "➡️"
		}
		name := ""
		if m.Name != "" {
			name = " (" + m.Name + ")"
		}
		fmt.Fprintf(&b, "%s @%s%s\n", marker, m.Handle, name)
	}
	if len(s.PassUntil) > 0 {
		b.WriteString("\n### Away\n\n")
		for _, v := range s.PassUntil {
			line := fmt.Sprintf("- @%s until %s", v.Handle, v.ReturnDate)
			if v.Reason != "" {
				line += " (" + v.Reason + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// renderLabelResult summarizes applied and rejected label operations.
func renderLabelResult(applied []command.LabelOp, unknown []string) string {
	var lines []string
	for _, op := range applied {
		if op.Add {
			lines = append(lines, fmt.Sprintf("✅ Added label `%s`", op.Name))
		} else {
			lines = append(lines, fmt.Sprintf("✅ Removed label `%s`", op.Name))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		lines = append(lines, fmt.Sprintf("❌ Unknown label(s): `%s`", strings.Join(unknown, "`, `")))
	}
	if len(lines) == 0 {
		return "❌ No label operations given. Usage: `/label +label-name -other-label`"
	}
	return strings.Join(lines, "\n")
}

func renderRosterChanges(changes []string) string {
	if len(changes) == 0 {
		return "✅ Queue is already in sync with the roster."
	}
	var b strings.Builder
	b.WriteString("✅ Synced queue with the roster:\n")
	for _, c := range changes {
		b.WriteString("- " + c + "\n")
	}
	return b.String()
}
