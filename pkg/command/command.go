// Package command parses bot-mention commands out of comment text.
//
// A command is a line of the form "@bot-handle /name args...". Text inside
// fenced code blocks, indented code, or inline backtick spans never triggers
// a command. Parsing classifies malformed input instead of discarding it so
// the dispatcher can answer with usable guidance.
package command

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a parsed command.
type Kind string

// Command kinds. The malformed and multiple kinds carry no arguments beyond
// the attempted word; they exist so the caller can respond helpfully.
const (
	KindPass             Kind = "pass"
	KindAway             Kind = "away"
	KindRelease          Kind = "release"
	KindClaim            Kind = "claim"
	KindAssignUser       Kind = "assign-user"
	KindAssignNext       Kind = "assign-next"
	KindLabel            Kind = "label"
	KindSyncMembers      Kind = "sync-members"
	KindQueue            Kind = "queue"
	KindCommands         Kind = "commands"
	KindUnknown          Kind = "unknown"
	KindMalformedKnown   Kind = "malformed-known"
	KindMalformedUnknown Kind = "malformed-unknown"
	KindMultiple         Kind = "multiple"
)

// LabelOp is one +add or -remove operation from a /label command.
type LabelOp struct {
	Name string
	Add  bool
}

// Command is the parsed result handed to the dispatcher.
type Command struct {
	Kind   Kind
	Name   string    // raw command word as typed, lower-cased
	Target string    // @user for assign/release, without the @
	Args   []string  // remaining whitespace-split arguments
	Labels []LabelOp // for KindLabel
}

// Descriptions lists every user-facing command with its help text, in the
// order the /commands output shows them.
var Descriptions = []struct {
	Name string
	Help string
}{
	{"pass", "Pass this review to next in queue"},
	{"away", "Step away from queue until date (YYYY-MM-DD)"},
	{"release", "Release your assignment (no auto-reassign)"},
	{"claim", "Claim this review for yourself"},
	{"r?", "Assign a reviewer (@username or 'next')"},
	{"label", "Add/remove labels (+label-name or -label-name)"},
	{"sync-members", "Sync queue with the member roster"},
	{"queue", "Show reviewer queue and who's next"},
	{"commands", "Show all available commands"},
}

// Words the bot ignores after a bare mention. People greet the bot or talk
// about it; only command-shaped words get a malformed-command reply.
var conversational = map[string]bool{
	"i": true, "we": true, "you": true, "the": true, "a": true, "an": true,
	"is": true, "are": true, "can": true, "could": true, "would": true,
	"should": true, "please": true, "thanks": true, "thank": true,
	"hi": true, "hello": true, "hey": true,
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`\n]*`")
)

// Parse extracts a single command addressed to botHandle from body.
// The second return is false when the comment contains no actionable
// mention at all.
func Parse(body, botHandle string) (Command, bool) {
	text := stripCodeRegions(body)
	mention := "@" + strings.TrimPrefix(botHandle, "@")

	commandRe := regexp.MustCompile(`(?im)` + regexp.QuoteMeta(mention) + `\s+/(\S+)(.*)$`)
	matches := commandRe.FindAllStringSubmatch(text, -1)
	if len(matches) > 1 {
		return Command{Kind: KindMultiple}, true
	}
	if len(matches) == 0 {
		return classifyBareMention(text, mention)
	}

	name := strings.ToLower(matches[0][1])
	args := strings.Fields(strings.TrimSpace(matches[0][2]))
	return interpret(name, strings.TrimSpace(matches[0][2]), args), true
}

func interpret(name, argText string, args []string) Command {
	cmd := Command{Name: name, Args: args}
	switch name {
	case "pass":
		cmd.Kind = KindPass
	case "away":
		cmd.Kind = KindAway
	case "release":
		cmd.Kind = KindRelease
		if len(args) > 0 && strings.HasPrefix(args[0], "@") {
			cmd.Target = strings.TrimPrefix(args[0], "@")
			cmd.Args = args[1:]
		}
	case "claim":
		cmd.Kind = KindClaim
	case "r?":
		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		switch strings.ToLower(target) {
		case "next", "producers":
			cmd.Kind = KindAssignNext
		default:
			cmd.Kind = KindAssignUser
			cmd.Target = strings.TrimPrefix(target, "@")
		}
	case "label":
		cmd.Kind = KindLabel
		cmd.Labels = parseLabelOps(argText)
	case "sync-members":
		cmd.Kind = KindSyncMembers
	case "queue":
		cmd.Kind = KindQueue
	case "commands":
		cmd.Kind = KindCommands
	default:
		cmd.Kind = KindUnknown
	}
	return cmd
}

// classifyBareMention handles "@bot word" with no slash. Known command words
// get a did-you-mean reply, command-shaped strangers get generic help, and
// conversation is left alone.
func classifyBareMention(text, mention string) (Command, bool) {
	bareRe := regexp.MustCompile(`(?im)` + regexp.QuoteMeta(mention) + `\s+(\S+)`)
	m := bareRe.FindStringSubmatch(text)
	if m == nil {
		return Command{}, false
	}
	attempted := strings.ToLower(m[1])
	if conversational[attempted] {
		return Command{}, false
	}
	if knownCommand(attempted) {
		return Command{Kind: KindMalformedKnown, Name: attempted}, true
	}
	return Command{Kind: KindMalformedUnknown, Name: attempted}, true
}

func knownCommand(word string) bool {
	for _, d := range Descriptions {
		if d.Name == word {
			return true
		}
	}
	return false
}

// parseLabelOps splits "+needs work -stale" into signed label names. Names
// may contain spaces and hyphens; only a token starting with + or - opens a
// new op, later tokens extend the current name.
func parseLabelOps(argText string) []LabelOp {
	var ops []LabelOp
	for _, tok := range strings.Fields(argText) {
		switch {
		case len(tok) > 1 && (tok[0] == '+' || tok[0] == '-'):
			ops = append(ops, LabelOp{Name: tok[1:], Add: tok[0] == '+'})
		case len(ops) > 0:
			ops[len(ops)-1].Name += " " + tok
		}
	}
	return ops
}

// stripCodeRegions removes fenced blocks, indented code lines, and inline
// backtick spans so quoted examples of bot commands are never executed.
func stripCodeRegions(body string) string {
	text := fencedBlockRe.ReplaceAllString(body, "")
	text = inlineCodeRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Help renders the /commands output.
func Help(botHandle string) string {
	mention := "@" + strings.TrimPrefix(botHandle, "@")
	var b strings.Builder
	b.WriteString("## Available Commands\n\n")
	for _, d := range Descriptions {
		fmt.Fprintf(&b, "- `%s /%s` - %s\n", mention, d.Name, d.Help)
	}
	return b.String()
}
