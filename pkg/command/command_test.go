package command

import (
	"strings"
	"testing"
)

const bot = "rota-bot"

func TestParseSimpleCommand(t *testing.T) {
	cmd, ok := Parse("@rota-bot /queue", bot)
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Kind != KindQueue {
		t.Errorf("kind: got %q, want %q", cmd.Kind, KindQueue)
	}
}

func TestParsePassWithReason(t *testing.T) {
	cmd, ok := Parse("@rota-bot /pass busy this week", bot)
	if !ok || cmd.Kind != KindPass {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
	if strings.Join(cmd.Args, " ") != "busy this week" {
		t.Errorf("args: got %v", cmd.Args)
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	cmd, ok := Parse("@Rota-Bot /PASS", bot)
	if !ok || cmd.Kind != KindPass {
		t.Errorf("mention and command should match case-insensitively, got %+v ok=%v", cmd, ok)
	}
}

func TestParseAssignTargets(t *testing.T) {
	tests := []struct {
		body       string
		wantKind   Kind
		wantTarget string
	}{
		{"@rota-bot /r? @alice", KindAssignUser, "alice"},
		{"@rota-bot /r? alice", KindAssignUser, "alice"},
		{"@rota-bot /r? next", KindAssignNext, ""},
		{"@rota-bot /r? producers", KindAssignNext, ""},
		{"@rota-bot /r?", KindAssignUser, ""},
	}
	for _, tc := range tests {
		cmd, ok := Parse(tc.body, bot)
		if !ok {
			t.Errorf("%q: expected a command", tc.body)
			continue
		}
		if cmd.Kind != tc.wantKind || cmd.Target != tc.wantTarget {
			t.Errorf("%q: got kind=%q target=%q, want kind=%q target=%q",
				tc.body, cmd.Kind, cmd.Target, tc.wantKind, tc.wantTarget)
		}
	}
}

func TestParseReleaseWithTarget(t *testing.T) {
	cmd, ok := Parse("@rota-bot /release @bob covering for them", bot)
	if !ok || cmd.Kind != KindRelease {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
	if cmd.Target != "bob" {
		t.Errorf("target: got %q, want bob", cmd.Target)
	}
	if strings.Join(cmd.Args, " ") != "covering for them" {
		t.Errorf("args: got %v", cmd.Args)
	}
}

func TestParseReleaseWithoutTarget(t *testing.T) {
	cmd, ok := Parse("@rota-bot /release done with this", bot)
	if !ok || cmd.Kind != KindRelease || cmd.Target != "" {
		t.Errorf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseLabelOps(t *testing.T) {
	cmd, ok := Parse("@rota-bot /label +needs work -stale-review +good", bot)
	if !ok || cmd.Kind != KindLabel {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
	want := []LabelOp{
		{Name: "needs work", Add: true},
		{Name: "stale-review", Add: false},
		{Name: "good", Add: true},
	}
	if len(cmd.Labels) != len(want) {
		t.Fatalf("labels: got %v, want %v", cmd.Labels, want)
	}
	for i, w := range want {
		if cmd.Labels[i] != w {
			t.Errorf("label %d: got %+v, want %+v", i, cmd.Labels[i], w)
		}
	}
}

func TestParseUnknownCommand(t *testing.T) {
	cmd, ok := Parse("@rota-bot /rectify", bot)
	if !ok || cmd.Kind != KindUnknown || cmd.Name != "rectify" {
		t.Errorf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseMultipleCommands(t *testing.T) {
	cmd, ok := Parse("@rota-bot /queue\n@rota-bot /commands", bot)
	if !ok || cmd.Kind != KindMultiple {
		t.Errorf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseMalformed(t *testing.T) {
	cmd, ok := Parse("@rota-bot pass", bot)
	if !ok || cmd.Kind != KindMalformedKnown || cmd.Name != "pass" {
		t.Errorf("missing slash on known command: got %+v ok=%v", cmd, ok)
	}

	cmd, ok = Parse("@rota-bot greetings", bot)
	if !ok || cmd.Kind != KindMalformedUnknown || cmd.Name != "greetings" {
		t.Errorf("missing slash on unknown word: got %+v ok=%v", cmd, ok)
	}
}

func TestParseConversationalMentionIgnored(t *testing.T) {
	for _, body := range []string{
		"@rota-bot thanks for the assignment!",
		"@rota-bot can you explain?",
		"I asked @rota-bot please look at this",
	} {
		if cmd, ok := Parse(body, bot); ok {
			t.Errorf("%q should not parse as a command, got %+v", body, cmd)
		}
	}
}

func TestParseNoMention(t *testing.T) {
	if _, ok := Parse("just a regular review comment", bot); ok {
		t.Error("comment without mention should yield nothing")
	}
}

func TestParseIgnoresCodeRegions(t *testing.T) {
	body := "Here is how you would do it:\n" +
		"```\n@rota-bot /pass\n```\n" +
		"    @rota-bot /queue\n" +
		"And `@rota-bot /commands` inline."
	if cmd, ok := Parse(body, bot); ok {
		t.Errorf("quoted commands must not execute, got %+v", cmd)
	}
}

func TestParseCommandAfterCodeBlock(t *testing.T) {
	body := "```\nexample code\n```\n@rota-bot /claim"
	cmd, ok := Parse(body, bot)
	if !ok || cmd.Kind != KindClaim {
		t.Errorf("real command after a code block should parse, got %+v ok=%v", cmd, ok)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	help := Help(bot)
	for _, d := range Descriptions {
		if !strings.Contains(help, "/"+d.Name) {
			t.Errorf("help output missing /%s", d.Name)
		}
	}
}
