package github

import (
	"strings"
	"testing"
)

const rosterDoc = `# Coding Guidelines Subcommittee

Some intro text.

| Member Name | GitHub Username | Affiliation | Role |
|-------------|-----------------|-------------|------|
| Alice Adams | @alice | Initech | Producer |
| Bob Brown | bob | Globex | Producer, Chair |
| Carol Chen | @carol | Hooli | Consumer |
| Dave Diaz | | Umbrella | Producer |

More text after the table.
`

func TestParseRoster(t *testing.T) {
	members := ParseRoster(rosterDoc, "Producer")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d: %+v", len(members), members)
	}
	if members[0].Handle != "alice" || members[0].Name != "Alice Adams" {
		t.Errorf("first member wrong: %+v", members[0])
	}
	if members[1].Handle != "bob" {
		t.Errorf("@ prefix handling wrong: %+v", members[1])
	}
}

func TestParseRosterNoTable(t *testing.T) {
	if members := ParseRoster("just prose, no table", "Producer"); len(members) != 0 {
		t.Errorf("expected no members, got %+v", members)
	}
}

func TestParseRosterRoleFilter(t *testing.T) {
	members := ParseRoster(rosterDoc, "Consumer")
	if len(members) != 1 || members[0].Handle != "carol" {
		t.Errorf("role filter wrong: %+v", members)
	}
}

func TestLabelURLEscaping(t *testing.T) {
	c := &Client{owner: "o", repo: "r"}
	got := c.labelURL(7, "needs? review/50%")
	want := "https://api.github.com/repos/o/r/issues/7/labels/needs%3F%20review%2F50%25"
	if got != want {
		t.Errorf("labelURL: got %q, want %q", got, want)
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"empty", "", true},
		{"too short", "ghp_abc", true},
		{"prefixed token", "ghp_" + strings.Repeat("a", 40), false},
		{"server token", "ghs_" + strings.Repeat("b", 40), false},
		{"classic hex", strings.Repeat("0123456789abcdef", 2) + "01234567", false},
		{"classic bad chars", strings.Repeat("z", 40), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateToken(tc.token)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateToken(%q) = %v, wantErr=%v", tc.token, err, tc.wantErr)
			}
		})
	}
}

func TestSanitizeURLForLogging(t *testing.T) {
	got := sanitizeURLForLogging("https://api.github.com/repos/o/r/issues?access_token=secret")
	if got != "https://api.github.com/repos/o/r/issues" {
		t.Errorf("query parameters should be stripped, got %q", got)
	}
}

func TestHasPermissionRanking(t *testing.T) {
	if permissionRank["admin"] <= permissionRank["triage"] {
		t.Error("admin must outrank triage")
	}
	if permissionRank["read"] >= permissionRank["triage"] {
		t.Error("read must not satisfy triage")
	}
}
