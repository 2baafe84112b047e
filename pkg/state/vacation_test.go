package state

import (
	"testing"
	"time"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

func TestParseReturnDate(t *testing.T) {
	today := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"future date", "2026-09-15", false},
		{"tomorrow", "2026-08-31", false},
		{"today", "2026-08-30", true},
		{"past date", "2026-01-01", true},
		{"bad format", "Sep 15 2026", true},
		{"empty", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReturnDate(tc.value, today)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseReturnDate(%q) = %q, want error", tc.value, got)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseReturnDate(%q): %v", tc.value, err)
			}
		})
	}
}

func TestStartVacationMovesMemberOffQueue(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol"), CurrentIndex: 2}
	if !StartVacation(&s, "carol", "2026-09-15", "travel") {
		t.Fatal("expected StartVacation to succeed")
	}
	if len(s.Queue) != 2 {
		t.Fatalf("queue after vacation: %v", handles(s.Queue))
	}
	if s.CurrentIndex != 0 {
		t.Errorf("cursor should re-clamp after removal, got %d", s.CurrentIndex)
	}
	if len(s.PassUntil) != 1 || s.PassUntil[0].Handle != "carol" || s.PassUntil[0].Reason != "travel" {
		t.Errorf("ledger entry wrong: %+v", s.PassUntil)
	}
	for _, h := range handles(s.Queue) {
		if h == "carol" {
			t.Error("member must not be in both queue and ledger")
		}
	}
}

func TestStartVacationBeforeCursorKeepsNextPick(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol", "dave"), CurrentIndex: 2}
	if !StartVacation(&s, "alice", "2026-09-15", "") {
		t.Fatal("expected StartVacation to succeed")
	}
	if s.CurrentIndex != 1 {
		t.Errorf("cursor should follow the removal below it, got %d", s.CurrentIndex)
	}
	next, ok := NextEligible(&s, nil)
	if !ok || next != "carol" {
		t.Errorf("carol was next before alice left and must stay next, got %q", next)
	}
}

func TestStartVacationUpdatesExistingEntry(t *testing.T) {
	s := types.State{
		PassUntil: []types.VacationEntry{
			{Handle: "alice", ReturnDate: "2026-09-01", Reason: "pto"},
		},
	}
	if !StartVacation(&s, "alice", "2026-09-20", "") {
		t.Fatal("expected update of existing ledger entry")
	}
	if len(s.PassUntil) != 1 {
		t.Fatalf("ledger should still have one entry: %+v", s.PassUntil)
	}
	if s.PassUntil[0].ReturnDate != "2026-09-20" {
		t.Errorf("return date not updated: %q", s.PassUntil[0].ReturnDate)
	}
	if s.PassUntil[0].Reason != "pto" {
		t.Errorf("empty reason should keep the old one, got %q", s.PassUntil[0].Reason)
	}
}

func TestStartVacationUnknownHandle(t *testing.T) {
	s := types.State{Queue: queueOf("alice")}
	if StartVacation(&s, "mallory", "2026-09-15", "") {
		t.Error("unknown handle should fail")
	}
}

func TestProcessExpirationsReturnsMemberAtCursor(t *testing.T) {
	s := types.State{
		Queue:        queueOf("alice", "bob"),
		CurrentIndex: 1,
		PassUntil: []types.VacationEntry{
			{Handle: "carol", Name: "Carol", ReturnDate: "2026-08-30"},
			{Handle: "dave", ReturnDate: "2026-12-01"},
		},
	}
	today := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	returned := ProcessExpirations(&s, today)

	if len(returned) != 1 || returned[0] != "carol" {
		t.Fatalf("returned: got %v, want [carol]", returned)
	}
	got := handles(s.Queue)
	if len(got) != 3 || got[1] != "carol" {
		t.Errorf("returnee should sit at the cursor slot: %v", got)
	}
	next, ok := NextEligible(&s, nil)
	if !ok || next != "carol" {
		t.Errorf("returnee should be next up, got %q", next)
	}
	if len(s.PassUntil) != 1 || s.PassUntil[0].Handle != "dave" {
		t.Errorf("unexpired entry should remain: %+v", s.PassUntil)
	}
}

func TestProcessExpirationsNotDueYet(t *testing.T) {
	s := types.State{
		Queue: queueOf("alice"),
		PassUntil: []types.VacationEntry{
			{Handle: "bob", ReturnDate: "2026-09-01"},
		},
	}
	today := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)
	if returned := ProcessExpirations(&s, today); len(returned) != 0 {
		t.Errorf("nothing should expire before the return date, got %v", returned)
	}
	if len(s.PassUntil) != 1 {
		t.Errorf("ledger should be untouched: %+v", s.PassUntil)
	}
}

func TestProcessExpirationsIdempotent(t *testing.T) {
	s := types.State{
		Queue: queueOf("alice"),
		PassUntil: []types.VacationEntry{
			{Handle: "bob", ReturnDate: "2026-08-01"},
		},
	}
	today := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	ProcessExpirations(&s, today)
	if returned := ProcessExpirations(&s, today); len(returned) != 0 {
		t.Errorf("second pass should be a no-op, got %v", returned)
	}
	if len(s.Queue) != 2 {
		t.Errorf("member must not be duplicated: %v", handles(s.Queue))
	}
}

func TestProcessExpirationsBadDateExpiresImmediately(t *testing.T) {
	s := types.State{
		PassUntil: []types.VacationEntry{
			{Handle: "bob", ReturnDate: "whenever"},
		},
	}
	returned := ProcessExpirations(&s, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC))
	if len(returned) != 1 || returned[0] != "bob" {
		t.Errorf("unparseable return date should expire the entry, got %v", returned)
	}
	if len(s.PassUntil) != 0 {
		t.Errorf("ledger should be empty: %+v", s.PassUntil)
	}
}
