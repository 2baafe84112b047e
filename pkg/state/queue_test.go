package state

import (
	"testing"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

func queueOf(handles ...string) []types.Member {
	members := make([]types.Member, 0, len(handles))
	for _, h := range handles {
		members = append(members, types.Member{Handle: h})
	}
	return members
}

func handles(queue []types.Member) []string {
	out := make([]string, 0, len(queue))
	for _, m := range queue {
		out = append(out, m.Handle)
	}
	return out
}

func TestNextEligibleCyclesInOrder(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol")}
	want := []string{"alice", "bob", "carol", "alice", "bob"}
	for i, w := range want {
		got, ok := NextEligible(&s, nil)
		if !ok || got != w {
			t.Fatalf("pick %d: got %q ok=%v, want %q", i, got, ok, w)
		}
	}
	if s.CurrentIndex != 2 {
		t.Errorf("cursor after five picks from three members: got %d, want 2", s.CurrentIndex)
	}
}

func TestNextEligibleSkips(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol")}
	got, ok := NextEligible(&s, SkipSet("Alice", "BOB"))
	if !ok || got != "carol" {
		t.Fatalf("got %q ok=%v, want carol", got, ok)
	}
	if s.CurrentIndex != 0 {
		t.Errorf("cursor should wrap past carol to 0, got %d", s.CurrentIndex)
	}
}

func TestNextEligibleAllSkipped(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob"), CurrentIndex: 1}
	got, ok := NextEligible(&s, SkipSet("alice", "bob"))
	if ok {
		t.Fatalf("expected no eligible member, got %q", got)
	}
	if s.CurrentIndex != 1 {
		t.Errorf("failed lookup must not move the cursor, got %d", s.CurrentIndex)
	}
}

func TestNextEligibleEmptyQueue(t *testing.T) {
	var s types.State
	if _, ok := NextEligible(&s, nil); ok {
		t.Error("empty queue should yield no member")
	}
}

func TestNextEligibleWrapsAtMostOnce(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol"), CurrentIndex: 2}
	got, ok := NextEligible(&s, SkipSet("carol"))
	if !ok || got != "alice" {
		t.Fatalf("got %q ok=%v, want alice", got, ok)
	}
	if s.CurrentIndex != 1 {
		t.Errorf("cursor should sit past alice, got %d", s.CurrentIndex)
	}
}

func TestRepositionAsNext(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol"), CurrentIndex: 1}
	if !RepositionAsNext(&s, "carol") {
		t.Fatal("expected reposition to succeed")
	}
	wantOrder := []string{"alice", "carol", "bob"}
	got := handles(s.Queue)
	for i, w := range wantOrder {
		if got[i] != w {
			t.Fatalf("queue order: got %v, want %v", got, wantOrder)
		}
	}
	next, ok := NextEligible(&s, nil)
	if !ok || next != "carol" {
		t.Errorf("repositioned member should be next, got %q", next)
	}
}

func TestRepositionAsNextFromBeforeCursor(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol"), CurrentIndex: 2}
	if !RepositionAsNext(&s, "alice") {
		t.Fatal("expected reposition to succeed")
	}
	next, ok := NextEligible(&s, nil)
	if !ok || next != "alice" {
		t.Errorf("repositioned member should be next, got %q", next)
	}
}

func TestRepositionAsNextUnknownHandle(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob"), CurrentIndex: 1}
	if RepositionAsNext(&s, "mallory") {
		t.Fatal("unknown handle should not reposition")
	}
	if s.CurrentIndex != 1 || len(s.Queue) != 2 {
		t.Errorf("state must be unchanged on failure: %+v", s)
	}
}

func TestSyncRosterAddsAndRemoves(t *testing.T) {
	s := types.State{
		Queue: queueOf("alice", "departed"),
		PassUntil: []types.VacationEntry{
			{Handle: "carol", ReturnDate: "2026-09-01"},
			{Handle: "gone", ReturnDate: "2026-09-01"},
		},
		CurrentIndex: 1,
	}
	roster := []types.Member{
		{Handle: "alice", Name: "Alice A."},
		{Handle: "bob", Name: "Bob B."},
		{Handle: "carol", Name: "Carol C."},
	}
	changes := SyncRoster(&s, roster)

	got := handles(s.Queue)
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("queue after sync: got %v, want [alice bob]", got)
	}
	if s.Queue[0].Name != "Alice A." {
		t.Errorf("display name not refreshed: %q", s.Queue[0].Name)
	}
	if len(s.PassUntil) != 1 || s.PassUntil[0].Handle != "carol" {
		t.Errorf("vacation ledger after sync: %+v", s.PassUntil)
	}
	if s.CurrentIndex >= len(s.Queue) {
		t.Errorf("cursor not re-clamped: %d", s.CurrentIndex)
	}
	if len(changes) != 3 {
		t.Errorf("expected 3 changes (add bob, remove departed, remove gone), got %v", changes)
	}
}

func TestSyncRosterRemovalBeforeCursorKeepsNextPick(t *testing.T) {
	s := types.State{Queue: queueOf("alice", "bob", "carol", "dave"), CurrentIndex: 2}
	roster := []types.Member{{Handle: "bob"}, {Handle: "carol"}, {Handle: "dave"}}
	SyncRoster(&s, roster)

	next, ok := NextEligible(&s, nil)
	if !ok || next != "carol" {
		t.Errorf("carol was next before the sync and must stay next, got %q", next)
	}
}

func TestSyncRosterSkipsMembersOnVacation(t *testing.T) {
	s := types.State{
		Queue: queueOf("alice"),
		PassUntil: []types.VacationEntry{
			{Handle: "bob", ReturnDate: "2026-09-01"},
		},
	}
	roster := []types.Member{{Handle: "alice"}, {Handle: "bob"}}
	SyncRoster(&s, roster)
	for _, h := range handles(s.Queue) {
		if h == "bob" {
			t.Error("member on vacation must not be re-added to the queue")
		}
	}
	if len(s.PassUntil) != 1 {
		t.Errorf("vacation entry should survive: %+v", s.PassUntil)
	}
}

func TestSyncRosterNoChanges(t *testing.T) {
	s := types.State{Queue: []types.Member{{Handle: "alice", Name: "Alice"}}}
	changes := SyncRoster(&s, []types.Member{{Handle: "alice", Name: "Alice"}})
	if len(changes) != 0 {
		t.Errorf("expected no changes, got %v", changes)
	}
}
