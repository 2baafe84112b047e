package state

import (
	"fmt"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// NextEligible returns the next member in rotation order starting at the
// cursor, skipping any handle present in skip, wrapping around at most once.
// On success the cursor advances to the position immediately after the
// returned member. When every member is skipped (or the queue is empty) it
// returns false and leaves the cursor untouched.
//
// The cursor is the single fairness point shared by every assignment path;
// skip sets only affect this one lookup and never reorder the roster.
func NextEligible(s *types.State, skip map[string]bool) (string, bool) {
	size := len(s.Queue)
	if size == 0 {
		return "", false
	}
	for i := range size {
		index := (s.CurrentIndex + i) % size
		candidate := s.Queue[index].Handle
		if skipContains(skip, candidate) {
			continue
		}
		s.CurrentIndex = (index + 1) % size
		return candidate, true
	}
	return "", false
}

// RepositionAsNext moves an existing member to the cursor's current slot so
// they become the next pick, preserving everyone else's relative order.
// Returns false (state unchanged) when the handle is not in the queue.
func RepositionAsNext(s *types.State, handle string) bool {
	from := -1
	for i, m := range s.Queue {
		if types.EqualHandle(m.Handle, handle) {
			from = i
			break
		}
	}
	if from == -1 {
		return false
	}
	member := s.Queue[from]
	s.Queue = append(s.Queue[:from], s.Queue[from+1:]...)
	to := s.CurrentIndex
	if from < to {
		to--
	}
	if to > len(s.Queue) {
		to = len(s.Queue)
	}
	s.Queue = append(s.Queue[:to], append([]types.Member{member}, s.Queue[to:]...)...)
	s.CurrentIndex = to
	return true
}

// SyncRoster reconciles the queue with the roster source of truth: new
// members join at the tail, members gone from the roster leave both the
// queue and the vacation ledger, display names refresh, and the cursor is
// re-clamped. Returns a human-readable change list.
func SyncRoster(s *types.State, members []types.Member) []string {
	var changes []string

	known := make(map[string]types.Member, len(members))
	for _, m := range members {
		known[lowerHandle(m.Handle)] = m
	}

	inQueue := make(map[string]bool, len(s.Queue))
	for _, m := range s.Queue {
		inQueue[lowerHandle(m.Handle)] = true
	}
	away := make(map[string]bool, len(s.PassUntil))
	for _, v := range s.PassUntil {
		away[lowerHandle(v.Handle)] = true
	}

	for _, m := range members {
		key := lowerHandle(m.Handle)
		if !inQueue[key] && !away[key] {
			s.Queue = append(s.Queue, m)
			changes = append(changes, fmt.Sprintf("added %s to the queue", m.Handle))
		}
	}

	// The cursor tracks removals below it so the member it pointed at
	// stays next.
	cursor := s.CurrentIndex
	kept := s.Queue[:0]
	for i, m := range s.Queue {
		roster, ok := known[lowerHandle(m.Handle)]
		if !ok {
			if i < s.CurrentIndex {
				cursor--
			}
			changes = append(changes, fmt.Sprintf("removed %s from the queue (no longer on the roster)", m.Handle))
			continue
		}
		m.Name = roster.Name
		kept = append(kept, m)
	}
	s.Queue = kept
	s.CurrentIndex = cursor

	keptAway := s.PassUntil[:0]
	for _, v := range s.PassUntil {
		if _, ok := known[lowerHandle(v.Handle)]; !ok {
			changes = append(changes, fmt.Sprintf("removed %s from the vacation ledger (no longer on the roster)", v.Handle))
			continue
		}
		keptAway = append(keptAway, v)
	}
	s.PassUntil = keptAway

	if len(s.Queue) > 0 {
		s.CurrentIndex %= len(s.Queue)
	} else {
		s.CurrentIndex = 0
	}
	return changes
}

func skipContains(skip map[string]bool, handle string) bool {
	if skip == nil {
		return false
	}
	return skip[lowerHandle(handle)]
}

// SkipSet builds a skip set from handles for NextEligible lookups.
func SkipSet(handles ...string) map[string]bool {
	set := make(map[string]bool, len(handles))
	for _, h := range handles {
		if h == "" {
			continue
		}
		set[lowerHandle(h)] = true
	}
	return set
}

func lowerHandle(h string) string {
	b := []byte(h)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
