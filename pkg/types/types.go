// Package types contains shared data structures used across the rotation engine.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"strconv"
	"strings"
	"time"
)

// Member is one entry in the reviewer roster.
type Member struct {
	Handle string `yaml:"handle"`
	Name   string `yaml:"name"`
}

// VacationEntry records a member temporarily removed from the rotation.
type VacationEntry struct {
	Handle     string `yaml:"handle"`
	Name       string `yaml:"name"`
	ReturnDate string `yaml:"return_date"` // calendar date, YYYY-MM-DD
	Reason     string `yaml:"reason,omitempty"`
}

// AssignmentMethod records how a reviewer ended up on an item.
type AssignmentMethod string

// Assignment methods.
const (
	MethodRoundRobin AssignmentMethod = "round-robin"
	MethodExplicit   AssignmentMethod = "explicit"
)

// ActiveReview is the live assignment record for one in-progress review.
// Zero time values mean "not set".
type ActiveReview struct {
	AssignedAt            time.Time
	LastReviewerActivity  time.Time
	TransitionWarningSent time.Time
	CompletedAt           time.Time
	CurrentReviewer       string
	CompletedBy           string
	CompletionSource      string
	Method                AssignmentMethod
	Skipped               []string
}

// Completed reports whether the review has been signed off.
func (r *ActiveReview) Completed() bool {
	return !r.CompletedAt.IsZero()
}

// HasSkipped reports whether handle already appears on the item's skip list.
func (r *ActiveReview) HasSkipped(handle string) bool {
	for _, s := range r.Skipped {
		if EqualHandle(s, handle) {
			return true
		}
	}
	return false
}

// Assignment is one entry in the bounded recent-assignment log.
type Assignment struct {
	AssignedAt time.Time
	Handle     string
	Kind       string // "issue" or "pr"
	Item       int
}

// State is the full persisted document: read whole, mutated in memory,
// written back whole. There are no partial updates.
type State struct {
	LastUpdated   time.Time
	ActiveReviews map[string]*ActiveReview
	Queue         []Member
	PassUntil     []VacationEntry
	Recent        []Assignment
	CurrentIndex  int
}

// Review returns the active review for an item, or nil.
func (s *State) Review(item int) *ActiveReview {
	return s.ActiveReviews[ItemKey(item)]
}

// EnsureReview returns the active review for an item, creating an empty
// record if none exists yet.
func (s *State) EnsureReview(item int) *ActiveReview {
	key := ItemKey(item)
	if s.ActiveReviews == nil {
		s.ActiveReviews = make(map[string]*ActiveReview)
	}
	r, ok := s.ActiveReviews[key]
	if !ok {
		r = &ActiveReview{}
		s.ActiveReviews[key] = r
	}
	return r
}

// ItemKey converts an item number to its state-document map key.
func ItemKey(item int) string {
	return strconv.Itoa(item)
}

// EqualHandle compares two member handles case-insensitively, the way the
// hosting platform treats usernames.
func EqualHandle(a, b string) bool {
	return strings.EqualFold(a, b)
}

// EventKind identifies an inbound platform event.
type EventKind string

// Event kinds consumed by the dispatcher.
const (
	EventItemOpened      EventKind = "item_opened"
	EventLabelApplied    EventKind = "label_applied"
	EventCommentPosted   EventKind = "comment_posted"
	EventReviewSubmitted EventKind = "review_submitted"
	EventItemClosed      EventKind = "item_closed"
	EventTick            EventKind = "tick"
)

// Event is the normalized record handed to the dispatcher. Webhook payload
// parsing happens upstream; the engine only sees this shape.
type Event struct {
	Kind          EventKind
	Actor         string
	Body          string   // comment body, for EventCommentPosted
	Label         string   // applied label, for EventLabelApplied
	Labels        []string // item labels at open time, for EventItemOpened
	ReviewState   string   // approved / commented / changes_requested
	Item          int
	IsPullRequest bool
}
