// Package state implements the persisted rotation document: the reviewer
// queue, the vacation ledger, the recent-assignment log and the
// active-review map, plus the codec that round-trips all of it through YAML.
//
// Loading is total by design. Missing, null, or mistyped fields default to
// empty collections and index zero, and a structurally unparseable document
// yields the empty state rather than an error: the document is always
// reconstructible from platform truth on the next roster sync, so refusing
// to load would only wedge the engine.
package state

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// MaxRecentAssignments bounds the recent-assignment log (FIFO cap, not a
// time window).
const MaxRecentAssignments = 20

// timeLayout is the wire format for instants in the state document.
const timeLayout = time.RFC3339

// doc is the YAML shape of the persisted document. Timestamps travel as
// strings so a single bad value degrades to "not set" instead of failing
// the whole load.
type doc struct {
	ActiveReviews map[string]reviewDoc  `yaml:"active_reviews"`
	LastUpdated   string                `yaml:"last_updated"`
	Queue         []types.Member        `yaml:"queue"`
	PassUntil     []types.VacationEntry `yaml:"pass_until"`
	Recent        []assignmentDoc       `yaml:"recent_assignments"`
	CurrentIndex  int                   `yaml:"current_index"`
}

type reviewDoc struct {
	CurrentReviewer       string   `yaml:"current_reviewer"`
	AssignedAt            string   `yaml:"assigned_at,omitempty"`
	LastReviewerActivity  string   `yaml:"last_reviewer_activity,omitempty"`
	TransitionWarningSent string   `yaml:"transition_warning_sent,omitempty"`
	CompletedAt           string   `yaml:"review_completed_at,omitempty"`
	CompletedBy           string   `yaml:"review_completed_by,omitempty"`
	CompletionSource      string   `yaml:"review_completion_source,omitempty"`
	Method                string   `yaml:"assignment_method,omitempty"`
	Skipped               []string `yaml:"skipped"`
}

type assignmentDoc struct {
	Handle     string `yaml:"handle"`
	Kind       string `yaml:"kind"`
	AssignedAt string `yaml:"assigned_at"`
	Item       int    `yaml:"item"`
}

// Decode parses a serialized state document. It never fails: garbage in,
// empty state out.
func Decode(data []byte) types.State {
	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return normalize(doc{})
	}
	return normalize(d)
}

// Encode serializes the state document.
func Encode(s types.State) ([]byte, error) {
	d := doc{
		LastUpdated:  formatTime(s.LastUpdated),
		CurrentIndex: s.CurrentIndex,
		Queue:        s.Queue,
		PassUntil:    s.PassUntil,
	}
	for _, a := range s.Recent {
		d.Recent = append(d.Recent, assignmentDoc{
			Handle:     a.Handle,
			Item:       a.Item,
			Kind:       a.Kind,
			AssignedAt: formatTime(a.AssignedAt),
		})
	}
	if len(s.ActiveReviews) > 0 {
		d.ActiveReviews = make(map[string]reviewDoc, len(s.ActiveReviews))
		for key, r := range s.ActiveReviews {
			if r == nil {
				continue
			}
			d.ActiveReviews[key] = reviewDoc{
				CurrentReviewer:       r.CurrentReviewer,
				AssignedAt:            formatTime(r.AssignedAt),
				LastReviewerActivity:  formatTime(r.LastReviewerActivity),
				TransitionWarningSent: formatTime(r.TransitionWarningSent),
				CompletedAt:           formatTime(r.CompletedAt),
				CompletedBy:           r.CompletedBy,
				CompletionSource:      r.CompletionSource,
				Method:                string(r.Method),
				Skipped:               r.Skipped,
			}
		}
	}
	return yaml.Marshal(d)
}

// normalize is the single total constructor from a parsed document to a
// usable State. Every optional field gets its default here and nowhere else.
func normalize(d doc) types.State {
	s := types.State{
		LastUpdated:   parseTime(d.LastUpdated),
		CurrentIndex:  d.CurrentIndex,
		Queue:         d.Queue,
		PassUntil:     d.PassUntil,
		ActiveReviews: make(map[string]*types.ActiveReview, len(d.ActiveReviews)),
	}
	if s.Queue == nil {
		s.Queue = []types.Member{}
	}
	if s.PassUntil == nil {
		s.PassUntil = []types.VacationEntry{}
	}
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		s.CurrentIndex = 0
	}
	for _, a := range d.Recent {
		s.Recent = append(s.Recent, types.Assignment{
			Handle:     a.Handle,
			Item:       a.Item,
			Kind:       a.Kind,
			AssignedAt: parseTime(a.AssignedAt),
		})
	}
	for key, r := range d.ActiveReviews {
		method := types.AssignmentMethod(r.Method)
		if method != types.MethodExplicit {
			method = types.MethodRoundRobin
		}
		skipped := r.Skipped
		if skipped == nil {
			skipped = []string{}
		}
		s.ActiveReviews[key] = &types.ActiveReview{
			CurrentReviewer:       r.CurrentReviewer,
			AssignedAt:            parseTime(r.AssignedAt),
			LastReviewerActivity:  parseTime(r.LastReviewerActivity),
			TransitionWarningSent: parseTime(r.TransitionWarningSent),
			CompletedAt:           parseTime(r.CompletedAt),
			CompletedBy:           r.CompletedBy,
			CompletionSource:      r.CompletionSource,
			Method:                method,
			Skipped:               skipped,
		}
	}
	return s
}

// RecordAssignment appends to the recent-assignment log, evicting the
// oldest entry past the cap. Newest entries go first, as in the state issue.
func RecordAssignment(s *types.State, handle string, item int, kind string, now time.Time) {
	entry := types.Assignment{
		Handle:     handle,
		Item:       item,
		Kind:       kind,
		AssignedAt: now,
	}
	s.Recent = append([]types.Assignment{entry}, s.Recent...)
	if len(s.Recent) > MaxRecentAssignments {
		s.Recent = s.Recent[:MaxRecentAssignments]
	}
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
