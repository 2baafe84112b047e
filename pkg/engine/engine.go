// Package engine maps inbound platform events onto the rotation state: it
// assigns reviewers round-robin, tracks each active review's lifecycle, and
// interprets operator commands posted as comments.
package engine

import (
	"errors"
	"time"

	"github.com/codeGROOVE-dev/rota/pkg/platform"
)

// Sentinel errors for user-level failures. They are reported back as
// comments and never abort a dispatch.
var (
	ErrNotCurrentReviewer = errors.New("requester is not the current reviewer")
	ErrPermissionDenied   = errors.New("permission denied")
)

// Default lifecycle thresholds and labels.
const (
	DefaultWarningAfter    = 14 * 24 * time.Hour
	DefaultTransitionAfter = 14 * 24 * time.Hour
	DefaultCompletionLabel = "sign-off: create pr"
	DefaultPermissionLevel = "triage"
)

// DefaultTriggerLabels mark the items the rotation covers.
func DefaultTriggerLabels() []string {
	return []string{"coding guideline", "fls-audit"}
}

// Config tunes the engine.
type Config struct {
	BotHandle       string
	TriggerLabels   []string
	CompletionLabel string
	PermissionLevel string // minimum level to act on someone else's review
	WarningAfter    time.Duration
	TransitionAfter time.Duration
	Now             func() time.Time
}

// Engine is the event dispatcher. It holds no state of its own; the full
// rotation state is threaded through every dispatch.
type Engine struct {
	host platform.Host
	now  func() time.Time
	cfg  Config
}

// New creates an engine, filling unset config fields with defaults.
func New(host platform.Host, cfg Config) *Engine {
	if cfg.TriggerLabels == nil {
		cfg.TriggerLabels = DefaultTriggerLabels()
	}
	if cfg.CompletionLabel == "" {
		cfg.CompletionLabel = DefaultCompletionLabel
	}
	if cfg.PermissionLevel == "" {
		cfg.PermissionLevel = DefaultPermissionLevel
	}
	if cfg.WarningAfter == 0 {
		cfg.WarningAfter = DefaultWarningAfter
	}
	if cfg.TransitionAfter == 0 {
		cfg.TransitionAfter = DefaultTransitionAfter
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{host: host, cfg: cfg, now: now}
}

// Outcome reports what a dispatch did. Handled means a lifecycle or queue
// action ran (help-style responses don't count); StateChanged means the
// caller must persist the state.
type Outcome struct {
	Response     string
	Handled      bool
	StateChanged bool
}
