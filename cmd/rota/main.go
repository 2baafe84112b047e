// Package main implements the one-shot rotation processor: it builds a
// single event from flags and environment (the CI trigger style), applies
// it to the persisted rotation state, and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/rota/pkg/engine"
	"github.com/codeGROOVE-dev/rota/pkg/platform/github"
	"github.com/codeGROOVE-dev/rota/pkg/store"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

var (
	eventName   = flag.String("event", envOr("ROTA_EVENT", ""), "Event kind: opened, labeled, comment, review, closed, tick")
	itemNumber  = flag.Int("item", envInt("ITEM_NUMBER"), "Issue or pull request number")
	actor       = flag.String("actor", envOr("EVENT_ACTOR", ""), "User who triggered the event")
	body        = flag.String("body", envOr("COMMENT_BODY", ""), "Comment body, for comment events")
	label       = flag.String("label", envOr("LABEL_NAME", ""), "Applied label, for label events")
	itemLabels  = flag.String("labels", envOr("ITEM_LABELS", ""), "Comma-separated item labels, for opened events")
	reviewState = flag.String("review-state", envOr("REVIEW_STATE", ""), "Review state: approved, commented, changes_requested")
	isPR        = flag.Bool("pr", os.Getenv("IS_PULL_REQUEST") == "true", "Whether the item is a pull request")

	repoSlug   = flag.String("repo", envOr("GITHUB_REPOSITORY", ""), "Repository as owner/name")
	botHandle  = flag.String("bot-handle", envOr("BOT_HANDLE", "rota-bot"), "Bot account handle commands are addressed to")
	membersURL = flag.String("members-url", envOr("MEMBERS_URL", ""), "Raw URL of the roster markdown file")
	memberRole = flag.String("member-role", envOr("MEMBER_ROLE", "Producer"), "Role substring marking rotation members")

	stateFile   = flag.String("state-file", envOr("STATE_FILE", ""), "Path to a local YAML state file")
	stateIssue  = flag.Int("state-issue", envInt("STATE_ISSUE_NUMBER"), "Issue number holding the state document")
	databaseURL = flag.String("database-url", envOr("DATABASE_URL", ""), "Postgres DSN for the state store")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func main() {
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(context.Background()); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ev, err := buildEvent()
	if err != nil {
		return err
	}

	owner, repo, ok := strings.Cut(*repoSlug, "/")
	if !ok {
		return fmt.Errorf("repository must be owner/name, got %q", *repoSlug)
	}

	client, err := github.New(ctx, github.Config{
		Owner:       owner,
		Repo:        repo,
		MembersURL:  *membersURL,
		MemberRole:  *memberRole,
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}

	st, err := selectStore(ctx, client)
	if err != nil {
		return err
	}

	eng := engine.New(client, engine.Config{BotHandle: *botHandle})

	s, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	out, err := eng.Dispatch(ctx, &s, ev)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	slog.Info("Event processed", "kind", ev.Kind, "item", ev.Item, "handled", out.Handled, "state_changed", out.StateChanged)

	if out.StateChanged {
		if err := st.Save(ctx, s); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
	}
	return nil
}

func buildEvent() (types.Event, error) {
	var kind types.EventKind
	switch *eventName {
	case "opened":
		kind = types.EventItemOpened
	case "labeled":
		kind = types.EventLabelApplied
	case "comment":
		kind = types.EventCommentPosted
	case "review":
		kind = types.EventReviewSubmitted
	case "closed":
		kind = types.EventItemClosed
	case "tick":
		kind = types.EventTick
	default:
		return types.Event{}, fmt.Errorf("unknown event %q (want opened, labeled, comment, review, closed, or tick)", *eventName)
	}

	var labels []string
	for _, l := range strings.Split(*itemLabels, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}

	return types.Event{
		Kind:          kind,
		Item:          *itemNumber,
		Actor:         *actor,
		Body:          *body,
		Label:         *label,
		Labels:        labels,
		ReviewState:   *reviewState,
		IsPullRequest: *isPR,
	}, nil
}

func selectStore(ctx context.Context, client *github.Client) (store.Store, error) {
	switch {
	case *databaseURL != "":
		ps, err := store.NewPostgresStore(ctx, *databaseURL, *repoSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return ps, nil
	case *stateIssue > 0:
		return store.NewIssueStore(client, *stateIssue), nil
	case *stateFile != "":
		return store.NewFileStore(*stateFile), nil
	default:
		return nil, fmt.Errorf("one of -state-issue, -state-file, or -database-url is required")
	}
}
