// Package main implements the rotation daemon: it watches a repository
// for review events over WebSocket, runs periodic overdue sweeps, and
// serves a small HTTP surface for health checks and manual ticks.
//
// The WebSocket feed carries only item URLs, so the daemon covers
// trigger-label assignment and item closure (labels and state re-read
// from the API on each event) plus the scheduled sweeps. Comment
// commands, review submissions, and completion-label events need their
// payloads and are delivered through the one-shot rota binary from CI
// triggers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codeGROOVE-dev/rota/pkg/engine"
	"github.com/codeGROOVE-dev/rota/pkg/platform/github"
	"github.com/codeGROOVE-dev/rota/pkg/store"
	"github.com/codeGROOVE-dev/rota/pkg/types"
)

var (
	// GitHub App authentication flags.
	appID      = flag.String("app-id", "", "GitHub App ID for authentication")
	appKeyPath = flag.String("app-key-path", "", "Path to GitHub App private key file")

	// Repository and rotation flags.
	repoSlug        = flag.String("repo", os.Getenv("GITHUB_REPOSITORY"), "Repository as owner/name")
	botHandle       = flag.String("bot-handle", "rota-bot", "Bot account handle commands are addressed to")
	membersURL      = flag.String("members-url", os.Getenv("MEMBERS_URL"), "Raw URL of the roster markdown file")
	memberRole      = flag.String("member-role", "Producer", "Role substring marking rotation members")
	triggerLabels   = flag.String("trigger-labels", "", "Comma-separated labels that trigger assignment (default: built-in set)")
	completionLabel = flag.String("completion-label", "", "Label that marks an issue review complete (default: built-in)")
	warnAfter       = flag.Duration("warn-after", engine.DefaultWarningAfter, "Inactivity before an overdue warning")
	transitionAfter = flag.Duration("transition-after", engine.DefaultTransitionAfter, "Warning age before automatic reassignment")
	tickInterval    = flag.Duration("tick-interval", time.Hour, "Delay between periodic overdue sweeps")

	// State store flags.
	stateFile   = flag.String("state-file", os.Getenv("STATE_FILE"), "Path to a local YAML state file")
	stateIssue  = flag.Int("state-issue", envInt("STATE_ISSUE_NUMBER"), "Issue number holding the state document")
	databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres DSN for the state store")
)

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Review rotation daemon: assigns reviewers round-robin, tracks review\n")
		fmt.Fprintf(os.Stderr, "lifecycles, and answers bot commands in comments.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_ID               - GitHub App ID\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY              - GitHub App private key contents\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY_PATH         - Path to GitHub App private key file\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_REPOSITORY           - Repository as owner/name\n")
		fmt.Fprintf(os.Stderr, "  DATABASE_URL                - Postgres DSN for the state store\n")
		fmt.Fprintf(os.Stderr, "  PORT                        - HTTP server port (default: 8080)\n")
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	owner, repo, ok := strings.Cut(*repoSlug, "/")
	if !ok {
		return fmt.Errorf("repository must be owner/name, got %q", *repoSlug)
	}

	effectiveAppID := *appID
	if effectiveAppID == "" {
		effectiveAppID = os.Getenv("GITHUB_APP_ID")
	}
	effectiveAppKey := *appKeyPath
	if effectiveAppKey == "" {
		effectiveAppKey = os.Getenv("GITHUB_APP_KEY_PATH")
	}

	cfg := github.Config{
		Owner:       owner,
		Repo:        repo,
		MembersURL:  *membersURL,
		MemberRole:  *memberRole,
		HTTPTimeout: 30 * time.Second,
	}
	if effectiveAppID != "" {
		cfg.UseAppAuth = true
		cfg.AppID = effectiveAppID
		cfg.AppKeyPath = effectiveAppKey
	}
	client, err := github.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}

	st, err := selectStore(ctx, client)
	if err != nil {
		return err
	}

	engCfg := engine.Config{
		BotHandle:       *botHandle,
		CompletionLabel: *completionLabel,
		WarningAfter:    *warnAfter,
		TransitionAfter: *transitionAfter,
	}
	if *triggerLabels != "" {
		for _, l := range strings.Split(*triggerLabels, ",") {
			if l = strings.TrimSpace(l); l != "" {
				engCfg.TriggerLabels = append(engCfg.TriggerLabels, l)
			}
		}
	}

	bot := &Bot{
		client: client,
		store:  st,
		engine: engine.New(client, engCfg),
	}

	go bot.startHTTPServer(ctx)

	monitor := newSprinklerMonitor(bot, owner, repo)
	if err := monitor.start(ctx); err != nil {
		slog.Error("Failed to start event monitor", "error", err)
	} else {
		bot.monitor = monitor
		defer monitor.stop()
	}

	slog.Info("Daemon started", "repo", *repoSlug, "tick_interval", *tickInterval)

	// Sweep immediately, then on the interval.
	for {
		bot.tick(ctx)

		timer := time.NewTimer(*tickInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Shutting down")
			return nil
		case <-timer.C:
		}
	}
}

// Bot serializes all rotation state mutations behind a single mutex: the
// WebSocket monitor, the tick loop, and manual HTTP ticks all funnel
// through dispatch.
type Bot struct {
	client   *github.Client
	store    store.Store
	engine   *engine.Engine
	monitor  *sprinklerMonitor
	mu       sync.Mutex
	lastTick time.Time
	tickRuns int64
}

// dispatch applies one event to the persisted state: load, dispatch,
// save when changed. Holding the mutex across the read-modify-write keeps
// concurrent event sources from clobbering each other.
func (b *Bot) dispatch(ctx context.Context, ev types.Event) (engine.Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.store.Load(ctx)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("failed to load state: %w", err)
	}

	out, err := b.engine.Dispatch(ctx, &s, ev)
	if err != nil {
		return out, fmt.Errorf("dispatch failed: %w", err)
	}

	if out.StateChanged {
		if err := b.store.Save(ctx, s); err != nil {
			return out, fmt.Errorf("failed to save state: %w", err)
		}
	}
	return out, nil
}

// tick runs one overdue sweep.
func (b *Bot) tick(ctx context.Context) {
	start := time.Now()
	out, err := b.dispatch(ctx, types.Event{Kind: types.EventTick})
	if err != nil {
		slog.Error("Tick failed", "error", err)
		return
	}

	b.mu.Lock()
	b.lastTick = time.Now()
	b.tickRuns++
	b.mu.Unlock()

	slog.Info("Tick completed",
		"duration", time.Since(start).Round(time.Millisecond),
		"handled", out.Handled,
		"state_changed", out.StateChanged)
}

// startHTTPServer serves health checks and manual tick triggers.
func (b *Bot) startHTTPServer(ctx context.Context) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		lastTick := b.lastTick
		runs := b.tickRuns
		b.mu.Unlock()

		status := "ok"
		statusCode := http.StatusOK
		if runs > 0 && time.Since(lastTick) > 2*(*tickInterval) {
			status = "stale"
			statusCode = http.StatusServiceUnavailable
		}

		w.WriteHeader(statusCode)
		fmt.Fprintf(w, "%s - %d sweeps (last: %s)\n", status, runs, lastTick.Format(time.RFC3339))
	})

	r.Post("/tick", func(w http.ResponseWriter, _ *http.Request) {
		// Detached context so the sweep outlives the HTTP request.
		go b.tick(context.WithoutCancel(ctx))
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "Tick triggered")
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "Rota Bot\n/healthz - Health status\n/tick - Trigger manual sweep (POST)")
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
	}
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
