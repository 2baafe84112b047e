package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

const (
	eventChannelSize      = 100              // Buffer size for event channel
	eventDedupWindow      = 5 * time.Second  // Time window for deduplicating events
	eventMapMaxSize       = 1000             // Maximum entries in event dedup map
	eventMapCleanupAge    = 1 * time.Hour    // Age threshold for cleaning up old entries
	eventMaxRetries       = 3                // Max retries for event processing
	eventMaxDelay         = 10 * time.Second // Max delay between retries
	connectionHealthCheck = 2 * time.Minute  // Check connection health every 2 minutes
	maxReconnectAttempts  = 100              // Max reconnection attempts
	reconnectBackoff      = 30 * time.Second // Initial backoff between reconnection attempts
)

// sprinklerMonitor manages the WebSocket event subscription for the
// watched repository.
type sprinklerMonitor struct {
	mu                sync.RWMutex
	lastConnectedAt   time.Time
	lastEventAt       time.Time
	bot               *Bot
	client            *client.Client
	eventChan         chan string          // Item URLs that need processing
	lastEventMap      map[string]time.Time // Last event per URL, for dedup
	stopChan          chan struct{}
	owner             string
	repo              string
	reconnectAttempts int
	isRunning         bool
	isConnected       bool
	isStopped         bool
}

func newSprinklerMonitor(bot *Bot, owner, repo string) *sprinklerMonitor {
	return &sprinklerMonitor{
		bot:          bot,
		owner:        owner,
		repo:         repo,
		eventChan:    make(chan string, eventChannelSize),
		lastEventMap: make(map[string]time.Time),
		stopChan:     make(chan struct{}),
	}
}

// start begins monitoring for item events.
func (sm *sprinklerMonitor) start(ctx context.Context) error {
	sm.mu.Lock()
	if sm.isRunning {
		sm.mu.Unlock()
		slog.Info("Monitor already running", "component", "sprinkler")
		return nil
	}
	sm.isRunning = true
	sm.isStopped = false
	sm.mu.Unlock()

	slog.Info("Starting event monitor", "component", "sprinkler", "owner", sm.owner, "repo", sm.repo)

	go sm.processEvents(ctx)
	go sm.manageConnection(ctx)
	go sm.monitorHealth(ctx)

	return nil
}

// manageConnection restarts the WebSocket client whenever it gives up.
// The client carries its own internal reconnection logic; this loop only
// handles fatal exits.
func (sm *sprinklerMonitor) manageConnection(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Connection manager panic", "component", "sprinkler", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		default:
			sm.mu.RLock()
			stopped := sm.isStopped
			sm.mu.RUnlock()
			if stopped {
				return
			}

			// connectWebSocket blocks until the client gives up or the
			// context is cancelled.
			if err := sm.connectWebSocket(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				sm.mu.Lock()
				sm.reconnectAttempts++
				attempts := sm.reconnectAttempts
				sm.mu.Unlock()

				if attempts >= maxReconnectAttempts {
					slog.Error("Max reconnection attempts reached, giving up", "component", "sprinkler", "attempts", attempts)
					return
				}

				backoff := reconnectBackoff * time.Duration(attempts)
				if backoff > 5*time.Minute {
					backoff = 5 * time.Minute
				}
				slog.Warn("WebSocket client gave up, restarting after backoff",
					"component", "sprinkler", "attempt", attempts, "backoff", backoff, "error", err)

				select {
				case <-ctx.Done():
					return
				case <-sm.stopChan:
					return
				case <-time.After(backoff):
				}
			} else {
				sm.mu.Lock()
				sm.reconnectAttempts = 0
				sm.mu.Unlock()

				select {
				case <-ctx.Done():
					return
				case <-sm.stopChan:
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

// connectWebSocket establishes a WebSocket connection.
func (sm *sprinklerMonitor) connectWebSocket(ctx context.Context) error {
	config := client.Config{
		ServerURL:    "wss://" + client.DefaultServerAddress + "/ws",
		Organization: sm.owner,
		TokenProvider: func() (string, error) {
			token, err := sm.bot.client.Token(ctx)
			if err != nil {
				return "", fmt.Errorf("failed to get token: %w", err)
			}
			return token, nil
		},
		EventTypes:     []string{"pull_request", "issues"},
		UserEventsOnly: false,
		OnConnect: func() {
			sm.mu.Lock()
			sm.isConnected = true
			sm.lastConnectedAt = time.Now()
			sm.mu.Unlock()
			slog.Info("WebSocket connected", "component", "sprinkler")
		},
		OnDisconnect: func(err error) {
			sm.mu.Lock()
			wasConnected := sm.isConnected
			sm.isConnected = false
			sm.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "error", err)
			}
		},
		OnEvent: func(event client.Event) {
			sm.handleEvent(event)
		},
	}

	wsClient, err := client.New(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	sm.mu.Lock()
	sm.client = wsClient
	sm.mu.Unlock()

	startTime := time.Now()
	if err := wsClient.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("WebSocket client stopped with error",
			"component", "sprinkler", "uptime", time.Since(startTime).Round(time.Second), "error", err)
		return err
	}
	return nil
}

// monitorHealth logs connection status periodically.
func (sm *sprinklerMonitor) monitorHealth(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Health monitor panic", "component", "sprinkler", "panic", r)
		}
	}()

	ticker := time.NewTicker(connectionHealthCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-ticker.C:
			sm.mu.RLock()
			isConnected := sm.isConnected
			lastConnected := sm.lastConnectedAt
			lastEvent := sm.lastEventAt
			stopped := sm.isStopped
			sm.mu.RUnlock()

			if stopped {
				return
			}

			now := time.Now()
			if isConnected {
				var timeSinceEvent time.Duration
				if !lastEvent.IsZero() {
					timeSinceEvent = now.Sub(lastEvent)
				}
				slog.Info("Sprinkler health check - connected",
					"component", "sprinkler",
					"connected_for", now.Sub(lastConnected).Round(time.Second),
					"time_since_last_event", timeSinceEvent.Round(time.Second))
			} else if !lastConnected.IsZero() {
				slog.Warn("Sprinkler health check - disconnected",
					"component", "sprinkler",
					"disconnected_for", now.Sub(lastConnected).Round(time.Second))
			} else {
				slog.Info("Sprinkler health check - not yet connected", "component", "sprinkler")
			}
		}
	}
}

// handleEvent filters and dedupes incoming events.
func (sm *sprinklerMonitor) handleEvent(event client.Event) {
	if event.Type != "pull_request" && event.Type != "issues" {
		return
	}
	if event.URL == "" {
		slog.Warn("Received event with empty URL", "component", "sprinkler")
		return
	}

	ref, err := parseItemURL(event.URL)
	if err != nil {
		slog.Warn("Failed to parse item URL", "component", "sprinkler", "url", event.URL, "error", err)
		return
	}
	if ref.owner != sm.owner || ref.repo != sm.repo {
		slog.Debug("Ignoring event for different repo", "component", "sprinkler", "url", event.URL)
		return
	}

	sm.mu.Lock()
	lastSeen, exists := sm.lastEventMap[event.URL]
	now := time.Now()
	if exists && now.Sub(lastSeen) < eventDedupWindow {
		sm.mu.Unlock()
		return
	}
	sm.lastEventMap[event.URL] = now
	sm.lastEventAt = now

	// Clean up old entries to prevent memory leak.
	if len(sm.lastEventMap) > eventMapMaxSize {
		cutoff := now.Add(-eventMapCleanupAge)
		for url, timestamp := range sm.lastEventMap {
			if timestamp.Before(cutoff) {
				delete(sm.lastEventMap, url)
			}
		}
	}
	sm.mu.Unlock()

	slog.Info("Item event received", "component", "sprinkler", "url", event.URL)

	select {
	case sm.eventChan <- event.URL:
	default:
		slog.Warn("Event channel full, dropping event", "component", "sprinkler", "url", event.URL)
	}
}

// processEvents drains the event channel.
func (sm *sprinklerMonitor) processEvents(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event processor panic", "component", "sprinkler", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case itemURL := <-sm.eventChan:
			sm.processEvent(ctx, itemURL)
		}
	}
}

// processEvent snapshots the item and feeds it through the bot's
// serialized dispatch path. The WebSocket event only carries a URL, so
// labels and open state come from a fresh API read.
func (sm *sprinklerMonitor) processEvent(ctx context.Context, itemURL string) {
	startTime := time.Now()

	ref, err := parseItemURL(itemURL)
	if err != nil {
		slog.Warn("Failed to parse item URL", "component", "sprinkler", "url", itemURL, "error", err)
		return
	}

	err = retry.Do(func() error {
		info, err := sm.bot.client.Item(ctx, ref.number)
		if err != nil {
			return fmt.Errorf("failed to snapshot item: %w", err)
		}

		ev := types.Event{
			Kind:          types.EventItemOpened,
			Item:          ref.number,
			Labels:        info.Labels,
			IsPullRequest: info.IsPullRequest,
		}
		if info.State == "closed" {
			ev = types.Event{
				Kind:          types.EventItemClosed,
				Item:          ref.number,
				IsPullRequest: info.IsPullRequest,
			}
		}

		if _, err := sm.bot.dispatch(ctx, ev); err != nil {
			return err
		}
		return nil
	},
		retry.Attempts(eventMaxRetries),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxDelay(eventMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retrying event processing", "component", "sprinkler", "attempt", n+1, "item", ref.number, "error", err)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		slog.Error("Failed to process event after retries",
			"component", "sprinkler",
			"item", ref.number,
			"elapsed", time.Since(startTime).Round(time.Millisecond),
			"error", err)
		return
	}

	slog.Info("Processed item event",
		"component", "sprinkler",
		"item", ref.number,
		"elapsed", time.Since(startTime).Round(time.Millisecond))
}

// stop shuts the monitor down.
func (sm *sprinklerMonitor) stop() {
	sm.mu.Lock()
	if !sm.isRunning {
		sm.mu.Unlock()
		return
	}
	sm.isRunning = false
	sm.isStopped = true
	sm.mu.Unlock()

	close(sm.stopChan)

	sm.mu.RLock()
	wsClient := sm.client
	sm.mu.RUnlock()
	if wsClient != nil {
		wsClient.Stop()
	}

	slog.Info("Event monitor stopped", "component", "sprinkler")
}

// itemRef holds a parsed issue or pull request reference.
type itemRef struct {
	owner  string
	repo   string
	number int
}

// parseItemURL extracts owner, repo, and number from an item URL.
// Formats: https://github.com/owner/repo/pull/123 or .../issues/123.
func parseItemURL(url string) (itemRef, error) {
	const wantParts = 7
	parts := strings.Split(url, "/")
	if len(parts) < wantParts || parts[2] != "github.com" {
		return itemRef{}, fmt.Errorf("invalid GitHub item URL format: %s", url)
	}
	if parts[5] != "pull" && parts[5] != "issues" {
		return itemRef{}, fmt.Errorf("URL is not an issue or pull request: %s", url)
	}

	number, err := strconv.Atoi(parts[6])
	if err != nil {
		return itemRef{}, fmt.Errorf("invalid item number in URL: %s", url)
	}
	return itemRef{owner: parts[3], repo: parts[4], number: number}, nil
}
