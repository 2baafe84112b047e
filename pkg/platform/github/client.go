// Package github implements the platform.Host capability surface against
// the GitHub REST API, with retrying HTTP and token or App authentication.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Client handles all GitHub API interactions for a single repository.
type Client struct {
	tokenExpiry    time.Time
	installExpiry  time.Time
	httpClient     *http.Client
	owner          string
	repo           string
	appID          string
	token          string
	privateKeyPath string
	membersURL     string
	memberRole     string
	privateKey     []byte
	installationID int
	tokenMutex     sync.RWMutex
	installToken   string
	isAppAuth      bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	Owner       string
	Repo        string
	Token       string // personal access token (for non-app auth)
	AppID       string
	AppKeyPath  string
	MembersURL  string // raw URL of the roster markdown file
	MemberRole  string // role substring that marks a rotation member
	HTTPTimeout time.Duration
	UseAppAuth  bool
}

// New creates a GitHub API client using gh auth token or GitHub App
// authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	var c *Client
	var err error
	if cfg.UseAppAuth {
		c, err = newAppAuthClient(cfg)
	} else {
		c, err = newPersonalTokenClient(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	c.owner = cfg.Owner
	c.repo = cfg.Repo
	c.membersURL = cfg.MembersURL
	c.memberRole = cfg.MemberRole
	if c.memberRole == "" {
		c.memberRole = "Producer"
	}
	return c, nil
}

// Token returns the token other components (e.g. the event monitor) should
// authenticate with. App auth yields the installation token.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.isAppAuth {
		return c.installationToken(ctx)
	}
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.token, nil
}

// Owner returns the repository owner the client operates on.
func (c *Client) Owner() string { return c.owner }

// drainAndCloseBody drains and closes an HTTP response body to prevent
// resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// repoURL builds an API URL under the configured repository.
func (c *Client) repoURL(format string, args ...any) string {
	return fmt.Sprintf("https://api.github.com/repos/%s/%s/", c.owner, c.repo) + fmt.Sprintf(format, args...)
}

// doRequest makes an HTTP request to the GitHub API with retry logic.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body any) (*http.Response, error) {
	if c.isAppAuth {
		if err := c.refreshJWTIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to refresh JWT: %w", err)
		}
	}

	sanitizedURL := sanitizeURLForLogging(apiURL)
	slog.Info("HTTP request", "component", "http", "method", method, "url", sanitizedURL)

	var resp *http.Response
	err := retryWithBackoff(ctx, fmt.Sprintf("%s %s", method, apiURL), func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		authToken := c.currentToken()
		if c.isAppAuth {
			if installToken, tokenErr := c.installationToken(ctx); tokenErr == nil {
				authToken = installToken
			} else {
				slog.Warn("Failed to get installation token, attempting with JWT", "error", tokenErr)
			}
			req.Header.Set("Authorization", "Bearer "+authToken)
		} else {
			req.Header.Set("Authorization", "token "+authToken)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if method == http.MethodPatch || method == http.MethodPost || method == http.MethodPut {
			req.Header.Set("Content-Type", "application/json")
		}

		localResp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed via drainAndCloseBody or passed to caller
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if localResp.StatusCode == http.StatusTooManyRequests {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Rate limited - will retry with backoff", "method", method, "url", sanitizedURL, "status", 429)
			return fmt.Errorf("http %d: rate limited", localResp.StatusCode)
		}

		if localResp.StatusCode >= http.StatusInternalServerError && localResp.StatusCode < 600 {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Server error - will retry with backoff", "method", method, "url", sanitizedURL, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: server error", localResp.StatusCode)
		}

		resp = localResp
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("HTTP response", "component", "http", "method", method, "url", sanitizedURL, "status", resp.StatusCode)
	return resp, nil
}

func (c *Client) currentToken() string {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.token
}

// Retry constants.
const (
	maxRetryAttempts  = 25
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 2 * time.Minute
)

// retryWithBackoff executes a function with exponential backoff and jitter.
func retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		func() error {
			return fn()
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetryAttempts)),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(initialRetryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", maxRetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if err == nil {
				return false
			}
			errStr := err.Error()
			return strings.Contains(errStr, "rate limited") ||
				strings.Contains(errStr, "server error") ||
				strings.Contains(errStr, "connection refused") ||
				strings.Contains(errStr, "timeout") ||
				strings.Contains(errStr, "temporary failure") ||
				strings.Contains(errStr, "EOF")
		}),
	)
}

// sanitizeURLForLogging strips query parameters, which may carry tokens.
func sanitizeURLForLogging(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "<unparseable>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
