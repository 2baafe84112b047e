package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 100
	minTokenLength     = 40
	classicTokenLength = 40
	maxAppID           = 999999999
	filePermReadOnly   = 0o400
	filePermOwnerRW    = 0o600
)

// generateJWT generates a JWT token for GitHub App authentication.
func generateJWT(appID string, privateKey []byte) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format if PKCS1 fails
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsedKey.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(), // GitHub App JWTs expire after 10 minutes max
		"iss": appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// newAppAuthClient creates a client with GitHub App authentication.
func newAppAuthClient(cfg Config) (*Client, error) {
	creds, err := resolveAppCredentials(cfg.AppID, cfg.AppKeyPath)
	if err != nil {
		return nil, err
	}
	if err := validateAppID(creds.appID); err != nil {
		return nil, err
	}
	privateKey, err := loadPrivateKey(creds.privateKeyContent, creds.keyPath)
	if err != nil {
		return nil, err
	}
	jwtToken, err := generateJWT(creds.appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	slog.Info("Generated JWT for GitHub App", "component", "auth", "app_id", creds.appID)

	return &Client{
		httpClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		token:          jwtToken,
		isAppAuth:      true,
		appID:          creds.appID,
		privateKeyPath: creds.keyPath,
		privateKey:     creds.privateKeyContent,
		tokenExpiry:    time.Now().Add(9 * time.Minute), // refresh 1 minute before expiry
	}, nil
}

// newPersonalTokenClient creates a client with personal token authentication.
func newPersonalTokenClient(ctx context.Context, cfg Config) (*Client, error) {
	token := cfg.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		cmd := exec.CommandContext(ctx, "gh", "auth", "token")
		output, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("failed to get GitHub token: %w", err)
		}
		token = strings.TrimSpace(string(output))
	}
	if err := validateToken(token); err != nil {
		return nil, err
	}
	slog.Info("Using personal access token authentication", "component", "auth")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		token:      token,
		isAppAuth:  false,
	}, nil
}

// appCredentials holds GitHub App authentication details.
type appCredentials struct {
	appID             string
	keyPath           string
	privateKeyContent []byte
}

// resolveAppCredentials resolves app credentials from flags or environment
// variables.
func resolveAppCredentials(appID, appKeyPath string) (*appCredentials, error) {
	if appID == "" {
		appID = os.Getenv("GITHUB_APP_ID")
	}

	var privateKeyContent []byte
	if appKeyPath == "" {
		if keyContent := os.Getenv("GITHUB_APP_KEY"); keyContent != "" {
			privateKeyContent = []byte(keyContent)
		} else {
			appKeyPath = os.Getenv("GITHUB_APP_KEY_PATH")
		}
	}

	if appID == "" {
		return nil, errors.New("GitHub App ID is required. " +
			"Use --app-id flag or set GITHUB_APP_ID environment variable")
	}
	if len(privateKeyContent) == 0 && appKeyPath == "" {
		return nil, errors.New("GitHub App private key is required. " +
			"Use --app-key-path flag, set GITHUB_APP_KEY environment variable (key content), " +
			"or set GITHUB_APP_KEY_PATH environment variable (file path)")
	}

	return &appCredentials{
		appID:             appID,
		privateKeyContent: privateKeyContent,
		keyPath:           appKeyPath,
	}, nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	appIDNum, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
	}
	if appIDNum <= 0 || appIDNum > maxAppID {
		return errors.New("GITHUB_APP_ID out of valid range")
	}
	return nil
}

// loadPrivateKey loads the private key from content or file path.
func loadPrivateKey(privateKeyContent []byte, keyPath string) ([]byte, error) {
	var privateKey []byte
	var err error

	switch {
	case len(privateKeyContent) > 0:
		privateKey = privateKeyContent
	case keyPath != "":
		privateKey, err = readPrivateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("no private key provided (neither content nor path)")
	}

	if !bytes.Contains(privateKey, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(privateKey, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}

	return privateKey, nil
}

// readPrivateKeyFile reads and validates a private key file.
func readPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("private key path must be absolute")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, errors.New("private key path must be a file, not a directory")
	}

	// Must be exactly 0600 or 0400.
	perm := fileInfo.Mode().Perm()
	if perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}

	return os.ReadFile(cleanPath)
}

// validateToken validates a GitHub personal access token.
func validateToken(token string) error {
	if token == "" {
		return errors.New("no GitHub token found")
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	validPrefixes := []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_"}
	for _, prefix := range validPrefixes {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Could be a classic token (40 hex chars).
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}

	return nil
}

// refreshJWTIfNeeded refreshes the JWT token if it's close to expiry.
func (c *Client) refreshJWTIfNeeded() error {
	if !c.isAppAuth {
		return nil
	}

	c.tokenMutex.RLock()
	needsRefresh := time.Now().After(c.tokenExpiry)
	c.tokenMutex.RUnlock()

	if !needsRefresh {
		return nil
	}

	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()

	if time.Now().Before(c.tokenExpiry) {
		return nil
	}

	var privateKey []byte
	var err error
	switch {
	case len(c.privateKey) > 0:
		privateKey = c.privateKey
	case c.privateKeyPath != "":
		privateKey, err = os.ReadFile(c.privateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read private key for refresh: %w", err)
		}
	default:
		return errors.New("no private key available for JWT refresh")
	}

	newToken, err := generateJWT(c.appID, privateKey)
	if err != nil {
		return fmt.Errorf("failed to generate JWT for refresh: %w", err)
	}

	c.token = newToken
	c.tokenExpiry = time.Now().Add(9 * time.Minute)
	slog.Info("Refreshed GitHub App JWT", "component", "auth")

	return nil
}

// installationToken returns a valid installation access token for the
// configured owner, creating or refreshing it as needed.
func (c *Client) installationToken(ctx context.Context) (string, error) {
	if !c.isAppAuth {
		return c.token, nil
	}

	c.tokenMutex.RLock()
	if c.installToken != "" && time.Now().Before(c.installExpiry) {
		token := c.installToken
		c.tokenMutex.RUnlock()
		return token, nil
	}
	c.tokenMutex.RUnlock()

	if err := c.refreshJWTIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to refresh JWT: %w", err)
	}

	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()

	if c.installToken != "" && time.Now().Before(c.installExpiry) {
		return c.installToken, nil
	}

	if c.installationID == 0 {
		id, err := c.findInstallationID(ctx)
		if err != nil {
			return "", err
		}
		c.installationID = id
	}

	slog.Info("Creating installation access token", "component", "auth", "owner", c.owner, "installation_id", c.installationID)
	apiURL := fmt.Sprintf("https://api.github.com/app/installations/%d/access_tokens", c.installationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get installation token: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("failed to create installation token (status %d) and read error: %w", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("failed to create installation token (status %d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	// Expire 5 minutes before actual expiry.
	c.installToken = tokenResp.Token
	c.installExpiry = tokenResp.ExpiresAt.Add(-5 * time.Minute)

	slog.Info("Created installation access token", "component", "auth", "owner", c.owner, "expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return tokenResp.Token, nil
}

// findInstallationID locates the App installation covering the configured
// owner. Caller holds the write lock.
func (c *Client) findInstallationID(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/app/installations", http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to list installations: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to list installations (status %d)", resp.StatusCode)
	}

	var installations []struct {
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&installations); err != nil {
		return 0, fmt.Errorf("failed to decode installations: %w", err)
	}

	for _, inst := range installations {
		if strings.EqualFold(inst.Account.Login, c.owner) {
			slog.Info("Found app installation", "component", "auth", "owner", inst.Account.Login, "installation_id", inst.ID)
			return inst.ID, nil
		}
	}
	return 0, fmt.Errorf("no app installation found for %s (is the app installed?)", c.owner)
}
