// Package gmail is the email-send satellite: a credential refresh
// manager that keeps an OAuth2 access token valid proactively, and a
// sender that calls the Gmail REST API with it.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/steveconnect/steve-go/core"
)

const (
	// DefaultTokenURL is Google's OAuth2 token endpoint.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	// refreshMargin is the safety window: a token expiring inside it is
	// refreshed before use rather than risked mid-request.
	refreshMargin = 5 * time.Minute

	// refreshAttempts bounds the exchange retries before giving up.
	refreshAttempts = 2
)

// TokenManager caches an access token plus expiry and refreshes it
// against the identity provider before it runs out. The mutex makes
// refresh single-flight: concurrent callers wait for one exchange
// instead of stampeding the token endpoint.
type TokenManager struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
}

// TokenConfig carries the OAuth2 client credentials.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL overrides the exchange endpoint. Tests point it at a
	// local server; empty means DefaultTokenURL.
	TokenURL string

	// HTTPClient overrides the client used for exchanges.
	HTTPClient *http.Client
}

// NewTokenManager creates a manager with no cached token; the first
// EnsureValidToken call performs the initial exchange.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenManager{
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
	}
}

// EnsureValidToken returns an access token guaranteed to live past the
// safety margin, refreshing first when needed. Fails with
// core.ErrRefreshFailed after two consecutive failed exchanges;
// callers surface that as "reconnect the account", never retry loops.
func (t *TokenManager) EnsureValidToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && time.Until(t.expiry) > refreshMargin {
		return t.accessToken, nil
	}

	var lastErr error
	for attempt := 1; attempt <= refreshAttempts; attempt++ {
		token, expiresIn, err := t.exchange(ctx)
		if err == nil {
			t.accessToken = token
			t.expiry = time.Now().Add(expiresIn)
			log.Printf("[GMAIL] Token refreshed, valid for %s", expiresIn)
			return token, nil
		}
		lastErr = err
		log.Printf("[GMAIL] Token refresh attempt %d/%d failed: %v", attempt, refreshAttempts, err)
	}

	t.accessToken = ""
	return "", fmt.Errorf("%w: %v", core.ErrRefreshFailed, lastErr)
}

// exchange performs one refresh_token grant.
func (t *TokenManager) exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
		"refresh_token": {t.refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.Unmarshal(body, &apiErr)
		if apiErr.Error == "invalid_grant" {
			// Refresh token revoked or expired; only reconnecting the
			// account can fix this.
			return "", 0, fmt.Errorf("refresh token no longer valid (invalid_grant)")
		}
		return "", 0, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	expiresIn := time.Duration(payload.ExpiresIn) * time.Second
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	return payload.AccessToken, expiresIn, nil
}
