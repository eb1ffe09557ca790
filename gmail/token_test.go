package gmail_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/gmail"
)

// tokenServer fakes the OAuth2 token endpoint, handing out tokens with
// the scripted lifetimes in order (last one repeats).
func tokenServer(t *testing.T, calls *atomic.Int64, lifetimes ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}

		n := calls.Add(1)
		lifetime := lifetimes[len(lifetimes)-1]
		if int(n) <= len(lifetimes) {
			lifetime = lifetimes[n-1]
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":%d}`, n, lifetime)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(srv *httptest.Server) *gmail.TokenManager {
	return gmail.NewTokenManager(gmail.TokenConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		TokenURL:     srv.URL,
	})
}

func TestTokenManager_CachedTokenReused(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	manager := newManager(tokenServer(t, &calls, 3600))

	first, err := manager.EnsureValidToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}
	second, err := manager.EnsureValidToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get cached token: %v", err)
	}

	if first != second {
		t.Errorf("Expected cached token, got %q then %q", first, second)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 exchange, got %d", calls.Load())
	}
}

func TestTokenManager_ProactiveRefreshInsideMargin(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	// First token expires in 2 minutes, inside the 5-minute margin; the
	// replacement lives an hour.
	manager := newManager(tokenServer(t, &calls, 120, 3600))

	if _, err := manager.EnsureValidToken(ctx); err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}

	// The short-lived token must not be reused.
	token, err := manager.EnsureValidToken(ctx)
	if err != nil {
		t.Fatalf("Failed to refresh token: %v", err)
	}
	if token != "token-2" {
		t.Errorf("Expected refreshed token-2, got %q", token)
	}
	if calls.Load() != 2 {
		t.Fatalf("Expected 2 exchanges, got %d", calls.Load())
	}

	// A follow-up call well within the new token's lifetime is served
	// from cache.
	if _, err := manager.EnsureValidToken(ctx); err != nil {
		t.Fatalf("Failed to get cached token: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected cached reuse, got %d exchanges", calls.Load())
	}
}

func TestTokenManager_RefreshFailedAfterTwoAttempts(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newManager(srv).EnsureValidToken(ctx)
	if !errors.Is(err, core.ErrRefreshFailed) {
		t.Errorf("Expected ErrRefreshFailed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", calls.Load())
	}
}

func TestTokenManager_InvalidGrant(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := newManager(srv).EnsureValidToken(ctx)
	if !errors.Is(err, core.ErrRefreshFailed) {
		t.Fatalf("Expected ErrRefreshFailed, got %v", err)
	}
}
