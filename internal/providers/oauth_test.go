package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

func newTestTokenManager(t *testing.T, tokenURL string) (*TokenManager, credentials.Store) {
	t.Helper()
	store := credentials.NewMemoryStore()
	conf := &oauth2.Config{
		ClientID:    "client",
		RedirectURL: "http://localhost:3000/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://auth.example.com/authorize",
			TokenURL: tokenURL,
		},
	}
	return NewTokenManager(models.ServiceSpotify, conf, store, nil, log.New(io.Discard)), store
}

func saveTestToken(t *testing.T, store credentials.Store, expiresIn time.Duration, base time.Time) {
	t.Helper()
	err := credentials.SaveToken(store, models.ServiceSpotify, models.OAuthToken{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    base.Add(expiresIn),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func tokenEndpoint(t *testing.T, calls *atomic.Int32, response map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Error(err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAccessTokenFreshTokenSkipsRefresh(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	server := tokenEndpoint(t, &calls, nil)

	manager, store := newTestTokenManager(t, server.URL)
	manager.now = func() time.Time { return base }
	saveTestToken(t, store, 61*time.Second, base)

	token, err := manager.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "old-access" {
		t.Errorf("token = %q, want old-access", token)
	}
	if calls.Load() != 0 {
		t.Errorf("token endpoint called %d times, want 0", calls.Load())
	}
}

func TestAccessTokenRefreshesInsideBuffer(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	server := tokenEndpoint(t, &calls, map[string]any{
		"access_token": "new-access",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})

	manager, store := newTestTokenManager(t, server.URL)
	manager.now = func() time.Time { return base }
	saveTestToken(t, store, 60*time.Second, base) // exactly at the buffer boundary

	token, err := manager.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "new-access" {
		t.Errorf("token = %q, want new-access", token)
	}
	if calls.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls.Load())
	}

	// refresh token omitted from the response; the old one must survive
	record, err := credentials.LoadToken(store, models.ServiceSpotify)
	if err != nil {
		t.Fatal(err)
	}
	if record.AccessToken != "new-access" {
		t.Errorf("persisted access token = %q, want new-access", record.AccessToken)
	}
	if record.RefreshToken != "old-refresh" {
		t.Errorf("persisted refresh token = %q, want old-refresh", record.RefreshToken)
	}
}

func TestAccessTokenRefreshFailureClearsTokens(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	manager, store := newTestTokenManager(t, server.URL)
	manager.now = func() time.Time { return base }
	saveTestToken(t, store, time.Second, base)

	_, err := manager.AccessToken(context.Background())
	if !errors.Is(err, shared.ErrRefreshFailed) {
		t.Fatalf("err = %v, want ErrRefreshFailed", err)
	}

	record, err := credentials.LoadToken(store, models.ServiceSpotify)
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Error("token record should be erased after a failed refresh")
	}
	if manager.Authenticated() {
		t.Error("manager should report unauthenticated after a failed refresh")
	}
}

func TestAccessTokenWithoutRecord(t *testing.T) {
	manager, _ := newTestTokenManager(t, "http://invalid")
	_, err := manager.AccessToken(context.Background())
	if !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestAuthorizationURLPersistsVerifier(t *testing.T) {
	manager, store := newTestTokenManager(t, "http://invalid")

	authURL, err := manager.AuthorizationURL("state123")
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	query := parsed.Query()
	if query.Get("state") != "state123" {
		t.Errorf("state = %q, want state123", query.Get("state"))
	}
	if query.Get("code_challenge") == "" || query.Get("code_challenge_method") != "S256" {
		t.Error("authorization URL must carry an S256 code challenge")
	}

	verifier, err := credentials.TakeVerifier(store, models.ServiceSpotify)
	if err != nil {
		t.Fatal(err)
	}
	if verifier == "" {
		t.Error("code verifier should be persisted for the callback")
	}
}

func TestHandleCallbackExchangesWithVerifier(t *testing.T) {
	var gotVerifier string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		gotVerifier = r.PostFormValue("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)

	manager, store := newTestTokenManager(t, server.URL)

	if _, err := manager.AuthorizationURL("state"); err != nil {
		t.Fatal(err)
	}
	if err := manager.HandleCallback(context.Background(), "authcode"); err != nil {
		t.Fatal(err)
	}
	if gotVerifier == "" {
		t.Error("exchange must send the persisted code verifier")
	}

	record, err := credentials.LoadToken(store, models.ServiceSpotify)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.AccessToken != "access" {
		t.Fatalf("persisted token = %+v, want access token saved", record)
	}

	// the verifier is single-use
	if err := manager.HandleCallback(context.Background(), "authcode"); !errors.Is(err, shared.ErrAuthFailed) {
		t.Errorf("second callback err = %v, want ErrAuthFailed", err)
	}
}

func TestDoAuthorizedRetriesOnceAfterUnauthorized(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var refreshCalls atomic.Int32
	tokenServer := tokenEndpoint(t, &refreshCalls, map[string]any{
		"access_token": "new-access",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})

	var apiTokens []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		apiTokens = append(apiTokens, token)
		if token != "new-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(api.Close)

	manager, store := newTestTokenManager(t, tokenServer.URL)
	manager.now = func() time.Time { return base }
	saveTestToken(t, store, time.Hour, base) // fresh, but upstream rejects it

	resp, err := manager.doAuthorized(context.Background(), http.DefaultClient, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, api.URL, nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if len(apiTokens) != 2 {
		t.Fatalf("upstream saw %d requests, want 2", len(apiTokens))
	}
	if apiTokens[0] != "old-access" || apiTokens[1] != "new-access" {
		t.Errorf("tokens = %v, want [old-access new-access]", apiTokens)
	}
	if refreshCalls.Load() != 1 {
		t.Errorf("refresh called %d times, want 1", refreshCalls.Load())
	}
}

func TestDoAuthorizedGivesUpAfterSecondUnauthorized(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var refreshCalls atomic.Int32
	tokenServer := tokenEndpoint(t, &refreshCalls, map[string]any{
		"access_token": "still-bad",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})

	var apiCalls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	manager, store := newTestTokenManager(t, tokenServer.URL)
	manager.now = func() time.Time { return base }
	saveTestToken(t, store, time.Hour, base)

	_, err := manager.doAuthorized(context.Background(), http.DefaultClient, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, api.URL, nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := models.AsProviderError(err)
	if !ok || pe.Kind != models.ErrKindAuth || !pe.NeedsReAuth {
		t.Fatalf("err = %v, want auth_required with NeedsReAuth", err)
	}
	if apiCalls.Load() != 2 {
		t.Errorf("upstream saw %d requests, want exactly 2", apiCalls.Load())
	}
	if refreshCalls.Load() != 1 {
		t.Errorf("refresh called %d times, want exactly 1", refreshCalls.Load())
	}
}
