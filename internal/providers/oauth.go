package providers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// expiryBuffer is how long before nominal expiry an access token is treated
// as stale. AccessToken refreshes once the remaining lifetime drops to or
// below this buffer.
const expiryBuffer = 60 * time.Second

// TokenManager drives the PKCE authorization-code flow for one service and
// owns the persisted token record.
//
// Lifecycle: AuthorizationURL generates and persists a code verifier;
// HandleCallback consumes it during code exchange; AccessToken returns the
// cached token while fresh and refreshes otherwise. A failed refresh erases
// all tokens, returning the service to the unauthenticated state.
type TokenManager struct {
	service    models.ServiceType
	config     *oauth2.Config
	store      credentials.Store
	httpClient *http.Client
	logger     *log.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewTokenManager creates a token manager for the given service.
// httpClient is used for token-endpoint requests; nil means
// [http.DefaultClient].
func NewTokenManager(service models.ServiceType, config *oauth2.Config, store credentials.Store, httpClient *http.Client, logger *log.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenManager{
		service:    service,
		config:     config,
		store:      store,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// oauthContext routes oauth2's internal HTTP through our client.
func (m *TokenManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// AuthorizationURL generates a PKCE code verifier, persists it, and returns
// the authorization URL the user must visit.
func (m *TokenManager) AuthorizationURL(state string) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := credentials.SaveVerifier(m.store, m.service, verifier); err != nil {
		return "", fmt.Errorf("failed to persist code verifier: %w", err)
	}

	return m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// HandleCallback exchanges the authorization code for tokens using the
// persisted verifier. The verifier is consumed whether or not the exchange
// succeeds.
func (m *TokenManager) HandleCallback(ctx context.Context, code string) error {
	verifier, err := credentials.TakeVerifier(m.store, m.service)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	token, err := m.config.Exchange(m.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("%w: code exchange: %v", shared.ErrAuthFailed, err)
	}

	return m.save(token)
}

// AccessToken is the single read path for the bearer token. It returns the
// cached token while more than [expiryBuffer] remains before expiry and
// otherwise triggers a refresh.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := credentials.LoadToken(m.store, m.service)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", shared.ErrNotAuthenticated
	}

	if !record.Expired(m.now(), expiryBuffer) {
		return record.AccessToken, nil
	}

	return m.refreshLocked(ctx, record)
}

// Refresh forces a token refresh regardless of expiry. Used for the single
// refresh-and-retry after an unauthorized upstream response.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := credentials.LoadToken(m.store, m.service)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", shared.ErrNotAuthenticated
	}

	return m.refreshLocked(ctx, record)
}

// refreshLocked exchanges the refresh token for a new access token.
// On failure all tokens are erased; the caller must re-authorize.
func (m *TokenManager) refreshLocked(ctx context.Context, record *models.OAuthToken) (string, error) {
	if record.RefreshToken == "" {
		_ = credentials.ClearToken(m.store, m.service)
		return "", shared.ErrNoRefreshToken
	}

	source := m.config.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: record.RefreshToken})
	token, err := source.Token()
	if err != nil {
		m.logger.Warn("token refresh failed, clearing credentials", "service", m.service, "err", err)
		_ = credentials.ClearToken(m.store, m.service)
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	// some token endpoints omit the refresh token on rotation; keep the old one
	if token.RefreshToken == "" {
		token.RefreshToken = record.RefreshToken
	}

	if err := m.save(token); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (m *TokenManager) save(token *oauth2.Token) error {
	record := models.OAuthToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if err := credentials.SaveToken(m.store, m.service, record); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Authenticated reports whether a token record exists for this service.
func (m *TokenManager) Authenticated() bool {
	record, err := credentials.LoadToken(m.store, m.service)
	return err == nil && record != nil
}

// Disconnect erases the persisted token record and any pending verifier.
func (m *TokenManager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := credentials.ClearToken(m.store, m.service); err != nil {
		return err
	}
	// a pending verifier is meaningless without the flow that created it
	_, _ = credentials.TakeVerifier(m.store, m.service)
	return nil
}

// doAuthorized performs an authenticated request built by build, refreshing
// the token and retrying exactly once on an unauthorized response. After a
// failed retry the caller receives an auth_required error with NeedsReAuth
// set; there is never an unbounded retry loop.
func (m *TokenManager) doAuthorized(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, authErr(m.service, "no valid access token", err)
	}

	resp, err := m.doOnce(client, build, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	token, err = m.Refresh(ctx)
	if err != nil {
		return nil, authErr(m.service, "refresh after unauthorized response failed", err)
	}

	resp, err = m.doOnce(client, build, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, authErr(m.service, "still unauthorized after refresh", nil)
	}
	return resp, nil
}

func (m *TokenManager) doOnce(client *http.Client, build func() (*http.Request, error), token string) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, upstreamErr(m.service, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, upstreamErr(m.service, "request failed", err)
	}
	return resp, nil
}
