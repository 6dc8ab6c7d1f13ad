// Package providers implements the normalized playlist contract on top of
// five structurally different streaming-service APIs.
//
// Each adapter owns its URL grammar, its pagination strategy and its field
// mapping, and presents the same [Provider] surface: validate an input,
// fetch normalized playlist metadata, fetch a normalized track listing.
// Optional operations (search, shortlink resolution, OAuth, playlist
// mutation) are separate interfaces, gated by the adapter's
// [models.ProviderConfig] capability flags.
//
// Adapters are long-lived singletons constructed once at process start and
// reused across all callers; they hold no per-request mutable state beyond
// the token manager, which is keyed per service.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
)

// Provider is the base contract every adapter implements.
//
// GetPlaylist and GetTracks never let an internal failure escape raw: errors
// crossing this boundary are *models.ProviderError values carrying a
// machine-readable kind.
type Provider interface {
	// Service returns the identifier of the upstream this adapter serves.
	Service() models.ServiceType

	// Config returns the adapter's capability flags. Read-only, never mutated.
	Config() models.ProviderConfig

	// ValidateURL classifies an input string (URL, URI or bare identifier)
	// against this service's grammar. Pure, no I/O.
	ValidateURL(input string) models.URLValidation

	// ExtractPlaylistID returns the playlist identifier for a valid input.
	ExtractPlaylistID(input string) (string, bool)

	// GetPlaylist fetches normalized playlist metadata, cache first.
	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)

	// GetTracks fetches the full normalized track listing, paginating as
	// needed. With bypassCache the cache is skipped on read but still
	// written through on success.
	GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error)
}

// Searcher is implemented by adapters whose config declares SupportsSearch.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error)
}

// ShortlinkResolver is implemented by adapters whose service issues short
// URLs that must be resolved via redirect before they reveal a resource.
type ShortlinkResolver interface {
	// ResolveShortlink follows redirects and re-validates the final URL.
	// A non-nil error distinguishes "resolved to a non-playlist resource"
	// from "did not resolve to this service at all".
	ResolveShortlink(ctx context.Context, shortURL string) (models.URLValidation, error)
}

// Authorizer is implemented by adapters whose config declares SupportsOAuth.
type Authorizer interface {
	// AuthorizationURL starts the PKCE flow: generates and persists a code
	// verifier and returns the URL the user must visit.
	AuthorizationURL(state string) (string, error)

	// HandleCallback exchanges the authorization code for tokens.
	HandleCallback(ctx context.Context, code string) error

	// Disconnect erases all persisted tokens for this service.
	Disconnect() error
}

// PlaylistWriter is implemented by adapters whose config declares
// SupportsPlaylistCreation.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error)
	DeletePlaylist(ctx context.Context, id string) error
}

// Registry maps service identifiers to their singleton adapters.
type Registry struct {
	providers map[models.ServiceType]Provider
	order     []models.ServiceType
}

// NewRegistry builds a registry from the given adapters, preserving order.
// The first adapter doubles as the permissive default.
func NewRegistry(adapters ...Provider) *Registry {
	r := &Registry{providers: make(map[models.ServiceType]Provider)}
	for _, p := range adapters {
		if _, dup := r.providers[p.Service()]; dup {
			continue
		}
		r.providers[p.Service()] = p
		r.order = append(r.order, p.Service())
	}
	return r
}

// Get returns the adapter for service. Any unknown value, including the
// empty string, returns the default adapter rather than failing; callers
// that must reject unknown services use [Registry.IsSupported] first.
func (r *Registry) Get(service models.ServiceType) Provider {
	if p, ok := r.providers[service]; ok {
		return p
	}
	return r.providers[r.order[0]]
}

// IsSupported is the strict membership check over the known identifiers.
func (r *Registry) IsSupported(id string) bool {
	_, ok := r.providers[models.ServiceType(id)]
	return ok
}

// Services lists the registered service identifiers in registration order.
func (r *Registry) Services() []models.ServiceType {
	return append([]models.ServiceType(nil), r.order...)
}

// Detect classifies input against every registered service and returns the
// first adapter that recognizes it. Valid matches win over
// recognized-but-invalid ones so that a precise error (wrong resource type)
// is still attributed to the right service.
func (r *Registry) Detect(input string) (Provider, models.URLValidation, bool) {
	var fallback Provider
	var fallbackResult models.URLValidation

	for _, st := range r.order {
		p := r.providers[st]
		result := p.ValidateURL(input)
		if result.IsValid {
			return p, result, true
		}
		if result.IsServiceURL && fallback == nil {
			fallback = p
			fallbackResult = result
		}
	}

	if fallback != nil {
		return fallback, fallbackResult, true
	}
	return nil, models.URLValidation{}, false
}

// Error constructors shared by the adapters.

func validationErr(service models.ServiceType, msg string) *models.ProviderError {
	return &models.ProviderError{Kind: models.ErrKindValidation, Service: service, Message: msg}
}

func notFoundErr(service models.ServiceType, id string) *models.ProviderError {
	return &models.ProviderError{Kind: models.ErrKindNotFound, Service: service, Message: fmt.Sprintf("playlist %s not found", id)}
}

func upstreamErr(service models.ServiceType, msg string, err error) *models.ProviderError {
	return &models.ProviderError{Kind: models.ErrKindUpstream, Service: service, Message: msg, Err: err}
}

func authErr(service models.ServiceType, msg string, err error) *models.ProviderError {
	return &models.ProviderError{Kind: models.ErrKindAuth, Service: service, Message: msg, NeedsReAuth: true, Err: err}
}

func statusErr(service models.ServiceType, status int) *models.ProviderError {
	switch {
	case status == http.StatusNotFound:
		return &models.ProviderError{Kind: models.ErrKindNotFound, Service: service, Message: "not found upstream"}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return authErr(service, fmt.Sprintf("upstream rejected credentials (status %d)", status), nil)
	case status == http.StatusTooManyRequests:
		return &models.ProviderError{Kind: models.ErrKindRateLimited, Service: service, Message: "upstream rate limit"}
	default:
		return upstreamErr(service, fmt.Sprintf("unexpected upstream status %d", status), nil)
	}
}
