// Tidal adapter.
//
// Playlist reads require a user token (PKCE flow, no client secret).
// Pagination is offset/limit windows against a reported item total.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	tidalAuthURL  = "https://login.tidal.com/authorize"
	tidalTokenURL = "https://auth.tidal.com/v1/oauth2/token"
	tidalBaseURL  = "https://api.tidal.com/v1"

	tidalCountryCode = "US"
	tidalPageSize    = 100
)

var (
	tidalUUIDRe        = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	tidalPlaylistURLRe = regexp.MustCompile(`^https?://(?:listen\.)?tidal\.com/(?:browse/)?playlist/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)
	tidalDomainRe      = regexp.MustCompile(`^https?://(?:listen\.)?tidal\.com/`)
	tidalResourceRe    = regexp.MustCompile(`^https?://(?:listen\.)?tidal\.com/(?:browse/)?(track|album|artist)/`)
)

type tidalArtist struct {
	Name string `json:"name"`
}

type tidalAlbum struct {
	Title       string `json:"title"`
	Cover       string `json:"cover"`
	ReleaseDate string `json:"releaseDate"`
}

type tidalTrack struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Duration    int           `json:"duration"`
	ISRC        string        `json:"isrc"`
	URL         string        `json:"url"`
	StreamReady bool          `json:"streamReady"`
	Artist      tidalArtist   `json:"artist"`
	Artists     []tidalArtist `json:"artists"`
	Album       tidalAlbum    `json:"album"`
}

type tidalPlaylistItem struct {
	Type string      `json:"type"`
	Item *tidalTrack `json:"item"`
}

type tidalItemsPage struct {
	Items              []tidalPlaylistItem `json:"items"`
	TotalNumberOfItems int                 `json:"totalNumberOfItems"`
	Limit              int                 `json:"limit"`
	Offset             int                 `json:"offset"`
}

type tidalPlaylist struct {
	UUID           string `json:"uuid"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	NumberOfTracks int    `json:"numberOfTracks"`
	Image          string `json:"image"`
	SquareImage    string `json:"squareImage"`
	URL            string `json:"url"`
}

// TidalProvider implements [Provider] for the Tidal API. OAuth-capable
// (PKCE); playlist reads require an authenticated user.
type TidalProvider struct {
	httpClient *http.Client
	cache      cache.Store
	tokens     *TokenManager
	logger     *log.Logger
	limiter    *rate.Limiter
	baseURL    string
}

// NewTidalProvider creates the Tidal adapter singleton.
func NewTidalProvider(conf shared.TidalConfig, store credentials.Store, cacheStore cache.Store, client *http.Client, logger *log.Logger) *TidalProvider {
	if client == nil {
		client = http.DefaultClient
	}

	oauthConf := &oauth2.Config{
		ClientID:    conf.ClientID,
		RedirectURL: conf.RedirectURI,
		Scopes:      []string{"r_usr", "w_usr"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  tidalAuthURL,
			TokenURL: tidalTokenURL,
		},
	}

	return &TidalProvider{
		httpClient: client,
		cache:      cacheStore,
		tokens:     NewTokenManager(models.ServiceTidal, oauthConf, store, client, logger),
		logger:     logger.With("service", models.ServiceTidal),
		limiter:    rate.NewLimiter(rate.Limit(4), 1),
		baseURL:    tidalBaseURL,
	}
}

func (p *TidalProvider) Service() models.ServiceType { return models.ServiceTidal }

func (p *TidalProvider) Config() models.ProviderConfig {
	return models.ProviderConfig{
		SupportsOAuth:            true,
		SupportsPublicPlaylists:  false,
		SupportsSearch:           false,
		SupportsPlaylistCreation: false,
	}
}

// ValidateURL classifies input against the Tidal grammar: bare UUID,
// playlist URL on either listen/browse form, then any tidal.com URL
// sub-classified by resource path.
func (p *TidalProvider) ValidateURL(input string) models.URLValidation {
	input = strings.TrimSpace(input)

	if tidalUUIDRe.MatchString(strings.ToLower(input)) {
		return models.URLValidation{IsValid: true, ResourceType: models.ResourcePlaylist, ResourceID: strings.ToLower(input)}
	}

	if m := tidalPlaylistURLRe.FindStringSubmatch(strings.ToLower(input)); m != nil {
		return models.URLValidation{IsValid: true, IsServiceURL: true, ResourceType: models.ResourcePlaylist, ResourceID: m[1]}
	}

	if tidalDomainRe.MatchString(input) {
		result := models.URLValidation{IsServiceURL: true, ErrorType: models.ValidationErrNotPlaylist}
		if m := tidalResourceRe.FindStringSubmatch(input); m != nil {
			result.ResourceType = models.ResourceType(m[1])
		}
		return result
	}

	return models.URLValidation{}
}

func (p *TidalProvider) ExtractPlaylistID(input string) (string, bool) {
	result := p.ValidateURL(input)
	if !result.IsValid || result.ResourceID == "" {
		return "", false
	}
	return result.ResourceID, true
}

// AuthorizationURL starts the PKCE flow.
func (p *TidalProvider) AuthorizationURL(state string) (string, error) {
	return p.tokens.AuthorizationURL(state)
}

// HandleCallback finishes the PKCE flow.
func (p *TidalProvider) HandleCallback(ctx context.Context, code string) error {
	return p.tokens.HandleCallback(ctx, code)
}

// Disconnect erases stored Tidal tokens.
func (p *TidalProvider) Disconnect() error {
	return p.tokens.Disconnect()
}

func (p *TidalProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := p.tokens.doAuthorized(ctx, p.httpClient, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(models.ServiceTidal, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstreamErr(models.ServiceTidal, "failed to decode response", err)
	}
	return nil
}

// GetPlaylist fetches normalized playlist metadata, cache first.
func (p *TidalProvider) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	id = strings.ToLower(id)
	if !tidalUUIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceTidal, "invalid playlist id")
	}

	key := cache.Key(models.ServiceTidal, "playlist", id)
	var playlist models.Playlist
	if cachedJSON(p.cache, p.logger, key, &playlist) {
		return &playlist, nil
	}

	var tp tidalPlaylist
	endpoint := fmt.Sprintf("/playlists/%s?countryCode=%s", id, tidalCountryCode)
	if err := p.getJSON(ctx, endpoint, &tp); err != nil {
		return nil, err
	}

	playlist = models.Playlist{
		ID:          tp.UUID,
		Name:        tp.Title,
		Description: tp.Description,
		ImageURL:    tidalImageURL(tp.SquareImage, tp.Image),
		TrackCount:  tp.NumberOfTracks,
		Service:     models.ServiceTidal,
		OriginalURL: tp.URL,
	}
	if playlist.OriginalURL == "" {
		playlist.OriginalURL = "https://tidal.com/browse/playlist/" + tp.UUID
	}

	writeCache(p.cache, p.logger, key, &playlist, cache.MetadataTTL)
	return &playlist, nil
}

// GetTracks fetches the full item listing in offset windows until the
// reported total is reached or the track cap is hit.
func (p *TidalProvider) GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error) {
	id = strings.ToLower(id)
	if !tidalUUIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceTidal, "invalid playlist id")
	}

	key := cache.Key(models.ServiceTidal, "tracks", id)
	if !bypassCache {
		var cached models.TracksResult
		if cachedJSON(p.cache, p.logger, key, &cached) {
			return &cached, nil
		}
	}

	result := &models.TracksResult{}
	seen := make(map[int64]bool)
	offset := 0

	for len(result.Tracks) < maxTracks {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, upstreamErr(models.ServiceTidal, "pagination interrupted", err)
		}

		var page tidalItemsPage
		endpoint := fmt.Sprintf("/playlists/%s/items?countryCode=%s&limit=%d&offset=%d", id, tidalCountryCode, tidalPageSize, offset)
		if err := p.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			if len(result.Tracks) >= maxTracks {
				break
			}
			p.appendItem(result, seen, item)
		}

		offset += len(page.Items)
		if offset >= page.TotalNumberOfItems {
			break
		}
	}

	result.Total = len(result.Tracks)
	writeCache(p.cache, p.logger, key, result, cache.TracksTTL)
	return result, nil
}

func (p *TidalProvider) appendItem(result *models.TracksResult, seen map[int64]bool, item tidalPlaylistItem) {
	if item.Item == nil {
		result.Skip(models.SkippedItem{Name: "(unknown)", Reason: models.SkipUnavailable})
		return
	}
	track := item.Item
	if item.Type != "" && item.Type != "track" {
		// videos and other non-track items are not playable audio
		result.Skip(models.SkippedItem{Name: track.Title, Artist: track.Artist.Name, Reason: models.SkipUnavailable})
		return
	}
	if !track.StreamReady {
		result.Skip(models.SkippedItem{Name: track.Title, Artist: track.Artist.Name, Reason: models.SkipUnavailable})
		return
	}
	if seen[track.ID] {
		result.Skip(models.SkippedItem{Name: track.Title, Artist: track.Artist.Name, Reason: models.SkipDuplicate})
		return
	}
	seen[track.ID] = true

	normalized := models.Track{
		ID:          fmt.Sprintf("%d", track.ID),
		Name:        cleanTrackName(track.Title),
		Artist:      track.Artist.Name,
		Album:       track.Album.Title,
		ReleaseDate: track.Album.ReleaseDate,
		ISRC:        track.ISRC,
		DurationMS:  track.Duration * 1000,
		Service:     models.ServiceTidal,
		ServiceLink: track.URL,
	}
	if normalized.ServiceLink == "" {
		normalized.ServiceLink = fmt.Sprintf("https://tidal.com/browse/track/%d", track.ID)
	}
	for _, artist := range track.Artists {
		normalized.Artists = append(normalized.Artists, artist.Name)
	}
	if len(normalized.Artists) == 0 && track.Artist.Name != "" {
		normalized.Artists = []string{track.Artist.Name}
	}
	if track.Album.Cover != "" {
		normalized.AlbumImageURL = fmt.Sprintf("https://resources.tidal.com/images/%s/640x640.jpg", strings.ReplaceAll(track.Album.Cover, "-", "/"))
	}

	result.Tracks = append(result.Tracks, normalized)
}

func tidalImageURL(ids ...string) string {
	for _, id := range ids {
		if id != "" {
			return fmt.Sprintf("https://resources.tidal.com/images/%s/640x640.jpg", strings.ReplaceAll(id, "-", "/"))
		}
	}
	return ""
}
