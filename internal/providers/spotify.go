// Spotify adapter.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
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
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

var (
	spotifyIDRe          = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)
	spotifyPlaylistURLRe = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z]{2}(?:-[a-zA-Z]{2})?/)?(?:user/[^/]+/)?playlist/([A-Za-z0-9]{22})`)
	spotifyURIRe         = regexp.MustCompile(`^spotify:playlist:([A-Za-z0-9]{22})$`)
	spotifyShortlinkRe   = regexp.MustCompile(`^https?://spotify\.link/[A-Za-z0-9]+`)
	spotifyDomainRe      = regexp.MustCompile(`^https?://open\.spotify\.com/`)
	spotifyResourceRe    = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z]{2}(?:-[a-zA-Z]{2})?/)?(track|album|artist)/`)
)

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []spotifyImage `json:"images"`
}

type spotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Artists     []spotifyArtist `json:"artists"`
	Album       spotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	PreviewURL  string          `json:"preview_url"`
	IsPlayable  *bool           `json:"is_playable"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spotifyPlaylistItem struct {
	IsLocal bool          `json:"is_local"`
	Track   *spotifyTrack `json:"track"`
}

type spotifyTracksPage struct {
	Items []spotifyPlaylistItem `json:"items"`
	Total int                   `json:"total"`
	Next  *string               `json:"next"`
}

type spotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Images      []spotifyImage `json:"images"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// SpotifyProvider implements [Provider] for the Spotify Web API.
// OAuth-capable (PKCE), cursor-style pagination via the response's next link.
type SpotifyProvider struct {
	httpClient *http.Client
	cache      cache.Store
	tokens     *TokenManager
	logger     *log.Logger
	limiter    *rate.Limiter
	baseURL    string
}

// NewSpotifyProvider creates the Spotify adapter singleton.
func NewSpotifyProvider(conf shared.SpotifyConfig, store credentials.Store, cacheStore cache.Store, client *http.Client, logger *log.Logger) *SpotifyProvider {
	if client == nil {
		client = http.DefaultClient
	}

	oauthConf := &oauth2.Config{
		ClientID:    conf.ClientID,
		RedirectURL: conf.RedirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyProvider{
		httpClient: client,
		cache:      cacheStore,
		tokens:     NewTokenManager(models.ServiceSpotify, oauthConf, store, client, logger),
		logger:     logger.With("service", models.ServiceSpotify),
		limiter:    rate.NewLimiter(rate.Limit(4), 1),
		baseURL:    spotifyBaseURL,
	}
}

func (p *SpotifyProvider) Service() models.ServiceType { return models.ServiceSpotify }

func (p *SpotifyProvider) Config() models.ProviderConfig {
	return models.ProviderConfig{
		SupportsOAuth:            true,
		SupportsPublicPlaylists:  true,
		SupportsSearch:           true,
		SupportsPlaylistCreation: true,
	}
}

// ValidateURL classifies input against the Spotify grammar in strict
// precedence order: bare 22-char id, canonical playlist URL, spotify: URI,
// spotify.link shortlink, then any open.spotify.com URL sub-classified by
// resource path.
func (p *SpotifyProvider) ValidateURL(input string) models.URLValidation {
	input = strings.TrimSpace(input)

	if spotifyIDRe.MatchString(input) {
		return models.URLValidation{IsValid: true, IsServiceURL: false, ResourceType: models.ResourcePlaylist, ResourceID: input}
	}

	if m := spotifyPlaylistURLRe.FindStringSubmatch(input); m != nil {
		return models.URLValidation{IsValid: true, IsServiceURL: true, ResourceType: models.ResourcePlaylist, ResourceID: m[1]}
	}

	if m := spotifyURIRe.FindStringSubmatch(input); m != nil {
		return models.URLValidation{IsValid: true, IsServiceURL: true, ResourceType: models.ResourcePlaylist, ResourceID: m[1]}
	}

	if spotifyShortlinkRe.MatchString(input) {
		// valid but unresolved: the caller must resolve the shortlink first
		return models.URLValidation{IsValid: true, IsServiceURL: true, IsShortlink: true, ResourceType: models.ResourcePlaylist}
	}

	if spotifyDomainRe.MatchString(input) {
		result := models.URLValidation{IsServiceURL: true, ErrorType: models.ValidationErrNotPlaylist}
		if m := spotifyResourceRe.FindStringSubmatch(input); m != nil {
			result.ResourceType = models.ResourceType(m[1])
		}
		return result
	}

	return models.URLValidation{}
}

// ExtractPlaylistID returns the playlist id for a valid input.
func (p *SpotifyProvider) ExtractPlaylistID(input string) (string, bool) {
	result := p.ValidateURL(input)
	if !result.IsValid || result.ResourceID == "" {
		return "", false
	}
	return result.ResourceID, true
}

// ResolveShortlink resolves a spotify.link URL by following its redirects.
func (p *SpotifyProvider) ResolveShortlink(ctx context.Context, shortURL string) (models.URLValidation, error) {
	return resolveShortlink(ctx, p.httpClient, models.ServiceSpotify, shortURL, p.ValidateURL)
}

// AuthorizationURL starts the PKCE flow.
func (p *SpotifyProvider) AuthorizationURL(state string) (string, error) {
	return p.tokens.AuthorizationURL(state)
}

// HandleCallback finishes the PKCE flow.
func (p *SpotifyProvider) HandleCallback(ctx context.Context, code string) error {
	return p.tokens.HandleCallback(ctx, code)
}

// Disconnect erases stored Spotify tokens.
func (p *SpotifyProvider) Disconnect() error {
	return p.tokens.Disconnect()
}

func (p *SpotifyProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := p.tokens.doAuthorized(ctx, p.httpClient, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(models.ServiceSpotify, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstreamErr(models.ServiceSpotify, "failed to decode response", err)
	}
	return nil
}

// GetPlaylist fetches normalized playlist metadata, cache first.
func (p *SpotifyProvider) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	if !spotifyIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceSpotify, "invalid playlist id")
	}

	key := cache.Key(models.ServiceSpotify, "playlist", id)
	var playlist models.Playlist
	if cachedJSON(p.cache, p.logger, key, &playlist) {
		return &playlist, nil
	}

	var sp spotifyPlaylist
	endpoint := fmt.Sprintf("/playlists/%s?fields=id,name,description,images,tracks.total,external_urls", id)
	if err := p.getJSON(ctx, endpoint, &sp); err != nil {
		return nil, err
	}

	playlist = models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Service:     models.ServiceSpotify,
		OriginalURL: sp.ExternalURLs.Spotify,
	}
	if len(sp.Images) > 0 {
		playlist.ImageURL = sp.Images[0].URL
	}

	writeCache(p.cache, p.logger, key, &playlist, cache.MetadataTTL)
	return &playlist, nil
}

// GetTracks fetches the full track listing, following the next cursor until
// it is absent or the track cap is hit. Pages are fetched sequentially to
// preserve upstream ordering and stay under upstream throttling.
func (p *SpotifyProvider) GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error) {
	if !spotifyIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceSpotify, "invalid playlist id")
	}

	key := cache.Key(models.ServiceSpotify, "tracks", id)
	if !bypassCache {
		var cached models.TracksResult
		if cachedJSON(p.cache, p.logger, key, &cached) {
			return &cached, nil
		}
	}

	result := &models.TracksResult{}
	seen := make(map[string]bool)
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=100&offset=0", id)

	for endpoint != "" && len(result.Tracks) < maxTracks {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, upstreamErr(models.ServiceSpotify, "pagination interrupted", err)
		}

		var page spotifyTracksPage
		if err := p.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if len(result.Tracks) >= maxTracks {
				break
			}
			p.appendItem(result, seen, item)
		}

		endpoint = ""
		if page.Next != nil && *page.Next != "" {
			endpoint = strings.TrimPrefix(*page.Next, p.baseURL)
		}
	}

	result.Total = len(result.Tracks)
	writeCache(p.cache, p.logger, key, result, cache.TracksTTL)
	return result, nil
}

func (p *SpotifyProvider) appendItem(result *models.TracksResult, seen map[string]bool, item spotifyPlaylistItem) {
	if item.IsLocal {
		result.Skip(models.SkippedItem{Name: trackNameOrUnknown(item.Track), Reason: models.SkipLocalFile})
		return
	}
	if item.Track == nil || item.Track.ID == "" {
		result.Skip(models.SkippedItem{Name: trackNameOrUnknown(item.Track), Reason: models.SkipUnavailable})
		return
	}
	if item.Track.Type == "episode" {
		result.Skip(models.SkippedItem{Name: item.Track.Name, Reason: models.SkipPodcast})
		return
	}
	if item.Track.IsPlayable != nil && !*item.Track.IsPlayable {
		result.Skip(models.SkippedItem{Name: item.Track.Name, Artist: firstSpotifyArtist(item.Track), Reason: models.SkipUnavailable})
		return
	}
	if seen[item.Track.ID] {
		result.Skip(models.SkippedItem{Name: item.Track.Name, Artist: firstSpotifyArtist(item.Track), Reason: models.SkipDuplicate})
		return
	}
	seen[item.Track.ID] = true
	result.Tracks = append(result.Tracks, p.normalizeTrack(item.Track))
}

func trackNameOrUnknown(t *spotifyTrack) string {
	if t == nil || t.Name == "" {
		return "(unknown)"
	}
	return t.Name
}

func firstSpotifyArtist(t *spotifyTrack) string {
	if t == nil || len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

func (p *SpotifyProvider) normalizeTrack(st *spotifyTrack) models.Track {
	track := models.Track{
		ID:          st.ID,
		Name:        cleanTrackName(st.Name),
		Album:       st.Album.Name,
		ReleaseDate: st.Album.ReleaseDate,
		ISRC:        st.ExternalIDs.ISRC,
		PreviewURL:  st.PreviewURL,
		DurationMS:  st.DurationMS,
		Service:     models.ServiceSpotify,
		ServiceLink: st.ExternalURLs.Spotify,
	}
	if track.ServiceLink == "" {
		track.ServiceLink = "https://open.spotify.com/track/" + st.ID
	}
	for _, artist := range st.Artists {
		track.Artists = append(track.Artists, artist.Name)
	}
	if len(track.Artists) > 0 {
		track.Artist = track.Artists[0]
	}
	return track
}

// SearchTracks searches the Spotify catalog for tracks matching query.
func (p *SpotifyProvider) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	key := cache.Key(models.ServiceSpotify, "search", query, strconv.Itoa(limit))
	var cached []models.Track
	if cachedJSON(p.cache, p.logger, key, &cached) {
		return cached, nil
	}

	var response struct {
		Tracks struct {
			Items []*spotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)
	if err := p.getJSON(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		if item == nil || item.ID == "" {
			continue
		}
		tracks = append(tracks, p.normalizeTrack(item))
	}

	writeCache(p.cache, p.logger, key, tracks, cache.SearchTTL)
	return tracks, nil
}

// CreatePlaylist creates a private playlist owned by the authenticated user.
func (p *SpotifyProvider) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	var me struct {
		ID string `json:"id"`
	}
	if err := p.getJSON(ctx, "/me", &me); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	})
	if err != nil {
		return nil, upstreamErr(models.ServiceSpotify, "failed to encode request", err)
	}

	resp, err := p.tokens.doAuthorized(ctx, p.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/users/"+url.PathEscape(me.ID)+"/playlists", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(models.ServiceSpotify, resp.StatusCode)
	}

	var sp spotifyPlaylist
	if err := json.NewDecoder(resp.Body).Decode(&sp); err != nil {
		return nil, upstreamErr(models.ServiceSpotify, "failed to decode response", err)
	}

	return &models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		Service:     models.ServiceSpotify,
		OriginalURL: sp.ExternalURLs.Spotify,
	}, nil
}

// DeletePlaylist unfollows (removes) a playlist for the authenticated user.
func (p *SpotifyProvider) DeletePlaylist(ctx context.Context, id string) error {
	if !spotifyIDRe.MatchString(id) {
		return validationErr(models.ServiceSpotify, "invalid playlist id")
	}

	resp, err := p.tokens.doAuthorized(ctx, p.httpClient, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/playlists/"+id+"/followers", nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(models.ServiceSpotify, resp.StatusCode)
	}

	_ = p.cache.Del(cache.Key(models.ServiceSpotify, "playlist", id))
	_ = p.cache.Del(cache.Key(models.ServiceSpotify, "tracks", id))
	return nil
}
