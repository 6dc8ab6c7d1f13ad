// Deezer adapter.
//
// The public API needs no authentication for playlist reads. Pagination is
// cursor style: each tracks page carries an absolute next URL.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const deezerBaseURL = "https://api.deezer.com"

var (
	deezerIDRe          = regexp.MustCompile(`^\d+$`)
	deezerPlaylistURLRe = regexp.MustCompile(`^https?://(?:www\.)?deezer\.com/(?:[a-z]{2}/)?playlist/(\d+)`)
	deezerShortlinkRe   = regexp.MustCompile(`^https?://(?:link\.deezer\.com/s/|deezer\.page\.link/)[A-Za-z0-9]+`)
	deezerDomainRe      = regexp.MustCompile(`^https?://(?:www\.)?deezer\.com/`)
	deezerResourceRe    = regexp.MustCompile(`^https?://(?:www\.)?deezer\.com/(?:[a-z]{2}/)?(track|album|artist)/`)
)

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerArtist struct {
	Name string `json:"name"`
}

type deezerAlbum struct {
	Title       string `json:"title"`
	CoverBig    string `json:"cover_big"`
	ReleaseDate string `json:"release_date"`
}

type deezerTrack struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	Link         string         `json:"link"`
	Duration     int            `json:"duration"`
	Preview      string         `json:"preview"`
	Readable     bool           `json:"readable"`
	ISRC         string         `json:"isrc"`
	ReleaseDate  string         `json:"release_date"`
	Type         string         `json:"type"`
	Artist       deezerArtist   `json:"artist"`
	Album        deezerAlbum    `json:"album"`
	Contributors []deezerArtist `json:"contributors"`
}

type deezerTracksPage struct {
	Data  []deezerTrack `json:"data"`
	Total int           `json:"total"`
	Next  string        `json:"next"`
	Error *deezerError  `json:"error"`
}

type deezerPlaylist struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	PictureBig  string       `json:"picture_big"`
	NbTracks    int          `json:"nb_tracks"`
	Link        string       `json:"link"`
	Error       *deezerError `json:"error"`
}

// DeezerProvider implements [Provider] for the public Deezer API.
type DeezerProvider struct {
	httpClient *http.Client
	cache      cache.Store
	logger     *log.Logger
	limiter    *rate.Limiter
	baseURL    string
}

// NewDeezerProvider creates the Deezer adapter singleton.
func NewDeezerProvider(cacheStore cache.Store, client *http.Client, logger *log.Logger) *DeezerProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &DeezerProvider{
		httpClient: client,
		cache:      cacheStore,
		logger:     logger.With("service", models.ServiceDeezer),
		limiter:    rate.NewLimiter(rate.Limit(4), 1),
		baseURL:    deezerBaseURL,
	}
}

func (p *DeezerProvider) Service() models.ServiceType { return models.ServiceDeezer }

func (p *DeezerProvider) Config() models.ProviderConfig {
	return models.ProviderConfig{
		SupportsOAuth:            false,
		SupportsPublicPlaylists:  true,
		SupportsSearch:           true,
		SupportsPlaylistCreation: false,
	}
}

// ValidateURL classifies input against the Deezer grammar: bare numeric id,
// playlist URL with optional language segment, shortlink domains, then any
// deezer.com URL sub-classified by resource path.
func (p *DeezerProvider) ValidateURL(input string) models.URLValidation {
	input = strings.TrimSpace(input)

	if deezerIDRe.MatchString(input) {
		return models.URLValidation{IsValid: true, ResourceType: models.ResourcePlaylist, ResourceID: input}
	}

	if m := deezerPlaylistURLRe.FindStringSubmatch(input); m != nil {
		return models.URLValidation{IsValid: true, IsServiceURL: true, ResourceType: models.ResourcePlaylist, ResourceID: m[1]}
	}

	if deezerShortlinkRe.MatchString(input) {
		return models.URLValidation{IsValid: true, IsServiceURL: true, IsShortlink: true, ResourceType: models.ResourcePlaylist}
	}

	if deezerDomainRe.MatchString(input) {
		result := models.URLValidation{IsServiceURL: true, ErrorType: models.ValidationErrNotPlaylist}
		if m := deezerResourceRe.FindStringSubmatch(input); m != nil {
			result.ResourceType = models.ResourceType(m[1])
		}
		return result
	}

	return models.URLValidation{}
}

func (p *DeezerProvider) ExtractPlaylistID(input string) (string, bool) {
	result := p.ValidateURL(input)
	if !result.IsValid || result.ResourceID == "" {
		return "", false
	}
	return result.ResourceID, true
}

// ResolveShortlink resolves a link.deezer.com or deezer.page.link URL.
func (p *DeezerProvider) ResolveShortlink(ctx context.Context, shortURL string) (models.URLValidation, error) {
	return resolveShortlink(ctx, p.httpClient, models.ServiceDeezer, shortURL, p.ValidateURL)
}

// getJSON fetches a Deezer endpoint. Deezer reports failures as a 200 with
// an error envelope, so the body error is checked by the callers.
func (p *DeezerProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	requestURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		requestURL = p.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return upstreamErr(models.ServiceDeezer, "failed to build request", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return upstreamErr(models.ServiceDeezer, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(models.ServiceDeezer, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstreamErr(models.ServiceDeezer, "failed to decode response", err)
	}
	return nil
}

func deezerEnvelopeErr(e *deezerError, id string) error {
	if e == nil {
		return nil
	}
	// code 800 is "no data", the playlist does not exist
	if e.Code == 800 || e.Type == "DataException" {
		return notFoundErr(models.ServiceDeezer, id)
	}
	if e.Code == 4 {
		return &models.ProviderError{Kind: models.ErrKindRateLimited, Service: models.ServiceDeezer, Message: e.Message}
	}
	return upstreamErr(models.ServiceDeezer, fmt.Sprintf("upstream error %d: %s", e.Code, e.Message), nil)
}

// GetPlaylist fetches normalized playlist metadata, cache first.
func (p *DeezerProvider) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	if !deezerIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceDeezer, "invalid playlist id")
	}

	key := cache.Key(models.ServiceDeezer, "playlist", id)
	var playlist models.Playlist
	if cachedJSON(p.cache, p.logger, key, &playlist) {
		return &playlist, nil
	}

	var dp deezerPlaylist
	if err := p.getJSON(ctx, "/playlist/"+id, &dp); err != nil {
		return nil, err
	}
	if err := deezerEnvelopeErr(dp.Error, id); err != nil {
		return nil, err
	}

	playlist = models.Playlist{
		ID:          strconv.FormatInt(dp.ID, 10),
		Name:        dp.Title,
		Description: dp.Description,
		ImageURL:    dp.PictureBig,
		TrackCount:  dp.NbTracks,
		Service:     models.ServiceDeezer,
		OriginalURL: dp.Link,
	}

	writeCache(p.cache, p.logger, key, &playlist, cache.MetadataTTL)
	return &playlist, nil
}

// GetTracks fetches the full track listing, following the absolute next
// URL until absent or the track cap is hit.
func (p *DeezerProvider) GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error) {
	if !deezerIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceDeezer, "invalid playlist id")
	}

	key := cache.Key(models.ServiceDeezer, "tracks", id)
	if !bypassCache {
		var cached models.TracksResult
		if cachedJSON(p.cache, p.logger, key, &cached) {
			return &cached, nil
		}
	}

	result := &models.TracksResult{}
	seen := make(map[int64]bool)
	endpoint := "/playlist/" + id + "/tracks?limit=100"

	for endpoint != "" && len(result.Tracks) < maxTracks {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, upstreamErr(models.ServiceDeezer, "pagination interrupted", err)
		}

		var page deezerTracksPage
		if err := p.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		if err := deezerEnvelopeErr(page.Error, id); err != nil {
			return nil, err
		}

		for _, item := range page.Data {
			if len(result.Tracks) >= maxTracks {
				break
			}
			p.appendTrack(result, seen, item)
		}

		endpoint = page.Next
	}

	result.Total = len(result.Tracks)
	writeCache(p.cache, p.logger, key, result, cache.TracksTTL)
	return result, nil
}

func (p *DeezerProvider) appendTrack(result *models.TracksResult, seen map[int64]bool, item deezerTrack) {
	if item.Type == "episode" {
		result.Skip(models.SkippedItem{Name: item.Title, Reason: models.SkipPodcast})
		return
	}
	if !item.Readable || item.ID == 0 {
		result.Skip(models.SkippedItem{Name: item.Title, Artist: item.Artist.Name, Reason: models.SkipUnavailable})
		return
	}
	if seen[item.ID] {
		result.Skip(models.SkippedItem{Name: item.Title, Artist: item.Artist.Name, Reason: models.SkipDuplicate})
		return
	}
	seen[item.ID] = true

	releaseDate := item.ReleaseDate
	if releaseDate == "" {
		releaseDate = item.Album.ReleaseDate
	}

	track := models.Track{
		ID:            strconv.FormatInt(item.ID, 10),
		Name:          cleanTrackName(item.Title),
		Artist:        item.Artist.Name,
		Album:         item.Album.Title,
		AlbumImageURL: item.Album.CoverBig,
		ReleaseDate:   releaseDate,
		ISRC:          item.ISRC,
		PreviewURL:    item.Preview,
		DurationMS:    item.Duration * 1000,
		Service:       models.ServiceDeezer,
		ServiceLink:   item.Link,
	}

	for _, contributor := range item.Contributors {
		track.Artists = append(track.Artists, contributor.Name)
	}
	if len(track.Artists) == 0 && item.Artist.Name != "" {
		track.Artists = []string{item.Artist.Name}
	}

	result.Tracks = append(result.Tracks, track)
}

// SearchTracks searches the Deezer catalog.
func (p *DeezerProvider) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	key := cache.Key(models.ServiceDeezer, "search", query, strconv.Itoa(limit))
	var cached []models.Track
	if cachedJSON(p.cache, p.logger, key, &cached) {
		return cached, nil
	}

	var page deezerTracksPage
	endpoint := fmt.Sprintf("/search/track?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := p.getJSON(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	if err := deezerEnvelopeErr(page.Error, query); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(page.Data))
	for _, item := range page.Data {
		if item.ID == 0 {
			continue
		}
		tracks = append(tracks, models.Track{
			ID:            strconv.FormatInt(item.ID, 10),
			Name:          cleanTrackName(item.Title),
			Artist:        item.Artist.Name,
			Artists:       []string{item.Artist.Name},
			Album:         item.Album.Title,
			AlbumImageURL: item.Album.CoverBig,
			ISRC:          item.ISRC,
			PreviewURL:    item.Preview,
			DurationMS:    item.Duration * 1000,
			Service:       models.ServiceDeezer,
			ServiceLink:   item.Link,
		})
	}

	writeCache(p.cache, p.logger, key, tracks, cache.SearchTTL)
	return tracks, nil
}
