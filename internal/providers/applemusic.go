// Apple Music adapter.
//
// Catalog playlists are public but every request carries the developer
// token. Pagination is cursor style: each page reports a relative next URL.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const appleMusicBaseURL = "https://api.music.apple.com"

var (
	appleIDRe          = regexp.MustCompile(`^pl\.[a-zA-Z0-9.-]+$`)
	applePlaylistURLRe = regexp.MustCompile(`^https?://music\.apple\.com/([a-z]{2})/playlist/(?:[^/]+/)?(pl\.[a-zA-Z0-9.-]+)`)
	appleDomainRe      = regexp.MustCompile(`^https?://music\.apple\.com/`)
	appleResourceRe    = regexp.MustCompile(`^https?://music\.apple\.com/[a-z]{2}/(album|artist|song)/`)
)

type appleArtwork struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// resolvedURL substitutes the artwork template dimensions.
func (a appleArtwork) resolvedURL() string {
	u := strings.ReplaceAll(a.URL, "{w}", "640")
	return strings.ReplaceAll(u, "{h}", "640")
}

type applePlaylistResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name        string       `json:"name"`
			CuratorName string       `json:"curatorName"`
			Description struct {
				Standard string `json:"standard"`
			} `json:"description"`
			Artwork appleArtwork `json:"artwork"`
			URL     string       `json:"url"`
		} `json:"attributes"`
		Relationships struct {
			Tracks appleTracksPage `json:"tracks"`
		} `json:"relationships"`
	} `json:"data"`
}

type appleTracksPage struct {
	Data []appleTrack `json:"data"`
	Next string       `json:"next"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type appleTrack struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name             string       `json:"name"`
		ArtistName       string       `json:"artistName"`
		AlbumName        string       `json:"albumName"`
		ReleaseDate      string       `json:"releaseDate"`
		ISRC             string       `json:"isrc"`
		DurationInMillis int          `json:"durationInMillis"`
		Artwork          appleArtwork `json:"artwork"`
		URL              string       `json:"url"`
		Previews         []struct {
			URL string `json:"url"`
		} `json:"previews"`
	} `json:"attributes"`
}

// AppleMusicProvider implements [Provider] for the Apple Music catalog API.
type AppleMusicProvider struct {
	httpClient     *http.Client
	cache          cache.Store
	logger         *log.Logger
	limiter        *rate.Limiter
	developerToken string
	storefront     string
	baseURL        string
}

// NewAppleMusicProvider creates the Apple Music adapter singleton.
func NewAppleMusicProvider(conf shared.AppleMusicConfig, cacheStore cache.Store, client *http.Client, logger *log.Logger) *AppleMusicProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &AppleMusicProvider{
		httpClient:     client,
		cache:          cacheStore,
		logger:         logger.With("service", models.ServiceAppleMusic),
		limiter:        rate.NewLimiter(rate.Limit(4), 1),
		developerToken: conf.DeveloperToken,
		storefront:     "us",
		baseURL:        appleMusicBaseURL,
	}
}

func (p *AppleMusicProvider) Service() models.ServiceType { return models.ServiceAppleMusic }

func (p *AppleMusicProvider) Config() models.ProviderConfig {
	return models.ProviderConfig{
		SupportsOAuth:            false,
		SupportsPublicPlaylists:  true,
		SupportsSearch:           false,
		SupportsPlaylistCreation: false,
	}
}

// ValidateURL classifies input against the Apple Music grammar: bare
// pl.-prefixed id, storefront playlist URL (with or without slug), then any
// music.apple.com URL sub-classified by resource path.
func (p *AppleMusicProvider) ValidateURL(input string) models.URLValidation {
	input = strings.TrimSpace(input)

	if appleIDRe.MatchString(input) {
		return models.URLValidation{IsValid: true, ResourceType: models.ResourcePlaylist, ResourceID: input}
	}

	if m := applePlaylistURLRe.FindStringSubmatch(input); m != nil {
		return models.URLValidation{IsValid: true, IsServiceURL: true, ResourceType: models.ResourcePlaylist, ResourceID: m[2]}
	}

	if appleDomainRe.MatchString(input) {
		result := models.URLValidation{IsServiceURL: true, ErrorType: models.ValidationErrNotPlaylist}
		if m := appleResourceRe.FindStringSubmatch(input); m != nil {
			switch m[1] {
			case "song":
				result.ResourceType = models.ResourceTrack
			default:
				result.ResourceType = models.ResourceType(m[1])
			}
		}
		return result
	}

	return models.URLValidation{}
}

func (p *AppleMusicProvider) ExtractPlaylistID(input string) (string, bool) {
	result := p.ValidateURL(input)
	if !result.IsValid || result.ResourceID == "" {
		return "", false
	}
	return result.ResourceID, true
}

func (p *AppleMusicProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	if p.developerToken == "" {
		return authErr(models.ServiceAppleMusic, "no developer token configured", shared.ErrMissingCredentials)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return upstreamErr(models.ServiceAppleMusic, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.developerToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return upstreamErr(models.ServiceAppleMusic, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(models.ServiceAppleMusic, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstreamErr(models.ServiceAppleMusic, "failed to decode response", err)
	}
	return nil
}

// GetPlaylist fetches normalized catalog playlist metadata, cache first.
func (p *AppleMusicProvider) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	if !appleIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceAppleMusic, "invalid playlist id")
	}

	key := cache.Key(models.ServiceAppleMusic, "playlist", id)
	var playlist models.Playlist
	if cachedJSON(p.cache, p.logger, key, &playlist) {
		return &playlist, nil
	}

	var response applePlaylistResponse
	endpoint := fmt.Sprintf("/v1/catalog/%s/playlists/%s", p.storefront, id)
	if err := p.getJSON(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, notFoundErr(models.ServiceAppleMusic, id)
	}

	data := response.Data[0]
	trackCount := data.Relationships.Tracks.Meta.Total
	if trackCount == 0 {
		trackCount = len(data.Relationships.Tracks.Data)
	}

	playlist = models.Playlist{
		ID:          data.ID,
		Name:        data.Attributes.Name,
		Description: data.Attributes.Description.Standard,
		ImageURL:    data.Attributes.Artwork.resolvedURL(),
		TrackCount:  trackCount,
		Service:     models.ServiceAppleMusic,
		OriginalURL: data.Attributes.URL,
	}

	writeCache(p.cache, p.logger, key, &playlist, cache.MetadataTTL)
	return &playlist, nil
}

// GetTracks fetches the full track listing, following the relative next
// cursor until absent or the track cap is hit.
func (p *AppleMusicProvider) GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error) {
	if !appleIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceAppleMusic, "invalid playlist id")
	}

	key := cache.Key(models.ServiceAppleMusic, "tracks", id)
	if !bypassCache {
		var cached models.TracksResult
		if cachedJSON(p.cache, p.logger, key, &cached) {
			return &cached, nil
		}
	}

	result := &models.TracksResult{}
	seen := make(map[string]bool)
	endpoint := fmt.Sprintf("/v1/catalog/%s/playlists/%s/tracks?limit=100", p.storefront, id)

	for endpoint != "" && len(result.Tracks) < maxTracks {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, upstreamErr(models.ServiceAppleMusic, "pagination interrupted", err)
		}

		var page appleTracksPage
		if err := p.getJSON(ctx, endpoint, &page); err != nil {
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

func (p *AppleMusicProvider) appendTrack(result *models.TracksResult, seen map[string]bool, item appleTrack) {
	if item.ID == "" || item.Attributes.Name == "" {
		result.Skip(models.SkippedItem{Name: "(unknown)", Reason: models.SkipUnavailable})
		return
	}
	if item.Type != "" && item.Type != "songs" && item.Type != "music-videos" {
		result.Skip(models.SkippedItem{Name: item.Attributes.Name, Reason: models.SkipPodcast})
		return
	}
	if seen[item.ID] {
		result.Skip(models.SkippedItem{Name: item.Attributes.Name, Artist: item.Attributes.ArtistName, Reason: models.SkipDuplicate})
		return
	}
	seen[item.ID] = true

	track := models.Track{
		ID:          item.ID,
		Name:        cleanTrackName(item.Attributes.Name),
		Artist:      item.Attributes.ArtistName,
		Album:       item.Attributes.AlbumName,
		ReleaseDate: item.Attributes.ReleaseDate,
		ISRC:        item.Attributes.ISRC,
		DurationMS:  item.Attributes.DurationInMillis,
		Service:     models.ServiceAppleMusic,
		ServiceLink: item.Attributes.URL,
	}
	if item.Attributes.ArtistName != "" {
		track.Artists = []string{item.Attributes.ArtistName}
	}
	if item.Attributes.Artwork.URL != "" {
		track.AlbumImageURL = item.Attributes.Artwork.resolvedURL()
	}
	if len(item.Attributes.Previews) > 0 {
		track.PreviewURL = item.Attributes.Previews[0].URL
	}

	result.Tracks = append(result.Tracks, track)
}
