// YouTube Music adapter.
//
// YouTube Music exposes no documented playlist API; this adapter talks to
// the internal youtubei browse endpoint the web player uses. The response
// is a deeply nested rendering tree whose shape drifts across revisions, so
// item lists and continuation tokens are located by marker-based tree
// search (navigate.go) instead of fixed paths.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
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

const (
	ytMusicBaseURL = "https://music.youtube.com"
	ytBrowsePath   = "/youtubei/v1/browse"
	ytSearchPath   = "/youtubei/v1/search"

	// client identity the internal endpoint expects
	ytClientName    = "WEB_REMIX"
	ytClientVersion = "1.20240401.01.00"

	// hard cap on page fetches, independent of the track cap. Protects
	// against pathological responses returning few items per page.
	ytMaxPages = 50

	ytGreyOutPolicy = "MUSIC_ITEM_RENDERER_DISPLAY_POLICY_GREY_OUT"
)

var (
	ytPlaylistIDRe  = regexp.MustCompile(`^(?:VL)?(PL|OLAK5uy_|RDCLAK5uy_)[A-Za-z0-9_-]{10,}$`)
	ytPlaylistURLRe = regexp.MustCompile(`^https?://(?:music|www)\.youtube\.com/playlist\?(?:.*&)?list=((?:VL)?(?:PL|OLAK5uy_|RDCLAK5uy_)[A-Za-z0-9_-]{10,})`)
	ytDomainRe      = regexp.MustCompile(`^https?://(?:music|www)\.youtube\.com/`)
	ytWatchRe       = regexp.MustCompile(`^https?://(?:music|www)\.youtube\.com/watch\b`)
	ytChannelRe     = regexp.MustCompile(`^https?://(?:music|www)\.youtube\.com/channel/`)
	ytTrackCountRe  = regexp.MustCompile(`^([\d,]+)\s+(?:songs?|tracks?)$`)
	ytDurationRe    = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d{2})$`)
)

// shelfMarkers are the rendering containers known to hold playlist item
// lists, in priority order.
var shelfMarkers = []string{
	"musicPlaylistShelfRenderer",
	"musicShelfRenderer",
}

// headerMarkers are the containers known to hold playlist metadata, in
// priority order across API revisions.
var headerMarkers = []string{
	"musicResponsiveHeaderRenderer",
	"musicDetailHeaderRenderer",
}

// YTMusicProvider implements [Provider] for YouTube Music public playlists.
// No OAuth; pagination uses opaque continuation tokens found by tree search.
type YTMusicProvider struct {
	httpClient *http.Client
	cache      cache.Store
	logger     *log.Logger
	limiter    *rate.Limiter
	baseURL    string
}

// NewYTMusicProvider creates the YouTube Music adapter singleton.
func NewYTMusicProvider(cacheStore cache.Store, client *http.Client, logger *log.Logger) *YTMusicProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &YTMusicProvider{
		httpClient: client,
		cache:      cacheStore,
		logger:     logger.With("service", models.ServiceYouTubeMusic),
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		baseURL:    ytMusicBaseURL,
	}
}

func (p *YTMusicProvider) Service() models.ServiceType { return models.ServiceYouTubeMusic }

func (p *YTMusicProvider) Config() models.ProviderConfig {
	return models.ProviderConfig{
		SupportsOAuth:            false,
		SupportsPublicPlaylists:  true,
		SupportsSearch:           true,
		SupportsPlaylistCreation: false,
	}
}

// ValidateURL classifies input against the YouTube Music grammar: bare
// prefixed playlist id, playlist URL on either domain, then any URL of the
// domain sub-classified by path (watch pages are tracks, channels artists).
func (p *YTMusicProvider) ValidateURL(input string) models.URLValidation {
	input = strings.TrimSpace(input)

	if ytPlaylistIDRe.MatchString(input) {
		return models.URLValidation{IsValid: true, ResourceType: models.ResourcePlaylist, ResourceID: normalizeYTPlaylistID(input)}
	}

	if m := ytPlaylistURLRe.FindStringSubmatch(input); m != nil {
		return models.URLValidation{IsValid: true, IsServiceURL: true, ResourceType: models.ResourcePlaylist, ResourceID: normalizeYTPlaylistID(m[1])}
	}

	if ytDomainRe.MatchString(input) {
		result := models.URLValidation{IsServiceURL: true, ErrorType: models.ValidationErrNotPlaylist}
		switch {
		case ytWatchRe.MatchString(input):
			result.ResourceType = models.ResourceTrack
		case ytChannelRe.MatchString(input):
			result.ResourceType = models.ResourceArtist
		}
		return result
	}

	return models.URLValidation{}
}

// normalizeYTPlaylistID strips the browse-only VL prefix.
func normalizeYTPlaylistID(id string) string {
	return strings.TrimPrefix(id, "VL")
}

func (p *YTMusicProvider) ExtractPlaylistID(input string) (string, bool) {
	result := p.ValidateURL(input)
	if !result.IsValid || result.ResourceID == "" {
		return "", false
	}
	return result.ResourceID, true
}

// browse posts to the internal browse endpoint. continuation is empty for
// the first page.
func (p *YTMusicProvider) browse(ctx context.Context, browseID, continuation string) (map[string]any, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    ytClientName,
				"clientVersion": ytClientVersion,
			},
		},
	}
	if browseID != "" {
		payload["browseId"] = browseID
	}

	endpoint := p.baseURL + ytBrowsePath
	if continuation != "" {
		endpoint += "?ctoken=" + url.QueryEscape(continuation) + "&continuation=" + url.QueryEscape(continuation) + "&type=next"
	}

	return p.postJSON(ctx, endpoint, payload)
}

func (p *YTMusicProvider) postJSON(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, upstreamErr(models.ServiceYouTubeMusic, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, upstreamErr(models.ServiceYouTubeMusic, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", ytMusicBaseURL)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, upstreamErr(models.ServiceYouTubeMusic, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(models.ServiceYouTubeMusic, resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, upstreamErr(models.ServiceYouTubeMusic, "failed to decode response", err)
	}
	return doc, nil
}

// GetPlaylist fetches playlist metadata via the browse endpoint, locating
// the header renderer by marker search.
func (p *YTMusicProvider) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	id = normalizeYTPlaylistID(id)
	if !ytPlaylistIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceYouTubeMusic, "invalid playlist id")
	}

	key := cache.Key(models.ServiceYouTubeMusic, "playlist", id)
	var playlist models.Playlist
	if cachedJSON(p.cache, p.logger, key, &playlist) {
		return &playlist, nil
	}

	doc, err := p.browse(ctx, "VL"+id, "")
	if err != nil {
		return nil, err
	}

	header, ok := findHeader(doc)
	if !ok {
		return nil, notFoundErr(models.ServiceYouTubeMusic, id)
	}

	playlist = models.Playlist{
		ID:          id,
		Name:        runsText(header, "title"),
		Description: runsText(header, "description"),
		ImageURL:    headerThumbnail(header),
		TrackCount:  headerTrackCount(header),
		Service:     models.ServiceYouTubeMusic,
		OriginalURL: ytMusicBaseURL + "/playlist?list=" + id,
	}

	// some revisions only report the count alongside the shelf; fall back
	// to counting the first page plus continuation presence is useless
	// here, so leave zero when truly absent
	writeCache(p.cache, p.logger, key, &playlist, cache.MetadataTTL)
	return &playlist, nil
}

// GetTracks accumulates the full listing by walking continuation pages.
// Metadata extraction and pagination extraction are symmetric: both are
// marker searches over the same raw document.
func (p *YTMusicProvider) GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error) {
	id = normalizeYTPlaylistID(id)
	if !ytPlaylistIDRe.MatchString(id) {
		return nil, validationErr(models.ServiceYouTubeMusic, "invalid playlist id")
	}

	key := cache.Key(models.ServiceYouTubeMusic, "tracks", id)
	if !bypassCache {
		var cached models.TracksResult
		if cachedJSON(p.cache, p.logger, key, &cached) {
			return &cached, nil
		}
	}

	doc, err := p.browse(ctx, "VL"+id, "")
	if err != nil {
		return nil, err
	}

	result := &models.TracksResult{}
	seen := make(map[string]bool)

	items, continuation := extractPage(doc)
	if items == nil {
		return nil, notFoundErr(models.ServiceYouTubeMusic, id)
	}
	p.appendItems(result, seen, items)

	pages := 1
	for continuation != "" && len(result.Tracks) < maxTracks && pages < ytMaxPages {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, upstreamErr(models.ServiceYouTubeMusic, "pagination interrupted", err)
		}

		doc, err = p.browse(ctx, "", continuation)
		if err != nil {
			return nil, err
		}

		items, continuation = extractPage(doc)
		p.appendItems(result, seen, items)
		pages++
	}

	result.Total = len(result.Tracks)
	writeCache(p.cache, p.logger, key, result, cache.TracksTTL)
	return result, nil
}

// extractPage locates the item list and the next continuation token in a
// browse response, first page or continuation page alike.
//
// Continuation markers may appear at several document locations; each known
// location is checked in fixed priority order and the first match wins. No
// match means pagination ends: an unknown shape is safe termination, not
// an error.
func extractPage(doc map[string]any) ([]any, string) {
	// continuation pages: dedicated continuation container
	for _, marker := range []string{"musicPlaylistShelfContinuation", "musicShelfContinuation"} {
		if shelf, ok := findFirstMap(doc, marker); ok {
			items, _ := navList(shelf, "contents")
			return items, shelfContinuation(shelf, doc)
		}
	}

	// continuation pages: side-channel append action
	if action, ok := findFirstMap(doc, "appendContinuationItemsAction"); ok {
		items, _ := navList(action, "continuationItems")
		items, token := splitInlineContinuation(items)
		if token == "" {
			token = documentContinuation(doc)
		}
		return items, token
	}

	// first page: shelf renderers in priority order
	for _, marker := range shelfMarkers {
		if shelf, ok := findFirstMap(doc, marker); ok {
			items, _ := navList(shelf, "contents")
			items, inlineToken := splitInlineContinuation(items)
			if token := shelfContinuation(shelf, doc); token != "" {
				return items, token
			}
			return items, inlineToken
		}
	}

	return nil, ""
}

// shelfContinuation checks the known continuation locations for a shelf in
// priority order: the shelf's own continuations list, an inline
// continuationItemRenderer among its contents, then the document-level
// append action.
func shelfContinuation(shelf map[string]any, doc map[string]any) string {
	if token, ok := navString(shelf, "continuations", 0, "nextContinuationData", "continuation"); ok {
		return token
	}
	if items, ok := navList(shelf, "contents"); ok {
		if _, token := splitInlineContinuation(items); token != "" {
			return token
		}
	}
	return documentContinuation(doc)
}

// splitInlineContinuation removes a trailing continuationItemRenderer from
// an item list and returns its token.
func splitInlineContinuation(items []any) ([]any, string) {
	if len(items) == 0 {
		return items, ""
	}
	last := items[len(items)-1]
	token, ok := navString(last, "continuationItemRenderer", "continuationEndpoint", "continuationCommand", "token")
	if !ok {
		return items, ""
	}
	return items[:len(items)-1], token
}

// documentContinuation looks for a top-level reissued continuation.
func documentContinuation(doc map[string]any) string {
	if token, ok := navString(doc, "continuationContents", "musicPlaylistShelfContinuation", "continuations", 0, "nextContinuationData", "continuation"); ok {
		return token
	}
	return ""
}

func (p *YTMusicProvider) appendItems(result *models.TracksResult, seen map[string]bool, items []any) {
	for _, raw := range items {
		if len(result.Tracks) >= maxTracks {
			return
		}

		item, ok := nav(raw, "musicResponsiveListItemRenderer")
		if !ok {
			continue
		}
		renderer, ok := item.(map[string]any)
		if !ok {
			continue
		}

		name := flexColumnText(renderer, 0)
		if policy, ok := navString(renderer, "musicItemRendererDisplayPolicy"); ok && policy == ytGreyOutPolicy {
			result.Skip(models.SkippedItem{Name: name, Reason: models.SkipUnavailable})
			continue
		}

		videoID := itemVideoID(renderer)
		if videoID == "" {
			result.Skip(models.SkippedItem{Name: name, Reason: models.SkipUnavailable})
			continue
		}
		if seen[videoID] {
			result.Skip(models.SkippedItem{Name: name, Artist: flexColumnText(renderer, 1), Reason: models.SkipDuplicate})
			continue
		}
		seen[videoID] = true

		result.Tracks = append(result.Tracks, p.normalizeItem(renderer, videoID, name))
	}
}

func (p *YTMusicProvider) normalizeItem(renderer map[string]any, videoID, name string) models.Track {
	track := models.Track{
		ID:          videoID,
		Name:        cleanTrackName(name),
		Album:       flexColumnText(renderer, 2),
		Service:     models.ServiceYouTubeMusic,
		ServiceLink: ytMusicBaseURL + "/watch?v=" + videoID,
	}

	track.Artists = flexColumnRuns(renderer, 1)
	if len(track.Artists) > 0 {
		track.Artist = track.Artists[0]
	}

	if thumbs, ok := navList(renderer, "thumbnail", "musicThumbnailRenderer", "thumbnail", "thumbnails"); ok && len(thumbs) > 0 {
		if u, ok := navString(thumbs[len(thumbs)-1], "url"); ok {
			track.AlbumImageURL = u
		}
	}

	if text, ok := navString(renderer, "fixedColumns", 0, "musicResponsiveListItemFixedColumnRenderer", "text", "runs", 0, "text"); ok {
		track.DurationMS = parseClockDuration(text)
	}

	return track
}

// flexColumnText returns the first run's text of the given flex column.
func flexColumnText(renderer map[string]any, column int) string {
	text, _ := navString(renderer, "flexColumns", column, "musicResponsiveListItemFlexColumnRenderer", "text", "runs", 0, "text")
	return text
}

// flexColumnRuns returns the text of every non-separator run in a column.
// Artist columns list multiple artists as runs separated by " & " or ", ".
func flexColumnRuns(renderer map[string]any, column int) []string {
	runs, ok := navList(renderer, "flexColumns", column, "musicResponsiveListItemFlexColumnRenderer", "text", "runs")
	if !ok {
		return nil
	}

	var texts []string
	for _, run := range runs {
		text, ok := navString(run, "text")
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || trimmed == "&" || trimmed == "," || trimmed == "•" {
			continue
		}
		texts = append(texts, trimmed)
	}
	return texts
}

// itemVideoID checks the known id locations in priority order: the
// playlistItemData sidecar, then the title run's watch endpoint.
func itemVideoID(renderer map[string]any) string {
	if id, ok := navString(renderer, "playlistItemData", "videoId"); ok {
		return id
	}
	if id, ok := navString(renderer, "flexColumns", 0, "musicResponsiveListItemFlexColumnRenderer", "text", "runs", 0, "navigationEndpoint", "watchEndpoint", "videoId"); ok {
		return id
	}
	return ""
}

// parseClockDuration converts "3:25" or "1:02:45" to milliseconds.
// Returns zero (legal absence) for anything unparseable.
func parseClockDuration(text string) int {
	m := ytDurationRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0
	}

	hours := 0
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return ((hours*60+minutes)*60 + seconds) * 1000
}

func findHeader(doc map[string]any) (map[string]any, bool) {
	for _, marker := range headerMarkers {
		if header, ok := findFirstMap(doc, marker); ok {
			return header, ok
		}
	}
	return nil, false
}

// runsText joins every run of a text field on the header.
func runsText(header map[string]any, field string) string {
	runs, ok := navList(header, field, "runs")
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, run := range runs {
		if text, ok := navString(run, "text"); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}

func headerThumbnail(header map[string]any) string {
	for _, field := range []string{"thumbnail", "foregroundThumbnail"} {
		if thumbs, ok := findFirst(header[field], "thumbnails"); ok {
			if list, ok := thumbs.([]any); ok && len(list) > 0 {
				if u, ok := navString(list[len(list)-1], "url"); ok {
					return u
				}
			}
		}
	}
	return ""
}

// headerTrackCount scans the header's subtitle runs for a "N songs" run.
func headerTrackCount(header map[string]any) int {
	for _, field := range []string{"secondSubtitle", "secondTitle", "subtitle"} {
		runs, ok := navList(header, field, "runs")
		if !ok {
			continue
		}
		for _, run := range runs {
			text, ok := navString(run, "text")
			if !ok {
				continue
			}
			if m := ytTrackCountRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
				count, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
				if err == nil {
					return count
				}
			}
		}
	}
	return 0
}

// SearchTracks searches YouTube Music songs via the internal search
// endpoint, reusing the same marker-based item extraction.
func (p *YTMusicProvider) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	key := cache.Key(models.ServiceYouTubeMusic, "search", query, strconv.Itoa(limit))
	var cached []models.Track
	if cachedJSON(p.cache, p.logger, key, &cached) {
		return cached, nil
	}

	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    ytClientName,
				"clientVersion": ytClientVersion,
			},
		},
		"query": query,
		// pre-computed filter param for songs-only results
		"params": "EgWKAQIIAWoKEAkQBRAKEAMQBA%3D%3D",
	}

	doc, err := p.postJSON(ctx, p.baseURL+ytSearchPath, payload)
	if err != nil {
		return nil, err
	}

	result := &models.TracksResult{}
	seen := make(map[string]bool)
	if shelf, ok := findFirstMap(doc, "musicShelfRenderer"); ok {
		if items, ok := navList(shelf, "contents"); ok {
			p.appendItems(result, seen, items)
		}
	}

	tracks := result.Tracks
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}

	writeCache(p.cache, p.logger, key, tracks, cache.SearchTTL)
	return tracks, nil
}
