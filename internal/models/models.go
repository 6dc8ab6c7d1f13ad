package models

import (
	"errors"
	"fmt"
	"time"
)

// ServiceType identifies one of the supported streaming services.
//
// The set is closed: it is never extended at runtime, and every adapter,
// cache key and persisted playlist row refers to exactly one of these values.
type ServiceType string

const (
	ServiceSpotify      ServiceType = "spotify"
	ServiceYouTubeMusic ServiceType = "youtube_music"
	ServiceAppleMusic   ServiceType = "apple_music"
	ServiceDeezer       ServiceType = "deezer"
	ServiceTidal        ServiceType = "tidal"
)

// AllServices lists every supported service in registry order.
// The first entry doubles as the permissive default.
var AllServices = []ServiceType{
	ServiceSpotify,
	ServiceYouTubeMusic,
	ServiceAppleMusic,
	ServiceDeezer,
	ServiceTidal,
}

// DefaultService is returned by the registry for unknown identifiers.
func DefaultService() ServiceType { return AllServices[0] }

// Valid reports whether s is one of the five known identifiers.
func (s ServiceType) Valid() bool {
	for _, known := range AllServices {
		if s == known {
			return true
		}
	}
	return false
}

func (s ServiceType) String() string { return string(s) }

// ResourceType classifies the upstream resource a URL points at.
type ResourceType string

const (
	ResourcePlaylist ResourceType = "playlist"
	ResourceTrack    ResourceType = "track"
	ResourceAlbum    ResourceType = "album"
	ResourceArtist   ResourceType = "artist"
)

// Validation error types, reported on recognized-but-unusable inputs.
const (
	ValidationErrNotPlaylist = "not_playlist"
	ValidationErrInvalidID   = "invalid_id"
)

// URLValidation is the result of classifying an input string against one
// service's URL grammar.
//
// IsServiceURL=true with IsValid=false means "recognized domain, wrong
// resource" and is distinct from an unrecognized input (both false).
// A valid shortlink carries no ResourceID; the caller must resolve it first.
type URLValidation struct {
	IsValid      bool         `json:"isValid"`
	IsServiceURL bool         `json:"isServiceUrl"`
	ResourceType ResourceType `json:"resourceType,omitempty"`
	ResourceID   string       `json:"resourceId,omitempty"`
	IsShortlink  bool         `json:"isShortlink,omitempty"`
	ErrorType    string       `json:"errorType,omitempty"`
}

// Playlist is the normalized, immutable snapshot of playlist metadata
// every adapter produces regardless of upstream shape.
type Playlist struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	ImageURL    string      `json:"imageUrl"`
	TrackCount  int         `json:"trackCount"`
	Service     ServiceType `json:"serviceType"`
	OriginalURL string      `json:"originalUrl"`
}

// Track is the normalized snapshot of a single track.
//
// ISRC, PreviewURL, DurationMS and ReleaseDate are best-effort: they stay
// empty/zero when the upstream does not report them, never defaulted.
type Track struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Artist        string      `json:"artist"`
	Artists       []string    `json:"artistsList,omitempty"`
	Album         string      `json:"album"`
	AlbumImageURL string      `json:"albumImageUrl,omitempty"`
	ReleaseDate   string      `json:"releaseDate,omitempty"`
	ISRC          string      `json:"isrc,omitempty"`
	PreviewURL    string      `json:"previewUrl,omitempty"`
	DurationMS    int         `json:"duration,omitempty"`
	Service       ServiceType `json:"serviceType"`
	ServiceLink   string      `json:"serviceLink"`
}

// SkippedSummary buckets upstream items that were excluded from a result.
type SkippedSummary struct {
	Unavailable int `json:"unavailable"`
	LocalFiles  int `json:"localFiles"`
	Podcasts    int `json:"podcasts"`
	Duplicates  int `json:"duplicates"`
}

// SkipReason identifies the bucket an excluded item is counted in.
type SkipReason string

const (
	SkipUnavailable SkipReason = "unavailable"
	SkipLocalFile   SkipReason = "local file"
	SkipPodcast     SkipReason = "podcast"
	SkipDuplicate   SkipReason = "duplicate"
)

// SkippedItem records one excluded upstream item for caller display.
type SkippedItem struct {
	Name   string     `json:"name"`
	Artist string     `json:"artist,omitempty"`
	Reason SkipReason `json:"reason"`
}

// SkippedReport accounts for every upstream item that existed but was
// excluded from the track list.
type SkippedReport struct {
	Total   int            `json:"total"`
	Summary SkippedSummary `json:"summary"`
	Details []SkippedItem  `json:"details,omitempty"`
}

// TracksResult is the accumulated outcome of a full track listing.
// Total always equals len(Tracks); Skipped is nil when nothing was excluded.
type TracksResult struct {
	Tracks  []Track        `json:"tracks"`
	Total   int            `json:"total"`
	Skipped *SkippedReport `json:"skipped,omitempty"`
}

// Skip records one excluded item under the bucket named by item.Reason.
func (r *TracksResult) Skip(item SkippedItem) {
	if r.Skipped == nil {
		r.Skipped = &SkippedReport{}
	}
	switch item.Reason {
	case SkipLocalFile:
		r.Skipped.Summary.LocalFiles++
	case SkipPodcast:
		r.Skipped.Summary.Podcasts++
	case SkipDuplicate:
		r.Skipped.Summary.Duplicates++
	default:
		r.Skipped.Summary.Unavailable++
	}
	r.Skipped.Total++
	r.Skipped.Details = append(r.Skipped.Details, item)
}

// ProviderConfig declares which optional operations an adapter supports.
// One read-only value per adapter; callers consult it before invoking
// capability-gated operations.
type ProviderConfig struct {
	SupportsOAuth            bool `json:"supportsOAuth"`
	SupportsPublicPlaylists  bool `json:"supportsPublicPlaylists"`
	SupportsSearch           bool `json:"supportsSearch"`
	SupportsPlaylistCreation bool `json:"supportsPlaylistCreation"`
}

// ErrorKind classifies a provider failure for caller branching.
type ErrorKind string

const (
	ErrKindValidation  ErrorKind = "validation"
	ErrKindNotFound    ErrorKind = "not_found"
	ErrKindAuth        ErrorKind = "auth_required"
	ErrKindUpstream    ErrorKind = "upstream"
	ErrKindRateLimited ErrorKind = "rate_limited"
)

// ProviderError is the structured error adapters return across their public
// boundary. Internal failures are converted into one of these; nothing
// panics or leaks transport errors raw.
type ProviderError struct {
	Kind        ErrorKind
	Service     ServiceType
	Message     string
	NeedsReAuth bool
	RetryAfter  time.Duration
	Err         error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError unwraps err into a *ProviderError when possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// OAuthToken is the persisted token record for one OAuth-capable service.
type OAuthToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token is within buffer of its expiry.
func (t OAuthToken) Expired(now time.Time, buffer time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(buffer))
}
