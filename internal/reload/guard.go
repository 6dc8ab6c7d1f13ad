// Package reload implements the consistency guard that re-fetches a
// purchased playlist without letting the purchaser receive more content
// than was paid for.
//
// A reload walks a fixed gate sequence: authorization, rate limit,
// fairness, then the cache-bypassed refresh and persisted overwrite. Every
// outcome is a structured [Result]; no step panics or leaks raw errors.
package reload

import (
	"context"
	"strconv"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/providers"
	"github.com/charmbracelet/log"
)

// reloadWindow is the minimum interval between reloads of the same
// (payment, playlist) pair in production.
const reloadWindow = 15 * time.Minute

// Result error codes. Callers render each differently.
const (
	ErrUnauthorized       = "unauthorized"
	ErrTrackLimitExceeded = "track_limit_exceeded"
	ErrRateLimitExceeded  = "rate_limit_exceeded"
	ErrProvider           = "provider_error"
)

// PaymentPlaylist is the persisted pairing the guard operates on.
type PaymentPlaylist struct {
	PaymentID      string
	PlaylistID     string
	Service        models.ServiceType
	PaidTrackCount int
	LastReloadAt   *time.Time
}

// Store is the fulfillment pipeline's persistence interface, consumed
// rather than implemented here (internal/repositories provides the SQLite
// implementation).
type Store interface {
	// PaymentPlaylist returns the pairing for (paymentID, playlistID) when
	// the payment belongs to userHandle, nil when the pairing does not
	// exist or the user does not match.
	PaymentPlaylist(ctx context.Context, paymentID, userHandle, playlistID string) (*PaymentPlaylist, error)

	// ReplaceTracks overwrites the playlist's persisted track list. Order
	// is assigned from slice position, 1-based.
	ReplaceTracks(ctx context.Context, playlistID string, tracks []models.Track) error

	// SetTrackCount updates the playlist's stored track count.
	SetTrackCount(ctx context.Context, playlistID string, count int) error

	// SetLastReload stamps the pairing's last successful reload time.
	SetLastReload(ctx context.Context, paymentID, playlistID string, at time.Time) error
}

// Result is the structured outcome of a reload request.
type Result struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	RetryAfter    int    `json:"retryAfter,omitempty"` // seconds, rate limit only
	PaidTracks    int    `json:"paidTracks,omitempty"`
	CurrentTracks int    `json:"currentTracks,omitempty"`
	TrackCount    int    `json:"trackCount,omitempty"` // persisted count after success
	NeedsReAuth   bool   `json:"needsReAuth,omitempty"`
}

// Guard orchestrates registry, provider and persisted payment data for a
// safe playlist refresh.
type Guard struct {
	store      Store
	registry   *providers.Registry
	cache      cache.Store
	logger     *log.Logger
	production bool
	now        func() time.Time
}

// NewGuard creates a reload guard. production enables the rate-limit
// window; development skips it so the fairness check can be exercised
// repeatedly.
func NewGuard(store Store, registry *providers.Registry, cacheStore cache.Store, logger *log.Logger, production bool) *Guard {
	return &Guard{
		store:      store,
		registry:   registry,
		cache:      cacheStore,
		logger:     logger.With("component", "reload"),
		production: production,
		now:        time.Now,
	}
}

// ReloadPlaylist refreshes the persisted track list for a purchased
// playlist, enforcing the fairness invariant: the purchaser must never end
// up with more tracks than were paid for.
//
// The rate-limit read and its later write are not wrapped in a transaction;
// two concurrent reloads inside the same window can both pass the check.
// With a 15-minute window this is a latent but low-impact race.
func (g *Guard) ReloadPlaylist(ctx context.Context, paymentID, userHandle, playlistID string) Result {
	record, err := g.store.PaymentPlaylist(ctx, paymentID, userHandle, playlistID)
	if err != nil {
		g.logger.Error("payment lookup failed", "payment", paymentID, "err", err)
		return Result{Error: ErrProvider}
	}
	if record == nil {
		return Result{Error: ErrUnauthorized}
	}

	now := g.now()
	if g.production && record.LastReloadAt != nil {
		elapsed := now.Sub(*record.LastReloadAt)
		if elapsed < reloadWindow {
			retryAfter := int((reloadWindow - elapsed).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			return Result{Error: ErrRateLimitExceeded, RetryAfter: retryAfter}
		}
	}

	provider := g.registry.Get(record.Service)

	// fairness gate only needs the current count; the cached metadata is fine
	meta, err := provider.GetPlaylist(ctx, playlistID)
	if err != nil {
		return g.providerFailure("metadata fetch failed", record, err)
	}
	if meta.TrackCount > record.PaidTrackCount {
		g.logger.Warn("reload rejected: playlist grew past paid count",
			"playlist", playlistID, "paid", record.PaidTrackCount, "current", meta.TrackCount)
		return Result{
			Error:         ErrTrackLimitExceeded,
			PaidTracks:    record.PaidTrackCount,
			CurrentTracks: meta.TrackCount,
		}
	}

	tracks, err := provider.GetTracks(ctx, playlistID, true)
	if err != nil {
		return g.providerFailure("track fetch failed", record, err)
	}

	if err := g.store.ReplaceTracks(ctx, playlistID, tracks.Tracks); err != nil {
		g.logger.Error("track overwrite failed", "playlist", playlistID, "err", err)
		return Result{Error: ErrProvider}
	}
	if err := g.store.SetTrackCount(ctx, playlistID, tracks.Total); err != nil {
		g.logger.Error("track count update failed", "playlist", playlistID, "err", err)
		return Result{Error: ErrProvider}
	}

	g.invalidate(record.Service, playlistID, record.PaidTrackCount, tracks.Total)

	if err := g.store.SetLastReload(ctx, paymentID, playlistID, now); err != nil {
		// the reload itself succeeded; a missing stamp only weakens the window
		g.logger.Warn("last reload stamp failed", "payment", paymentID, "err", err)
	}

	g.logger.Info("playlist reloaded", "playlist", playlistID, "tracks", tracks.Total, "skipped", skippedTotal(tracks))
	return Result{
		Success:       true,
		PaidTracks:    record.PaidTrackCount,
		CurrentTracks: meta.TrackCount,
		TrackCount:    tracks.Total,
	}
}

// invalidate drops the cache entries for the playlist. Some operations key
// by track count, so both the old and the new count variants go.
func (g *Guard) invalidate(service models.ServiceType, playlistID string, oldCount, newCount int) {
	keys := []string{
		cache.Key(service, "playlist", playlistID),
		cache.Key(service, "tracks", playlistID),
		cache.Key(service, "tracks", playlistID, strconv.Itoa(oldCount)),
	}
	if newCount != oldCount {
		keys = append(keys, cache.Key(service, "tracks", playlistID, strconv.Itoa(newCount)))
	}
	for _, key := range keys {
		if err := g.cache.Del(key); err != nil {
			g.logger.Warn("cache invalidation failed", "key", key, "err", err)
		}
	}
}

func (g *Guard) providerFailure(msg string, record *PaymentPlaylist, err error) Result {
	g.logger.Error(msg, "playlist", record.PlaylistID, "service", record.Service, "err", err)
	result := Result{Error: ErrProvider, PaidTracks: record.PaidTrackCount}
	if pe, ok := models.AsProviderError(err); ok && pe.NeedsReAuth {
		result.NeedsReAuth = true
	}
	return result
}

func skippedTotal(tracks *models.TracksResult) int {
	if tracks.Skipped == nil {
		return 0
	}
	return tracks.Skipped.Total
}
