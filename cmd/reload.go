package main

import (
	"context"
	"fmt"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/reload"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/urfave/cli/v3"
)

// Reload refreshes a purchased playlist's persisted track list through the
// consistency guard. The result is printed even on rejection so the caller
// sees the error code and retry hint.
func (r *Runner) Reload(ctx context.Context, cmd *cli.Command) error {
	paymentID := cmd.String("payment")
	userHandle := cmd.String("user")
	playlistID := cmd.String("playlist")
	pretty := cmd.Bool("pretty")

	if r.guard == nil {
		return fmt.Errorf("%w: reload requires a database, run setup first", shared.ErrMissingConfig)
	}

	r.logger.Info("reloading playlist", "payment", paymentID, "playlist", playlistID)

	result := r.guard.ReloadPlaylist(ctx, paymentID, userHandle, playlistID)
	if err := r.writeJSON(result, pretty); err != nil {
		return err
	}

	if !result.Success {
		switch result.Error {
		case reload.ErrUnauthorized:
			return shared.ErrUnauthorized
		case reload.ErrTrackLimitExceeded:
			return shared.ErrTrackLimitExceeded
		case reload.ErrRateLimitExceeded:
			return shared.ErrRateLimited
		default:
			return fmt.Errorf("%w: reload failed", shared.ErrAPIRequest)
		}
	}

	return nil
}

// CacheInvalidate drops the cached metadata and track listing for a playlist.
func (r *Runner) CacheInvalidate(ctx context.Context, cmd *cli.Command) error {
	serviceID := cmd.String("service")
	playlistID := cmd.String("playlist")

	if !r.registry.IsSupported(serviceID) {
		return fmt.Errorf("%w: unknown service %q", shared.ErrInvalidInput, serviceID)
	}
	service := models.ServiceType(serviceID)

	keys := []string{
		cache.Key(service, "playlist", playlistID),
		cache.Key(service, "tracks", playlistID),
	}
	for _, key := range keys {
		if err := r.cache.Del(key); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}

	return r.writePlain("✓ Cache invalidated for %s playlist %s\n", service, playlistID)
}
