package main

import (
	"context"
	"fmt"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/formatter"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/providers"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/urfave/cli/v3"
)

// serviceInfo is the services listing row.
type serviceInfo struct {
	Service      models.ServiceType    `json:"service"`
	Capabilities models.ProviderConfig `json:"capabilities"`
}

// Services lists every registered service and its capability flags.
func (r *Runner) Services(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")

	infos := []serviceInfo{}
	for _, st := range r.registry.Services() {
		infos = append(infos, serviceInfo{Service: st, Capabilities: r.registry.Get(st).Config()})
	}

	if useJSON {
		return r.writeJSON(infos, true)
	}

	for _, info := range infos {
		r.writePlain("%s\n", info.Service)
		r.writePlain("  oauth: %v  public playlists: %v  search: %v  playlist creation: %v\n",
			info.Capabilities.SupportsOAuth,
			info.Capabilities.SupportsPublicPlaylists,
			info.Capabilities.SupportsSearch,
			info.Capabilities.SupportsPlaylistCreation)
	}

	return nil
}

// Validate classifies a playlist URL, URI or bare identifier and prints the
// result. Without --service the input is matched against every registered
// service.
func (r *Runner) Validate(ctx context.Context, cmd *cli.Command) error {
	input := cmd.StringArg("input")
	service := cmd.String("service")
	pretty := cmd.Bool("pretty")

	if input == "" {
		return fmt.Errorf("%w: input", shared.ErrMissingArgument)
	}

	var validation models.URLValidation
	if service != "" {
		if !r.registry.IsSupported(service) {
			return fmt.Errorf("%w: unknown service %q", shared.ErrInvalidInput, service)
		}
		validation = r.registry.Get(models.ServiceType(service)).ValidateURL(input)
	} else {
		_, validation, _ = r.registry.Detect(input)
	}

	return r.writeJSON(validation, pretty)
}

// resolvePlaylist detects the owning service for input and returns the
// adapter plus the playlist identifier, following shortlink redirects when
// the service requires it.
func (r *Runner) resolvePlaylist(ctx context.Context, input string) (providers.Provider, string, error) {
	provider, validation, found := r.registry.Detect(input)
	if !found {
		return nil, "", fmt.Errorf("%w: %q does not match any supported service", shared.ErrInvalidInput, input)
	}

	if validation.IsShortlink {
		resolver, ok := provider.(providers.ShortlinkResolver)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s shortlinks", shared.ErrUnsupportedOp, provider.Service())
		}
		resolved, err := resolver.ResolveShortlink(ctx, input)
		if err != nil {
			return nil, "", err
		}
		validation = resolved
	}

	if !validation.IsValid {
		return nil, "", fmt.Errorf("%w: %q is not a %s playlist", shared.ErrInvalidInput, input, provider.Service())
	}

	return provider, validation.ResourceID, nil
}

// PlaylistShow fetches normalized metadata for a playlist.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	input := cmd.StringArg("input")
	pretty := cmd.Bool("pretty")

	if input == "" {
		return fmt.Errorf("%w: input", shared.ErrMissingArgument)
	}

	provider, id, err := r.resolvePlaylist(ctx, input)
	if err != nil {
		return err
	}

	r.logger.Debug("fetching playlist", "service", provider.Service(), "id", id)

	playlist, err := provider.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}

	return r.writeJSON(playlist, pretty)
}

// PlaylistTracks fetches the full normalized track listing for a playlist.
func (r *Runner) PlaylistTracks(ctx context.Context, cmd *cli.Command) error {
	input := cmd.StringArg("input")
	fresh := cmd.Bool("fresh")
	pretty := cmd.Bool("pretty")
	summary := cmd.Bool("summary")

	if input == "" {
		return fmt.Errorf("%w: input", shared.ErrMissingArgument)
	}

	provider, id, err := r.resolvePlaylist(ctx, input)
	if err != nil {
		return err
	}

	r.logger.Debug("fetching tracks", "service", provider.Service(), "id", id, "fresh", fresh)

	result, err := provider.GetTracks(ctx, id, fresh)
	if err != nil {
		return err
	}

	if summary {
		r.writePlain("Tracks: %d\n", result.Total)
		if result.Skipped != nil && result.Skipped.Total > 0 {
			s := result.Skipped.Summary
			r.writePlain("Skipped: %d (unavailable %d, local %d, podcasts %d, duplicates %d)\n",
				result.Skipped.Total, s.Unavailable, s.LocalFiles, s.Podcasts, s.Duplicates)
		}
		return nil
	}

	return r.writeJSON(result, pretty)
}

// PlaylistExport fetches a playlist and writes its track listing to disk.
func (r *Runner) PlaylistExport(ctx context.Context, cmd *cli.Command) error {
	input := cmd.StringArg("input")
	format := cmd.String("format")
	output := cmd.String("output")

	if input == "" {
		return fmt.Errorf("%w: input", shared.ErrMissingArgument)
	}

	provider, id, err := r.resolvePlaylist(ctx, input)
	if err != nil {
		return err
	}

	playlist, err := provider.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	tracks, err := provider.GetTracks(ctx, id, false)
	if err != nil {
		return err
	}

	export := &formatter.Export{Playlist: *playlist, Tracks: tracks}

	switch format {
	case "csv":
		result, err := formatter.WriteCSVExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s\n", result.TracksFile)
		r.writePlain("✓ Exported %s\n", result.MetadataFile)
	case "markdown":
		file, err := formatter.WriteMarkdownExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s\n", file)
	case "text":
		file, err := formatter.WriteTextExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s\n", file)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}

	return nil
}

// Search queries a single service catalog for tracks.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	service := cmd.String("service")
	limit := cmd.Int("limit")
	pretty := cmd.Bool("pretty")

	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	if !r.registry.IsSupported(service) {
		return fmt.Errorf("%w: unknown service %q", shared.ErrInvalidInput, service)
	}

	provider := r.registry.Get(models.ServiceType(service))
	searcher, ok := provider.(providers.Searcher)
	if !ok || !provider.Config().SupportsSearch {
		return fmt.Errorf("%w: search on %s", shared.ErrUnsupportedOp, provider.Service())
	}

	tracks, err := searcher.SearchTracks(ctx, query, limit)
	if err != nil {
		return err
	}

	return r.writeJSON(tracks, pretty)
}
