// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand initializes the config file and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// servicesCommand lists the supported services and their capabilities.
func servicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "services",
		Usage: "List supported streaming services and capabilities",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Services,
	}
}

// validateCommand classifies a playlist URL, URI or bare id.
func validateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate a playlist URL or identifier",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "input"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "service",
				Aliases: []string{"s"},
				Usage:   "Validate against one service instead of auto-detecting",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Validate,
	}
}

// playlistCommand fetches normalized playlist data.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Fetch normalized playlist metadata",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "input"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.PlaylistShow,
			},
			{
				Name:  "tracks",
				Usage: "Fetch the full normalized track listing",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "input"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "fresh",
						Usage: "Bypass the cache on read",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "summary",
						Usage: "Print counts instead of the full listing",
					},
				},
				Action: r.PlaylistTracks,
			},
			{
				Name:  "export",
				Usage: "Export a playlist's track listing to a file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "input"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown or text",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Base output path, defaults to the playlist id",
					},
				},
				Action: r.PlaylistExport,
			},
		},
	}
}

// searchCommand searches a service catalog for tracks.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search a service catalog for tracks",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "service",
				Aliases: []string{"s"},
				Usage:   "Service to search",
				Value:   "spotify",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Search,
	}
}

// authCommand handles OAuth flows for services that require them.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage service authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Run the OAuth authorization flow for a service",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show authentication state per service",
				Action: r.AuthStatus,
			},
			{
				Name:  "disconnect",
				Usage: "Erase stored tokens for a service",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Action: r.AuthDisconnect,
			},
		},
	}
}

// reloadCommand refreshes a purchased playlist through the consistency guard.
func reloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reload",
		Usage: "Reload a purchased playlist's persisted track list",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "payment",
				Usage:    "Payment identifier",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "user",
				Usage:    "Purchaser's user handle",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "playlist",
				Usage:    "Playlist identifier",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Reload,
	}
}

// cacheCommand manages the provider response cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Provider cache operations",
		Commands: []*cli.Command{
			{
				Name:  "invalidate",
				Usage: "Drop cached metadata and tracks for a playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "service",
						Aliases:  []string{"s"},
						Usage:    "Service identifier",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "playlist",
						Usage:    "Playlist identifier",
						Required: true,
					},
				},
				Action: r.CacheInvalidate,
			},
		},
	}
}
