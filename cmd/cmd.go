// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes config, database, and YouTube Music headers
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and local database",
		Commands: []*cli.Command{
			{
				Name:   "db",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:  "youtube",
				Usage: "Capture YouTube Music browser headers from a cURL command",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command copied from browser dev tools",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to a file containing the cURL command",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Path for the generated headers file",
						Value: "browser.json",
					},
				},
				Action: r.SetupYouTube,
			},
		},
	}
}

// authCommand handles platform authentication
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a platform",
		Commands: []*cli.Command{
			{
				Name:  "spotify",
				Usage: "Authenticate with Spotify using OAuth2",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthSpotify,
			},
			{
				Name:  "youtube",
				Usage: "Verify YouTube Music authentication via the proxy",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "headers",
						Usage: "Path to the browser headers file",
					},
				},
				Action: r.AuthYouTube,
			},
		},
	}
}

// playlistsCommand lists and exports playlists
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "List and export playlists",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List playlists on a platform",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "service",
						Aliases: []string{"s"},
						Usage:   "Platform: spotify or youtube",
						Value:   "spotify",
					},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
				},
				Action: r.PlaylistsList,
			},
			{
				Name:  "export",
				Usage: "Export a playlist's tracks to CSV, Markdown, JSON, or text",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "service",
						Aliases: []string{"s"},
						Usage:   "Platform: spotify or youtube",
						Value:   "spotify",
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Playlist ID to export",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: csv, md, json, text",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file base path (csv only; defaults to playlist ID)",
					},
				},
				Action: r.PlaylistsExport,
			},
		},
	}
}

// syncCommand runs and inspects sync jobs
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync playlists between platforms",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a sync job from Spotify to YouTube Music",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringSliceFlag{
						Name:    "playlist",
						Aliases: []string{"p"},
						Usage:   "Source playlist ID (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Sync every source playlist",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-evaluate tracks that already synced",
					},
					&cli.BoolFlag{
						Name:  "reverse",
						Usage: "Sync from YouTube Music to Spotify",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "status",
				Usage: "Show outcome counts for a job or a destination playlist",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "job",
						Usage: "Job ID",
					},
					&cli.StringFlag{
						Name:  "dest-service",
						Usage: "Destination service name",
					},
					&cli.StringFlag{
						Name:  "dest-playlist",
						Usage: "Destination playlist ID",
					},
				},
				Action: r.SyncStatus,
			},
			{
				Name:  "report",
				Usage: "Render a job's track-by-track report",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "job",
						Usage:    "Job ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: csv, md, json",
						Value:   "md",
					},
				},
				Action: r.SyncReport,
			},
			{
				Name:  "reset",
				Usage: "Delete sync history for a destination playlist",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "dest-playlist",
						Usage:    "Destination playlist ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "dest-service",
						Usage: "Destination platform",
						Value: "youtube",
					},
				},
				Action: r.SyncReset,
			},
		},
	}
}

// matchCommand scores a single track against the destination search results
func matchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "Debug the matcher against live destination search results",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "title",
				Usage:    "Track title",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "artist",
				Usage: "Artist name",
			},
			&cli.IntFlag{
				Name:  "duration",
				Usage: "Track duration in seconds",
			},
			&cli.StringFlag{
				Name:    "service",
				Aliases: []string{"s"},
				Usage:   "Platform to search: spotify or youtube",
				Value:   "youtube",
			},
		},
		Action: r.MatchDebug,
	}
}

// tuiCommand launches the interactive terminal UI
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Interactive playlist sync",
		Flags:  []cli.Flag{configFlag()},
		Action: r.TUI,
	}
}
