package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// PlaylistsList prints the playlists on a platform.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	adapter, err := r.adapter(cmd.String("service"))
	if err != nil {
		return err
	}

	playlists, err := adapter.ListPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("listing playlists: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Playlists on %s (%d):\n\n", adapter.Name(), len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s [%s] (%d tracks, %s)\n",
			i+1, p.Name, p.ID, p.TrackCount, shared.VisibilityString(p.Public))
	}
	return nil
}

// PlaylistsExport renders a playlist's tracks in the requested format.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	adapter, err := r.adapter(cmd.String("service"))
	if err != nil {
		return err
	}

	playlistID := cmd.String("id")
	playlists, err := adapter.ListPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("listing playlists: %w", err)
	}
	var playlist models.Playlist
	found := false
	for _, p := range playlists {
		if p.ID == playlistID {
			playlist = p
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	tracks, err := adapter.ListTracks(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("listing tracks: %w", err)
	}
	export := &models.PlaylistExport{Playlist: playlist, Tracks: tracks}

	switch cmd.String("format") {
	case "csv":
		result, err := formatter.WriteCSVExport(export, cmd.String("output"))
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %s and %s\n", result.TracksFile, result.MetadataFile)
	case "md":
		data, err := formatter.ExportToMarkdown(export)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	case "json":
		return r.writeJSON(export, true)
	case "text":
		data, err := formatter.ExportToText(export)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, cmd.String("format"))
	}
}
