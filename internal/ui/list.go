package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem adapts [models.Playlist] for the list widget.
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }

func (i playlistItem) Description() string {
	parts := []string{fmt.Sprintf("%d tracks", i.playlist.TrackCount)}
	if i.playlist.Public {
		parts = append(parts, "public")
	}
	if i.playlist.Description != "" {
		parts = append(parts, i.playlist.Description)
	}
	return strings.Join(parts, " • ")
}

// trackItem adapts [models.Track] for the list widget.
type trackItem struct {
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.Title + " " + i.track.ArtistLine() }
func (i trackItem) Title() string       { return i.track.Title }

func (i trackItem) Description() string {
	parts := []string{i.track.ArtistLine()}
	if i.track.Album != "" {
		parts = append(parts, i.track.Album)
	}
	if i.track.Duration > 0 {
		parts = append(parts, shared.FormatDuration(i.track.Duration))
	}
	return strings.Join(parts, " • ")
}
