package models

import (
	"fmt"
	"strings"
	"time"
)

// Track represents a raw music track from any service.
type Track struct {
	ID       string   // Platform-specific identifier
	Title    string   // Title as the platform reported it
	Artists  []string // Ordered artist names; first is primary
	Album    string   // Optional
	Duration int      // Duration in seconds, 0 when unknown
}

// PrimaryArtist returns the first listed artist, or "" when none were supplied.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ArtistLine joins all artists for display ("Luis Fonsi, Daddy Yankee").
func (t Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// Playlist represents a music playlist from any service.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// PlaylistExport represents a playlist with all its tracks.
type PlaylistExport struct {
	Playlist Playlist
	Tracks   []Track
}

// SyncStatus is the persisted outcome of evaluating a (track, destination
// playlist) pair.
type SyncStatus string

const (
	StatusMatched        SyncStatus = "matched"
	StatusAmbiguous      SyncStatus = "ambiguous"
	StatusUnmatched      SyncStatus = "unmatched"
	StatusAdded          SyncStatus = "added"
	StatusAlreadyPresent SyncStatus = "already_present"
)

// Terminal reports whether a record with this status short-circuits
// re-evaluation on subsequent runs.
func (s SyncStatus) Terminal() bool {
	return s == StatusAdded || s == StatusAlreadyPresent
}

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusMatched, StatusAmbiguous, StatusUnmatched, StatusAdded, StatusAlreadyPresent:
		return true
	}
	return false
}

// SyncKey is the compound key identifying one (source track, destination
// playlist) evaluation. Lookups go through this key, never through track
// titles, so records are never reused across unrelated playlists.
type SyncKey struct {
	SourceService  string
	SourceTrackID  string
	DestService    string
	DestPlaylistID string
}

func (k SyncKey) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", k.SourceService, k.SourceTrackID, k.DestService, k.DestPlaylistID)
}

// Validate checks that every key component is present.
func (k SyncKey) Validate() error {
	if k.SourceService == "" || k.SourceTrackID == "" || k.DestService == "" || k.DestPlaylistID == "" {
		return fmt.Errorf("incomplete sync key: %s", k)
	}
	return nil
}

// SyncRecord is the persisted outcome of evaluating one source track against
// one destination playlist. Records are created on first evaluation, updated
// on re-evaluation, and never deleted by normal operation.
type SyncRecord struct {
	ID             string
	JobID          string
	Key            SyncKey
	Status         SyncStatus
	MatchedTrackID string  // Destination track ID, when matched/added
	Confidence     float64 // Best candidate score in [0,1]
	Candidates     string  // JSON array of top candidates for ambiguous rows
	Reason         string  // Failure/skip reason for unmatched rows
	AttemptCount   int
	LastAttempted  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks record invariants before persistence.
func (r *SyncRecord) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown sync status %q", r.Status)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0,1]", r.Confidence)
	}
	return nil
}

// PersistedTrack is a cached raw track with service provenance.
type PersistedTrack struct {
	ID        string
	Sequence  int
	Service   string
	ServiceID string
	Track     Track
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// NewPersistedTrack wraps a raw track for caching under (service, serviceID).
func NewPersistedTrack(service, serviceID string, track Track) *PersistedTrack {
	now := time.Now()
	return &PersistedTrack{
		Service:   service,
		ServiceID: serviceID,
		Track:     track,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks that the cache key fields are present.
func (p *PersistedTrack) Validate() error {
	if p.Service == "" || p.ServiceID == "" {
		return fmt.Errorf("persisted track missing service identity")
	}
	if p.Track.Title == "" && len(p.Track.Artists) == 0 {
		return fmt.Errorf("persisted track has no usable metadata")
	}
	return nil
}
