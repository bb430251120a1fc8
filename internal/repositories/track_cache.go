package repositories

import (
	"fmt"
	"strings"

	"github.com/desertthunder/tunesync/internal/models"
)

// TrackCacheAdapter exposes TrackRepository as the tasks.TrackCacher hook.
//
// Duplicate tracks are silently ignored via the UNIQUE (service, service_id)
// constraint, so callers can cache every track they see without pre-checks.
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CacheTrack caches a track from a service.
// Returns nil if the track already exists (deduplication).
// Only returns errors for actual failures (not constraint violations).
func (a *TrackCacheAdapter) CacheTrack(service string, track models.Track) error {
	if track.ID == "" {
		return nil
	}

	existing, err := a.repo.GetByServiceID(service, track.ID)
	if err == nil && existing != nil {
		return nil
	}

	persisted := models.NewPersistedTrack(service, track.ID, track)

	if err := a.repo.Create(persisted); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to cache track: %w", err)
	}

	return nil
}
