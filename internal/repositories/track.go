package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// TrackRepository caches raw tracks by (service, service_id) with soft delete
// support. Tracks are cached on every fetch so repeated runs and the report
// commands can resolve identifiers without re-calling the platform.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new [models.PersistedTrack] into the database with generated ID and sequence
func (r *TrackRepository) Create(track *models.PersistedTrack) error {
	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	track.ID = shared.GenerateID()
	track.Sequence = sequence

	artists, err := json.Marshal(track.Track.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}

	query := `
		INSERT INTO tracks (id, sequence, service, service_id, title, artists, album, duration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		track.ID,
		track.Sequence,
		track.Service,
		track.ServiceID,
		track.Track.Title,
		string(artists),
		track.Track.Album,
		track.Track.Duration,
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// GetByServiceID retrieves a cached track by service and service_id,
// excluding soft-deleted rows. Returns (nil, nil) when absent.
func (r *TrackRepository) GetByServiceID(service, serviceID string) (*models.PersistedTrack, error) {
	query := `
		SELECT id, sequence, service, service_id, title, artists, album, duration, created_at, updated_at, deleted_at
		FROM tracks
		WHERE service = ? AND service_id = ? AND deleted_at IS NULL
	`

	track, err := r.scanOne(r.db.QueryRow(query, service, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return track, err
}

// ListByService retrieves all cached tracks for one service.
func (r *TrackRepository) ListByService(service string) ([]*models.PersistedTrack, error) {
	query := `
		SELECT id, sequence, service, service_id, title, artists, album, duration, created_at, updated_at, deleted_at
		FROM tracks
		WHERE service = ? AND deleted_at IS NULL
		ORDER BY sequence
	`

	rows, err := r.db.Query(query, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.PersistedTrack
	for rows.Next() {
		track, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracks: %w", err)
	}

	return tracks, nil
}

// Delete soft-deletes a cached track by ID.
func (r *TrackRepository) Delete(id string) error {
	result, err := r.db.Exec("UPDATE tracks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: track %s", shared.ErrTrackNotFound, id)
	}

	return nil
}

func (r *TrackRepository) scanOne(row rowScanner) (*models.PersistedTrack, error) {
	var track models.PersistedTrack
	var artists string
	var album sql.NullString
	var duration sql.NullInt64
	var deletedAt sql.NullTime

	err := row.Scan(
		&track.ID,
		&track.Sequence,
		&track.Service,
		&track.ServiceID,
		&track.Track.Title,
		&artists,
		&album,
		&duration,
		&track.CreatedAt,
		&track.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(artists), &track.Track.Artists); err != nil {
		return nil, fmt.Errorf("failed to decode artists: %w", err)
	}

	track.Track.ID = track.ServiceID
	track.Track.Album = album.String
	track.Track.Duration = int(duration.Int64)
	if deletedAt.Valid {
		track.DeletedAt = &deletedAt.Time
	}

	return &track, nil
}
