package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// SyncRecordRepository is the history store for sync outcomes.
//
// Upsert is the only mutation entry point. The never-downgrade guard (a
// record with status=added keeps it unless the caller forces a reset) is
// enforced inside a single conditional UPSERT statement, so concurrent
// upserts for the same compound key cannot interleave a downgrade.
type SyncRecordRepository struct {
	db *sql.DB
}

// NewSyncRecordRepository creates a new SyncRecordRepository with the given database connection
func NewSyncRecordRepository(db *sql.DB) *SyncRecordRepository {
	return &SyncRecordRepository{db: db}
}

const syncRecordColumns = `
	id, job_id, source_service, source_track_id, dest_service, dest_playlist_id,
	status, matched_track_id, confidence, candidates, reason,
	attempt_count, last_attempted_at, created_at, updated_at
`

// Get retrieves the record for a compound key. Returns (nil, nil) when no
// record exists; lookups never go through track titles.
func (r *SyncRecordRepository) Get(key models.SyncKey) (*models.SyncRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM sync_records
		WHERE source_service = ? AND source_track_id = ? AND dest_service = ? AND dest_playlist_id = ?
	`, syncRecordColumns)

	record, err := scanSyncRecord(r.db.QueryRow(query, key.SourceService, key.SourceTrackID, key.DestService, key.DestPlaylistID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// Upsert inserts or updates the record for its compound key.
//
// Without force, an existing status=added row refuses every new status except
// added itself; the statement becomes a no-op and the persisted row survives.
// attempt_count increments on every re-evaluation of an existing key.
func (r *SyncRecordRepository) Upsert(record *models.SyncRecord, force bool) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if record.LastAttempted.IsZero() {
		record.LastAttempted = now
	}
	if record.ID == "" {
		record.ID = shared.GenerateID()
	}

	query := `
		INSERT INTO sync_records (
			id, job_id, source_service, source_track_id, dest_service, dest_playlist_id,
			status, matched_track_id, confidence, candidates, reason,
			attempt_count, last_attempted_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (source_service, source_track_id, dest_service, dest_playlist_id) DO UPDATE SET
			job_id = excluded.job_id,
			status = excluded.status,
			matched_track_id = excluded.matched_track_id,
			confidence = excluded.confidence,
			candidates = excluded.candidates,
			reason = excluded.reason,
			attempt_count = sync_records.attempt_count + 1,
			last_attempted_at = excluded.last_attempted_at,
			updated_at = excluded.updated_at
		WHERE ? OR sync_records.status != 'added' OR excluded.status = 'added'
	`

	_, err := r.db.Exec(query,
		record.ID,
		record.JobID,
		record.Key.SourceService,
		record.Key.SourceTrackID,
		record.Key.DestService,
		record.Key.DestPlaylistID,
		string(record.Status),
		nullable(record.MatchedTrackID),
		record.Confidence,
		nullable(record.Candidates),
		nullable(record.Reason),
		record.LastAttempted,
		now,
		now,
		force,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync record: %w", err)
	}

	return nil
}

// ListByJob retrieves all records written by one job, in insertion order.
func (r *SyncRecordRepository) ListByJob(jobID string) ([]*models.SyncRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sync_records
		WHERE job_id = ?
		ORDER BY created_at, id
	`, syncRecordColumns)

	rows, err := r.db.Query(query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer rows.Close()

	return collectSyncRecords(rows)
}

// ListByPlaylist retrieves every record targeting one destination playlist.
func (r *SyncRecordRepository) ListByPlaylist(destService, destPlaylistID string) ([]*models.SyncRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sync_records
		WHERE dest_service = ? AND dest_playlist_id = ?
		ORDER BY created_at, id
	`, syncRecordColumns)

	rows, err := r.db.Query(query, destService, destPlaylistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer rows.Close()

	return collectSyncRecords(rows)
}

// ResetPlaylist deletes every record targeting one destination playlist.
// This is the only deletion path and must be user-initiated.
func (r *SyncRecordRepository) ResetPlaylist(destService, destPlaylistID string) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM sync_records WHERE dest_service = ? AND dest_playlist_id = ?",
		destService, destPlaylistID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset sync records: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row rowScanner) (*models.SyncRecord, error) {
	var record models.SyncRecord
	var status string
	var matchedTrackID, candidates, reason sql.NullString

	err := row.Scan(
		&record.ID,
		&record.JobID,
		&record.Key.SourceService,
		&record.Key.SourceTrackID,
		&record.Key.DestService,
		&record.Key.DestPlaylistID,
		&status,
		&matchedTrackID,
		&record.Confidence,
		&candidates,
		&reason,
		&record.AttemptCount,
		&record.LastAttempted,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.SyncStatus(status)
	record.MatchedTrackID = matchedTrackID.String
	record.Candidates = candidates.String
	record.Reason = reason.String

	return &record, nil
}

func collectSyncRecords(rows *sql.Rows) ([]*models.SyncRecord, error) {
	var records []*models.SyncRecord
	for rows.Next() {
		record, err := scanSyncRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync records: %w", err)
	}
	return records, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
