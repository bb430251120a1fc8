package repositories

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func testKey(trackID, playlistID string) models.SyncKey {
	return models.SyncKey{
		SourceService:  "spotify",
		SourceTrackID:  trackID,
		DestService:    "youtube",
		DestPlaylistID: playlistID,
	}
}

func testRecord(jobID string, key models.SyncKey, status models.SyncStatus) *models.SyncRecord {
	return &models.SyncRecord{
		JobID:      jobID,
		Key:        key,
		Status:     status,
		Confidence: 0.9,
	}
}

func TestSyncRecordRepository(t *testing.T) {
	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		record, err := repo.Get(testKey("t1", "p1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record != nil {
			t.Error("expected nil record for missing key")
		}
	})

	t.Run("UpsertAndGet", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		key := testKey("t1", "p1")

		if err := repo.Upsert(testRecord("job1", key, models.StatusMatched), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		record, err := repo.Get(key)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if record == nil {
			t.Fatal("expected record")
		}
		if record.Status != models.StatusMatched {
			t.Errorf("expected status matched, got %s", record.Status)
		}
		if record.AttemptCount != 1 {
			t.Errorf("expected attempt count 1, got %d", record.AttemptCount)
		}
	})

	t.Run("ReEvaluationIncrementsAttempts", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		key := testKey("t1", "p1")

		if err := repo.Upsert(testRecord("job1", key, models.StatusUnmatched), false); err != nil {
			t.Fatalf("first upsert failed: %v", err)
		}
		if err := repo.Upsert(testRecord("job2", key, models.StatusAdded), false); err != nil {
			t.Fatalf("second upsert failed: %v", err)
		}

		record, err := repo.Get(key)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if record.Status != models.StatusAdded {
			t.Errorf("expected status added, got %s", record.Status)
		}
		if record.AttemptCount != 2 {
			t.Errorf("expected attempt count 2, got %d", record.AttemptCount)
		}
		if record.JobID != "job2" {
			t.Errorf("expected job2, got %s", record.JobID)
		}
	})

	t.Run("NeverDowngradesFromAdded", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		key := testKey("t1", "p1")

		if err := repo.Upsert(testRecord("job1", key, models.StatusAdded), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := repo.Upsert(testRecord("job2", key, models.StatusUnmatched), false); err != nil {
			t.Fatalf("downgrade attempt should be a silent no-op: %v", err)
		}

		record, err := repo.Get(key)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if record.Status != models.StatusAdded {
			t.Errorf("expected status to survive as added, got %s", record.Status)
		}
		if record.JobID != "job1" {
			t.Errorf("expected original job1, got %s", record.JobID)
		}
	})

	t.Run("AddedCanReapply", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		key := testKey("t1", "p1")

		if err := repo.Upsert(testRecord("job1", key, models.StatusAdded), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := repo.Upsert(testRecord("job2", key, models.StatusAdded), false); err != nil {
			t.Fatalf("re-adding failed: %v", err)
		}

		record, _ := repo.Get(key)
		if record.JobID != "job2" {
			t.Errorf("added-to-added update should apply, got job %s", record.JobID)
		}
	})

	t.Run("ForceOverridesGuard", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		key := testKey("t1", "p1")

		if err := repo.Upsert(testRecord("job1", key, models.StatusAdded), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := repo.Upsert(testRecord("job2", key, models.StatusUnmatched), true); err != nil {
			t.Fatalf("forced upsert failed: %v", err)
		}

		record, _ := repo.Get(key)
		if record.Status != models.StatusUnmatched {
			t.Errorf("expected forced status unmatched, got %s", record.Status)
		}
	})

	t.Run("KeyIsolation", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))

		if err := repo.Upsert(testRecord("job1", testKey("t1", "p1"), models.StatusAdded), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := repo.Upsert(testRecord("job1", testKey("t1", "p2"), models.StatusUnmatched), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		p1, _ := repo.Get(testKey("t1", "p1"))
		p2, _ := repo.Get(testKey("t1", "p2"))
		if p1.Status != models.StatusAdded || p2.Status != models.StatusUnmatched {
			t.Error("records for different destination playlists should not interfere")
		}
	})

	t.Run("ListByJob", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))

		for i, trackID := range []string{"t1", "t2", "t3"} {
			status := models.StatusAdded
			if i == 2 {
				status = models.StatusUnmatched
			}
			if err := repo.Upsert(testRecord("job1", testKey(trackID, "p1"), status), false); err != nil {
				t.Fatalf("upsert failed: %v", err)
			}
		}
		if err := repo.Upsert(testRecord("other", testKey("t9", "p1"), models.StatusAdded), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		records, err := repo.ListByJob("job1")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(records) != 3 {
			t.Errorf("expected 3 records for job1, got %d", len(records))
		}
	})

	t.Run("GuardHoldsUnderConcurrentUpserts", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		key := testKey("t1", "p1")

		if err := repo.Upsert(testRecord("job1", key, models.StatusAdded), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				status := models.StatusUnmatched
				if n%2 == 0 {
					status = models.StatusMatched
				}
				if err := repo.Upsert(testRecord("late", key, status), false); err != nil {
					t.Errorf("concurrent upsert failed: %v", err)
				}
			}(i)
		}
		wg.Wait()

		record, err := repo.Get(key)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if record.Status != models.StatusAdded {
			t.Errorf("guard should hold under concurrency, got %s", record.Status)
		}
	})

	t.Run("ListByPlaylist", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))

		repo.Upsert(testRecord("job1", testKey("t1", "p1"), models.StatusAdded), false)
		repo.Upsert(testRecord("job2", testKey("t2", "p1"), models.StatusUnmatched), false)
		repo.Upsert(testRecord("job1", testKey("t3", "p2"), models.StatusAdded), false)

		records, err := repo.ListByPlaylist("youtube", "p1")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected 2 records for p1 across jobs, got %d", len(records))
		}
	})

	t.Run("ResetPlaylist", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))

		repo.Upsert(testRecord("job1", testKey("t1", "p1"), models.StatusAdded), false)
		repo.Upsert(testRecord("job1", testKey("t2", "p1"), models.StatusAdded), false)
		repo.Upsert(testRecord("job1", testKey("t3", "p2"), models.StatusAdded), false)

		deleted, err := repo.ResetPlaylist("youtube", "p1")
		if err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		if deleted != 2 {
			t.Errorf("expected 2 deleted records, got %d", deleted)
		}

		if record, _ := repo.Get(testKey("t3", "p2")); record == nil {
			t.Error("reset should not touch other playlists")
		}
	})

	t.Run("InvalidRecordRejected", func(t *testing.T) {
		repo := NewSyncRecordRepository(newTestDB(t))
		bad := testRecord("job1", testKey("t1", "p1"), models.SyncStatus("bogus"))
		if err := repo.Upsert(bad, false); err == nil {
			t.Error("expected validation error for unknown status")
		}
	})
}
