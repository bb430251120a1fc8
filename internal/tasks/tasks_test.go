package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tunesync/internal/match"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	tu "github.com/desertthunder/tunesync/internal/testing"
)

// memoryHistory is an in-memory HistoryStore mirroring the repository's
// never-downgrade-from-added guard.
type memoryHistory struct {
	mu        sync.Mutex
	records   map[models.SyncKey]*models.SyncRecord
	getErr    error
	upsertErr error
	// onUpsert, when set, runs after each applied write with the
	// record count so far.
	onUpsert func(n int)
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{records: make(map[models.SyncKey]*models.SyncRecord)}
}

func (h *memoryHistory) Get(key models.SyncKey) (*models.SyncRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.getErr != nil {
		return nil, h.getErr
	}
	record, ok := h.records[key]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (h *memoryHistory) Upsert(record *models.SyncRecord, force bool) error {
	if err := record.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.upsertErr != nil {
		return h.upsertErr
	}
	existing := h.records[record.Key]
	if existing != nil && !force &&
		existing.Status == models.StatusAdded && record.Status != models.StatusAdded {
		return nil
	}
	cp := *record
	if existing != nil {
		cp.AttemptCount = existing.AttemptCount + 1
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.AttemptCount = 1
	}
	h.records[record.Key] = &cp
	if h.onUpsert != nil {
		h.onUpsert(len(h.records))
	}
	return nil
}

func (h *memoryHistory) get(t *testing.T, key models.SyncKey) *models.SyncRecord {
	t.Helper()
	record, err := h.Get(key)
	if err != nil {
		t.Fatalf("history get failed: %v", err)
	}
	if record == nil {
		t.Fatalf("expected history record for %s", key)
	}
	return record
}

func testSyncConfig() shared.SyncConfig {
	return shared.SyncConfig{
		Workers:           2,
		RequestsPerSecond: 500,
		MaxAttempts:       3,
		BackoffBaseMS:     1,
		BackoffCapMS:      2,
		AdapterTimeoutMS:  2000,
	}
}

func newTestEngine(t *testing.T, source, dest services.Adapter, history HistoryStore) *Engine {
	t.Helper()
	matcher, err := match.New(match.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build matcher: %v", err)
	}
	engine, err := NewEngine(EngineOptions{
		Source:  source,
		Dest:    dest,
		Matcher: matcher,
		History: history,
		Sync:    testSyncConfig(),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine
}

func queenTrack(id string) models.Track {
	return models.Track{
		ID:       id,
		Title:    "Bohemian Rhapsody",
		Artists:  []string{"Queen"},
		Duration: 354,
	}
}

// canonical title of queenTrack after normalization
const queenTitle = "bohemian rhapsody"

func sourceAdapter(tracks ...models.Track) *tu.MockAdapter {
	return &tu.MockAdapter{
		Platform:  "spotify",
		Playlists: []models.Playlist{{ID: "p1", Name: "Mix"}},
		Tracks:    map[string][]models.Track{"p1": tracks},
	}
}

func destAdapter() *tu.MockAdapter {
	return &tu.MockAdapter{
		Platform:      "youtube",
		SearchResults: map[string][]models.Track{queenTitle: {queenTrack("d1")}},
	}
}

func trackKey(track models.Track, destPlaylistID string) models.SyncKey {
	return models.SyncKey{
		SourceService:  "spotify",
		SourceTrackID:  track.ID,
		DestService:    "youtube",
		DestPlaylistID: destPlaylistID,
	}
}

func runJob(t *testing.T, engine *Engine, sel Selection, force bool) (*Result, error) {
	t.Helper()
	return engine.Run(context.Background(), NewJob(sel), force, nil)
}

func TestEngineRun(t *testing.T) {
	all := Selection{All: true}

	t.Run("AddsMatchedTrack", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		progress := make(chan Event, 64)
		result, err := engine.Run(context.Background(), NewJob(all), false, progress)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.State != StateCompleted {
			t.Errorf("expected completed, got %s", result.State)
		}
		if result.Playlists != 1 {
			t.Errorf("expected 1 playlist, got %d", result.Playlists)
		}
		if result.Counts.Added != 1 {
			t.Errorf("expected 1 added, got %+v", result.Counts)
		}

		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if record.Status != models.StatusAdded {
			t.Errorf("expected added status, got %s", record.Status)
		}
		if record.MatchedTrackID != "d1" {
			t.Errorf("expected matched track d1, got %q", record.MatchedTrackID)
		}
		if record.Confidence < 0.85 {
			t.Errorf("expected confidence at or above threshold, got %f", record.Confidence)
		}

		if calls := dest.AddCalls(); len(calls) != 1 {
			t.Errorf("expected 1 add call, got %d", len(calls))
		}

		var sawEnumerate, sawComplete bool
		for len(progress) > 0 {
			ev := <-progress
			switch ev.Phase {
			case PhaseEnumerate:
				sawEnumerate = true
			case PhaseComplete:
				sawComplete = true
			}
		}
		if !sawEnumerate || !sawComplete {
			t.Error("expected enumerate and complete progress events")
		}
	})

	t.Run("SecondRunSkipsTerminal", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		if _, err := runJob(t, engine, all, false); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if result.Counts.Skipped != 1 || result.Counts.Added != 0 {
			t.Errorf("expected idempotent skip, got %+v", result.Counts)
		}
		if calls := dest.AddCalls(); len(calls) != 1 {
			t.Errorf("expected no additional add calls, got %d", len(calls))
		}
	})

	t.Run("ForceReevaluates", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		if _, err := runJob(t, engine, all, false); err != nil {
			t.Fatalf("first run failed: %v", err)
		}

		// Force re-runs the search and the add; the destination now
		// reports the track as a duplicate.
		dest.Duplicates = []string{"d1"}
		result, err := runJob(t, engine, all, true)
		if err != nil {
			t.Fatalf("forced run failed: %v", err)
		}
		if result.Counts.AlreadyPresent != 1 {
			t.Errorf("expected already_present on forced re-run, got %+v", result.Counts)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if record.Status != models.StatusAlreadyPresent {
			t.Errorf("expected already_present status, got %s", record.Status)
		}
		if record.AttemptCount != 2 {
			t.Errorf("expected attempt count 2, got %d", record.AttemptCount)
		}
	})

	t.Run("DuplicateReportedAsPresent", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		dest.Duplicates = []string{"d1"}
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.AlreadyPresent != 1 {
			t.Errorf("expected 1 already_present, got %+v", result.Counts)
		}
	})

	t.Run("NoSearchResultsUnmatched", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := &tu.MockAdapter{Platform: "youtube"}
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.Unmatched != 1 {
			t.Errorf("expected 1 unmatched, got %+v", result.Counts)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if record.Reason != "no search results" {
			t.Errorf("expected no-results reason, got %q", record.Reason)
		}
	})

	t.Run("LowScoreUnmatched", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := &tu.MockAdapter{
			Platform: "youtube",
			SearchResults: map[string][]models.Track{
				queenTitle: {{ID: "d9", Title: "Something Else Entirely", Artists: []string{"Nobody"}, Duration: 120}},
			},
		}
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.Unmatched != 1 {
			t.Errorf("expected 1 unmatched, got %+v", result.Counts)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if !strings.Contains(record.Reason, "below threshold") {
			t.Errorf("expected below-threshold reason, got %q", record.Reason)
		}
		if len(dest.AddCalls()) != 0 {
			t.Error("rejected match should not trigger an add")
		}
	})

	t.Run("DuplicateCandidatesAmbiguous", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := &tu.MockAdapter{
			Platform: "youtube",
			SearchResults: map[string][]models.Track{
				queenTitle: {queenTrack("d1"), queenTrack("d2")},
			},
		}
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.Ambiguous != 1 {
			t.Errorf("expected 1 ambiguous, got %+v", result.Counts)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if record.Status != models.StatusAmbiguous {
			t.Errorf("expected ambiguous status, got %s", record.Status)
		}
		if !strings.Contains(record.Candidates, "d1") || !strings.Contains(record.Candidates, "d2") {
			t.Errorf("expected both contenders persisted, got %s", record.Candidates)
		}
		if len(dest.AddCalls()) != 0 {
			t.Error("ambiguous match should not trigger an add")
		}
	})

	t.Run("TransientSearchRetried", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		dest.FailSearches = map[string]int{queenTitle: 2}
		dest.TransientErr = shared.ErrRateLimited
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.Added != 1 {
			t.Errorf("expected retry to recover, got %+v", result.Counts)
		}
		if dest.SearchCount(queenTitle) != 1 {
			t.Errorf("expected 1 successful search, got %d", dest.SearchCount(queenTitle))
		}
	})

	t.Run("TransientSearchExhausted", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		dest.FailSearches = map[string]int{queenTitle: 10}
		dest.TransientErr = shared.ErrRateLimited
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.State != StateCompleted {
			t.Errorf("exhausted retries should not fail the job, got %s", result.State)
		}
		if result.Counts.Unmatched != 1 {
			t.Errorf("expected 1 unmatched, got %+v", result.Counts)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if !strings.Contains(record.Reason, "search failed") {
			t.Errorf("expected search failure reason, got %q", record.Reason)
		}
	})

	t.Run("AuthFailureFailsJob", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		dest.SearchErr = shared.ErrTokenExpired
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err == nil {
			t.Fatal("expected auth failure to surface")
		}
		if !shared.IsAuthFailure(err) {
			t.Errorf("expected auth failure, got %v", err)
		}
		if result.State != StateFailed {
			t.Errorf("expected failed state, got %s", result.State)
		}
	})

	t.Run("AddFailureKeepsMatch", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		dest.AddErr = errors.New("server hiccup")
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.Matched != 1 {
			t.Errorf("expected 1 matched, got %+v", result.Counts)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "created-Mix"))
		if record.Status != models.StatusMatched {
			t.Errorf("expected matched status, got %s", record.Status)
		}
		if !strings.Contains(record.Reason, "add failed") {
			t.Errorf("expected add failure reason, got %q", record.Reason)
		}
		if record.MatchedTrackID != "d1" {
			t.Errorf("expected matched track to be retained, got %q", record.MatchedTrackID)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		engine := newTestEngine(t, source, dest, newMemoryHistory())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result, err := engine.Run(ctx, NewJob(all), false, nil)
		if err != nil {
			t.Fatalf("cancellation should not be an error: %v", err)
		}
		if result.State != StateCancelled {
			t.Errorf("expected cancelled state, got %s", result.State)
		}
	})

	t.Run("CancelMidRunThenResume", func(t *testing.T) {
		const total = 10
		tracks := make([]models.Track, total)
		pools := make(map[string][]models.Track, total)
		for i := range tracks {
			title := fmt.Sprintf("Song Number %d", i)
			tracks[i] = models.Track{ID: fmt.Sprintf("s%d", i), Title: title, Artists: []string{"Queen"}, Duration: 200}
			pools[fmt.Sprintf("song number %d", i)] = []models.Track{
				{ID: fmt.Sprintf("d%d", i), Title: title, Artists: []string{"Queen"}, Duration: 200},
			}
		}
		source := sourceAdapter(tracks...)
		dest := &tu.MockAdapter{Platform: "youtube", SearchResults: pools}
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		history.onUpsert = func(n int) {
			if n == 4 {
				cancel()
			}
		}

		result, err := engine.Run(ctx, NewJob(all), false, nil)
		if err != nil {
			t.Fatalf("cancelled run should not error: %v", err)
		}
		if result.State != StateCancelled {
			t.Fatalf("expected cancelled state, got %s", result.State)
		}

		history.mu.Lock()
		snapshot := make(map[models.SyncKey]models.SyncRecord, len(history.records))
		for key, rec := range history.records {
			snapshot[key] = *rec
		}
		history.mu.Unlock()
		done := len(snapshot)
		if done < 4 || done >= total {
			t.Fatalf("expected a partial run, got %d of %d records", done, total)
		}
		for key, rec := range snapshot {
			if rec.Status != models.StatusAdded {
				t.Errorf("record %s: expected added before resume, got %s", key, rec.Status)
			}
		}

		history.onUpsert = nil
		resumed, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("resume failed: %v", err)
		}
		if resumed.State != StateCompleted {
			t.Errorf("expected completed resume, got %s", resumed.State)
		}
		if resumed.Counts.Skipped != done {
			t.Errorf("expected %d skipped on resume, got %d", done, resumed.Counts.Skipped)
		}
		if resumed.Counts.Added != total-done {
			t.Errorf("expected %d added on resume, got %d", total-done, resumed.Counts.Added)
		}
		if calls := dest.AddCalls(); len(calls) != total {
			t.Errorf("expected every track added exactly once across both runs, got %d add calls", len(calls))
		}
		for key, before := range snapshot {
			after := history.get(t, key)
			if after.JobID != before.JobID || after.AttemptCount != before.AttemptCount {
				t.Errorf("record %s changed on resume: job %s attempt %d -> job %s attempt %d",
					key, before.JobID, before.AttemptCount, after.JobID, after.AttemptCount)
			}
		}
	})

	t.Run("MatchedRecordRetriesOnlyAdd", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		// A repeat search would come up empty; the stored match must
		// carry the resume on its own.
		dest.SearchResults = nil
		history := newMemoryHistory()
		key := trackKey(queenTrack("s1"), "created-Mix")
		history.records[key] = &models.SyncRecord{
			ID:             "r1",
			JobID:          "job-old",
			Key:            key,
			Status:         models.StatusMatched,
			MatchedTrackID: "d1",
			Confidence:     0.91,
			Reason:         "add failed: server hiccup",
			AttemptCount:   1,
		}
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Counts.Added != 1 {
			t.Errorf("expected 1 added, got %+v", result.Counts)
		}
		if dest.SearchCount(queenTitle) != 0 {
			t.Errorf("expected no search for a stored match, got %d", dest.SearchCount(queenTitle))
		}
		if calls := dest.AddCalls(); len(calls) != 1 {
			t.Errorf("expected 1 add call, got %d", len(calls))
		}

		record := history.get(t, key)
		if record.Status != models.StatusAdded {
			t.Errorf("expected added status, got %s", record.Status)
		}
		if record.MatchedTrackID != "d1" {
			t.Errorf("expected stored match retained, got %q", record.MatchedTrackID)
		}
		if record.Confidence != 0.91 {
			t.Errorf("expected stored confidence retained, got %f", record.Confidence)
		}
		if record.AttemptCount != 2 {
			t.Errorf("expected attempt count 2, got %d", record.AttemptCount)
		}
	})

	t.Run("UnknownPlaylistFailsJob", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		engine := newTestEngine(t, source, dest, newMemoryHistory())

		result, err := runJob(t, engine, Selection{PlaylistIDs: []string{"missing"}}, false)
		if err == nil {
			t.Fatal("expected unknown playlist to fail")
		}
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected playlist not found, got %v", err)
		}
		if result.State != StateFailed {
			t.Errorf("expected failed state, got %s", result.State)
		}
	})

	t.Run("ExistingDestinationReused", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		// Same name, different case. No playlist should be created.
		dest.Playlists = []models.Playlist{{ID: "yt-mix", Name: "mix"}}
		history := newMemoryHistory()
		engine := newTestEngine(t, source, dest, history)

		if _, err := runJob(t, engine, all, false); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		record := history.get(t, trackKey(queenTrack("s1"), "yt-mix"))
		if record.Status != models.StatusAdded {
			t.Errorf("expected added status, got %s", record.Status)
		}
	})

	t.Run("HistoryReadFailureFailsJob", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		history := newMemoryHistory()
		history.getErr = errors.New("disk full")
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err == nil {
			t.Fatal("expected history read failure to surface")
		}
		if result.State != StateFailed {
			t.Errorf("expected failed state, got %s", result.State)
		}
	})

	t.Run("HistoryWriteFailureFailsJob", func(t *testing.T) {
		source := sourceAdapter(queenTrack("s1"))
		dest := destAdapter()
		history := newMemoryHistory()
		history.upsertErr = errors.New("disk full")
		engine := newTestEngine(t, source, dest, history)

		result, err := runJob(t, engine, all, false)
		if err == nil {
			t.Fatal("expected history write failure to surface")
		}
		if result.State != StateFailed {
			t.Errorf("expected failed state, got %s", result.State)
		}
	})
}

func TestNewEngine(t *testing.T) {
	matcher, err := match.New(match.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build matcher: %v", err)
	}
	valid := EngineOptions{
		Source:  &tu.MockAdapter{Platform: "spotify"},
		Dest:    &tu.MockAdapter{Platform: "youtube"},
		Matcher: matcher,
		History: newMemoryHistory(),
		Sync:    testSyncConfig(),
	}

	t.Run("Valid", func(t *testing.T) {
		if _, err := NewEngine(valid); err != nil {
			t.Errorf("expected valid options, got %v", err)
		}
	})

	t.Run("MissingAdapter", func(t *testing.T) {
		opts := valid
		opts.Dest = nil
		if _, err := NewEngine(opts); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config, got %v", err)
		}
	})

	t.Run("MissingHistory", func(t *testing.T) {
		opts := valid
		opts.History = nil
		if _, err := NewEngine(opts); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config, got %v", err)
		}
	})

	t.Run("ZeroWorkers", func(t *testing.T) {
		opts := valid
		opts.Sync.Workers = 0
		if _, err := NewEngine(opts); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config, got %v", err)
		}
	})

	t.Run("NegativeRate", func(t *testing.T) {
		opts := valid
		opts.Sync.RequestsPerSecond = -1
		if _, err := NewEngine(opts); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config, got %v", err)
		}
	})
}
