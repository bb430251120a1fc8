package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunesync/internal/match"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

// HistoryStore persists per-track sync outcomes. The repository
// implementation is the production store; tests substitute their own.
type HistoryStore interface {
	Get(key models.SyncKey) (*models.SyncRecord, error)
	Upsert(record *models.SyncRecord, force bool) error
}

// TrackCacher records raw tracks seen during search so later runs can
// inspect them offline.
type TrackCacher interface {
	CacheTrack(service string, track models.Track) error
}

// EngineOptions configures a sync engine.
type EngineOptions struct {
	Source  services.Adapter
	Dest    services.Adapter
	Matcher *match.Matcher
	History HistoryStore
	Cache   TrackCacher // optional
	Logger  *log.Logger // optional
	Sync    shared.SyncConfig
	// SearchLimit caps candidates fetched per source track.
	SearchLimit int
}

// Engine drives sync jobs end to end: enumerate, match, add, record.
type Engine struct {
	source  services.Adapter
	dest    services.Adapter
	matcher *match.Matcher
	history HistoryStore
	cache   TrackCacher
	logger  *log.Logger

	workers     int
	searchLimit int
	callTimeout time.Duration
	policy      BackoffPolicy

	sourceLimiter *rate.Limiter
	destLimiter   *rate.Limiter
	sourceGate    chan struct{}
	destGate      chan struct{}
}

// NewEngine validates options and returns a ready engine. Invalid
// options fail before any job starts.
func NewEngine(opts EngineOptions) (*Engine, error) {
	switch {
	case opts.Source == nil || opts.Dest == nil:
		return nil, fmt.Errorf("%w: source and destination adapters are required", shared.ErrInvalidConfig)
	case opts.Matcher == nil:
		return nil, fmt.Errorf("%w: matcher is required", shared.ErrInvalidConfig)
	case opts.History == nil:
		return nil, fmt.Errorf("%w: history store is required", shared.ErrInvalidConfig)
	case opts.Sync.Workers <= 0:
		return nil, fmt.Errorf("%w: workers must be positive, got %d", shared.ErrInvalidConfig, opts.Sync.Workers)
	case opts.Sync.RequestsPerSecond <= 0:
		return nil, fmt.Errorf("%w: requests_per_second must be positive, got %g", shared.ErrInvalidConfig, opts.Sync.RequestsPerSecond)
	case opts.Sync.MaxAttempts <= 0:
		return nil, fmt.Errorf("%w: max_attempts must be positive, got %d", shared.ErrInvalidConfig, opts.Sync.MaxAttempts)
	case opts.Sync.AdapterTimeoutMS <= 0:
		return nil, fmt.Errorf("%w: adapter_timeout_ms must be positive, got %d", shared.ErrInvalidConfig, opts.Sync.AdapterTimeoutMS)
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	limit := opts.SearchLimit
	if limit <= 0 {
		limit = 5
	}
	return &Engine{
		source:      opts.Source,
		dest:        opts.Dest,
		matcher:     opts.Matcher,
		history:     opts.History,
		cache:       opts.Cache,
		logger:      logger,
		workers:     opts.Sync.Workers,
		searchLimit: limit,
		callTimeout: time.Duration(opts.Sync.AdapterTimeoutMS) * time.Millisecond,
		policy: BackoffPolicy{
			Base:        time.Duration(opts.Sync.BackoffBaseMS) * time.Millisecond,
			Cap:         time.Duration(opts.Sync.BackoffCapMS) * time.Millisecond,
			MaxAttempts: opts.Sync.MaxAttempts,
		},
		sourceLimiter: limiterFor(opts.Source.Name(), opts.Sync.RequestsPerSecond),
		destLimiter:   limiterFor(opts.Dest.Name(), opts.Sync.RequestsPerSecond),
		sourceGate:    gateFor(opts.Source.Name(), opts.Sync.Workers),
		destGate:      gateFor(opts.Dest.Name(), opts.Sync.Workers),
	}, nil
}

// Counts aggregates per-track outcomes for a run.
type Counts struct {
	Total          int
	Skipped        int
	Added          int
	AlreadyPresent int
	Matched        int
	Ambiguous      int
	Unmatched      int
}

// Result summarizes a finished (or stopped) run.
type Result struct {
	JobID     string
	State     State
	Playlists int
	Counts    Counts
}

// playlistWork pairs an enumerated source playlist with its resolved
// destination and fetched tracks.
type playlistWork struct {
	source models.Playlist
	destID string
	tracks []models.Track
}

// Run executes a job. Tracks whose history is already terminal are
// skipped unless force is set; force also re-applies outcomes that
// would otherwise never downgrade. Progress events are delivered
// best-effort on progress, which may be nil.
func (e *Engine) Run(ctx context.Context, job *Job, force bool, progress chan<- Event) (*Result, error) {
	result := &Result{JobID: job.ID, State: job.State()}
	if err := job.transition(StateEnumerating); err != nil {
		return result, err
	}
	result.State = StateEnumerating
	sendProgress(progress, phaseEvent(PhaseEnumerate, "", "enumerating source playlists"))

	work, err := e.enumerate(ctx, job)
	if err != nil {
		return e.finish(job, result, progress, err)
	}
	result.Playlists = len(work)

	if err := job.transition(StateProcessing); err != nil {
		return result, err
	}
	result.State = StateProcessing

	inner, cancel := context.WithCancel(ctx)
	defer cancel()
	var fatal error
	for _, pw := range work {
		if inner.Err() != nil {
			break
		}
		sendProgress(progress, phaseEvent(PhaseProcess, pw.source.Name,
			fmt.Sprintf("processing %d tracks", len(pw.tracks))))
		if err := e.processPlaylist(inner, cancel, job, pw, force, progress, &result.Counts); err != nil {
			fatal = err
			break
		}
	}
	if ctx.Err() != nil && fatal == nil {
		return e.finish(job, result, progress, context.Canceled)
	}
	return e.finish(job, result, progress, fatal)
}

// finish moves the job to its terminal state and emits the closing
// event. Cancellation is reported through the result, not as an error.
func (e *Engine) finish(job *Job, result *Result, progress chan<- Event, err error) (*Result, error) {
	switch {
	case err == nil:
		_ = job.transition(StateCompleted)
	case errors.Is(err, context.Canceled):
		_ = job.transition(StateCancelled)
		err = nil
	default:
		_ = job.transition(StateFailed)
	}
	result.State = job.State()
	sendProgress(progress, phaseEvent(PhaseComplete, "", result.State.String()))
	e.logger.Info("sync job finished",
		"job", result.JobID, "state", result.State.String(),
		"added", result.Counts.Added, "skipped", result.Counts.Skipped,
		"ambiguous", result.Counts.Ambiguous, "unmatched", result.Counts.Unmatched)
	return result, err
}

// enumerate resolves the job's selection against the source platform
// and pairs every selected playlist with a destination playlist of the
// same name, creating it when absent.
func (e *Engine) enumerate(ctx context.Context, job *Job) ([]playlistWork, error) {
	var sourceLists []models.Playlist
	err := e.sourceCall(ctx, func(cctx context.Context) error {
		var err error
		sourceLists, err = e.source.ListPlaylists(cctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s playlists: %w", e.source.Name(), err)
	}

	selected, err := selectPlaylists(sourceLists, job.Selection)
	if err != nil {
		return nil, err
	}

	var destLists []models.Playlist
	err = e.destCall(ctx, func(cctx context.Context) error {
		var err error
		destLists, err = e.dest.ListPlaylists(cctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s playlists: %w", e.dest.Name(), err)
	}
	destByName := make(map[string]string, len(destLists))
	for _, p := range destLists {
		destByName[strings.ToLower(p.Name)] = p.ID
	}

	work := make([]playlistWork, 0, len(selected))
	for _, src := range selected {
		pw := playlistWork{source: src}
		err := e.sourceCall(ctx, func(cctx context.Context) error {
			var err error
			pw.tracks, err = e.source.ListTracks(cctx, src.ID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing tracks of %q: %w", src.Name, err)
		}

		if id, ok := destByName[strings.ToLower(src.Name)]; ok {
			pw.destID = id
		} else {
			err := e.destCall(ctx, func(cctx context.Context) error {
				var err error
				pw.destID, err = e.dest.CreatePlaylist(cctx, src.Name)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("creating destination playlist %q: %w", src.Name, err)
			}
			destByName[strings.ToLower(src.Name)] = pw.destID
		}
		work = append(work, pw)
	}
	return work, nil
}

// selectPlaylists filters the enumerated playlists by the selection.
// Every explicitly requested ID must exist.
func selectPlaylists(all []models.Playlist, sel Selection) ([]models.Playlist, error) {
	if sel.All {
		return all, nil
	}
	byID := make(map[string]models.Playlist, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	selected := make([]models.Playlist, 0, len(sel.PlaylistIDs))
	for _, id := range sel.PlaylistIDs {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: playlist %q not found on source", shared.ErrPlaylistNotFound, id)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// trackOutcome carries one processed track from a worker to the
// collector. fatal aborts the whole job.
type trackOutcome struct {
	index  int
	track  models.Track
	record *models.SyncRecord
	skip   bool
	fatal  error
}

// processPlaylist walks a playlist's tracks through the worker pool.
// Workers evaluate tracks concurrently; all history writes happen on
// the collecting side, one at a time.
func (e *Engine) processPlaylist(ctx context.Context, cancel context.CancelFunc, job *Job, pw playlistWork, force bool, progress chan<- Event, counts *Counts) error {
	type workItem struct {
		index int
		track models.Track
		prior *models.SyncRecord
	}
	workCh := make(chan workItem)
	results := make(chan trackOutcome)
	total := len(pw.tracks)

	var active int
	for i := 0; i < e.workers; i++ {
		active++
		go func() {
			defer func() {
				results <- trackOutcome{index: -1}
			}()
			for item := range workCh {
				results <- e.evaluate(ctx, job, pw, item.track, item.prior)
			}
		}()
	}

	go func() {
		defer close(workCh)
		for i, track := range pw.tracks {
			if ctx.Err() != nil {
				return
			}
			key := models.SyncKey{
				SourceService:  e.source.Name(),
				SourceTrackID:  track.ID,
				DestService:    e.dest.Name(),
				DestPlaylistID: pw.destID,
			}
			var prior *models.SyncRecord
			if !force {
				existing, err := e.history.Get(key)
				if err != nil {
					results <- trackOutcome{index: i, track: track, fatal: fmt.Errorf("reading sync history: %w", err)}
					return
				}
				if existing != nil && existing.Status.Terminal() {
					results <- trackOutcome{index: i, track: track, record: existing, skip: true}
					continue
				}
				prior = existing
			}
			select {
			case workCh <- workItem{index: i, track: track, prior: prior}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var fatal error
	remaining := active
	for remaining > 0 {
		out := <-results
		if out.index == -1 {
			remaining--
			continue
		}
		counts.Total++
		switch {
		case out.fatal != nil:
			if fatal == nil {
				fatal = out.fatal
				cancel()
			}
		case out.skip:
			counts.Skipped++
			sendProgress(progress, trackEvent(pw.source.Name, out.track, out.record, counts.Total, total))
		default:
			if err := e.history.Upsert(out.record, force); err != nil {
				if fatal == nil {
					fatal = fmt.Errorf("writing sync history: %w", err)
					cancel()
				}
				continue
			}
			e.count(counts, out.record.Status)
			sendProgress(progress, trackEvent(pw.source.Name, out.track, out.record, counts.Total, total))
		}
	}
	return fatal
}

func (e *Engine) count(counts *Counts, status models.SyncStatus) {
	switch status {
	case models.StatusAdded:
		counts.Added++
	case models.StatusAlreadyPresent:
		counts.AlreadyPresent++
	case models.StatusMatched:
		counts.Matched++
	case models.StatusAmbiguous:
		counts.Ambiguous++
	case models.StatusUnmatched:
		counts.Unmatched++
	}
}

// evaluate runs one track through search, match, and (when accepted)
// the destination add. It never writes history; it returns the record
// the collector should persist.
func (e *Engine) evaluate(ctx context.Context, job *Job, pw playlistWork, track models.Track, prior *models.SyncRecord) trackOutcome {
	out := trackOutcome{track: track}
	key := models.SyncKey{
		SourceService:  e.source.Name(),
		SourceTrackID:  track.ID,
		DestService:    e.dest.Name(),
		DestPlaylistID: pw.destID,
	}
	record := &models.SyncRecord{
		ID:            shared.GenerateID(),
		JobID:         job.ID,
		Key:           key,
		LastAttempted: time.Now(),
	}

	// A prior run already found this track's match but failed to add
	// it. The match stands; only the add is repeated.
	if prior != nil && prior.Status == models.StatusMatched && prior.MatchedTrackID != "" {
		record.MatchedTrackID = prior.MatchedTrackID
		record.Confidence = prior.Confidence
		added, err := e.addTrack(ctx, pw.destID, prior.MatchedTrackID)
		switch {
		case err != nil && (shared.IsAuthFailure(err) || isPlaylistGone(err) || ctx.Err() != nil):
			out.fatal = err
			return out
		case err != nil:
			record.Status = models.StatusMatched
			record.Reason = fmt.Sprintf("add failed: %v", err)
		case added:
			record.Status = models.StatusAdded
		default:
			record.Status = models.StatusAlreadyPresent
		}
		out.record = record
		return out
	}

	query := normalize.Track(track)
	var pool []models.Track
	err := e.destCall(ctx, func(cctx context.Context) error {
		var err error
		pool, err = e.dest.SearchTracks(cctx, query, e.searchLimit)
		return err
	})
	if err != nil {
		if shared.IsAuthFailure(err) || ctx.Err() != nil {
			out.fatal = err
			return out
		}
		record.Status = models.StatusUnmatched
		record.Reason = fmt.Sprintf("search failed: %v", err)
		out.record = record
		return out
	}
	e.cachePool(pool)

	decision := e.matcher.Match(query, pool)
	switch decision.Outcome {
	case match.Accepted:
		record.MatchedTrackID = decision.Best.Track.ID
		record.Confidence = decision.Best.Score
		added, err := e.addTrack(ctx, pw.destID, decision.Best.Track.ID)
		switch {
		case err != nil && (shared.IsAuthFailure(err) || isPlaylistGone(err) || ctx.Err() != nil):
			out.fatal = err
			return out
		case err != nil:
			// Match stands; only the add needs retrying next run.
			record.Status = models.StatusMatched
			record.Reason = fmt.Sprintf("add failed: %v", err)
		case added:
			record.Status = models.StatusAdded
		default:
			record.Status = models.StatusAlreadyPresent
		}
	case match.Ambiguous:
		record.Status = models.StatusAmbiguous
		record.Confidence = decision.Best.Score
		record.Candidates = candidatesJSON(decision.Contenders)
		record.Reason = fmt.Sprintf("%d candidates within tie margin", len(decision.Contenders))
	default:
		record.Status = models.StatusUnmatched
		if len(pool) == 0 {
			record.Reason = "no search results"
		} else if decision.Best != nil {
			record.Confidence = decision.Best.Score
			record.Reason = fmt.Sprintf("best score %.2f below threshold", decision.Best.Score)
		}
	}
	out.record = record
	return out
}

// addTrack adds one destination track, reporting true when the
// platform actually inserted it and false when it was already there.
func (e *Engine) addTrack(ctx context.Context, playlistID, trackID string) (bool, error) {
	var res *services.AddResult
	err := e.destCall(ctx, func(cctx context.Context) error {
		var err error
		res, err = e.dest.AddTracks(cctx, playlistID, []string{trackID})
		return err
	})
	if err != nil {
		return false, err
	}
	for _, id := range res.AlreadyPresent {
		if id == trackID {
			return false, nil
		}
	}
	return true, nil
}

// cachePool stores raw search results, best effort.
func (e *Engine) cachePool(pool []models.Track) {
	if e.cache == nil {
		return
	}
	for _, t := range pool {
		if err := e.cache.CacheTrack(e.dest.Name(), t); err != nil {
			e.logger.Debug("track cache write failed", "track", t.ID, "error", err)
		}
	}
}

// sourceCall and destCall wrap one adapter call with the platform's
// concurrency gate, rate limiter, per-call deadline, and retry policy.
func (e *Engine) sourceCall(ctx context.Context, fn func(context.Context) error) error {
	return e.platformCall(ctx, e.sourceGate, e.sourceLimiter, fn)
}

func (e *Engine) destCall(ctx context.Context, fn func(context.Context) error) error {
	return e.platformCall(ctx, e.destGate, e.destLimiter, fn)
}

func (e *Engine) platformCall(ctx context.Context, gate chan struct{}, limiter *rate.Limiter, fn func(context.Context) error) error {
	return e.policy.Retry(ctx, func(ctx context.Context) error {
		release, err := acquire(ctx, gate)
		if err != nil {
			return err
		}
		defer release()
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
		return fn(cctx)
	})
}

func isPlaylistGone(err error) bool {
	return errors.Is(err, shared.ErrPlaylistNotFound)
}

// candidateSummary is the persisted shape of an ambiguous contender.
type candidateSummary struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Artists []string `json:"artists"`
	Score   float64  `json:"score"`
}

func candidatesJSON(contenders []match.Candidate) string {
	summaries := make([]candidateSummary, 0, len(contenders))
	for _, c := range contenders {
		summaries = append(summaries, candidateSummary{
			ID:      c.Track.ID,
			Title:   c.Track.Title,
			Artists: c.Track.Artists,
			Score:   c.Score,
		})
	}
	b, err := json.Marshal(summaries)
	if err != nil {
		return "[]"
	}
	return string(b)
}
