package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

// direction resolves the source and destination adapters for a run.
func (r *Runner) direction(reverse bool) (services.Adapter, services.Adapter, error) {
	source, err := r.adapter(services.PlatformSpotify)
	if err != nil {
		return nil, nil, err
	}
	dest, err := r.adapter(services.PlatformYouTube)
	if err != nil {
		return nil, nil, err
	}
	if reverse {
		return dest, source, nil
	}
	return source, dest, nil
}

// SyncRun executes a sync job and streams progress to the terminal.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	playlistIDs := cmd.StringSlice("playlist")
	all := cmd.Bool("all")
	if !all && len(playlistIDs) == 0 {
		return fmt.Errorf("%w: pass --playlist or --all", shared.ErrMissingArgument)
	}

	source, dest, err := r.direction(cmd.Bool("reverse"))
	if err != nil {
		return err
	}

	engine, err := r.engine(source, dest)
	if err != nil {
		return err
	}

	job := tasks.NewJob(tasks.Selection{All: all, PlaylistIDs: playlistIDs})
	r.logger.Info("starting sync job", "job", job.ID, "source", source.Name(), "dest", dest.Name())

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress := make(chan tasks.Event, 64)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		for ev := range progress {
			if ev.Track == nil {
				r.logger.Info(ev.Phase.String(), "playlist", ev.Playlist, "msg", ev.Message)
				continue
			}
			r.writePlain("(%d/%d) %s - %s: %s", ev.Step, ev.Total,
				ev.Track.ArtistLine(), ev.Track.Title, ev.Outcome)
			if ev.Message != "" {
				r.writePlain(" (%s)", ev.Message)
			}
			r.writePlain("\n")
		}
	}()

	result, err := engine.Run(runCtx, job, cmd.Bool("force"), progress)
	close(progress)
	<-watcherDone
	if err != nil {
		return fmt.Errorf("sync job %s failed: %w", job.ID, err)
	}

	c := result.Counts
	r.writePlainln("Job %s %s: %d tracks, %d added, %d already present, %d skipped, %d ambiguous, %d unmatched",
		result.JobID, result.State, c.Total, c.Added, c.AlreadyPresent, c.Skipped, c.Ambiguous, c.Unmatched)
	if c.Ambiguous+c.Unmatched > 0 {
		r.writePlain("Run 'sync report --job %s' for details.\n", result.JobID)
	}
	return nil
}

// SyncStatus prints outcome counts for a finished job or for the full
// history of one destination playlist.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	var (
		records []*models.SyncRecord
		scope   string
		err     error
	)
	switch {
	case cmd.String("job") != "":
		scope = "Job " + cmd.String("job")
		records, err = r.jobRecords(cmd.String("job"))
	case cmd.String("dest-playlist") != "":
		scope = "Playlist " + cmd.String("dest-playlist")
		records, err = r.playlistRecords(cmd.String("dest-service"), cmd.String("dest-playlist"))
	default:
		return fmt.Errorf("%w: pass --job or --dest-playlist", shared.ErrMissingArgument)
	}
	if err != nil {
		return err
	}

	byStatus := make(map[models.SyncStatus]int)
	for _, rec := range records {
		byStatus[rec.Status]++
	}

	r.writePlain("%s: %d tracks\n", scope, len(records))
	for _, status := range []models.SyncStatus{
		models.StatusAdded, models.StatusAlreadyPresent, models.StatusMatched,
		models.StatusAmbiguous, models.StatusUnmatched,
	} {
		if n := byStatus[status]; n > 0 {
			r.writePlain("  %s: %d\n", status, n)
		}
	}
	return nil
}

// SyncReport renders a job's full track-by-track report.
func (r *Runner) SyncReport(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	jobID := cmd.String("job")
	records, err := r.jobRecords(jobID)
	if err != nil {
		return err
	}

	var data []byte
	switch cmd.String("format") {
	case "csv":
		data, err = formatter.ReportToCSV(records)
	case "md":
		data, err = formatter.ReportToMarkdown(jobID, records)
	case "json":
		data, err = formatter.ReportToJSON(records)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, cmd.String("format"))
	}
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// SyncReset deletes the sync history for a destination playlist so the
// next run re-evaluates every track.
func (r *Runner) SyncReset(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	db, err := r.openDatabase()
	if err != nil {
		return err
	}

	repo := repositories.NewSyncRecordRepository(db)
	deleted, err := repo.ResetPlaylist(cmd.String("dest-service"), cmd.String("dest-playlist"))
	if err != nil {
		return fmt.Errorf("resetting sync history: %w", err)
	}

	r.logger.Info("sync history reset", "playlist", cmd.String("dest-playlist"), "deleted", deleted)
	return r.writePlain("✓ Deleted %d sync records\n", deleted)
}

func (r *Runner) playlistRecords(destService, destPlaylistID string) ([]*models.SyncRecord, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	records, err := repositories.NewSyncRecordRepository(db).ListByPlaylist(destService, destPlaylistID)
	if err != nil {
		return nil, fmt.Errorf("loading playlist records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records for playlist %s", shared.ErrInvalidArgument, destPlaylistID)
	}
	return records, nil
}

func (r *Runner) jobRecords(jobID string) ([]*models.SyncRecord, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	records, err := repositories.NewSyncRecordRepository(db).ListByJob(jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records for job %s", shared.ErrInvalidArgument, jobID)
	}
	return records, nil
}
