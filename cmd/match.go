package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
)

// MatchDebug scores live destination search results for a single track
// and prints the per-component breakdown.
func (r *Runner) MatchDebug(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	adapter, err := r.adapter(cmd.String("service"))
	if err != nil {
		return err
	}
	matcher, err := r.matcher()
	if err != nil {
		return err
	}

	track := models.Track{
		Title:    cmd.String("title"),
		Duration: int(cmd.Int("duration")),
	}
	if artist := cmd.String("artist"); artist != "" {
		track.Artists = []string{artist}
	}

	query := normalize.Track(track)
	r.writePlain("Query: title=%q artist=%q featured=%v bucket=%d\n\n",
		query.Title, query.PrimaryArtist, query.Featured, query.DurationBucket)

	pool, err := adapter.SearchTracks(ctx, query, r.config.Matching.SearchLimit)
	if err != nil {
		return fmt.Errorf("searching %s: %w", adapter.Name(), err)
	}
	if len(pool) == 0 {
		return r.writePlain("No search results.\n")
	}

	decision := matcher.Match(query, pool)
	r.writePlain("Decision: %s\n\n", decision.Outcome)
	for i, c := range decision.Ranked {
		r.writePlain("%d. %.3f  %s - %s [%s]\n", i+1, c.Score,
			c.Track.ArtistLine(), c.Track.Title, c.Track.ID)
		r.writePlain("     title=%.3f artist=%.3f duration=%+.3f featured=%+.3f\n",
			c.Breakdown.Title, c.Breakdown.Artist, c.Breakdown.Duration, c.Breakdown.Featured)
	}
	return nil
}
