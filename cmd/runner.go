package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunesync/internal/match"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	spotify *services.SpotifyAdapter
	youtube *services.YouTubeAdapter
	logger  *log.Logger
	output  io.Writer

	db *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Spotify *services.SpotifyAdapter
	YouTube *services.YouTubeAdapter
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		spotify: opts.Spotify,
		youtube: opts.YouTube,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

// SetLogger swaps the runner's logger, e.g. to a file logger for the TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// openDatabase returns the runner's database, opening it on first use.
func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	r.db = db
	return db, nil
}

// adapter resolves a platform name to its adapter.
func (r *Runner) adapter(platform string) (services.Adapter, error) {
	switch platform {
	case services.PlatformSpotify:
		if r.spotify == nil {
			return nil, fmt.Errorf("%w: Spotify adapter not configured; run setup first", shared.ErrServiceUnavailable)
		}
		return r.spotify, nil
	case services.PlatformYouTube:
		if r.youtube == nil {
			return nil, fmt.Errorf("%w: YouTube Music adapter not configured; run setup first", shared.ErrServiceUnavailable)
		}
		return r.youtube, nil
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", shared.ErrInvalidArgument, platform)
	}
}

// matcher builds a matcher from the loaded configuration.
func (r *Runner) matcher() (*match.Matcher, error) {
	if err := r.config.ValidateMatching(); err != nil {
		return nil, err
	}
	m := r.config.Matching
	return match.New(match.Config{
		TitleWeight:     m.TitleWeight,
		ArtistWeight:    m.ArtistWeight,
		DurationWeight:  m.DurationWeight,
		FeaturedWeight:  m.FeaturedWeight,
		AcceptThreshold: m.AcceptThreshold,
		TieMargin:       m.TieMargin,
	})
}

// engine assembles a sync engine for the given direction.
func (r *Runner) engine(source, dest services.Adapter) (*tasks.Engine, error) {
	if err := r.config.ValidateSync(); err != nil {
		return nil, err
	}
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	matcher, err := r.matcher()
	if err != nil {
		return nil, err
	}
	return tasks.NewEngine(tasks.EngineOptions{
		Source:      source,
		Dest:        dest,
		Matcher:     matcher,
		History:     repositories.NewSyncRecordRepository(db),
		Cache:       repositories.NewTrackCacheAdapter(repositories.NewTrackRepository(db)),
		Logger:      r.logger,
		Sync:        r.config.Sync,
		SearchLimit: r.config.Matching.SearchLimit,
	})
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, syncCommand, matchCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
