package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var spotify *services.SpotifyAdapter
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if adapter, err := services.NewSpotifyAdapter(map[string]string{
			"client_id":     config.Credentials.Spotify.ClientID,
			"client_secret": config.Credentials.Spotify.ClientSecret,
			"redirect_uri":  config.Credentials.Spotify.RedirectURI,
		}); err == nil {
			spotify = adapter
			if token, err := loadSpotifyToken(); err == nil {
				spotify.SetToken(context.Background(), token)
			}
		}
	}

	youtube := services.NewYouTubeAdapter(config.Credentials.YouTube.ProxyURL)
	if path := config.Credentials.YouTube.HeadersPath; path != "" {
		_ = youtube.Authenticate(context.Background(), map[string]string{"auth_file": path})
	}

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Spotify: spotify,
		YouTube: youtube,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "tunesync",
		Usage:    "Sync playlists between Spotify & YouTube Music",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
