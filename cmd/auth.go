package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/shared"
)

// AuthSpotify runs the OAuth2 authorization-code flow against Spotify.
//
// Starts a loopback callback server, opens the authorization URL in the
// browser, and persists the exchanged token.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify credentials not configured", shared.ErrMissingCredentials)
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(r.spotify.OAuthConfig(), state)

	callback := server.NewCallback(r.config.Server, r.logger)
	callback.Register(handler)
	if err := callback.Start(); err != nil {
		return err
	}
	defer callback.Shutdown(ctx)

	authURL := r.spotify.GetAuthURL(state)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	} else {
		r.logger.Info("opening browser for authorization")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			r.writePlain("Open this URL to authorize:\n%s\n", authURL)
		}
	}

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := result.Error(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	r.spotify.SetToken(ctx, result.Token)

	if err := saveSpotifyToken(result.Token); err != nil {
		r.logger.Warn("failed to persist token", "error", err)
	} else {
		r.logger.Info("token saved")
	}

	return r.writePlain("✓ Spotify authentication successful\n")
}

// AuthYouTube verifies the proxy accepts the configured headers file.
func (r *Runner) AuthYouTube(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	headersPath := cmd.String("headers")
	if headersPath == "" {
		headersPath = r.config.Credentials.YouTube.HeadersPath
	}
	if headersPath == "" {
		return fmt.Errorf("%w: no headers file; run 'setup youtube' first", shared.ErrMissingCredentials)
	}

	if _, err := os.Stat(headersPath); err != nil {
		return fmt.Errorf("%w: headers file %s not found", shared.ErrMissingCredentials, headersPath)
	}

	if err := r.youtube.Authenticate(ctx, map[string]string{"auth_file": headersPath}); err != nil {
		return err
	}

	if _, err := r.youtube.ListPlaylists(ctx); err != nil {
		return fmt.Errorf("%w: proxy rejected headers: %v", shared.ErrAuthFailed, err)
	}

	return r.writePlain("✓ YouTube Music authentication successful\n")
}

func tokenFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".tunesync", "spotify_token.json"), nil
}

func saveSpotifyToken(token *oauth2.Token) error {
	path, err := tokenFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func loadSpotifyToken() (*oauth2.Token, error) {
	path, err := tokenFilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &token, nil
}
