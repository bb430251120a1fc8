// Spotify API implementation of [Adapter]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// PlatformSpotify is the canonical platform name used in sync keys.
	PlatformSpotify = "spotify"
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifyExternalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Artists     []SpotifyArtist    `json:"artists"`
	Album       SpotifyAlbum       `json:"album"`
	DurationMS  int                `json:"duration_ms"`
	ExternalIDs spotifyExternalIDs `json:"external_ids"`
	URI         string             `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyPlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a playlist in list responses.
type SpotifySimplePlaylist struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Public      bool                  `json:"public"`
	Tracks      spotifyPlaylistTracks `json:"tracks"`
}

type spotifyPaginatedPlaylists struct {
	Items []SpotifySimplePlaylist `json:"items"`
	Next  *string                 `json:"next"`
}

type spotifyPlaylistItem struct {
	Track SpotifyTrack `json:"track"`
}

type spotifyPaginatedItems struct {
	Items []spotifyPlaylistItem `json:"items"`
	Next  *string               `json:"next"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyAdapter implements [Adapter] against the Spotify Web API using
// [oauth2] for authentication.
type SpotifyAdapter struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	userID     string
}

// NewSpotifyAdapter creates a Spotify adapter with the given OAuth2 credentials.
func NewSpotifyAdapter(credentials map[string]string) (*SpotifyAdapter, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyAdapter{
		config:     config,
		httpClient: http.DefaultClient,
	}, nil
}

// Name returns the platform name used in sync keys.
func (s *SpotifyAdapter) Name() string {
	return PlatformSpotify
}

// Authenticate performs OAuth2 authentication. Expects either an
// "access_token" or "auth_code" in credentials.
func (s *SpotifyAdapter) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.token = &oauth2.Token{AccessToken: accessToken}
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		s.token = token
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyAdapter) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig exposes the adapter's OAuth2 configuration for loopback
// callback flows.
func (s *SpotifyAdapter) OAuthConfig() *oauth2.Config {
	return s.config
}

// SetToken installs an already-exchanged token.
func (s *SpotifyAdapter) SetToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyAdapter) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = spotifyBaseURL + endpoint
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(PlatformSpotify, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPStatus(PlatformSpotify, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode spotify response: %v", shared.ErrMalformedResponse, err)
		}
	}

	return nil
}

// ListPlaylists retrieves all of the user's playlists, following pagination.
func (s *SpotifyAdapter) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	endpoint := "/me/playlists?limit=50"

	for endpoint != "" {
		var page spotifyPaginatedPlaylists
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			playlists = append(playlists, models.Playlist{
				ID:          item.ID,
				Name:        item.Name,
				Description: item.Description,
				TrackCount:  item.Tracks.Total,
				Public:      item.Public,
			})
		}

		if page.Next == nil {
			break
		}
		endpoint = *page.Next
	}

	return playlists, nil
}

// ListTracks retrieves every track in a playlist as one flattened sequence.
func (s *SpotifyAdapter) ListTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=100", playlistID)

	for endpoint != "" {
		var page spotifyPaginatedItems
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			// Local files and removed tracks come back with empty IDs.
			if item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, convertSpotifyTrack(item.Track))
		}

		if page.Next == nil {
			break
		}
		endpoint = *page.Next
	}

	return tracks, nil
}

// SearchTracks runs a track search for the canonical query.
func (s *SpotifyAdapter) SearchTracks(ctx context.Context, query normalize.Canonical, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query.SearchQuery()), limit)

	var resp spotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		tracks = append(tracks, convertSpotifyTrack(item))
	}

	return tracks, nil
}

// AddTracks adds tracks to a playlist. Spotify does not report duplicates on
// add, so the current playlist contents decide what counts as already present.
func (s *SpotifyAdapter) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (*AddResult, error) {
	existing, err := s.ListTracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(existing))
	for _, track := range existing {
		present[track.ID] = struct{}{}
	}

	result := &AddResult{}
	var uris []string
	for _, id := range trackIDs {
		if _, ok := present[id]; ok {
			result.AlreadyPresent = append(result.AlreadyPresent, id)
			continue
		}
		uris = append(uris, "spotify:track:"+id)
		result.Added = append(result.Added, id)
	}

	// Spotify caps a single add request at 100 URIs.
	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	for len(uris) > 0 {
		batch := uris
		if len(batch) > 100 {
			batch = batch[:100]
		}
		uris = uris[len(batch):]

		body := map[string]any{"uris": batch}
		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// CreatePlaylist creates a private playlist for the authenticated user.
func (s *SpotifyAdapter) CreatePlaylist(ctx context.Context, name string) (string, error) {
	if s.userID == "" {
		var user SpotifyUser
		if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
			return "", err
		}
		s.userID = user.ID
	}

	var created struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("/users/%s/playlists", s.userID)
	body := map[string]any{"name": name, "public": false}
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}

	if created.ID == "" {
		return "", fmt.Errorf("%w: playlist create returned no id", shared.ErrMalformedResponse)
	}

	return created.ID, nil
}

func convertSpotifyTrack(t SpotifyTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}

	return models.Track{
		ID:       t.ID,
		Title:    t.Name,
		Artists:  artists,
		Album:    t.Album.Name,
		Duration: t.DurationMS / 1000,
	}
}
