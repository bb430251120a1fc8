// YouTube Music [Adapter] implementation
//
// Communicates with the FastAPI proxy wrapping the ytmusicapi Python library.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
	"github.com/desertthunder/tunesync/internal/shared"
)

const (
	defaultYTBaseURL = "http://localhost:8080"

	// PlatformYouTube is the canonical platform name used in sync keys.
	PlatformYouTube = "youtube"
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	DurationSec int             `json:"duration_seconds"`
}

// YouTubeAdapter implements [Adapter] against the ytmusicapi proxy.
type YouTubeAdapter struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
}

// NewYouTubeAdapter creates a new YouTube Music adapter.
func NewYouTubeAdapter(baseURL string) *YouTubeAdapter {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	return &YouTubeAdapter{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// Name returns the platform name used in sync keys.
func (y *YouTubeAdapter) Name() string {
	return PlatformYouTube
}

// Authenticate stores the headers file path for subsequent requests.
//
// Expects credentials["auth_file"] to contain the path to browser.json.
func (y *YouTubeAdapter) Authenticate(ctx context.Context, credentials map[string]string) error {
	authFile, ok := credentials["auth_file"]
	if !ok || authFile == "" {
		return fmt.Errorf("%w: missing auth_file", shared.ErrMissingCredentials)
	}

	y.authFile = authFile
	return nil
}

func (y *YouTubeAdapter) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	apiURL := y.baseURL + endpoint

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

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(PlatformYouTube, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPStatus(PlatformYouTube, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode youtube response: %v", shared.ErrMalformedResponse, err)
		}
	}

	return nil
}

// ListPlaylists retrieves all library playlists.
//
// Calls GET /api/library/playlists on the proxy.
func (y *YouTubeAdapter) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var ytPlaylists []struct {
		PlaylistID  string `json:"playlistId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Privacy     string `json:"privacy"`
		Count       int    `json:"count"`
	}

	if err := y.doRequest(ctx, http.MethodGet, "/api/library/playlists", nil, &ytPlaylists); err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, len(ytPlaylists))
	for i, ytp := range ytPlaylists {
		playlists[i] = models.Playlist{
			ID:          ytp.PlaylistID,
			Name:        ytp.Title,
			Description: ytp.Description,
			TrackCount:  ytp.Count,
			Public:      ytp.Privacy == "PUBLIC",
		}
	}

	return playlists, nil
}

// ListTracks retrieves every track in a playlist.
//
// Calls GET /api/playlists/{id} on the proxy; the proxy flattens pagination.
func (y *YouTubeAdapter) ListTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var ytPlaylist struct {
		ID     string         `json:"id"`
		Tracks []YouTubeTrack `json:"tracks"`
	}

	endpoint := fmt.Sprintf("/api/playlists/%s", playlistID)
	if err := y.doRequest(ctx, http.MethodGet, endpoint, nil, &ytPlaylist); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(ytPlaylist.Tracks))
	for _, ytt := range ytPlaylist.Tracks {
		if ytt.VideoID == "" {
			continue
		}
		tracks = append(tracks, convertYouTubeTrack(ytt))
	}

	return tracks, nil
}

// SearchTracks runs a songs-filtered search for the canonical query.
//
// Calls GET /api/search on the proxy.
func (y *YouTubeAdapter) SearchTracks(ctx context.Context, query normalize.Canonical, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("/api/search?q=%s&filter=songs&limit=%d", url.QueryEscape(query.SearchQuery()), limit)

	var results []YouTubeTrack
	if err := y.doRequest(ctx, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(results))
	for _, ytt := range results {
		if ytt.VideoID == "" {
			continue
		}
		tracks = append(tracks, convertYouTubeTrack(ytt))
	}

	return tracks, nil
}

// AddTracks adds videos to a playlist.
//
// Calls POST /api/playlists/{id}/items; the proxy reports duplicates the way
// ytmusicapi does, which maps onto AddResult.AlreadyPresent.
func (y *YouTubeAdapter) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (*AddResult, error) {
	endpoint := fmt.Sprintf("/api/playlists/%s/items", playlistID)
	body := map[string]any{"videoIds": trackIDs}

	var resp struct {
		Status     string   `json:"status"`
		Added      []string `json:"added"`
		Duplicates []string `json:"duplicates"`
	}
	if err := y.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}

	result := &AddResult{
		Added:          resp.Added,
		AlreadyPresent: resp.Duplicates,
	}

	// Older proxy builds only return a status string.
	if len(result.Added) == 0 && len(result.AlreadyPresent) == 0 && resp.Status == "STATUS_SUCCEEDED" {
		result.Added = trackIDs
	}

	return result, nil
}

// CreatePlaylist creates a private playlist.
//
// Calls POST /api/playlists on the proxy.
func (y *YouTubeAdapter) CreatePlaylist(ctx context.Context, name string) (string, error) {
	body := map[string]any{"title": name, "privacy": "PRIVATE"}

	var resp struct {
		PlaylistID string `json:"playlistId"`
	}
	if err := y.doRequest(ctx, http.MethodPost, "/api/playlists", body, &resp); err != nil {
		return "", err
	}

	if resp.PlaylistID == "" {
		return "", fmt.Errorf("%w: playlist create returned no id", shared.ErrMalformedResponse)
	}

	return resp.PlaylistID, nil
}

func convertYouTubeTrack(t YouTubeTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}

	album := ""
	if t.Album != nil {
		album = t.Album.Name
	}

	return models.Track{
		ID:       t.VideoID,
		Title:    t.Title,
		Artists:  artists,
		Album:    album,
		Duration: t.DurationSec,
	}
}
