// package services defines the platform Adapter contract and its two
// implementations: Spotify (direct Web API) and YouTube Music (via the
// ytmusicapi proxy).
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
	"github.com/desertthunder/tunesync/internal/shared"
)

// Adapter is the uniform capability surface the orchestrator consumes.
// One implementation exists per platform; the orchestrator never depends on
// platform specifics beyond this contract.
type Adapter interface {
	// Name returns the platform name (e.g., "spotify", "youtube").
	Name() string

	// Authenticate performs OAuth or header-file authentication.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// ListPlaylists retrieves all playlists for the authenticated user.
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)

	// ListTracks retrieves every track in a playlist. Pagination is handled
	// internally; callers see one flattened sequence in playlist order.
	ListTracks(ctx context.Context, playlistID string) ([]models.Track, error)

	// SearchTracks runs a platform search for the canonical query and
	// returns up to limit raw tracks. The platform's relevance order is
	// preserved but callers treat the result as an unordered pool.
	SearchTracks(ctx context.Context, query normalize.Canonical, limit int) ([]models.Track, error)

	// AddTracks adds tracks to a playlist, reporting which IDs were added
	// and which the platform already had in the playlist.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) (*AddResult, error)

	// CreatePlaylist creates an empty playlist and returns its ID.
	CreatePlaylist(ctx context.Context, name string) (string, error)
}

// AddResult reports the outcome of an AddTracks call per track ID.
type AddResult struct {
	Added          []string
	AlreadyPresent []string
}

// classifyHTTPStatus maps API status codes onto the shared error taxonomy so
// the orchestrator can branch on transient/auth/data failures uniformly.
func classifyHTTPStatus(platform string, status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned 429", shared.ErrRateLimited, platform)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned 401", shared.ErrTokenExpired, platform)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned 403", shared.ErrAuthFailed, platform)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s returned 404", shared.ErrPlaylistNotFound, platform)
	case status >= 500:
		return fmt.Errorf("%w: %s returned %d", shared.ErrAPIRequest, platform, status)
	default:
		return fmt.Errorf("%w: %s returned %d", shared.ErrAPIRequest, platform, status)
	}
}

// classifyTransportError wraps network-level failures: timeouts become the
// transient sentinel, everything else a generic API failure.
func classifyTransportError(platform string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s request deadline exceeded", shared.ErrTimeout, platform)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s request timed out", shared.ErrTimeout, platform)
	}
	return fmt.Errorf("%w: %s request failed: %v", shared.ErrAPIRequest, platform, err)
}
