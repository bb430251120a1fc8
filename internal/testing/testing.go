// package testing contains shared test doubles for the sync engine.
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
	"github.com/desertthunder/tunesync/internal/services"
)

// MockAdapter is a scriptable test double for [services.Adapter].
// Search results are keyed by canonical title; AddTracks calls are
// recorded for assertions.
type MockAdapter struct {
	Platform  string
	Playlists []models.Playlist
	// Tracks maps playlist ID to its contents.
	Tracks map[string][]models.Track
	// SearchResults maps a canonical query title to the candidate pool.
	SearchResults map[string][]models.Track
	// SearchErr, when set, fails every SearchTracks call. SearchErrs
	// fails per-title and wins over SearchErr for listed titles.
	SearchErr  error
	SearchErrs map[string]error
	// FailSearches fails the first N searches for a title before
	// succeeding, keyed by canonical title.
	FailSearches map[string]int
	TransientErr error
	// AddErr, when set, fails every AddTracks call.
	AddErr error
	// Duplicates lists destination track IDs AddTracks reports as
	// already present.
	Duplicates []string
	CreatedID  string

	mu          sync.Mutex
	addCalls    [][]string
	searchCount map[string]int
}

func (m *MockAdapter) Name() string {
	if m.Platform == "" {
		return "mock"
	}
	return m.Platform
}

func (m *MockAdapter) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}

func (m *MockAdapter) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	return m.Playlists, nil
}

func (m *MockAdapter) ListTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	return m.Tracks[playlistID], nil
}

func (m *MockAdapter) SearchTracks(ctx context.Context, query normalize.Canonical, limit int) ([]models.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.SearchErrs[query.Title]; ok {
		return nil, err
	}
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if remaining, ok := m.FailSearches[query.Title]; ok && remaining > 0 {
		m.FailSearches[query.Title] = remaining - 1
		return nil, m.TransientErr
	}
	if m.searchCount == nil {
		m.searchCount = make(map[string]int)
	}
	m.searchCount[query.Title]++
	pool := m.SearchResults[query.Title]
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (m *MockAdapter) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (*services.AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return nil, m.AddErr
	}
	m.addCalls = append(m.addCalls, append([]string(nil), trackIDs...))
	res := &services.AddResult{}
	dup := make(map[string]bool, len(m.Duplicates))
	for _, id := range m.Duplicates {
		dup[id] = true
	}
	for _, id := range trackIDs {
		if dup[id] {
			res.AlreadyPresent = append(res.AlreadyPresent, id)
		} else {
			res.Added = append(res.Added, id)
		}
	}
	return res, nil
}

func (m *MockAdapter) CreatePlaylist(ctx context.Context, name string) (string, error) {
	if m.CreatedID != "" {
		return m.CreatedID, nil
	}
	return "created-" + name, nil
}

// AddCalls returns a copy of every recorded AddTracks invocation.
func (m *MockAdapter) AddCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([][]string, len(m.addCalls))
	copy(calls, m.addCalls)
	return calls
}

// SearchCount returns how many successful searches ran for a title.
func (m *MockAdapter) SearchCount(title string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCount[title]
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
}
