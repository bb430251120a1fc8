// Package services implements the platform adapter boundary.
//
// The [Adapter] interface is the only surface the sync engine sees:
// list_playlists, list_tracks, search_tracks, add_tracks, create_playlist,
// plus authentication. Each implementation maps its platform's HTTP failures
// onto the shared sentinel taxonomy so the orchestrator can distinguish
// transient, auth, and data errors without knowing the platform.
package services
