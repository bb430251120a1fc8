// Package models defines the domain entities shared across the sync engine.
//
// Two categories of types live here:
//
// 1. Adapter data: lightweight value types returned by platform adapters
//   - [Track] : raw song metadata as a platform reported it
//   - [Playlist] : basic playlist metadata
//   - [PlaylistExport] : playlist plus its complete track listing
//
// 2. Persisted entities: database-backed records
//   - [SyncRecord] : the outcome of evaluating one source track against one
//     destination playlist, keyed by the (source service, source track,
//     destination service, destination playlist) compound key
//   - [PersistedTrack] : cached raw tracks for cross-run inspection
//
// Raw tracks are owned by the adapter that produced them and are never
// mutated after being returned.
package models
