// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for playlist sync:
//  1. [PlaylistListView] : Browse and select a source playlist
//  2. [TrackListView] : Preview tracks before syncing
//  3. [ConfirmView] : Confirm the sync operation
//  4. [SyncView] : Monitor real-time progress events
//  5. [ResultView] : Display outcome counts
//
// The [Model] implements bubbletea's standard Init/Update/View pattern. Progress
// events flow through a channel from the sync engine, providing non-blocking
// status reporting while a job runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with
// contextual help displayed via charmbracelet/bubbles/help.
package ui
