// Package tasks runs playlist sync jobs. A job walks a selection of
// source playlists, searches the destination platform for each track,
// scores the candidates, and records one outcome per track in the
// sync history so a re-run of the same job is a no-op for every track
// that already reached a terminal state.
package tasks
