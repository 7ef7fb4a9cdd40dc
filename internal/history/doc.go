// Package history records what the player played.
//
// Store persists one row per track change in SQLite (modernc.org/sqlite, WAL
// mode) with schema migrations embedded in the binary. Recorder subscribes to
// the player-state bus and writes a row for every trackChange, tagged with the
// playback state and file at that moment. The CLI reads rows back through the
// daemon for `faceplate history`.
package history
