// Package playerstate turns a continuously refreshed snapshot of the remote
// player's state into a de-duplicated stream of display-ready change events.
//
// The Engine owns the stored snapshot and diffs every delivery against it,
// dispatching changed fields through a per-field rule table that formats track
// strings and time codes, throttles seek updates, normalizes cover-art URLs and
// feeds the fixed-slot display lines. An idle timer driven by playback activity
// reports idleStart/idleStop transitions on the same stream.
//
// Listeners subscribe through the engine's Bus. Delivery is synchronous and in
// registration order; a listener that panics is logged and skipped so the rest
// still receive the event. All timer-driven work (seek settle, cover grace,
// idle countdown) runs through cancelable task handles and an injectable Clock,
// which keeps the package deterministic under test.
package playerstate
