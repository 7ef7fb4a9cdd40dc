// Package volumio talks to the Volumio player.
//
// Client wraps the REST API: getState and getQueue feed snapshots to the
// player-state engine and the commands endpoint drives playback. Poller runs
// the fetch loop, polling quickly while music plays and slowing down
// otherwise. CLI sends the same commands through the volumio binary that
// ships on the player image, which is how panel buttons behave on device.
//
// Both Client and CLI satisfy Commander so callers pick a transport from
// config without caring which one they got.
package volumio
