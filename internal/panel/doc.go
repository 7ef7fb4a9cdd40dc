// Package panel runs the front-panel button matrix, its LEDs, and the startup
// indicator.
//
// Panel scans a 4x2 key matrix on an MCP23017, turns released-to-pressed
// edges into player commands, and lights the LED for the last button used.
// The play and pause LEDs follow stateChange events from the player-state
// engine and are refreshed periodically so a glitched expander recovers.
// Missing hardware is logged once and retried when Reinit is called, which the
// daemon does on udev hotplug.
//
// Indicator lights a single LED on a second expander for a fixed window after
// boot.
package panel
