// Package daemon coordinates the long-running faceplate process.
//
// It wires the Volumio poller, the change detection engine, the display
// model, play history, notifications, and the front panel hardware into a
// single lifecycle with flock-based locking to prevent multiple instances.
// A udev netlink monitor reopens the panel expander or the knob ADC when
// their device nodes reappear.
//
// Keep orchestration logic here: change detection lives in playerstate and
// hardware handling in panel and knob, while the daemon focuses on startup,
// shutdown, and the operations exposed over IPC.
package daemon
