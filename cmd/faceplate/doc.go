// Package main hosts the faceplate CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: lifecycle control, playback commands, idle detection,
// play history, and log tailing. Configuration resolution and socket
// discovery live in the shared command context so subcommands only deal with
// presentation.
package main
