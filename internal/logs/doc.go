// Package logs reads the daemon's console log file directly so `faceplate
// logs` keeps working while the daemon is down.
//
// Reads consume whole lines only and report the byte offset after the last
// newline, so a follower never prints a half-written line. Following re-opens
// the path on every poll; when faceplate.log is re-pointed at a new run file
// that is shorter than the saved offset, reading restarts from the top.
package logs
