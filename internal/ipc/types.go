package ipc

import (
	"time"

	"faceplate/internal/daemon"
	"faceplate/internal/history"
	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
)

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and player status.
type StatusResponse struct {
	daemon.Status
	PID int `json:"pid"`
}

// CommandRequest sends a playback command such as play or next.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse acknowledges a command.
type CommandResponse struct {
	Sent bool `json:"sent"`
}

// VolumeRequest sets the player volume in percent.
type VolumeRequest struct {
	Volume int `json:"volume"`
}

// VolumeResponse echoes the applied volume.
type VolumeResponse struct {
	Volume int `json:"volume"`
}

// IdleArmRequest arms idle detection. A zero timeout keeps the current one.
type IdleArmRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// IdleDisarmRequest disarms idle detection.
type IdleDisarmRequest struct{}

// IdleResponse reports the idle timer after a change.
type IdleResponse struct {
	Idle playerstate.IdleStatus `json:"idle"`
}

// Timeout returns the idle timeout as a duration.
func (r IdleArmRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// HistoryRequest lists recent plays.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains plays, newest first.
type HistoryResponse struct {
	Plays []history.Play `json:"plays"`
}

// LogTailRequest fetches log events newer than Since.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component,omitempty"`
}

// LogTailResponse returns log events and the sequence to resume from.
type LogTailResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
