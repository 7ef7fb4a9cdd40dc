package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"faceplate/internal/daemonctl"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn", "warning":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	meta := statusKinds[kind]
	statusText := "[" + meta.label + "]"
	if message != "" {
		statusText += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize && meta.color != "" {
		return meta.color + line + ansiReset
	}
	return line
}

func renderValueLine(label, value string) string {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	return fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", value)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// renderStatusSnapshot prints the system checks followed by the now-playing
// and idle sections when the daemon is running.
func renderStatusSnapshot(w io.Writer, snapshot *daemonctl.StatusSnapshot, colorize bool) {
	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range snapshot.SystemChecks {
		fmt.Fprintln(w, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	if !snapshot.Running {
		return
	}

	fmt.Fprintln(w)
	for _, line := range renderSectionHeader("Now Playing", colorize) {
		fmt.Fprintln(w, line)
	}
	disp := snapshot.Display
	fmt.Fprintln(w, renderValueLine("State", disp.State))
	fmt.Fprintln(w, renderValueLine("Track", disp.Track))
	fmt.Fprintln(w, renderValueLine("Position", disp.Seek))
	if disp.Volume != nil {
		fmt.Fprintln(w, renderValueLine("Volume", fmt.Sprint(disp.Volume)))
	}
	fmt.Fprintln(w, renderValueLine("Quality", disp.Encoding))

	fmt.Fprintln(w)
	for _, line := range renderSectionHeader("Idle Detection", colorize) {
		fmt.Fprintln(w, line)
	}
	idle := snapshot.Idle
	switch {
	case idle.Idle:
		fmt.Fprintln(w, renderStatusLine("Idle", statusWarn, "Player idle", colorize))
	case idle.Armed:
		remaining := time.Until(idle.Deadline).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		fmt.Fprintln(w, renderStatusLine("Idle", statusOK, fmt.Sprintf("Armed (%s timeout, %s remaining)", idle.Timeout, remaining), colorize))
	default:
		fmt.Fprintln(w, renderStatusLine("Idle", statusInfo, "Disarmed", colorize))
	}
	fmt.Fprintln(w, renderValueLine("Session", snapshot.SessionID))
	fmt.Fprintln(w, renderValueLine("Plays recorded", fmt.Sprint(snapshot.HistoryCount)))
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
