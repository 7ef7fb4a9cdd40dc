package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"faceplate/internal/config"
	"faceplate/internal/deps"
	"faceplate/internal/hardware"
	"faceplate/internal/history"
	"faceplate/internal/ipc"
	"faceplate/internal/volumio"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	Verbose    bool
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts a detached faceplate daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one is already serving the socket.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && status.Running {
			return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
		}
		// A reachable but stopped daemon is on its way out.
		if err := WaitForShutdown(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return StartResult{}, fmt.Errorf("query launched daemon: %w", err)
	}
	if !status.Running {
		return StartResult{}, errors.New("daemon launched but not running; check faceplate logs")
	}
	return StartResult{State: StartStateStarted, Launched: true, PID: status.PID}, nil
}

// WaitForShutdown waits for daemon IPC to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// DeriveLogDir determines the daemon log directory from status and config hints.
func DeriveLogDir(lockPath string, cfg *config.Config) string {
	if lockPath != "" {
		return filepath.Dir(lockPath)
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		return cfg.Paths.LogDir
	}
	return ""
}

// SignalProcess sends sig to the daemon recorded in pidPath, falling back to
// fallbackPID when the file is missing.
func SignalProcess(pidPath string, fallbackPID int, sig syscall.Signal) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pidStr != "" {
			if parsed, parseErr := strconv.Atoi(pidStr); parseErr == nil && parsed > 0 {
				pid = parsed
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return pid, nil
		}
		return 0, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	Terminated       bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate requests a daemon stop over IPC. When the daemon is still
// reachable after gracePeriod it is sent SIGTERM, then SIGKILL.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var lockPath string
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil {
		lockPath = status.LockFilePath
		pid = status.PID
	}
	result := StopResult{PID: pid}
	if resp, stopErr := client.Stop(); stopErr == nil {
		result.StopAcknowledged = resp.Stopped
	}
	_ = client.Close()

	if result.StopAcknowledged && WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	logDir := DeriveLogDir(lockPath, cfg)
	if logDir == "" {
		return result, fmt.Errorf("unable to determine daemon log directory")
	}
	pidPath := filepath.Join(logDir, "faceplate.pid")
	termPID, err := SignalProcess(pidPath, pid, syscall.SIGTERM)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.Terminated = true
	result.PID = termPID
	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	if _, err := SignalProcess(pidPath, termPID, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("failed to kill daemon process: %w", err)
	}
	result.ForcedKill = true
	_ = os.Remove(pidPath)
	_ = os.Remove(filepath.Join(logDir, "faceplate.lock"))
	_ = os.Remove(socketPath)
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusLine is one labelled readiness check.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// StatusSnapshot combines the daemon's own report with config-derived checks.
type StatusSnapshot struct {
	ipc.StatusResponse
	Reachable    bool         `json:"reachable"`
	SystemChecks []StatusLine `json:"system_checks"`
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for player reachability and play history.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snapshot.StatusResponse = *resp
			snapshot.Reachable = true
		}
	}

	playerDetail := ""
	if !snapshot.Running {
		snapshot.Host = cfg.Volumio.Host
		snapshot.CommandMode = cfg.Volumio.CommandMode
		snapshot.IdleEnabled = cfg.Idle.Enabled
		playerDetail = probePlayer(ctx, cfg)
		if cfg.History.Enabled {
			snapshot.HistoryPath = cfg.HistoryPath()
			snapshot.HistoryCount = offlineHistoryCount(ctx, cfg)
		}
	}
	snapshot.SystemChecks = BuildSystemChecks(cfg, &snapshot.StatusResponse, playerDetail)
	return snapshot, nil
}

func probePlayer(ctx context.Context, cfg *config.Config) string {
	client, err := volumio.NewClient(cfg.Volumio.Host, 2*time.Second)
	if err != nil {
		return err.Error()
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		return err.Error()
	}
	return ""
}

func offlineHistoryCount(ctx context.Context, cfg *config.Config) int {
	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		return 0
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := history.Open(cfg)
	if err != nil {
		return 0
	}
	defer store.Close()
	count, err := store.Count(queryCtx)
	if err != nil {
		return 0
	}
	return count
}

// BuildSystemChecks resolves status lines that combine runtime state and
// config checks. playerProbe is the offline reachability error, if any.
func BuildSystemChecks(cfg *config.Config, status *ipc.StatusResponse, playerProbe string) []StatusLine {
	lines := make([]StatusLine, 0, 8)
	running := status != nil && status.Running
	if running {
		lines = append(lines, StatusLine{Label: "Faceplate", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
	} else {
		lines = append(lines, StatusLine{Label: "Faceplate", Severity: "warn", Detail: "Not running (run `faceplate start`)"})
	}

	switch {
	case running && status.Player.Healthy():
		lines = append(lines, StatusLine{Label: "Volumio", Severity: "ok", Detail: "Reachable at " + cfg.Volumio.Host})
	case running && status.Player.Polls == 0:
		lines = append(lines, StatusLine{Label: "Volumio", Severity: "info", Detail: "Waiting for first poll"})
	case running:
		lines = append(lines, StatusLine{Label: "Volumio", Severity: "error", Detail: status.Player.LastError})
	case playerProbe == "":
		lines = append(lines, StatusLine{Label: "Volumio", Severity: "ok", Detail: "Reachable at " + cfg.Volumio.Host})
	default:
		lines = append(lines, StatusLine{Label: "Volumio", Severity: "error", Detail: playerProbe})
	}

	for _, dep := range deps.Check(deps.Requirements(cfg)) {
		if dep.Kind != deps.KindBinary {
			continue
		}
		if dep.Available {
			lines = append(lines, StatusLine{Label: dep.Name, Severity: "ok", Detail: "Ready (command: " + dep.Target + ")"})
		} else {
			lines = append(lines, StatusLine{Label: dep.Name, Severity: "error", Detail: dep.Detail})
		}
	}

	lines = append(lines, hardwareLine("Panel", cfg.Panel.Enabled, hardware.I2CPath(cfg.Panel.I2CBus), running, panelPresent(status)))
	lines = append(lines, hardwareLine("Knob", cfg.Knob.Enabled, hardware.SPIPath(cfg.Knob.SPIBus, cfg.Knob.SPIDevice), running, knobPresent(status)))

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}

	switch {
	case running && status.Hotplug:
		lines = append(lines, StatusLine{Label: "Hotplug", Severity: "ok", Detail: "Netlink monitoring active"})
	case !running:
		lines = append(lines, StatusLine{Label: "Hotplug", Severity: "info", Detail: "Inactive (daemon not running)"})
	case !cfg.Panel.Enabled && !cfg.Knob.Enabled:
		lines = append(lines, StatusLine{Label: "Hotplug", Severity: "info", Detail: "No hardware enabled"})
	default:
		lines = append(lines, StatusLine{Label: "Hotplug", Severity: "warn", Detail: "Netlink unavailable (restart after reattaching hardware)"})
	}

	if cfg.History.Enabled {
		lines = append(lines, StatusLine{Label: "History", Severity: "ok", Detail: cfg.HistoryPath()})
	} else {
		lines = append(lines, StatusLine{Label: "History", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

func panelPresent(status *ipc.StatusResponse) *bool {
	if status == nil || status.Panel == nil {
		return nil
	}
	return &status.Panel.Present
}

func knobPresent(status *ipc.StatusResponse) *bool {
	if status == nil || status.Knob == nil {
		return nil
	}
	return &status.Knob.Present
}

func hardwareLine(label string, enabled bool, device string, running bool, present *bool) StatusLine {
	if !enabled {
		return StatusLine{Label: label, Severity: "info", Detail: "Disabled"}
	}
	if running && present != nil {
		if *present {
			return StatusLine{Label: label, Severity: "ok", Detail: "Connected on " + device}
		}
		return StatusLine{Label: label, Severity: "warn", Detail: "Not detected on " + device}
	}
	if _, err := os.Stat(device); err != nil {
		return StatusLine{Label: label, Severity: "warn", Detail: device + " missing"}
	}
	return StatusLine{Label: label, Severity: "ok", Detail: device + " present"}
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
