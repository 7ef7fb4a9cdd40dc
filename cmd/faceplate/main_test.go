package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"faceplate/internal/config"
	"faceplate/internal/daemon"
	"faceplate/internal/daemonctl"
	"faceplate/internal/ipc"
	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
	"faceplate/internal/testsupport"
)

type cliSource struct{}

func (cliSource) FetchState(context.Context) (playerstate.Snapshot, error) {
	return playerstate.Snapshot{
		{Field: "status", Value: "play"},
		{Field: "title", Value: "Naima"},
		{Field: "artist", Value: "John Coltrane"},
		{Field: "seek", Value: float64(61000)},
		{Field: "duration", Value: float64(261)},
		{Field: "volume", Value: float64(40)},
	}, nil
}

func (cliSource) FetchQueueInfo(context.Context) (playerstate.Snapshot, bool, error) {
	return nil, false, nil
}

type cliCommander struct {
	mu      sync.Mutex
	sent    []string
	volumes []int
}

func (c *cliCommander) Send(_ context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, cmd)
	return nil
}

func (c *cliCommander) SetVolume(_ context.Context, volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = append(c.volumes, volume)
	return nil
}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	commander  *cliCommander
	hub        *logging.StreamHub
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenHistory(t, cfg)
	commander := &cliCommander{}
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Dependencies{
		Store:     store,
		Source:    cliSource{},
		Commander: commander,
		SessionID: "cli-session",
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	hub := logging.NewStreamHub(16)
	hub.Publish(logging.LogEvent{Timestamp: time.Now(), Level: "info", Component: "panel", Message: "panel connected"})
	hub.Publish(logging.LogEvent{Timestamp: time.Now(), Level: "warn", Component: "knob", Message: "adc not detected", Fields: map[string]string{"device": "/dev/spidev0.0"}})

	dir, err := os.MkdirTemp("", "fp-cli")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	socketPath := filepath.Join(dir, "cli.sock")
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop(), ipc.LogSource{Hub: hub})
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		_ = os.RemoveAll(dir)
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		commander:  commander,
		hub:        hub,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	waitForTrack(t, env.daemon, "Naima - John Coltrane")

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"System Status", "Faceplate:", "Running", "Now Playing", "Naima - John Coltrane", "Disabled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snapshot daemonctl.StatusSnapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !snapshot.Reachable || !snapshot.Running || snapshot.SessionID != "cli-session" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestCLIPlaybackCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"player", "next"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("player next: %v", err)
	}
	if !strings.Contains(out, "Sent next") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, _, err := runCLI(t, []string{"player", "send", "sudo reboot"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("player send: %v", err)
	}

	out, _, err = runCLI(t, []string{"player", "volume", "55"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("player volume: %v", err)
	}
	if !strings.Contains(out, "Volume set to 55") {
		t.Fatalf("unexpected volume output %q", out)
	}
	for _, bad := range []string{"150", "-1", "loud"} {
		if _, _, err := runCLI(t, []string{"player", "volume", "--", bad}, env.socketPath, env.configPath); err == nil {
			t.Fatalf("expected volume %q to be rejected", bad)
		}
	}

	env.commander.mu.Lock()
	defer env.commander.mu.Unlock()
	if len(env.commander.sent) != 2 || env.commander.sent[0] != "next" || env.commander.sent[1] != "sudo reboot" {
		t.Fatalf("commander sent %v", env.commander.sent)
	}
	if len(env.commander.volumes) != 1 || env.commander.volumes[0] != 55 {
		t.Fatalf("commander volumes %v", env.commander.volumes)
	}
}

func TestCLIIdleCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"idle", "arm", "--timeout", "45s"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("idle arm: %v", err)
	}
	if !strings.Contains(out, "armed (timeout 45s)") {
		t.Fatalf("unexpected arm output %q", out)
	}
	out, _, err = runCLI(t, []string{"idle", "disarm"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("idle disarm: %v", err)
	}
	if !strings.Contains(out, "disarmed") {
		t.Fatalf("unexpected disarm output %q", out)
	}
	if env.daemon.Engine().Idle().Armed {
		t.Fatal("expected idle detection disarmed")
	}
}

func TestCLIHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	deadline := time.Now().Add(3 * time.Second)
	for {
		out, _, err := runCLI(t, []string{"history", "-n", "5"}, env.socketPath, env.configPath)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if strings.Contains(out, "Naima - John Coltrane") {
			if !strings.Contains(out, "play") {
				t.Fatalf("history output missing state: %q", out)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history never listed the play: %q", out)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, _, err := runCLI(t, []string{"history", "-n", "0"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected non-positive limit to fail")
	}
}

func TestCLILogs(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"logs", "-n", "5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "[panel] panel connected") || !strings.Contains(out, "device=/dev/spidev0.0") {
		t.Fatalf("unexpected logs output %q", out)
	}

	out, _, err = runCLI(t, []string{"logs", "--component", "knob"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs --component: %v", err)
	}
	if strings.Contains(out, "panel connected") || !strings.Contains(out, "adc not detected") {
		t.Fatalf("component filter not applied: %q", out)
	}
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected test-notify output %q", out)
	}
}

func TestCLIConfigCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "path"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != env.configPath {
		t.Fatalf("config path = %q, want %q", strings.TrimSpace(out), env.configPath)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output %q", out)
	}

	target := filepath.Join(t.TempDir(), "nested", "faceplate.toml")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, ""); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, env.socketPath, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestCLIReportsMissingDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(t.TempDir(), "missing.sock")

	_, _, err := runCLI(t, []string{"player", "play"}, socket, configPath)
	if err == nil || !strings.Contains(err.Error(), "faceplate start") {
		t.Fatalf("expected hint to start the daemon, got %v", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	logFile := filepath.Join(cfg.Paths.LogDir, "faceplate.log")
	if err := os.WriteFile(logFile, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, errOut, err := runCLI(t, []string{"logs", "-n", "2"}, socket, configPath)
	if err != nil {
		t.Fatalf("offline logs: %v", err)
	}
	if out != "second\nthird\n" || !strings.Contains(errOut, logFile) {
		t.Fatalf("unexpected offline logs stdout=%q stderr=%q", out, errOut)
	}

	out, _, err = runCLI(t, []string{"stop"}, socket, configPath)
	if err != nil {
		t.Fatalf("stop without daemon: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("unexpected stop output %q", out)
	}
}

func TestFormatLogEvent(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 15, 0, time.Local)
	got := formatLogEvent(logging.LogEvent{
		Timestamp: ts,
		Level:     "warn",
		Component: "daemon",
		Message:   "player unreachable",
		Fields:    map[string]string{"polls": "3", "error": "timeout"},
	})
	want := "12:30:15 WARN  [daemon] player unreachable error=timeout polls=3"
	if got != want {
		t.Fatalf("formatLogEvent = %q, want %q", got, want)
	}
}

func waitForTrack(t *testing.T, d *daemon.Daemon, track string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if d.Status(context.Background()).Display.Track == track {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("display never showed %q", track)
}
