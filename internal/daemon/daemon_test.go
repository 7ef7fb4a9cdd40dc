package daemon_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"faceplate/internal/config"
	"faceplate/internal/daemon"
	"faceplate/internal/hardware"
	"faceplate/internal/notifications"
	"faceplate/internal/playerstate"
	"faceplate/internal/testsupport"
)

type fakeSource struct {
	mu   sync.Mutex
	snap playerstate.Snapshot
	err  error
}

func (s *fakeSource) FetchState(context.Context) (playerstate.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *fakeSource) FetchQueueInfo(context.Context) (playerstate.Snapshot, bool, error) {
	return nil, false, nil
}

type fakeCommander struct {
	mu      sync.Mutex
	sent    []string
	volumes []int
	err     error
}

func (c *fakeCommander) Send(_ context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, cmd)
	return c.err
}

func (c *fakeCommander) SetVolume(_ context.Context, volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = append(c.volumes, volume)
	return c.err
}

type fakeNotifier struct {
	events chan notifications.Event
}

func (n *fakeNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	select {
	case n.events <- event:
	default:
	}
	return nil
}

func playingSnapshot() playerstate.Snapshot {
	return playerstate.Snapshot{
		{Field: "status", Value: "play"},
		{Field: "title", Value: "So What"},
		{Field: "artist", Value: "Miles Davis"},
		{Field: "album", Value: "Kind of Blue"},
		{Field: "seek", Value: float64(1000)},
		{Field: "duration", Value: float64(545)},
	}
}

func newDaemon(t *testing.T, cfg *config.Config, deps daemon.Dependencies) *daemon.Daemon {
	t.Helper()
	if deps.Source == nil {
		deps.Source = &fakeSource{snap: playingSnapshot()}
	}
	if deps.Commander == nil {
		deps.Commander = &fakeCommander{}
	}
	d, err := daemon.New(cfg, nil, deps)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d := newDaemon(t, cfg, daemon.Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.DaemonLockPath() {
		t.Fatalf("lock path = %q", status.LockFilePath)
	}
	if !status.IdleEnabled || !status.Idle.Armed {
		t.Fatalf("expected idle detection armed, got %+v", status.Idle)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.Status(ctx).Idle.Armed {
		t.Fatal("expected idle detection disarmed after stop")
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	first := newDaemon(t, cfg, daemon.Dependencies{})
	second := newDaemon(t, cfg, daemon.Dependencies{})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second start after release: %v", err)
	}
}

func TestDaemonPollsIntoDisplayAndHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenHistory(t, cfg)
	notifier := &fakeNotifier{events: make(chan notifications.Event, 8)}
	d := newDaemon(t, cfg, daemon.Dependencies{Store: store, Notifier: notifier, SessionID: "session-1"})

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := "So What - Miles Davis - Kind of Blue"
	waitFor(t, "display track", func() bool {
		return d.Status(ctx).Display.Track == want
	})
	waitFor(t, "history row", func() bool {
		plays, err := d.History(ctx, 10)
		return err == nil && len(plays) == 1
	})
	plays, _ := d.History(ctx, 10)
	if plays[0].Track != want || plays[0].SessionID != "session-1" {
		t.Fatalf("unexpected play %+v", plays[0])
	}

	select {
	case event := <-notifier.events:
		if event != notifications.EventTrackChanged {
			t.Fatalf("unexpected notification %q", event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected track notification")
	}

	status := d.Status(ctx)
	if status.Display.State != "play" {
		t.Fatalf("display state = %q", status.Display.State)
	}
	if !status.Player.Healthy() {
		t.Fatalf("expected healthy poller, got %+v", status.Player)
	}
	if status.HistoryPath != cfg.HistoryPath() || status.HistoryCount != 1 {
		t.Fatalf("history status = %q/%d", status.HistoryPath, status.HistoryCount)
	}
}

func TestDaemonUnreachablePlayerNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	notifier := &fakeNotifier{events: make(chan notifications.Event, 8)}
	source := &fakeSource{err: errors.New("connection refused")}
	d := newDaemon(t, cfg, daemon.Dependencies{Source: source, Notifier: notifier})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case event := <-notifier.events:
		if event != notifications.EventError {
			t.Fatalf("unexpected notification %q", event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected error notification")
	}
}

func TestDaemonCommands(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	commander := &fakeCommander{}
	d := newDaemon(t, cfg, daemon.Dependencies{Commander: commander})
	ctx := context.Background()

	if err := d.SendCommand(ctx, " next "); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := d.SendCommand(ctx, "  "); err == nil {
		t.Fatal("expected empty command to fail")
	}
	if err := d.SetVolume(ctx, 40); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if err := d.SetVolume(ctx, 101); err == nil {
		t.Fatal("expected out of range volume to fail")
	}
	commander.mu.Lock()
	defer commander.mu.Unlock()
	if len(commander.sent) != 1 || commander.sent[0] != "next" {
		t.Fatalf("sent = %v", commander.sent)
	}
	if len(commander.volumes) != 1 || commander.volumes[0] != 40 {
		t.Fatalf("volumes = %v", commander.volumes)
	}
}

func TestDaemonCommandFailurePropagates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.Dependencies{Commander: &fakeCommander{err: errors.New("boom")}})
	if err := d.SendCommand(context.Background(), "play"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected commander error, got %v", err)
	}
}

func TestDaemonIdleControls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.Dependencies{})

	status := d.ArmIdle(2 * time.Minute)
	if !status.Armed || status.Timeout != 2*time.Minute {
		t.Fatalf("armed status = %+v", status)
	}
	status = d.ArmIdle(0)
	if status.Timeout != cfg.IdleTimeout() {
		t.Fatalf("expected zero timeout to use idle.timeout_seconds (%v), got %v", cfg.IdleTimeout(), status.Timeout)
	}
	status = d.DisarmIdle()
	if status.Armed {
		t.Fatalf("expected disarmed, got %+v", status)
	}
}

func TestDaemonHistoryDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.Dependencies{})
	if _, err := d.History(context.Background(), 5); err == nil {
		t.Fatal("expected error without a history store")
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.Dependencies{})
	sent, message, err := d.TestNotification(context.Background())
	if err != nil || sent || message != "ntfy topic not configured" {
		t.Fatalf("TestNotification = %v, %q, %v", sent, message, err)
	}
}

func TestDaemonDrivesPanelHardware(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Panel.Enabled = true
	cfg.Panel.ScanIntervalMs = 10
	expander := hardware.NewFakeExpander()
	commander := &fakeCommander{}
	d := newDaemon(t, cfg, daemon.Dependencies{
		Commander:   commander,
		PanelOpener: func() (hardware.RegisterBus, error) { return expander, nil },
	})

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "panel present", func() bool {
		status := d.Status(ctx)
		return status.Panel != nil && status.Panel.Present
	})

	expander.Press(0, 1)
	waitFor(t, "button command", func() bool {
		commander.mu.Lock()
		defer commander.mu.Unlock()
		return len(commander.sent) > 0
	})
	commander.mu.Lock()
	first := commander.sent[0]
	commander.mu.Unlock()
	if want := cfg.Panel.Buttons["1"]; first != want {
		t.Fatalf("button command = %q, want %q", first, want)
	}
}
