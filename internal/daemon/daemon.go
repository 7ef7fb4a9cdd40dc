package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"faceplate/internal/config"
	"faceplate/internal/display"
	"faceplate/internal/hardware"
	"faceplate/internal/history"
	"faceplate/internal/knob"
	"faceplate/internal/logging"
	"faceplate/internal/notifications"
	"faceplate/internal/panel"
	"faceplate/internal/playerstate"
	"faceplate/internal/volumio"
)

const notifyTimeout = 15 * time.Second

// Dependencies carries optional collaborators. Zero values are replaced with
// the production implementations derived from the config.
type Dependencies struct {
	Store           *history.Store
	Notifier        notifications.Service
	Source          volumio.Source
	Commander       volumio.Commander
	PanelOpener     panel.Opener
	IndicatorOpener panel.Opener
	KnobOpener      knob.Opener
	Clock           playerstate.Clock
	SessionID       string
}

// Daemon coordinates polling, change detection, and the front panel hardware,
// and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *history.Store
	notifier  notifications.Service
	commander volumio.Commander
	sessionID string

	engine    *playerstate.Engine
	screen    *display.Model
	poller    *volumio.Poller
	panel     *panel.Panel
	knob      *knob.Knob
	indicator *panel.Indicator
	monitor   *hotplugMonitor

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	LockFilePath string                 `json:"lock_file"`
	SessionID    string                 `json:"session_id,omitempty"`
	Host         string                 `json:"host"`
	CommandMode  string                 `json:"command_mode"`
	Player       volumio.Health         `json:"player"`
	Display      display.Snapshot       `json:"display"`
	IdleEnabled  bool                   `json:"idle_enabled"`
	Idle         playerstate.IdleStatus `json:"idle"`
	Panel        *panel.Status          `json:"panel,omitempty"`
	Knob         *knob.Status           `json:"knob,omitempty"`
	Hotplug      bool                   `json:"hotplug"`
	HistoryPath  string                 `json:"history_path,omitempty"`
	HistoryCount int                    `json:"history_count"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		notifier:  deps.Notifier,
		sessionID: deps.SessionID,
		lockPath:  cfg.DaemonLockPath(),
		lock:      flock.New(cfg.DaemonLockPath()),
		stopped:   make(chan struct{}),
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}

	client, err := volumio.NewClient(cfg.Volumio.Host, cfg.VolumioTimeout())
	if err != nil {
		return nil, fmt.Errorf("volumio client: %w", err)
	}
	source := deps.Source
	if source == nil {
		source = client
	}
	d.commander = deps.Commander
	if d.commander == nil {
		d.commander = volumio.NewCommander(cfg, client, volumio.ExecRunner{}, logger)
	}

	d.engine = playerstate.New(playerstate.Options{
		Host:         cfg.Volumio.Host,
		SeekThrottle: config.Millis(cfg.Engine.SeekThrottleMs),
		SeekSettle:   config.Millis(cfg.Engine.SeekSettleMs),
		CoverGrace:   config.Millis(cfg.Engine.CoverGraceMs),
		IdleTimeout:  cfg.IdleTimeout(),
		Clock:        deps.Clock,
		Logger:       logger,
	})
	bus := d.engine.Bus()

	d.screen = display.New(logger)
	d.screen.Attach(bus)
	if d.store != nil {
		history.NewRecorder(d.store, d.engine, d.sessionID, logger, nil).Attach(bus)
	}
	bus.Subscribe(playerstate.EventTrackChange, d.onTrackChange)
	bus.Subscribe(playerstate.EventIdleStart, d.onIdleStart)

	playing, idle := cfg.PollIntervals()
	d.poller = volumio.NewPoller(source, d.engine, volumio.PollerOptions{
		Playing:       playing,
		Idle:          idle,
		Logger:        logger,
		OnUnreachable: d.onUnreachable,
	})

	var targets []hotplugTarget
	if cfg.Panel.Enabled {
		buttons, err := panel.ParseButtons(cfg.Panel.Buttons)
		if err != nil {
			return nil, err
		}
		open := deps.PanelOpener
		if open == nil {
			open = i2cOpener(cfg.Panel.I2CBus, cfg.Panel.Address)
		}
		d.panel = panel.New(panel.Options{
			Open:         open,
			Commander:    d.commander,
			Buttons:      buttons,
			ScanInterval: config.Millis(cfg.Panel.ScanIntervalMs),
			LEDRefresh:   config.Millis(cfg.Panel.LEDRefreshMs),
			Logger:       logger,
			OnPress:      func(int, string, error) { d.activity() },
		})
		bus.Subscribe(playerstate.EventStateChange, d.panel.HandleEvent)
		targets = append(targets, hotplugTarget{
			device:    hardware.I2CPath(cfg.Panel.I2CBus),
			component: "panel",
			reinit:    d.panel.Reinit,
		})
	}
	if cfg.Knob.Enabled {
		open := deps.KnobOpener
		if open == nil {
			open = spiOpener(cfg.Knob.SPIBus, cfg.Knob.SPIDevice, cfg.Knob.SpeedHz)
		}
		d.knob = knob.New(knob.Options{
			Open:                  open,
			Commander:             d.commander,
			Channel:               cfg.Knob.Channel,
			PollInterval:          config.Millis(cfg.Knob.PollIntervalMs),
			Scale:                 cfg.Knob.Scale,
			ChangeThreshold:       cfg.Knob.ChangeThreshold,
			DebounceThreshold:     cfg.Knob.DebounceThreshold,
			ConfirmationThreshold: cfg.Knob.ConfirmationThreshold,
			Logger:                logger,
			OnApply:               func(int, error) { d.activity() },
		})
		targets = append(targets, hotplugTarget{
			device:    hardware.SPIPath(cfg.Knob.SPIBus, cfg.Knob.SPIDevice),
			component: "knob",
			reinit:    d.knob.Reinit,
		})
	}
	if cfg.StartupIndicator.Enabled {
		open := deps.IndicatorOpener
		if open == nil {
			open = i2cOpener(cfg.Panel.I2CBus, cfg.StartupIndicator.Address)
		}
		d.indicator = panel.NewIndicator(
			open,
			config.Millis(cfg.StartupIndicator.DelayMs),
			time.Duration(cfg.StartupIndicator.DurationSeconds)*time.Second,
			logger,
		)
	}
	d.monitor = newHotplugMonitor(logger, targets...)
	return d, nil
}

func i2cOpener(bus, addr int) panel.Opener {
	return func() (hardware.RegisterBus, error) {
		dev, err := hardware.OpenI2C(bus, addr)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
}

func spiOpener(bus, device, speedHz int) knob.Opener {
	return func() (hardware.Transferer, error) {
		dev, err := hardware.OpenSPI(bus, device, speedHz)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
}

// Start launches the poller and hardware loops and acquires the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another faceplate daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.stopped = make(chan struct{})

	d.spawn(runCtx, d.poller.Run)
	if d.panel != nil {
		d.spawn(runCtx, d.panel.Run)
	}
	if d.knob != nil {
		d.spawn(runCtx, d.knob.Run)
	}
	if d.indicator != nil {
		d.spawn(runCtx, d.indicator.Run)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		d.logger.Debug("hotplug monitor unavailable", logging.Error(err))
	}
	if d.cfg.Idle.Enabled {
		d.engine.ArmIdle(d.cfg.IdleTimeout())
	}
	d.pruneHistory(runCtx)

	d.running.Store(true)
	d.logger.Info("faceplate daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("host", d.cfg.Volumio.Host),
		logging.Bool("panel", d.panel != nil),
		logging.Bool("knob", d.knob != nil),
	)
	return nil
}

func (d *Daemon) spawn(ctx context.Context, run func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(d.logger, "background loop exited", "daemon_loop_failed",
				logging.Error(err),
			)
		}
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.monitor.Stop()
	d.wg.Wait()
	d.engine.DisarmIdle()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start reports a running instance"),
		)
	}
	d.running.Store(false)
	close(d.stopped)
	d.logger.Info("faceplate daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.engine.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Stopped returns a channel closed when the current run ends through Stop.
func (d *Daemon) Stopped() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Engine exposes the change detection engine.
func (d *Daemon) Engine() *playerstate.Engine {
	return d.engine
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		SessionID:    d.sessionID,
		Host:         d.cfg.Volumio.Host,
		CommandMode:  d.cfg.Volumio.CommandMode,
		Player:       d.poller.Health(),
		Display:      d.screen.Snapshot(),
		IdleEnabled:  d.cfg.Idle.Enabled,
		Idle:         d.engine.Idle(),
		Hotplug:      d.monitor.Running(),
	}
	if d.panel != nil {
		panelStatus := d.panel.Status()
		status.Panel = &panelStatus
	}
	if d.knob != nil {
		knobStatus := d.knob.Status()
		status.Knob = &knobStatus
	}
	if d.store != nil {
		status.HistoryPath = d.store.Path()
		if count, err := d.store.Count(ctx); err == nil {
			status.HistoryCount = count
		}
	}
	return status
}

// SendCommand forwards a playback command such as play or next.
func (d *Daemon) SendCommand(ctx context.Context, cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return errors.New("command is required")
	}
	if err := d.commander.Send(ctx, cmd); err != nil {
		return err
	}
	d.logger.Info("command sent", logging.String(logging.FieldCommand, cmd))
	d.activity()
	return nil
}

// SetVolume sets the player volume in percent.
func (d *Daemon) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", volume)
	}
	if err := d.commander.SetVolume(ctx, volume); err != nil {
		return err
	}
	d.logger.Info("volume set", logging.Int("volume", volume))
	d.activity()
	return nil
}

// ArmIdle starts idle detection. A non-positive timeout uses idle.timeout_seconds.
func (d *Daemon) ArmIdle(timeout time.Duration) playerstate.IdleStatus {
	if timeout <= 0 {
		timeout = d.cfg.IdleTimeout()
	}
	d.engine.ArmIdle(timeout)
	status := d.engine.Idle()
	d.logger.Info("idle detection armed", logging.Duration("timeout", status.Timeout))
	return status
}

// DisarmIdle stops idle detection.
func (d *Daemon) DisarmIdle() playerstate.IdleStatus {
	d.engine.DisarmIdle()
	d.logger.Info("idle detection disarmed")
	return d.engine.Idle()
}

// History returns the most recent plays.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Play, error) {
	if d.store == nil {
		return nil, errors.New("play history disabled")
	}
	return d.store.Recent(ctx, limit)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// activity resets the idle countdown and polls right away so hardware input
// is reflected without waiting for the next tick.
func (d *Daemon) activity() {
	d.engine.SignalActivity()
	d.poller.Kick()
}

func (d *Daemon) onTrackChange(evt playerstate.Event) {
	track, _ := evt.Payload.(string)
	if strings.TrimSpace(track) == "" {
		return
	}
	payload := notifications.Payload{"track": track}
	if encoding, ok := d.engine.Value(playerstate.FieldTrackType); ok {
		payload["quality"] = encoding
	}
	d.publish(notifications.EventTrackChanged, payload)
}

func (d *Daemon) onIdleStart(playerstate.Event) {
	d.publish(notifications.EventIdleStarted, notifications.Payload{"timeout": d.engine.Idle().Timeout})
}

func (d *Daemon) onUnreachable(err error) {
	d.publish(notifications.EventError, notifications.Payload{"context": "volumio", "error": err})
}

// publish delivers off the event stream so a slow ntfy server never stalls
// change detection.
func (d *Daemon) publish(event notifications.Event, payload notifications.Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := d.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
				logging.String("notification", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	}()
}

func (d *Daemon) pruneHistory(ctx context.Context) {
	if d.store == nil || d.cfg.History.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -d.cfg.History.RetentionDays)
	removed, err := d.store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "play history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
			logging.String(logging.FieldImpact, "old plays kept until next start"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("pruned play history", logging.Int64("removed", removed), logging.Int("retention_days", d.cfg.History.RetentionDays))
	}
}
