package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"faceplate/internal/hardware"
	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
	"faceplate/internal/volumio"
)

// ButtonMap assigns button ids to matrix positions as [row][col].
var ButtonMap = [hardware.MatrixRows][hardware.MatrixCols]int{
	{2, 1},
	{4, 3},
	{6, 5},
	{8, 7},
}

// Button ids whose LEDs mirror playback state.
const (
	PlayButton  = 1
	PauseButton = 2
)

const commandTimeout = 10 * time.Second

// LEDMask returns the port A bit for a button's LED.
func LEDMask(id int) byte {
	if id < 1 || id > 8 {
		return 0
	}
	return 1 << (8 - id)
}

// StateMask returns the LED mask for a playback status.
func StateMask(status string) byte {
	if status == "play" {
		return LEDMask(PlayButton)
	}
	return LEDMask(PauseButton)
}

// Opener opens the expander bus.
type Opener func() (hardware.RegisterBus, error)

// Options configures a Panel.
type Options struct {
	Open         Opener
	Commander    volumio.Commander
	Buttons      map[int]string
	ScanInterval time.Duration
	LEDRefresh   time.Duration
	Logger       *slog.Logger
	// OnPress runs after a button's command has been sent.
	OnPress func(id int, command string, err error)
}

// Status describes the panel for status output.
type Status struct {
	Present   bool   `json:"present"`
	LEDs      uint8  `json:"leds"`
	LastPress int    `json:"last_press,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Panel scans buttons and drives LEDs.
type Panel struct {
	open         Opener
	commander    volumio.Commander
	buttons      map[int]string
	scanInterval time.Duration
	ledRefresh   time.Duration
	logger       *slog.Logger
	scanLogger   *slog.Logger
	onPress      func(int, string, error)
	presses      chan int
	reinit       chan struct{}

	mu        sync.Mutex
	chip      *hardware.MCP23017
	prev      hardware.MatrixState
	playState string
	leds      byte
	lastPress int
	lastErr   string
	warned    bool
}

// New constructs a panel. Hardware is opened by Run.
func New(opts Options) *Panel {
	scan := opts.ScanInterval
	if scan <= 0 {
		scan = 100 * time.Millisecond
	}
	refresh := opts.LEDRefresh
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	logger := logging.NewComponentLogger(opts.Logger, "panel")
	return &Panel{
		open:         opts.Open,
		commander:    opts.Commander,
		buttons:      opts.Buttons,
		scanInterval: scan,
		ledRefresh:   refresh,
		logger:       logger,
		scanLogger:   logging.WithLevelOverride(logger, slog.LevelInfo),
		onPress:      opts.OnPress,
		presses:      make(chan int, 16),
		reinit:       make(chan struct{}, 1),
		prev:         hardware.ReleasedMatrix(),
		playState:    "stop",
	}
}

// Run scans the matrix until ctx is canceled.
func (p *Panel) Run(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runCommands(ctx)
	}()
	defer func() {
		wg.Wait()
		p.closeChip()
	}()

	p.connect()
	scan := time.NewTicker(p.scanInterval)
	defer scan.Stop()
	refresh := time.NewTicker(p.ledRefresh)
	defer refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.reinit:
			p.closeChip()
			p.connect()
		case <-refresh.C:
			p.refreshLEDs()
		case <-scan.C:
			p.scan(ctx)
		}
	}
}

// Reinit closes and reopens the expander, for example after hotplug.
func (p *Panel) Reinit() {
	if p == nil {
		return
	}
	select {
	case p.reinit <- struct{}{}:
	default:
	}
}

// HandleEvent mirrors playback state on the play and pause LEDs.
func (p *Panel) HandleEvent(evt playerstate.Event) {
	if p == nil || evt.Name != playerstate.EventStateChange {
		return
	}
	status, _ := evt.Payload.(string)
	p.mu.Lock()
	p.playState = status
	p.mu.Unlock()
	p.refreshLEDs()
}

// Status reports hardware presence and LED state.
func (p *Panel) Status() Status {
	if p == nil {
		return Status{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Present:   p.chip != nil,
		LEDs:      p.leds,
		LastPress: p.lastPress,
		LastError: p.lastErr,
	}
}

func (p *Panel) connect() {
	if p.open == nil {
		return
	}
	bus, err := p.open()
	if err == nil {
		chip := hardware.NewMCP23017(bus)
		if err = chip.ConfigureMatrix(); err == nil {
			p.mu.Lock()
			p.chip = chip
			p.prev = hardware.ReleasedMatrix()
			p.warned = false
			p.lastErr = ""
			p.mu.Unlock()
			p.logger.Info("panel connected")
			p.refreshLEDs()
			return
		}
		_ = chip.Close()
	}
	p.recordError(err)
	if errors.Is(err, hardware.ErrNotPresent) {
		p.logger.Info("panel hardware not present; waiting for hotplug", logging.Error(err))
		return
	}
	logging.WarnWithContext(p.logger, "panel init failed", "panel_init_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check i2c wiring, panel.i2c_bus and panel.address"),
		logging.String(logging.FieldImpact, "buttons and LEDs are inactive"),
	)
}

func (p *Panel) closeChip() {
	p.mu.Lock()
	chip := p.chip
	p.chip = nil
	p.mu.Unlock()
	if chip != nil {
		_ = chip.Close()
	}
}

func (p *Panel) scan(ctx context.Context) {
	p.mu.Lock()
	chip := p.chip
	if chip == nil {
		p.mu.Unlock()
		return
	}
	state, err := chip.ScanMatrix()
	if err != nil {
		p.mu.Unlock()
		p.scanFailed(err)
		return
	}
	prev := p.prev
	p.prev = state
	p.warned = false
	p.mu.Unlock()

	for row := range state {
		for col := range state[row] {
			if prev[row][col] == 1 && state[row][col] == 0 {
				id := ButtonMap[row][col]
				p.scanLogger.Debug("button pressed", logging.Int("button", id))
				select {
				case p.presses <- id:
				case <-ctx.Done():
					return
				default:
					p.logger.Debug("button press dropped; command queue full", logging.Int("button", id))
				}
			}
		}
	}
}

func (p *Panel) scanFailed(err error) {
	p.recordError(err)
	p.mu.Lock()
	first := !p.warned
	p.warned = true
	p.mu.Unlock()
	if !first {
		p.scanLogger.Debug("matrix scan failed", logging.Error(err))
		return
	}
	logging.WarnWithContext(p.logger, "matrix scan failed", "panel_scan_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the panel ribbon cable"),
		logging.String(logging.FieldImpact, "button presses are ignored until scans succeed"),
	)
}

func (p *Panel) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.presses:
			p.press(ctx, id)
		}
	}
}

// press sends a button's command and then lights its LED.
func (p *Panel) press(ctx context.Context, id int) {
	cmd, ok := p.buttons[id]
	if !ok {
		p.logger.Debug("button has no command", logging.Int("button", id))
		return
	}
	var err error
	if p.commander != nil {
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err = p.commander.Send(cmdCtx, cmd)
		cancel()
	}
	if err != nil {
		logging.WarnWithContext(p.logger, "button command failed", "panel_command_failed",
			logging.Int("button", id),
			logging.String(logging.FieldCommand, cmd),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check volumio.command_mode and that the player is running"),
			logging.String(logging.FieldImpact, "the button press had no effect"),
		)
	} else {
		p.logger.Info("button command sent",
			logging.Int("button", id),
			logging.String(logging.FieldCommand, cmd),
		)
	}
	p.mu.Lock()
	p.lastPress = id
	p.mu.Unlock()
	p.setLEDs(LEDMask(id))
	if p.onPress != nil {
		p.onPress(id, cmd, err)
	}
}

func (p *Panel) refreshLEDs() {
	p.mu.Lock()
	mask := StateMask(p.playState)
	p.mu.Unlock()
	p.setLEDs(mask)
}

func (p *Panel) setLEDs(mask byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chip == nil {
		return
	}
	if err := p.chip.SetLEDs(mask); err != nil {
		p.lastErr = err.Error()
		p.scanLogger.Debug("led update failed", logging.Error(err))
		return
	}
	p.leds = mask
}

func (p *Panel) recordError(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	p.lastErr = err.Error()
	p.mu.Unlock()
}

// ParseButtons converts config button keys to ids.
func ParseButtons(raw map[string]string) (map[int]string, error) {
	out := make(map[int]string, len(raw))
	for key, cmd := range raw {
		var id int
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil || id < 1 || id > 8 {
			return nil, fmt.Errorf("button %q: id must be between 1 and 8", key)
		}
		if cmd == "" {
			continue
		}
		out[id] = cmd
	}
	return out, nil
}
