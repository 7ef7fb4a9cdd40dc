// Package knob turns the volume potentiometer into player volume commands.
package knob

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"faceplate/internal/hardware"
	"faceplate/internal/logging"
	"faceplate/internal/volumio"
)

const commandTimeout = 5 * time.Second

// ScaleVolume maps a raw ADC reading to a volume percentage.
func ScaleVolume(raw, scale int) int {
	volume := int(math.Round(float64(raw)/hardware.MCP3008MaxValue*100)) * scale
	return min(max(volume, 0), 100)
}

// Debouncer filters noisy volume readings. A reading must differ from the
// last applied volume by more than the change threshold for debounce
// consecutive polls, then for confirm more, before it is applied.
type Debouncer struct {
	change   int
	debounce int
	confirm  int

	last     int
	counter  int
	readings int
}

// NewDebouncer builds a debouncer that has not applied any volume yet.
func NewDebouncer(change, debounce, confirm int) *Debouncer {
	return &Debouncer{change: change, debounce: debounce, confirm: confirm, last: -1}
}

// Observe feeds one reading and reports whether it should be applied.
func (d *Debouncer) Observe(volume int) bool {
	if abs(volume-d.last) <= d.change {
		d.counter = 0
		d.readings = 0
		return false
	}
	if d.counter < d.debounce {
		d.counter++
		return false
	}
	d.readings++
	if d.readings < d.confirm {
		return false
	}
	d.last = volume
	d.counter = 0
	d.readings = 0
	return true
}

// Last returns the last applied volume, or -1.
func (d *Debouncer) Last() int {
	return d.last
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Opener opens the ADC's SPI device.
type Opener func() (hardware.Transferer, error)

// Options configures a Knob.
type Options struct {
	Open                  Opener
	Commander             volumio.Commander
	Channel               int
	PollInterval          time.Duration
	Scale                 int
	ChangeThreshold       int
	DebounceThreshold     int
	ConfirmationThreshold int
	Logger                *slog.Logger
	// OnApply runs after a volume command has been sent.
	OnApply func(volume int, err error)
}

// Status describes the knob for status output.
type Status struct {
	Present   bool   `json:"present"`
	Raw       int    `json:"raw"`
	Volume    int    `json:"volume"`
	LastError string `json:"last_error,omitempty"`
}

// Knob polls the ADC and applies debounced volume changes.
type Knob struct {
	open      Opener
	commander volumio.Commander
	channel   int
	interval  time.Duration
	scale     int
	logger    *slog.Logger
	onApply   func(int, error)
	reinit    chan struct{}

	mu       sync.Mutex
	adc      *hardware.MCP3008
	debounce *Debouncer
	raw      int
	lastErr  string
	warned   bool
}

// New constructs a knob. Hardware is opened by Run.
func New(opts Options) *Knob {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	return &Knob{
		open:      opts.Open,
		commander: opts.Commander,
		channel:   opts.Channel,
		interval:  interval,
		scale:     scale,
		logger:    logging.NewComponentLogger(opts.Logger, "knob"),
		onApply:   opts.OnApply,
		reinit:    make(chan struct{}, 1),
		debounce:  NewDebouncer(opts.ChangeThreshold, opts.DebounceThreshold, opts.ConfirmationThreshold),
		raw:       -1,
	}
}

// Run polls until ctx is canceled.
func (k *Knob) Run(ctx context.Context) error {
	if k == nil {
		return nil
	}
	defer k.closeADC()
	k.connect()
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-k.reinit:
			k.closeADC()
			k.connect()
		case <-ticker.C:
			k.poll(ctx)
		}
	}
}

// Reinit closes and reopens the ADC, for example after hotplug.
func (k *Knob) Reinit() {
	if k == nil {
		return
	}
	select {
	case k.reinit <- struct{}{}:
	default:
	}
}

// Status reports the latest reading.
func (k *Knob) Status() Status {
	if k == nil {
		return Status{}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return Status{
		Present:   k.adc != nil,
		Raw:       k.raw,
		Volume:    k.debounce.Last(),
		LastError: k.lastErr,
	}
}

func (k *Knob) connect() {
	if k.open == nil {
		return
	}
	spi, err := k.open()
	if err != nil {
		k.mu.Lock()
		k.lastErr = err.Error()
		k.mu.Unlock()
		if errors.Is(err, hardware.ErrNotPresent) {
			k.logger.Info("knob hardware not present; waiting for hotplug", logging.Error(err))
			return
		}
		logging.WarnWithContext(k.logger, "knob init failed", "knob_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that SPI is enabled and knob.spi_bus/knob.spi_device"),
			logging.String(logging.FieldImpact, "volume knob is inactive"),
		)
		return
	}
	k.mu.Lock()
	k.adc = hardware.NewMCP3008(spi)
	k.lastErr = ""
	k.warned = false
	k.mu.Unlock()
	k.logger.Info("knob connected", logging.Int("channel", k.channel))
}

func (k *Knob) closeADC() {
	k.mu.Lock()
	adc := k.adc
	k.adc = nil
	k.mu.Unlock()
	if adc != nil {
		_ = adc.Close()
	}
}

// poll reads the ADC once and applies the volume when the debouncer agrees.
func (k *Knob) poll(ctx context.Context) {
	k.mu.Lock()
	adc := k.adc
	if adc == nil {
		k.mu.Unlock()
		return
	}
	raw, err := adc.Read(k.channel)
	if err != nil {
		first := !k.warned
		k.warned = true
		k.lastErr = err.Error()
		k.mu.Unlock()
		if first {
			logging.WarnWithContext(k.logger, "knob read failed", "knob_read_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the ADC wiring"),
				logging.String(logging.FieldImpact, "volume changes from the knob are ignored"),
			)
		}
		return
	}
	k.warned = false
	k.raw = raw
	volume := ScaleVolume(raw, k.scale)
	apply := k.debounce.Observe(volume)
	k.mu.Unlock()
	if !apply {
		return
	}

	if k.commander != nil {
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err = k.commander.SetVolume(cmdCtx, volume)
		cancel()
	}
	if err != nil {
		logging.WarnWithContext(k.logger, "volume change failed", "knob_volume_failed",
			logging.Int("volume", volume),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the player is running"),
			logging.String(logging.FieldImpact, "player volume does not follow the knob"),
		)
	} else {
		k.logger.Info("volume adjusted", logging.Int("raw", raw), logging.Int("volume", volume))
	}
	if k.onApply != nil {
		k.onApply(volume, err)
	}
}
