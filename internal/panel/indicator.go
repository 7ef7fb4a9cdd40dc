package panel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"faceplate/internal/hardware"
	"faceplate/internal/logging"
)

// indicatorMask lights PA0.
const indicatorMask byte = 0x01

// Indicator lights the startup LED for a fixed window.
type Indicator struct {
	open     Opener
	delay    time.Duration
	duration time.Duration
	logger   *slog.Logger
}

// NewIndicator constructs a startup indicator.
func NewIndicator(open Opener, delay, duration time.Duration, logger *slog.Logger) *Indicator {
	return &Indicator{
		open:     open,
		delay:    delay,
		duration: duration,
		logger:   logging.NewComponentLogger(logger, "startup-indicator"),
	}
}

// Run waits delay, turns the LED on, and turns it off after duration or when
// ctx is canceled.
func (i *Indicator) Run(ctx context.Context) error {
	if i == nil || i.open == nil {
		return nil
	}
	if !sleep(ctx, i.delay) {
		return nil
	}
	bus, err := i.open()
	if err != nil {
		if errors.Is(err, hardware.ErrNotPresent) {
			i.logger.Debug("startup indicator not present", logging.Error(err))
			return nil
		}
		return err
	}
	chip := hardware.NewMCP23017(bus)
	defer chip.Close()

	if err := chip.ConfigureOutputs(); err != nil {
		return err
	}
	if err := chip.SetLEDs(indicatorMask); err != nil {
		return err
	}
	i.logger.Debug("startup indicator on", logging.Duration("duration", i.duration))
	sleep(ctx, i.duration)
	if err := chip.SetLEDs(0); err != nil {
		return err
	}
	i.logger.Debug("startup indicator off")
	return nil
}

// sleep waits d and reports whether it completed before ctx was canceled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
