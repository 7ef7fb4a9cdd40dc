package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"faceplate/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateVolumio(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateIdle(); err != nil {
		return err
	}
	if err := c.validatePanel(); err != nil {
		return err
	}
	if err := c.validateKnob(); err != nil {
		return err
	}
	if err := c.validateStartupIndicator(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateVolumio() error {
	parsed, err := url.Parse(c.Volumio.Host)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("volumio.host must be an http(s) URL, got %q", c.Volumio.Host)
	}
	if err := ensurePositiveMap(map[string]int{
		"volumio.refresh_ms":      c.Volumio.RefreshMs,
		"volumio.idle_poll_ms":    c.Volumio.IdlePollMs,
		"volumio.request_timeout": c.Volumio.RequestTimeout,
	}); err != nil {
		return err
	}
	switch c.Volumio.CommandMode {
	case CommandModeCLI, CommandModeAPI:
	default:
		return fmt.Errorf("volumio.command_mode must be %q or %q, got %q", CommandModeCLI, CommandModeAPI, c.Volumio.CommandMode)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.seek_throttle_ms": c.Engine.SeekThrottleMs,
		"engine.seek_settle_ms":   c.Engine.SeekSettleMs,
		"engine.cover_grace_ms":   c.Engine.CoverGraceMs,
	}); err != nil {
		return err
	}
	if c.Engine.SeekSettleMs <= c.Engine.SeekThrottleMs {
		return errors.New("engine.seek_settle_ms must be greater than engine.seek_throttle_ms")
	}
	return nil
}

func (c *Config) validateIdle() error {
	if c.Idle.TimeoutSeconds <= 0 {
		return errors.New("idle.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePanel() error {
	if !c.Panel.Enabled {
		return nil
	}
	if err := validateI2CAddress("panel.address", c.Panel.Address); err != nil {
		return err
	}
	if c.Panel.I2CBus < 0 {
		return errors.New("panel.i2c_bus must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"panel.scan_interval_ms": c.Panel.ScanIntervalMs,
		"panel.led_refresh_ms":   c.Panel.LEDRefreshMs,
	}); err != nil {
		return err
	}
	for key := range c.Panel.Buttons {
		id, err := strconv.Atoi(key)
		if err != nil || id < 1 || id > 8 {
			return fmt.Errorf("panel.buttons key %q must be a button id between 1 and 8", key)
		}
	}
	return nil
}

func (c *Config) validateKnob() error {
	if !c.Knob.Enabled {
		return nil
	}
	if c.Knob.SPIBus < 0 || c.Knob.SPIDevice < 0 {
		return errors.New("knob.spi_bus and knob.spi_device must be >= 0")
	}
	if c.Knob.Channel < 0 || c.Knob.Channel > 7 {
		return errors.New("knob.channel must be between 0 and 7")
	}
	if c.Knob.ChangeThreshold < 0 {
		return errors.New("knob.change_threshold must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"knob.speed_hz":               c.Knob.SpeedHz,
		"knob.poll_interval_ms":       c.Knob.PollIntervalMs,
		"knob.scale":                  c.Knob.Scale,
		"knob.debounce_threshold":     c.Knob.DebounceThreshold,
		"knob.confirmation_threshold": c.Knob.ConfirmationThreshold,
	})
}

func (c *Config) validateStartupIndicator() error {
	if !c.StartupIndicator.Enabled {
		return nil
	}
	if err := validateI2CAddress("startup_indicator.address", c.StartupIndicator.Address); err != nil {
		return err
	}
	if c.StartupIndicator.DelayMs < 0 {
		return errors.New("startup_indicator.delay_ms must be >= 0")
	}
	if c.StartupIndicator.DurationSeconds <= 0 {
		return errors.New("startup_indicator.duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	for component, level := range c.Logging.ComponentLevels {
		if !logging.ValidLevel(level) {
			return fmt.Errorf("logging.component_levels.%s: unknown level %q", component, level)
		}
	}
	return nil
}

func validateI2CAddress(key string, address int) error {
	if address < 0x03 || address > 0x77 {
		return fmt.Errorf("%s must be a 7-bit I2C address, got %#x", key, address)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
