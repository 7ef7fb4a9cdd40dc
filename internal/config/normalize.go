package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeVolumio()
	c.normalizePanel()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeVolumio() {
	// The env var only fills a host the config file left unset.
	if host := strings.TrimSpace(c.Volumio.Host); host == "" || host == defaultVolumioHost {
		if value, ok := os.LookupEnv("FACEPLATE_VOLUMIO_HOST"); ok && strings.TrimSpace(value) != "" {
			c.Volumio.Host = value
		}
	}
	c.Volumio.Host = strings.TrimRight(strings.TrimSpace(c.Volumio.Host), "/")
	if c.Volumio.Host == "" {
		c.Volumio.Host = defaultVolumioHost
	}
	c.Volumio.CommandMode = strings.ToLower(strings.TrimSpace(c.Volumio.CommandMode))
	if c.Volumio.CommandMode == "" {
		c.Volumio.CommandMode = defaultCommandMode
	}
	c.Volumio.CLIBinary = strings.TrimSpace(c.Volumio.CLIBinary)
	if c.Volumio.CLIBinary == "" {
		c.Volumio.CLIBinary = defaultCLIBinary
	}
}

func (c *Config) normalizePanel() {
	if c.Panel.Buttons == nil {
		c.Panel.Buttons = DefaultButtons()
		return
	}
	buttons := make(map[string]string, len(c.Panel.Buttons))
	for key, cmd := range c.Panel.Buttons {
		buttons[strings.TrimSpace(key)] = strings.TrimSpace(cmd)
	}
	c.Panel.Buttons = buttons
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("FACEPLATE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	for component, level := range c.Logging.ComponentLevels {
		c.Logging.ComponentLevels[component] = strings.ToLower(strings.TrimSpace(level))
	}
}
