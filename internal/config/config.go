package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Volumio contains the player connection settings.
type Volumio struct {
	Host           string `toml:"host"`
	RefreshMs      int    `toml:"refresh_ms"`
	IdlePollMs     int    `toml:"idle_poll_ms"`
	RequestTimeout int    `toml:"request_timeout"`
	CommandMode    string `toml:"command_mode"`
	CLIBinary      string `toml:"cli_binary"`
}

// Engine tunes change detection timing.
type Engine struct {
	SeekThrottleMs int `toml:"seek_throttle_ms"`
	SeekSettleMs   int `toml:"seek_settle_ms"`
	CoverGraceMs   int `toml:"cover_grace_ms"`
}

// Idle controls idle detection.
type Idle struct {
	Enabled        bool `toml:"enabled"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

// Panel describes the button and LED expander.
type Panel struct {
	Enabled        bool              `toml:"enabled"`
	I2CBus         int               `toml:"i2c_bus"`
	Address        int               `toml:"address"`
	ScanIntervalMs int               `toml:"scan_interval_ms"`
	LEDRefreshMs   int               `toml:"led_refresh_ms"`
	Buttons        map[string]string `toml:"buttons"`
}

// Knob describes the volume potentiometer on the ADC.
type Knob struct {
	Enabled               bool `toml:"enabled"`
	SPIBus                int  `toml:"spi_bus"`
	SPIDevice             int  `toml:"spi_device"`
	SpeedHz               int  `toml:"speed_hz"`
	Channel               int  `toml:"channel"`
	PollIntervalMs        int  `toml:"poll_interval_ms"`
	Scale                 int  `toml:"scale"`
	ChangeThreshold       int  `toml:"change_threshold"`
	DebounceThreshold     int  `toml:"debounce_threshold"`
	ConfirmationThreshold int  `toml:"confirmation_threshold"`
}

// StartupIndicator drives the boot LED on the second expander.
type StartupIndicator struct {
	Enabled         bool `toml:"enabled"`
	Address         int  `toml:"address"`
	DelayMs         int  `toml:"delay_ms"`
	DurationSeconds int  `toml:"duration_seconds"`
}

// History controls the play history store.
type History struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TrackChange    bool   `toml:"track_change"`
	Idle           bool   `toml:"idle"`
	Errors         bool   `toml:"errors"`
}

// Logging contains logging configuration.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for faceplate.
type Config struct {
	Paths            Paths            `toml:"paths"`
	Volumio          Volumio          `toml:"volumio"`
	Engine           Engine           `toml:"engine"`
	Idle             Idle             `toml:"idle"`
	Panel            Panel            `toml:"panel"`
	Knob             Knob             `toml:"knob"`
	StartupIndicator StartupIndicator `toml:"startup_indicator"`
	History          History          `toml:"history"`
	Notifications    Notifications    `toml:"notifications"`
	Logging          Logging          `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/faceplate/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("faceplate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath returns the single-instance lock file location.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.LogDir, "faceplate.lock")
}

// DaemonPIDPath returns the pid file written by the foreground daemon.
func (c *Config) DaemonPIDPath() string {
	return filepath.Join(c.Paths.LogDir, "faceplate.pid")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "faceplate.sock")
}

// HistoryPath returns the sqlite database used for play history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// VolumioTimeout returns the REST request timeout.
func (c *Config) VolumioTimeout() time.Duration {
	return time.Duration(c.Volumio.RequestTimeout) * time.Second
}

// PollIntervals returns the playing and idle poll cadences.
func (c *Config) PollIntervals() (playing, idle time.Duration) {
	return millis(c.Volumio.RefreshMs), millis(c.Volumio.IdlePollMs)
}

// IdleTimeout returns the idle detection timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Idle.TimeoutSeconds) * time.Second
}

func millis(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}

// Millis converts a configured millisecond count into a duration.
func Millis(value int) time.Duration {
	return millis(value)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
