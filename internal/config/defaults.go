package config

const (
	defaultStateDir              = "~/.local/share/faceplate"
	defaultLogDir                = "~/.local/share/faceplate/logs"
	defaultVolumioHost           = "http://localhost:3000"
	defaultRefreshMs             = 1000
	defaultIdlePollMs            = 5000
	defaultVolumioTimeout        = 5
	defaultCommandMode           = "cli"
	defaultCLIBinary             = "volumio"
	defaultSeekThrottleMs        = 500
	defaultSeekSettleMs          = 1000
	defaultCoverGraceMs          = 5000
	defaultIdleTimeoutSeconds    = 900
	defaultI2CBus                = 1
	defaultPanelAddress          = 0x20
	defaultScanIntervalMs        = 100
	defaultLEDRefreshMs          = 5000
	defaultSPIBus                = 0
	defaultSPIDevice             = 1
	defaultSPISpeedHz            = 1350000
	defaultKnobPollMs            = 500
	defaultKnobScale             = 15
	defaultChangeThreshold       = 2
	defaultDebounceThreshold     = 5
	defaultConfirmationThreshold = 1
	defaultIndicatorAddress      = 0x27
	defaultIndicatorDelayMs      = 1000
	defaultIndicatorSeconds      = 70
	defaultHistoryRetentionDays  = 90
	defaultNotifyTimeout         = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30

	// CommandModeCLI sends playback commands through the volumio binary.
	CommandModeCLI = "cli"
	// CommandModeAPI sends playback commands through the REST API.
	CommandModeAPI = "api"
)

// DefaultButtons maps the eight panel buttons to player commands.
func DefaultButtons() map[string]string {
	return map[string]string{
		"1": "play",
		"2": "pause",
		"3": "previous",
		"4": "next",
		"5": "repeat",
		"6": "random",
		"7": "clear",
		"8": "sudo systemctl restart oled.service",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Volumio: Volumio{
			Host:           defaultVolumioHost,
			RefreshMs:      defaultRefreshMs,
			IdlePollMs:     defaultIdlePollMs,
			RequestTimeout: defaultVolumioTimeout,
			CommandMode:    defaultCommandMode,
			CLIBinary:      defaultCLIBinary,
		},
		Engine: Engine{
			SeekThrottleMs: defaultSeekThrottleMs,
			SeekSettleMs:   defaultSeekSettleMs,
			CoverGraceMs:   defaultCoverGraceMs,
		},
		Idle: Idle{
			Enabled:        true,
			TimeoutSeconds: defaultIdleTimeoutSeconds,
		},
		Panel: Panel{
			Enabled:        true,
			I2CBus:         defaultI2CBus,
			Address:        defaultPanelAddress,
			ScanIntervalMs: defaultScanIntervalMs,
			LEDRefreshMs:   defaultLEDRefreshMs,
			Buttons:        DefaultButtons(),
		},
		Knob: Knob{
			Enabled:               true,
			SPIBus:                defaultSPIBus,
			SPIDevice:             defaultSPIDevice,
			SpeedHz:               defaultSPISpeedHz,
			Channel:               0,
			PollIntervalMs:        defaultKnobPollMs,
			Scale:                 defaultKnobScale,
			ChangeThreshold:       defaultChangeThreshold,
			DebounceThreshold:     defaultDebounceThreshold,
			ConfirmationThreshold: defaultConfirmationThreshold,
		},
		StartupIndicator: StartupIndicator{
			Enabled:         true,
			Address:         defaultIndicatorAddress,
			DelayMs:         defaultIndicatorDelayMs,
			DurationSeconds: defaultIndicatorSeconds,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			TrackChange:    false,
			Idle:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
