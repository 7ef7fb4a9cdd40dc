package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"faceplate/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FACEPLATE_VOLUMIO_HOST", "")
	t.Setenv("FACEPLATE_NTFY_TOPIC", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "faceplate", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "faceplate"); cfg.Paths.StateDir != want {
		t.Fatalf("state dir = %q, want %q", cfg.Paths.StateDir, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "faceplate", "logs"); cfg.Paths.LogDir != want {
		t.Fatalf("log dir = %q, want %q", cfg.Paths.LogDir, want)
	}
	if cfg.Volumio.Host != "http://localhost:3000" {
		t.Fatalf("host = %q", cfg.Volumio.Host)
	}
	if cfg.Volumio.CommandMode != config.CommandModeCLI {
		t.Fatalf("command mode = %q", cfg.Volumio.CommandMode)
	}
	if cmd := cfg.Panel.Buttons["8"]; cmd != "sudo systemctl restart oled.service" {
		t.Fatalf("button 8 = %q", cmd)
	}
	if cfg.IdleTimeout() != 900*time.Second {
		t.Fatalf("idle timeout = %v", cfg.IdleTimeout())
	}
	playing, idle := cfg.PollIntervals()
	if playing != time.Second || idle != 5*time.Second {
		t.Fatalf("poll intervals = %v, %v", playing, idle)
	}
	if cfg.Knob.Scale != 15 || cfg.Knob.DebounceThreshold != 5 {
		t.Fatalf("unexpected knob defaults: %+v", cfg.Knob)
	}
	if cfg.Notifications.NtfyTopic != "" {
		t.Fatalf("expected empty ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.HistoryPath() != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("history path = %q", cfg.HistoryPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "faceplate.toml")
	t.Setenv("FACEPLATE_VOLUMIO_HOST", "")

	type payload struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Volumio struct {
			Host        string `toml:"host"`
			CommandMode string `toml:"command_mode"`
		} `toml:"volumio"`
		Logging struct {
			Format          string            `toml:"format"`
			ComponentLevels map[string]string `toml:"component_levels"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Volumio.Host = " http://volumio.local/ "
	custom.Volumio.CommandMode = "API"
	custom.Logging.Format = "JSON"
	custom.Logging.ComponentLevels = map[string]string{"panel": " WARN "}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("resolved = %q, exists = %v", resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempDir, "state") {
		t.Fatalf("state dir = %q", cfg.Paths.StateDir)
	}
	if cfg.Volumio.Host != "http://volumio.local" {
		t.Fatalf("host = %q", cfg.Volumio.Host)
	}
	if cfg.Volumio.CommandMode != config.CommandModeAPI {
		t.Fatalf("command mode = %q", cfg.Volumio.CommandMode)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format = %q", cfg.Logging.Format)
	}
	if cfg.Logging.ComponentLevels["panel"] != "warn" {
		t.Fatalf("component levels = %v", cfg.Logging.ComponentLevels)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.StateDir); err != nil || !info.IsDir() {
		t.Fatalf("state dir not created: %v", err)
	}
}

func TestLoadMissingCustomPathUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists || resolved != path {
		t.Fatalf("resolved = %q, exists = %v", resolved, exists)
	}
	if cfg.Engine.SeekThrottleMs != 500 {
		t.Fatalf("seek throttle = %d", cfg.Engine.SeekThrottleMs)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[volumio\nhost = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	t.Setenv("FACEPLATE_VOLUMIO_HOST", "http://env-host:3000")
	t.Setenv("FACEPLATE_NTFY_TOPIC", "https://ntfy.sh/faceplate")

	tests := []struct {
		name      string
		contents  string
		wantHost  string
		wantTopic string
	}{
		{
			name:      "env fills unset values",
			contents:  "[notifications]\nntfy_topic = \"\"\n",
			wantHost:  "http://env-host:3000",
			wantTopic: "https://ntfy.sh/faceplate",
		},
		{
			name:      "file values win",
			contents:  "[volumio]\nhost = \"http://file-host:3000\"\n\n[notifications]\nntfy_topic = \"https://ntfy.sh/file\"\n",
			wantHost:  "http://file-host:3000",
			wantTopic: "https://ntfy.sh/file",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "faceplate.toml")
			if err := os.WriteFile(path, []byte(tc.contents), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			cfg, _, _, err := config.Load(path)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if cfg.Volumio.Host != tc.wantHost {
				t.Fatalf("host = %q, want %q", cfg.Volumio.Host, tc.wantHost)
			}
			if cfg.Notifications.NtfyTopic != tc.wantTopic {
				t.Fatalf("ntfy topic = %q, want %q", cfg.Notifications.NtfyTopic, tc.wantTopic)
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[panel.buttons]") {
		t.Fatalf("sample config missing button table: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Panel.Address != 0x20 || cfg.StartupIndicator.Address != 0x27 {
		t.Fatalf("unexpected addresses: %#x %#x", cfg.Panel.Address, cfg.StartupIndicator.Address)
	}
	if cfg.Panel.Buttons["1"] != "play" || len(cfg.Panel.Buttons) != 8 {
		t.Fatalf("unexpected buttons: %v", cfg.Panel.Buttons)
	}
	defaults := config.Default()
	if cfg.Knob != defaults.Knob {
		t.Fatalf("sample knob %+v differs from defaults %+v", cfg.Knob, defaults.Knob)
	}
	if cfg.Engine != defaults.Engine {
		t.Fatalf("sample engine %+v differs from defaults %+v", cfg.Engine, defaults.Engine)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"non-http host", func(c *config.Config) { c.Volumio.Host = "ftp://player" }},
		{"zero refresh", func(c *config.Config) { c.Volumio.RefreshMs = 0 }},
		{"unknown command mode", func(c *config.Config) { c.Volumio.CommandMode = "mqtt" }},
		{"settle not above throttle", func(c *config.Config) { c.Engine.SeekSettleMs = c.Engine.SeekThrottleMs }},
		{"zero idle timeout", func(c *config.Config) { c.Idle.TimeoutSeconds = 0 }},
		{"panel address out of range", func(c *config.Config) { c.Panel.Address = 0x80 }},
		{"button id out of range", func(c *config.Config) { c.Panel.Buttons["9"] = "stop" }},
		{"knob channel out of range", func(c *config.Config) { c.Knob.Channel = 8 }},
		{"zero debounce", func(c *config.Config) { c.Knob.DebounceThreshold = 0 }},
		{"zero indicator duration", func(c *config.Config) { c.StartupIndicator.DurationSeconds = 0 }},
		{"negative history retention", func(c *config.Config) { c.History.RetentionDays = -1 }},
		{"zero notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }},
		{"unknown log level", func(c *config.Config) { c.Logging.Level = "verbose" }},
		{"unknown component level", func(c *config.Config) {
			c.Logging.ComponentLevels = map[string]string{"knob": "loud"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateSkipsDisabledHardware(t *testing.T) {
	cfg := config.Default()
	cfg.Panel.Enabled = false
	cfg.Panel.Address = 0
	cfg.Knob.Enabled = false
	cfg.Knob.Channel = 99
	cfg.StartupIndicator.Enabled = false
	cfg.StartupIndicator.DurationSeconds = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}
