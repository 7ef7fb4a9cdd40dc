package volumio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"faceplate/internal/config"
	"faceplate/internal/logging"
)

// Commander sends playback commands to the player.
type Commander interface {
	Send(ctx context.Context, cmd string) error
	SetVolume(ctx context.Context, volume int) error
}

var (
	_ Commander = (*Client)(nil)
	_ Commander = (*CLI)(nil)
)

// Runner executes external commands.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output runs name with args and returns its stdout.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.Output()
}

// CLI sends commands through the volumio binary installed on the player.
type CLI struct {
	binary string
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	detected bool
}

// NewCLI builds a CLI commander. A nil runner uses ExecRunner.
func NewCLI(binary string, runner Runner, logger *slog.Logger) *CLI {
	if strings.TrimSpace(binary) == "" {
		binary = "volumio"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CLI{
		binary: binary,
		runner: runner,
		logger: logging.NewComponentLogger(logger, "volumio-cli"),
	}
}

// Available reports whether `volumio status` succeeds on this host. A
// positive result is cached.
func (c *CLI) Available(ctx context.Context) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detected {
		return true
	}
	if _, err := c.runner.Output(ctx, c.binary, "status"); err != nil {
		c.logger.Debug("volumio cli not detected", logging.Error(err))
		return false
	}
	c.detected = true
	return true
}

// Send runs `volumio <cmd>`. Commands that need elevated privileges are run
// through the shell exactly as configured.
func (c *CLI) Send(ctx context.Context, cmd string) error {
	if c == nil {
		return fmt.Errorf("cli commander is nil")
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return fmt.Errorf("send command: empty command")
	}
	ctx = logging.WithCommand(ctx, cmd)
	logger := logging.WithContext(ctx, c.logger)

	if isShellCommand(cmd) {
		if _, err := c.runner.Output(ctx, "sh", "-c", cmd); err != nil {
			return fmt.Errorf("run %q: %w", cmd, err)
		}
		logger.Info("shell command executed")
		return nil
	}
	if !c.Available(ctx) {
		return fmt.Errorf("send %s: %w: %s status failed", cmd, ErrUnavailable, c.binary)
	}
	if _, err := c.runner.Output(ctx, c.binary, strings.Fields(cmd)...); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	logger.Debug("player command sent")
	return nil
}

// SetVolume runs `volumio volume N`.
func (c *CLI) SetVolume(ctx context.Context, volume int) error {
	return c.Send(ctx, "volume "+strconv.Itoa(clampVolume(volume)))
}

func isShellCommand(cmd string) bool {
	return strings.HasPrefix(cmd, "sudo ") || strings.Contains(cmd, " sudo ")
}

// NewCommander picks the command transport configured in cfg.
func NewCommander(cfg *config.Config, client *Client, runner Runner, logger *slog.Logger) Commander {
	if cfg != nil && cfg.Volumio.CommandMode == config.CommandModeAPI && client != nil {
		return client
	}
	binary := ""
	if cfg != nil {
		binary = cfg.Volumio.CLIBinary
	}
	return NewCLI(binary, runner, logger)
}
