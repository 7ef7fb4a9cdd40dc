// Package deps reports whether the host provides what faceplate needs: the
// volumio CLI for command dispatch and the i2c and spi device nodes for the
// front panel hardware.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"faceplate/internal/config"
	"faceplate/internal/hardware"
)

// Kind distinguishes executables looked up on PATH from device nodes.
type Kind string

const (
	KindBinary Kind = "binary"
	KindDevice Kind = "device"
)

// Requirement describes one host dependency.
type Requirement struct {
	Name     string
	Kind     Kind
	Target   string
	Optional bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Requirements lists the host dependencies implied by cfg. Hardware that is
// disabled contributes nothing.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	var reqs []Requirement
	if cfg.Volumio.CommandMode == config.CommandModeCLI {
		reqs = append(reqs, Requirement{Name: "Volumio CLI", Kind: KindBinary, Target: cfg.Volumio.CLIBinary})
	}
	if cfg.Panel.Enabled || cfg.StartupIndicator.Enabled {
		reqs = append(reqs, Requirement{Name: "Panel bus", Kind: KindDevice, Target: hardware.I2CPath(cfg.Panel.I2CBus)})
	}
	if cfg.Knob.Enabled {
		reqs = append(reqs, Requirement{Name: "Knob bus", Kind: KindDevice, Target: hardware.SPIPath(cfg.Knob.SPIBus, cfg.Knob.SPIDevice)})
	}
	return reqs
}

// Check evaluates the provided requirements in order.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Target = strings.TrimSpace(req.Target)
		status := Status{Requirement: req}
		switch {
		case req.Target == "":
			status.Detail = "not configured"
		case req.Kind == KindDevice:
			if _, err := os.Stat(req.Target); err != nil {
				status.Detail = fmt.Sprintf("%s missing", req.Target)
			} else {
				status.Available = true
			}
		default:
			if _, err := exec.LookPath(req.Target); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", req.Target)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the names of required entries that are unavailable.
func Missing(statuses []Status) []string {
	var names []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			names = append(names, s.Name)
		}
	}
	return names
}
