package deps

import (
	"os"
	"path/filepath"
	"testing"

	"faceplate/internal/config"
	"faceplate/internal/testsupport"
)

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "volumio")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	device := filepath.Join(dir, "i2c-1")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatalf("write device stand-in: %v", err)
	}

	results := Check([]Requirement{
		{Name: "CLI", Kind: KindBinary, Target: present},
		{Name: "Missing CLI", Kind: KindBinary, Target: "clearly-not-present-binary"},
		{Name: "Bus", Kind: KindDevice, Target: device},
		{Name: "Gone", Kind: KindDevice, Target: filepath.Join(dir, "spidev0.0"), Optional: true},
		{Name: "Blank", Kind: KindBinary, Target: "  "},
	})

	tests := []struct {
		available bool
		detail    string
	}{
		{true, ""},
		{false, `binary "clearly-not-present-binary" not found`},
		{true, ""},
		{false, filepath.Join(dir, "spidev0.0") + " missing"},
		{false, "not configured"},
	}
	if len(results) != len(tests) {
		t.Fatalf("expected %d results, got %d", len(tests), len(results))
	}
	for i, tc := range tests {
		if results[i].Available != tc.available || results[i].Detail != tc.detail {
			t.Fatalf("result %d = %+v, want available=%v detail=%q", i, results[i], tc.available, tc.detail)
		}
	}

	missing := Missing(results)
	if len(missing) != 2 || missing[0] != "Missing CLI" || missing[1] != "Blank" {
		t.Fatalf("Missing = %v", missing)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Volumio.CommandMode = config.CommandModeAPI
	cfg.Panel.Enabled = false
	cfg.Knob.Enabled = false
	cfg.StartupIndicator.Enabled = false
	if reqs := Requirements(&cfg); len(reqs) != 0 {
		t.Fatalf("expected no requirements, got %+v", reqs)
	}

	cfg.Volumio.CommandMode = config.CommandModeCLI
	cfg.Panel.Enabled = true
	cfg.Knob.Enabled = true
	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %+v", reqs)
	}
	if reqs[0].Kind != KindBinary || reqs[1].Kind != KindDevice || reqs[2].Kind != KindDevice {
		t.Fatalf("unexpected requirements %+v", reqs)
	}
	if Requirements(nil) != nil {
		t.Fatal("expected nil config to have no requirements")
	}
}

func TestCheckFindsCLIOnPath(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithCommandMode(config.CommandModeCLI),
		testsupport.WithStubbedBinaries(),
	)
	statuses := Check(Requirements(cfg))
	if len(statuses) != 1 || statuses[0].Name != "Volumio CLI" {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
	if !statuses[0].Available {
		t.Fatalf("expected stubbed volumio on PATH, got %+v", statuses[0])
	}
	if missing := Missing(statuses); len(missing) != 0 {
		t.Fatalf("Missing = %v", missing)
	}
}
