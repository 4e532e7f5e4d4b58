package config

import (
	"os"
	"path/filepath"
	"testing"

	"miriwcs/pkg/poly"
	"miriwcs/pkg/reference"
)

// TestDefaultConfig verifies the defaults reproduce the delivered layout
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Reference.Path != reference.DefaultPath {
		t.Errorf("Expected reference path %s, got %s", reference.DefaultPath, cfg.Reference.Path)
	}
	if cfg.Reference.Extensions != reference.DefaultExtensions() {
		t.Errorf("Unexpected extensions %+v", cfg.Reference.Extensions)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0].ID != 3 || cfg.Channels[1].ID != 4 {
		t.Fatalf("Expected channels 3 and 4, got %+v", cfg.Channels)
	}
	if cfg.Channels[1].IDOffset != 12 {
		t.Errorf("Expected channel 4 offset 12, got %d", cfg.Channels[1].IDOffset)
	}
	if cfg.Output.Regions != 3 {
		t.Errorf("Expected 3 regions, got %d", cfg.Output.Regions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config is invalid: %v", err)
	}
}

// TestLoadConfigMissingFile verifies defaults are returned for a missing file
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Fitting.Fitter != "linear" {
		t.Errorf("Expected linear fitter, got %s", cfg.Fitting.Fitter)
	}
}

// TestSaveAndLoadConfig verifies a config survives a YAML round trip
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "miriwcs.yaml")

	cfg := DefaultConfig()
	cfg.Reference.Path = "/data/ref.fits"
	cfg.Fitting.Fitter = "levmar"
	cfg.Fitting.Iterations = 40
	cfg.Fitting.InclusiveBounds = true
	cfg.Output.ModelPath = "models.asdf"
	cfg.Output.Regions = 24
	cfg.Channels = cfg.Channels[1:]

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Reference.Path != "/data/ref.fits" {
		t.Errorf("Expected /data/ref.fits, got %s", loaded.Reference.Path)
	}
	if loaded.Fitting.Fitter != "levmar" || loaded.Fitting.Iterations != 40 || !loaded.Fitting.InclusiveBounds {
		t.Errorf("Unexpected fitting section %+v", loaded.Fitting)
	}
	if loaded.Output.ModelPath != "models.asdf" || loaded.Output.Regions != 24 {
		t.Errorf("Unexpected output section %+v", loaded.Output)
	}
	if len(loaded.Channels) != 1 || loaded.Channels[0] != cfg.Channels[0] {
		t.Errorf("Unexpected channels %+v", loaded.Channels)
	}

	opts, err := loaded.FitOptions()
	if err != nil {
		t.Fatalf("FitOptions failed: %v", err)
	}
	if lm, ok := opts.Fitter.(poly.LevMarFitter); !ok || lm.Iterations != 40 {
		t.Errorf("Expected LevMarFitter with 40 iterations, got %#v", opts.Fitter)
	}
	if !opts.InclusiveBounds {
		t.Error("Expected inclusive bounds")
	}
}

// TestPartialConfig verifies unspecified keys keep their defaults
func TestPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("output:\n  regions: 12\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Output.Regions != 12 {
		t.Errorf("Expected 12 regions, got %d", cfg.Output.Regions)
	}
	if cfg.Reference.Path != reference.DefaultPath || len(cfg.Channels) != 2 {
		t.Errorf("Defaults lost: %+v", cfg)
	}
}

// TestValidate verifies invalid configurations are rejected
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty path", func(c *Config) { c.Reference.Path = "" }},
		{"no channels", func(c *Config) { c.Channels = nil }},
		{"duplicate channel", func(c *Config) { c.Channels[1].ID = 3 }},
		{"missing header key", func(c *Config) { c.Channels[0].SlopeKey = "" }},
		{"bad columns", func(c *Config) { c.Channels[0].ColumnEnd = 0 }},
		{"zero regions", func(c *Config) { c.Output.Regions = 0 }},
		{"unknown fitter", func(c *Config) { c.Fitting.Fitter = "simplex" }},
		{"unknown colormap", func(c *Config) { c.Output.Colormap = "rainbow9" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("fitting:\n  fitter: simplex\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected LoadConfig to reject an unknown fitter")
	}
}
