// Package config provides configuration loading and management for miriwcs.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"miriwcs/internal/models"
	"miriwcs/pkg/channel"
	"miriwcs/pkg/poly"
	"miriwcs/pkg/reference"
	"miriwcs/pkg/visualization"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reference product parameters
	Reference struct {
		// Path is the calibration FITS product the transforms are built from
		Path string `yaml:"path"`

		// Extensions gives the HDU index of each plane inside the product
		Extensions reference.Extensions `yaml:"extensions"`
	} `yaml:"reference"`

	// Channels is the channel table: column range, offset header keys and
	// identifier offset of every channel to build
	Channels []models.Channel `yaml:"channels"`

	// Fitting parameters
	Fitting struct {
		// Fitter is "linear" or "levmar"
		Fitter string `yaml:"fitter"`

		// Iterations bounds the levmar refinement
		Iterations int `yaml:"iterations"`

		// InclusiveBounds fits over [min, max] instead of [min, max)
		InclusiveBounds bool `yaml:"inclusiveBounds"`
	} `yaml:"fitting"`

	// Output parameters
	Output struct {
		// ModelPath is where the model file is written; empty skips writing
		ModelPath string `yaml:"modelPath"`

		// FigurePath is where the mask figure is written; empty skips drawing
		FigurePath string `yaml:"figurePath"`

		// Regions is the number of colours in the mask figure
		Regions int `yaml:"regions"`

		// Colormap names the map the figure colours are drawn from
		Colormap string `yaml:"colormap"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Reference.Path = reference.DefaultPath
	cfg.Reference.Extensions = reference.DefaultExtensions()

	cfg.Channels = models.DefaultChannels()

	cfg.Fitting.Fitter = "linear"
	cfg.Fitting.Iterations = 100
	cfg.Fitting.InclusiveBounds = false

	cfg.Output.ModelPath = ""
	cfg.Output.FigurePath = ""
	cfg.Output.Regions = visualization.DefaultRegions
	cfg.Output.Colormap = "jet"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", configPath)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks the values a build depends on
func (c *Config) Validate() error {
	if c.Reference.Path == "" {
		return errors.New("reference.path is empty")
	}
	if len(c.Channels) == 0 {
		return errors.New("no channels configured")
	}
	seen := make(map[int]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch.ID] {
			return errors.Errorf("channel %d listed twice", ch.ID)
		}
		seen[ch.ID] = true
		if ch.InterceptKey == "" || ch.SlopeKey == "" {
			return errors.Errorf("%s: offset header keys are required", ch)
		}
		if ch.ColumnStart < 0 || (ch.ColumnEnd >= 0 && ch.ColumnEnd <= ch.ColumnStart) {
			return errors.Errorf("%s: bad column range [%d, %d)", ch, ch.ColumnStart, ch.ColumnEnd)
		}
	}
	if c.Output.Regions < 1 {
		return errors.Errorf("output.regions must be at least 1, got %d", c.Output.Regions)
	}
	if _, err := visualization.Colormap(c.Output.Colormap); err != nil {
		return err
	}
	if _, err := poly.NewFitter(c.Fitting.Fitter, c.Fitting.Iterations); err != nil {
		return err
	}
	return nil
}

// FitOptions returns the slice fitting options described by the config
func (c *Config) FitOptions() (channel.Options, error) {
	fitter, err := poly.NewFitter(c.Fitting.Fitter, c.Fitting.Iterations)
	if err != nil {
		return channel.Options{}, err
	}
	return channel.Options{Fitter: fitter, InclusiveBounds: c.Fitting.InclusiveBounds}, nil
}
