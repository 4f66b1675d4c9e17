// Package config provides configuration loading and management for tomoproj.
// It handles engine settings and acquisition geometry files, both stored as
// YAML, and provides default values.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"tomoproj/pkg/device"
	"tomoproj/pkg/dispatch"
	"tomoproj/pkg/filter"
	"tomoproj/pkg/interpolation"
	"tomoproj/pkg/logging"
	"tomoproj/pkg/projector"
)

// Config represents the engine configuration loaded from YAML
type Config struct {
	// Engine parameters
	Engine struct {
		// Workers is the number of goroutines per kernel launch; 1 gives
		// bit-reproducible back projection
		Workers int `yaml:"workers"`

		// GroupSize is the number of rays or voxels per work group
		GroupSize int `yaml:"groupSize"`

		// Interpolation is "trilinear" or "nearest"
		Interpolation string `yaml:"interpolation"`

		// BackProjection is "auto", "voxel" or "ray"
		BackProjection string `yaml:"backProjection"`
	} `yaml:"engine"`

	// Device memory parameters
	Memory struct {
		// CapacityMB is the device memory budget; 0 uses physical memory
		CapacityMB int `yaml:"capacityMB"`

		// Pooling keeps released buffers for reuse
		Pooling bool `yaml:"pooling"`
	} `yaml:"memory"`

	// Logging parameters
	Logging struct {
		// Level is debug, info, warn or error
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Output parameters
	Output struct {
		// PreviewDir receives slice and view previews written by the CLI
		PreviewDir string `yaml:"previewDir"`

		// Verbose prints progress to stdout
		Verbose bool `yaml:"verbose"`

		// FilterWindow selects the ramp window of the filtered back
		// projection preview; "none" skips it
		FilterWindow string `yaml:"filterWindow"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Engine.Workers = runtime.NumCPU()
	cfg.Engine.GroupSize = dispatch.DefaultGroupSize
	cfg.Engine.Interpolation = "trilinear"
	cfg.Engine.BackProjection = "auto"

	cfg.Memory.CapacityMB = 0
	cfg.Memory.Pooling = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Output.PreviewDir = "previews"
	cfg.Output.Verbose = true
	cfg.Output.FilterWindow = "shepp-logan"

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
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	return writeYAML(cfg, configPath)
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks that every enumerated setting is recognised.
func (c *Config) Validate() error {
	if _, err := c.ProjectorConfig(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if err := logging.CheckFormat(c.Logging.Format); err != nil {
		return err
	}
	if !strings.EqualFold(c.Output.FilterWindow, "none") {
		if _, err := filter.ParseWindow(c.Output.FilterWindow); err != nil {
			return err
		}
	}
	if c.Memory.CapacityMB < 0 {
		return fmt.Errorf("memory capacity must not be negative, got %d MB", c.Memory.CapacityMB)
	}
	return nil
}

// ProjectorConfig converts the engine section.
func (c *Config) ProjectorConfig() (projector.Config, error) {
	interp, err := interpolation.ParseKind(c.Engine.Interpolation)
	if err != nil {
		return projector.Config{}, err
	}
	trav, err := projector.ParseTraversal(c.Engine.BackProjection)
	if err != nil {
		return projector.Config{}, err
	}
	return projector.Config{Interpolation: interp, BackProjection: trav}, nil
}

// Dispatcher builds the kernel dispatcher described by the engine section.
func (c *Config) Dispatcher() *dispatch.Dispatcher {
	return dispatch.New(
		dispatch.WithWorkers(c.Engine.Workers),
		dispatch.WithGroupSize(c.Engine.GroupSize),
	)
}

// Manager builds the device memory manager described by the memory section.
func (c *Config) Manager() *device.Manager {
	return device.NewManager(
		device.WithCapacity(int64(c.Memory.CapacityMB)<<20),
		device.WithPooling(c.Memory.Pooling),
	)
}

// Projector wires a manager, dispatcher and projector from the configuration.
func (c *Config) Projector() (*projector.Projector, error) {
	pc, err := c.ProjectorConfig()
	if err != nil {
		return nil, err
	}
	return projector.New(c.Manager(), c.Dispatcher(), pc), nil
}

// NewLogger returns a slog logger writing to w at the configured level and
// format.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	return logging.New(w, c.Logging.Level, c.Logging.Format)
}

// writeYAML marshals v to path, creating the directory if needed.
func writeYAML(v any, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
