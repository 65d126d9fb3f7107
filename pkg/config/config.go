// Package config provides configuration loading and management for medialcurve.
// It handles loading configuration from YAML files, parsing the command line
// and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSigma is the smoothing radius used when -sigma is not given
	DefaultSigma = 0.5

	// DefaultThreshold is the flux cutoff used when -threshold is not given
	DefaultThreshold = 0.0
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Filter parameters
	Filter struct {
		// Sigma is the recursive Gaussian smoothing radius in physical units
		Sigma float64 `yaml:"sigma"`

		// Threshold is the average outward flux below which curve end points are kept
		Threshold float64 `yaml:"threshold"`

		// InsideNegative marks signed distance maps that are negative inside the object
		InsideNegative bool `yaml:"insideNegative"`

		// MinComponentSize drops skeleton components with fewer voxels (0 keeps all)
		MinComponentSize int `yaml:"minComponentSize"`
	} `yaml:"filter"`

	// Processing parameters
	Processing struct {
		// NumWorkers bounds the goroutines used by the filters
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// PixelType is the element type of the written skeleton: "float" or "uchar"
		PixelType string `yaml:"pixelType"`

		// Compress enables zlib compression of the written volume
		Compress bool `yaml:"compress"`

		// SaveIntermediaryResults determines whether smoothed, gradient and flux volumes are saved
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary volumes are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// PreviewFile, when set, receives a PNG projection of the skeleton over the distance map
		PreviewFile string `yaml:"previewFile"`

		// SlicesDir, when set, receives PNG slices of the skeleton along z
		SlicesDir string `yaml:"slicesDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Filter.Sigma = DefaultSigma
	cfg.Filter.Threshold = DefaultThreshold
	cfg.Filter.InsideNegative = false
	cfg.Filter.MinComponentSize = 0

	cfg.Processing.NumWorkers = runtime.NumCPU()

	cfg.Output.PixelType = "float"
	cfg.Output.Compress = false
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
