// Package config provides configuration loading and management for
// sbeminspect. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Experiment parameters
	Experiment struct {
		// SBEMRootDir is the acquisition root holding the sections/
		// directory; Windows UNC style paths are accepted and
		// normalized at use
		SBEMRootDir string `yaml:"sbemRootDir"`
	} `yaml:"experiment"`

	// Detection parameters for the trace outlier sweep
	Detection struct {
		// WindowBefore is the number of preceding observed sections
		// contributing to the local window
		WindowBefore int `yaml:"windowBefore"`

		// WindowAfter is the number of following observed sections
		// contributing to the local window
		WindowAfter int `yaml:"windowAfter"`

		// Threshold is the stddev multiplier separating outliers from
		// the local mean
		Threshold float64 `yaml:"threshold"`

		// Workers bounds the parallel fan-out across tile IDs
		Workers int `yaml:"workers"`
	} `yaml:"detection"`

	// Plot parameters for trace plots
	Plot struct {
		// OutputDir is where trace plot images are written, relative
		// to the inspect directory unless absolute
		OutputDir string `yaml:"outputDir"`
	} `yaml:"plot"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default detection parameters
	cfg.Detection.WindowBefore = 9
	cfg.Detection.WindowAfter = 9
	cfg.Detection.Threshold = 5.0
	cfg.Detection.Workers = runtime.NumCPU()

	// Set default plot parameters
	cfg.Plot.OutputDir = "trace_plots"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
