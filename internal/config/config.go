package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dooshek/murmur/internal/fileops"
	"github.com/dooshek/murmur/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFilename = "murmur.yaml"

	envBaseURL  = "MURMUR_BASE_URL"
	envLogLevel = "MURMUR_LOG_LEVEL"
)

// LoadConfig reads murmur.yaml from the default config directory. It returns
// (nil, nil) when no file exists yet.
func LoadConfig() (*Config, error) {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return LoadConfigFrom(fileOps)
}

// LoadConfigFrom is LoadConfig against an explicit directory.
func LoadConfigFrom(fileOps fileops.FileOps) (*Config, error) {
	if err := fileOps.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := fileOps.LoadConfig(configFilename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse unmarshals YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to the default config directory.
func SaveConfig(cfg *Config) error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return SaveConfigTo(fileOps, cfg)
}

// SaveConfigTo merges cfg into any existing file and writes the result.
func SaveConfigTo(fileOps fileops.FileOps, cfg *Config) error {
	existing, err := LoadConfigFrom(fileOps)
	if err != nil {
		logger.Warnf("Failed to load existing config: %v", err)
	} else if existing != nil {
		mergeConfigs(existing, cfg)
		cfg = existing
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileOps.SaveConfig(configFilename, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// LoadEnv loads a .env file from the working directory when present and
// applies the MURMUR_* overrides to cfg. It returns the log level override,
// if any.
func LoadEnv(cfg *Config) string {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("Failed to load .env: %v", err)
	}
	return ApplyEnv(cfg)
}

// ApplyEnv applies MURMUR_* environment overrides to cfg.
func ApplyEnv(cfg *Config) string {
	if v := os.Getenv(envBaseURL); v != "" {
		logger.Debugf("Using analysis base URL from %s", envBaseURL)
		cfg.Analysis.BaseURL = v
	}
	return os.Getenv(envLogLevel)
}

// mergeConfigs merges the explicitly set parts of source into target.
// Booleans are taken from source as-is since their zero value is meaningful.
func mergeConfigs(target, source *Config) {
	if source.Analysis.BaseURL != "" {
		target.Analysis.BaseURL = source.Analysis.BaseURL
	}
	if source.Analysis.PollInterval != 0 {
		target.Analysis.PollInterval = source.Analysis.PollInterval
	}
	if source.Analysis.RequestTimeout != 0 {
		target.Analysis.RequestTimeout = source.Analysis.RequestTimeout
	}

	if source.Alerts.Threshold != 0 {
		target.Alerts.Threshold = source.Alerts.Threshold
	}
	if source.Alerts.Cooldown != 0 {
		target.Alerts.Cooldown = source.Alerts.Cooldown
	}
	if source.Alerts.Urgency != "" {
		target.Alerts.Urgency = source.Alerts.Urgency
	}

	if source.Audio.MeteringInterval != 0 {
		target.Audio.MeteringInterval = source.Audio.MeteringInterval
	}
	if source.Audio.SampleRate != 0 {
		target.Audio.SampleRate = source.Audio.SampleRate
	}
	target.Audio.SaveRecordings = source.Audio.SaveRecordings

	if source.Visualizer.Bars != 0 {
		target.Visualizer.Bars = source.Visualizer.Bars
	}
	if source.Notifications.Backend != "" {
		target.Notifications.Backend = source.Notifications.Backend
	}

	target.API.Enabled = source.API.Enabled
	if source.API.Listen != "" {
		target.API.Listen = source.API.Listen
	}
	target.DBus.Enabled = source.DBus.Enabled

	if source.Hotkey.Key != "" {
		target.Hotkey = source.Hotkey
	}
}
