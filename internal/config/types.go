package config

import (
	"errors"
	"fmt"
	"time"
)

// KeyBinding describes the hotkey that toggles a listening session.
type KeyBinding struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key"`   // The actual key (e.g., "a", "m", "1", etc.)
	Ctrl    bool   `yaml:"ctrl"`  // Control key modifier
	Shift   bool   `yaml:"shift"` // Shift key modifier
	Alt     bool   `yaml:"alt"`   // Alt key modifier
	Super   bool   `yaml:"super"` // Super (Windows/Command) key modifier
}

type AnalysisConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AlertsConfig struct {
	Threshold float64       `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
	Urgency   string        `yaml:"urgency"` // "low", "normal", "critical"
}

type AudioConfig struct {
	MeteringInterval time.Duration `yaml:"metering_interval"`
	SampleRate       int           `yaml:"sample_rate"`
	SaveRecordings   bool          `yaml:"save_recordings"`
}

type VisualizerConfig struct {
	Bars int `yaml:"bars"`
}

type NotificationsConfig struct {
	Backend string `yaml:"backend"` // "auto", "dbus", "notify-send", "osascript", "none"
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type DBusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Audio         AudioConfig         `yaml:"audio"`
	Visualizer    VisualizerConfig    `yaml:"visualizer"`
	Notifications NotificationsConfig `yaml:"notifications"`
	API           APIConfig           `yaml:"api"`
	DBus          DBusConfig          `yaml:"dbus"`
	Hotkey        KeyBinding          `yaml:"hotkey"`
}

// DefaultConfig returns the configuration used when no file exists and the
// base every loaded file is unmarshalled over.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			BaseURL:        "http://127.0.0.1:5000",
			PollInterval:   500 * time.Millisecond,
			RequestTimeout: 2 * time.Second,
		},
		Alerts: AlertsConfig{
			Threshold: 0.74,
			Cooldown:  10 * time.Second,
			Urgency:   "critical",
		},
		Audio: AudioConfig{
			MeteringInterval: 100 * time.Millisecond,
			SampleRate:       16000,
		},
		Visualizer: VisualizerConfig{
			Bars: 30,
		},
		Notifications: NotificationsConfig{
			Backend: "auto",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8765",
		},
		DBus: DBusConfig{
			Enabled: true,
		},
		Hotkey: KeyBinding{
			Key:   "m",
			Ctrl:  true,
			Shift: true,
		},
	}
}

var validBackends = map[string]bool{
	"auto": true, "dbus": true, "notify-send": true, "osascript": true, "none": true,
}

var validUrgencies = map[string]bool{
	"low": true, "normal": true, "critical": true,
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Analysis.BaseURL == "" {
		errs = append(errs, errors.New("analysis.base_url must be set"))
	}
	if c.Analysis.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("analysis.poll_interval must be positive, got %s", c.Analysis.PollInterval))
	}
	if c.Analysis.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("analysis.request_timeout must be positive, got %s", c.Analysis.RequestTimeout))
	}
	if c.Alerts.Threshold <= 0 || c.Alerts.Threshold > 1 {
		errs = append(errs, fmt.Errorf("alerts.threshold must be in (0,1], got %v", c.Alerts.Threshold))
	}
	if c.Alerts.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("alerts.cooldown must not be negative, got %s", c.Alerts.Cooldown))
	}
	if !validUrgencies[c.Alerts.Urgency] {
		errs = append(errs, fmt.Errorf("alerts.urgency %q is not one of low, normal, critical", c.Alerts.Urgency))
	}
	if c.Audio.MeteringInterval <= 0 {
		errs = append(errs, fmt.Errorf("audio.metering_interval must be positive, got %s", c.Audio.MeteringInterval))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Visualizer.Bars < 1 {
		errs = append(errs, fmt.Errorf("visualizer.bars must be at least 1, got %d", c.Visualizer.Bars))
	}
	if !validBackends[c.Notifications.Backend] {
		errs = append(errs, fmt.Errorf("notifications.backend %q is not supported", c.Notifications.Backend))
	}
	if c.API.Enabled && c.API.Listen == "" {
		errs = append(errs, errors.New("api.listen must be set when the api is enabled"))
	}
	return errors.Join(errs...)
}
