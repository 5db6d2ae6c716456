package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dooshek/murmur/internal/fileops"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
analysis:
  base_url: "http://10.0.0.5:5000"
alerts:
  cooldown: 30s
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Analysis.BaseURL != "http://10.0.0.5:5000" {
		t.Errorf("BaseURL = %q", cfg.Analysis.BaseURL)
	}
	if cfg.Alerts.Cooldown != 30*time.Second {
		t.Errorf("Cooldown = %s, want 30s", cfg.Alerts.Cooldown)
	}
	if cfg.Analysis.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want default 500ms", cfg.Analysis.PollInterval)
	}
	if cfg.Alerts.Threshold != 0.74 {
		t.Errorf("Threshold = %v, want default 0.74", cfg.Alerts.Threshold)
	}
	if cfg.Audio.MeteringInterval != 100*time.Millisecond {
		t.Errorf("MeteringInterval = %s, want 100ms", cfg.Audio.MeteringInterval)
	}
	if cfg.Visualizer.Bars != 30 {
		t.Errorf("Bars = %d, want 30", cfg.Visualizer.Bars)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"threshold above one", "alerts:\n  threshold: 1.5\n", "alerts.threshold"},
		{"zero poll interval", "analysis:\n  poll_interval: 0s\n", "analysis.poll_interval"},
		{"unknown backend", "notifications:\n  backend: pager\n", "notifications.backend"},
		{"no bars", "visualizer:\n  bars: 0\n", "visualizer.bars"},
		{"bad urgency", "alerts:\n  urgency: screaming\n", "alerts.urgency"},
		{"malformed yaml", "analysis: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	f := fileops.NewFileOpsAt(filepath.Join(t.TempDir(), "murmur"))

	cfg, err := LoadConfigFrom(f)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config for missing file, got %+v", cfg)
	}
}

func TestSaveConfigMergesExisting(t *testing.T) {
	f := fileops.NewFileOpsAt(filepath.Join(t.TempDir(), "murmur"))

	first := DefaultConfig()
	first.Analysis.BaseURL = "http://first:5000"
	first.Alerts.Cooldown = 20 * time.Second
	if err := SaveConfigTo(f, first); err != nil {
		t.Fatal(err)
	}

	// only the URL is set explicitly; the cooldown must survive the merge
	second := &Config{
		Analysis: AnalysisConfig{BaseURL: "http://second:5000"},
		API:      APIConfig{Enabled: true, Listen: "127.0.0.1:9000"},
		DBus:     DBusConfig{Enabled: true},
	}
	if err := SaveConfigTo(f, second); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfigFrom(f)
	if err != nil {
		t.Fatal(err)
	}
	if got.Analysis.BaseURL != "http://second:5000" {
		t.Errorf("BaseURL = %q", got.Analysis.BaseURL)
	}
	if got.Alerts.Cooldown != 20*time.Second {
		t.Errorf("Cooldown = %s, want 20s", got.Alerts.Cooldown)
	}
	if got.API.Listen != "127.0.0.1:9000" {
		t.Errorf("API.Listen = %q", got.API.Listen)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(envBaseURL, "http://from-env:5000")
	t.Setenv(envLogLevel, "debug")

	cfg := DefaultConfig()
	level := ApplyEnv(cfg)

	if cfg.Analysis.BaseURL != "http://from-env:5000" {
		t.Errorf("BaseURL = %q", cfg.Analysis.BaseURL)
	}
	if level != "debug" {
		t.Errorf("level = %q, want debug", level)
	}
}

func TestRunWizardWith(t *testing.T) {
	in := strings.NewReader("192.168.1.20:5000\n0.8\n15s\ny\n")
	var out strings.Builder

	cfg, err := RunWizardWith(in, &out)
	if err != nil {
		t.Fatalf("RunWizardWith: %v", err)
	}
	if cfg.Analysis.BaseURL != "http://192.168.1.20:5000" {
		t.Errorf("BaseURL = %q", cfg.Analysis.BaseURL)
	}
	if cfg.Alerts.Threshold != 0.8 {
		t.Errorf("Threshold = %v", cfg.Alerts.Threshold)
	}
	if cfg.Alerts.Cooldown != 15*time.Second {
		t.Errorf("Cooldown = %s", cfg.Alerts.Cooldown)
	}
	if !cfg.Hotkey.Enabled {
		t.Error("hotkey should be enabled")
	}
}

func TestRunWizardWithRetriesInvalidThreshold(t *testing.T) {
	in := strings.NewReader("\n2\n0.5\n\n\n")
	var out strings.Builder

	cfg, err := RunWizardWith(in, &out)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Alerts.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", cfg.Alerts.Threshold)
	}
	if !strings.Contains(out.String(), "Threshold must be") {
		t.Errorf("expected retry prompt, got %q", out.String())
	}
	if cfg.Hotkey.Enabled {
		t.Error("hotkey should default to disabled")
	}
}
