package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/dooshek/murmur/internal/session"
)

// Stats holds the totals across all finished sessions
type Stats struct {
	Sessions      int       `json:"sessions"`
	TotalSeconds  float64   `json:"total_seconds"`
	Alerts        int       `json:"alerts"`
	PeakRisk      float64   `json:"peak_risk"`
	Failed        int       `json:"failed_sessions"`
	LastSessionID string    `json:"last_session_id,omitempty"`
	LastSessionAt time.Time `json:"last_session_at,omitempty"`
}

// StatsManager persists session statistics. It implements session.Observer
// and writes once per finished session.
type StatsManager struct {
	session.NopObserver

	stats    Stats
	filePath string
	mu       sync.Mutex
}

// NewStatsManager creates a stats manager backed by filePath and loads
// existing data
func NewStatsManager(filePath string) *StatsManager {
	sm := &StatsManager{filePath: filePath}

	if err := sm.load(); err != nil {
		logger.Debugf("Could not load stats (will start fresh): %v", err)
	}

	return sm
}

// SessionEnded adds a finished session and persists immediately
func (sm *StatsManager) SessionEnded(s session.Summary) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stats.Sessions++
	sm.stats.TotalSeconds += s.Duration().Seconds()
	sm.stats.Alerts += s.Alerts
	if s.PeakRisk > sm.stats.PeakRisk {
		sm.stats.PeakRisk = s.PeakRisk
	}
	if s.Err != nil {
		sm.stats.Failed++
	}
	sm.stats.LastSessionID = s.SessionID
	sm.stats.LastSessionAt = s.EndedAt

	if err := sm.save(); err != nil {
		logger.Error("Failed to save stats after session", err)
	}
}

// GetStats returns a copy of current statistics
func (sm *StatsManager) GetStats() Stats {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.stats
}

// GetStatsJSON returns statistics as a JSON string (for D-Bus)
func (sm *StatsManager) GetStatsJSON() (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := json.Marshal(sm.stats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats to JSON: %w", err)
	}

	return string(data), nil
}

// Reset clears all statistics and persists empty state
func (sm *StatsManager) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stats = Stats{}

	if err := sm.save(); err != nil {
		return fmt.Errorf("failed to save reset stats: %w", err)
	}

	return nil
}

func (sm *StatsManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("Stats file not found, starting fresh: %s", sm.filePath)
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	if err := json.Unmarshal(data, &sm.stats); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	logger.Debugf("Loaded stats from %s", sm.filePath)
	return nil
}

// save writes to a temp file and renames it into place
func (sm *StatsManager) save() error {
	dir := filepath.Dir(sm.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	data, err := json.MarshalIndent(sm.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := sm.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp stats file: %w", err)
	}

	if err := os.Rename(tempFile, sm.filePath); err != nil {
		return fmt.Errorf("failed to rename temp stats file: %w", err)
	}

	logger.Debugf("Saved stats to %s", sm.filePath)
	return nil
}
