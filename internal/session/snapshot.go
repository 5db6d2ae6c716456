package session

import (
	"time"

	"github.com/dooshek/murmur/internal/analysis"
)

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	SessionID     string            `json:"session_id,omitempty"`
	State         State             `json:"state"`
	Status        string            `json:"status"`
	Risk          float64           `json:"risk"`
	Band          Band              `json:"band"`
	Triggers      analysis.Triggers `json:"triggers"`
	DB            float64           `json:"db"`
	Level         float64           `json:"level"`
	Visual        []float64         `json:"visual"`
	LastEvent     string            `json:"last_event,omitempty"`
	Transcript    string            `json:"transcript,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	AlertsEnabled bool              `json:"alerts_enabled"`
	AlertCount    int               `json:"alert_count"`
	LastAlertAt   *time.Time        `json:"last_alert_at,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (s Snapshot) clone() Snapshot {
	s.Visual = append([]float64(nil), s.Visual...)
	if s.LastAlertAt != nil {
		t := *s.LastAlertAt
		s.LastAlertAt = &t
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	return s
}
