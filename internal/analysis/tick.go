package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	StatusAnalyzing = "analyzing"
	StatusWarmingUp = "warming_up"

	// noLabel is what the service puts in event_top when nothing was classified.
	noLabel = "None"
)

// Triggers are the three independent pieces of evidence behind a risk score.
type Triggers struct {
	Jump  bool `json:"jump"`
	Event bool `json:"event"`
	Text  bool `json:"text"`
}

// TickSample is one decoded analysis result.
type TickSample struct {
	Status        string
	Risk          float64
	Triggers      Triggers
	TopEventLabel string
	Transcript    string

	Fired      bool
	DB         float64
	BaselineDB float64
	TxScore    float64
	Message    string
}

type eventScore struct {
	Label string    `json:"label"`
	Score flexFloat `json:"score"`
}

type tickResponse struct {
	Status     string       `json:"status"`
	Risk       flexFloat    `json:"risk"`
	IsJump     bool         `json:"isJump"`
	IsEvent    bool         `json:"isEvent"`
	IsText     bool         `json:"isText"`
	EventTop   []eventScore `json:"event_top"`
	Transcript string       `json:"transcript"`
	Fired      bool         `json:"fired"`
	DB         flexFloat    `json:"db"`
	BaselineDB flexFloat    `json:"baseline_db"`
	TxScore    flexFloat    `json:"tx_score"`
	Message    string       `json:"message"`
}

// flexFloat accepts both 0.42 and "0.42". null leaves it at zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// Decode parses a /get_analysis payload. Every failure wraps ErrDecode.
func Decode(data []byte) (TickSample, error) {
	var resp tickResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return TickSample{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if resp.Status == "" {
		return TickSample{}, fmt.Errorf("%w: missing status", ErrDecode)
	}

	risk := float64(resp.Risk)
	if math.IsNaN(risk) || math.IsInf(risk, 0) {
		return TickSample{}, fmt.Errorf("%w: risk is not finite", ErrDecode)
	}

	return TickSample{
		Status: resp.Status,
		Risk:   clampUnit(risk),
		Triggers: Triggers{
			Jump:  resp.IsJump,
			Event: resp.IsEvent,
			Text:  resp.IsText,
		},
		TopEventLabel: topLabel(resp.EventTop),
		Transcript:    resp.Transcript,
		Fired:         resp.Fired,
		DB:            float64(resp.DB),
		BaselineDB:    float64(resp.BaselineDB),
		TxScore:       float64(resp.TxScore),
		Message:       resp.Message,
	}, nil
}

func topLabel(events []eventScore) string {
	if len(events) == 0 {
		return ""
	}
	if label := events[0].Label; label != noLabel {
		return label
	}
	return ""
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
