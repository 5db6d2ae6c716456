package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dooshek/murmur/internal/analysis"
	"github.com/dooshek/murmur/internal/audio"
	"github.com/dooshek/murmur/internal/notification"
)

// State is the lifecycle state of a monitoring session.
type State int

const (
	Idle State = iota
	Listening
	Stopping
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "listening":
		*s = Listening
	case "stopping":
		*s = Stopping
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Band is a coarse reading of the risk score used for colours and signals.
type Band string

const (
	BandCalm     Band = "calm"
	BandElevated Band = "elevated"
	BandAlerting Band = "alerting"
)

func BandFor(risk float64) Band {
	switch {
	case risk >= 0.7:
		return BandAlerting
	case risk >= 0.4:
		return BandElevated
	default:
		return BandCalm
	}
}

// FailureKind sorts errors into the classes the session reacts to.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailurePermissionDenied
	FailureNetwork
	FailureDecode
	FailureResource
	FailureUnknown
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "ok"
	case FailurePermissionDenied:
		return "permission_denied"
	case FailureNetwork:
		return "network"
	case FailureDecode:
		return "decode"
	case FailureResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Transient failures are retried by the next poll.
func (k FailureKind) Transient() bool {
	return k == FailureNetwork || k == FailureDecode
}

func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, audio.ErrPermissionDenied), errors.Is(err, notification.ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, analysis.ErrDecode):
		return FailureDecode
	case errors.Is(err, analysis.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return FailureNetwork
	case errors.Is(err, audio.ErrResource):
		return FailureResource
	default:
		return FailureUnknown
	}
}

const (
	StatusReady           = "Ready to Listen"
	StatusListening       = "Listening..."
	StatusWarmingUp       = "Server warming up: Calibrating ambient noise..."
	StatusConnectionError = "Connection Error. Check Server IP/Port."
	StatusMalformed       = "Malformed analysis response."
)

func analyzingStatus(label, transcript string) string {
	if label == "" {
		label = "None"
	}
	return fmt.Sprintf("Last Event: %s | Transcript: %s", label, transcript)
}

func serverStatus(status, message string) string {
	if message != "" {
		return fmt.Sprintf("Server Status: %s: %s", status, message)
	}
	return "Server Status: " + status
}

func micUnavailable(err error) string {
	return "Microphone unavailable: " + err.Error()
}

func errorStatus(kind FailureKind) string {
	if kind == FailureDecode {
		return StatusMalformed
	}
	return StatusConnectionError
}
