package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dooshek/murmur/internal/analysis"
	"github.com/dooshek/murmur/internal/audio"
	"github.com/dooshek/murmur/internal/notification"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{fmt.Errorf("start session: %w", audio.ErrPermissionDenied), FailurePermissionDenied},
		{notification.ErrPermissionDenied, FailurePermissionDenied},
		{fmt.Errorf("%w: timeout", analysis.ErrNetwork), FailureNetwork},
		{context.DeadlineExceeded, FailureNetwork},
		{fmt.Errorf("%w: eof", analysis.ErrDecode), FailureDecode},
		{fmt.Errorf("open: %w", audio.ErrResource), FailureResource},
		{errors.New("something else"), FailureUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if !FailureNetwork.Transient() || !FailureDecode.Transient() || FailureResource.Transient() {
		t.Error("unexpected Transient classification")
	}
}

func TestBandFor(t *testing.T) {
	tests := map[float64]Band{
		0:     BandCalm,
		0.399: BandCalm,
		0.4:   BandElevated,
		0.69:  BandElevated,
		0.7:   BandAlerting,
		1:     BandAlerting,
	}
	for risk, want := range tests {
		if got := BandFor(risk); got != want {
			t.Errorf("BandFor(%v) = %v, want %v", risk, got, want)
		}
	}
}

func TestStateMarshalText(t *testing.T) {
	for state, want := range map[State]string{Idle: "idle", Listening: "listening", Stopping: "stopping"} {
		b, err := state.MarshalText()
		if err != nil || string(b) != want {
			t.Errorf("MarshalText(%d) = %q, %v", state, b, err)
		}
	}
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("listening")); err != nil || s != Listening {
		t.Errorf("UnmarshalText(listening) = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("expected error for unknown state")
	}
}
