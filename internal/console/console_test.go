package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dooshek/murmur/internal/session"
	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestPrinterReportsChanges(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	idle := session.Snapshot{State: session.Idle, Status: "Ready to Listen", Band: session.BandCalm}
	listening := session.Snapshot{State: session.Listening, Status: "Listening...", Band: session.BandCalm}
	metered := listening
	metered.DB = -20
	alerting := listening
	alerting.Status = "Last Event: scream | Transcript: help"
	alerting.Risk = 0.9
	alerting.Band = session.BandAlerting
	alerting.LastEvent = "scream"
	alerting.AlertCount = 1

	for _, s := range []session.Snapshot{idle, listening, metered, alerting} {
		p.Print(s)
	}

	want := []string{
		"● idle",
		"  Ready to Listen",
		"● listening",
		"  Listening...",
		"  Last Event: scream | Transcript: help",
		"  risk 90.0% (alerting)",
		"  🚨 alert: risk 90.0% - scream",
	}
	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("output lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunStopsOnClose(t *testing.T) {
	var buf bytes.Buffer
	updates := make(chan session.Snapshot, 1)
	updates <- session.Snapshot{State: session.Idle, Status: "Ready to Listen"}
	close(updates)

	done := make(chan struct{})
	go func() {
		NewPrinter(&buf).Run(context.Background(), updates)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after close")
	}
	if !strings.Contains(buf.String(), "Ready to Listen") {
		t.Errorf("output = %q", buf.String())
	}
}
