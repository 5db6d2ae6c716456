package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestNewRiskAlert(t *testing.T) {
	tests := []struct {
		risk  float64
		label string
		want  string
	}{
		{0.9, "scream", "Risk Level: 90.0% - scream"},
		{0.745, "", "Risk Level: 74.5%"},
		{1, "Gunshot, gunfire", "Risk Level: 100.0% - Gunshot, gunfire"},
	}

	for _, tt := range tests {
		n := NewRiskAlert(tt.risk, tt.label, UrgencyCritical)
		if n.Body != tt.want {
			t.Errorf("NewRiskAlert(%v, %q).Body = %q, want %q", tt.risk, tt.label, n.Body, tt.want)
		}
		if n.Title != alertTitle || n.Urgency != UrgencyCritical || !n.Sound {
			t.Errorf("unexpected alert %+v", n)
		}
	}
}

func TestParseUrgency(t *testing.T) {
	tests := map[string]Urgency{
		"low":      UrgencyLow,
		"normal":   UrgencyNormal,
		"critical": UrgencyCritical,
		"HIGH":     UrgencyCritical,
		"":         UrgencyNormal,
	}
	for in, want := range tests {
		if got := ParseUrgency(in); got != want {
			t.Errorf("ParseUrgency(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSilentNotifier(t *testing.T) {
	n := NewSilent()
	if p := n.RequestPermission(context.Background()); p != Denied {
		t.Errorf("permission = %v, want denied", p)
	}
	if err := n.Deliver(context.Background(), Notification{}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Deliver error = %v", err)
	}
}

func TestAppleScriptEscapes(t *testing.T) {
	got := appleScript(Notification{Title: `Say "hi"`, Body: `a\b`, Sound: true})
	want := `display notification "a\\b" with title "Say \"hi\"" sound name "Sosumi"`
	if got != want {
		t.Errorf("appleScript = %s, want %s", got, want)
	}
}

type fakeBus struct {
	calls []string
	args  [][]interface{}
	reply []interface{}
	err   error
}

func (f *fakeBus) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, method)
	f.args = append(f.args, args)
	return &dbus.Call{Method: method, Body: f.reply, Err: f.err}
}

func TestDBusNotifierDeliver(t *testing.T) {
	bus := &fakeBus{reply: []interface{}{uint32(42)}}
	n := &dbusNotifier{obj: bus}

	err := n.Deliver(context.Background(), NewRiskAlert(0.9, "scream", UrgencyCritical))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(bus.calls) != 1 || bus.calls[0] != "org.freedesktop.Notifications.Notify" {
		t.Fatalf("calls = %v", bus.calls)
	}
	args := bus.args[0]
	if args[4] != "Risk Level: 90.0% - scream" {
		t.Errorf("body arg = %v", args[4])
	}
	hints := args[6].(map[string]dbus.Variant)
	if hints["urgency"].Value() != byte(UrgencyCritical) {
		t.Errorf("urgency hint = %v", hints["urgency"])
	}
}

func TestDBusNotifierFailures(t *testing.T) {
	bus := &fakeBus{err: errors.New("org.freedesktop.DBus.Error.ServiceUnknown")}
	n := &dbusNotifier{obj: bus}

	if p := n.RequestPermission(context.Background()); p != Denied {
		t.Errorf("permission = %v, want denied", p)
	}
	err := n.Deliver(context.Background(), Notification{Title: "t", Body: "b"})
	if !errors.Is(err, ErrDelivery) {
		t.Errorf("Deliver error = %v, want ErrDelivery", err)
	}
	if !strings.Contains(err.Error(), "ServiceUnknown") {
		t.Errorf("cause missing from %v", err)
	}
}

func TestDBusNotifierPermissionGranted(t *testing.T) {
	bus := &fakeBus{reply: []interface{}{[]string{"body", "sound"}}}
	n := &dbusNotifier{obj: bus}
	if p := n.RequestPermission(context.Background()); p != Granted {
		t.Errorf("permission = %v, want granted", p)
	}
}
