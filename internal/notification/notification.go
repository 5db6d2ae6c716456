package notification

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/dooshek/murmur/internal/logger"
)

var (
	// ErrPermissionDenied is returned by Deliver when alerts are not permitted.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrDelivery wraps any failure of the platform to show a notification.
	ErrDelivery = errors.New("notification delivery failed")
)

const (
	appName    = "murmur"
	alertTitle = "⚠️ Risk Alert"
)

// Permission is the outcome of a permission request.
type Permission int

const (
	Denied Permission = iota
	Granted
)

func (p Permission) String() string {
	if p == Granted {
		return "granted"
	}
	return "denied"
}

// Urgency is the platform priority hint of a notification. Values match the
// freedesktop urgency byte.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// ParseUrgency accepts "low", "normal" and "critical"; anything else is normal.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(s) {
	case "low":
		return UrgencyLow
	case "critical", "high":
		return UrgencyCritical
	default:
		return UrgencyNormal
	}
}

type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
	Sound   bool
}

// Notifier is the capability the session needs from the OS notification
// subsystem. RequestPermission is called once at startup.
type Notifier interface {
	RequestPermission(ctx context.Context) Permission
	Deliver(ctx context.Context, n Notification) error
}

// NewRiskAlert builds the alert shown when the risk gate fires. label may
// be empty.
func NewRiskAlert(risk float64, label string, urgency Urgency) Notification {
	body := fmt.Sprintf("Risk Level: %.1f%%", risk*100)
	if label != "" {
		body += " - " + label
	}
	return Notification{
		Title:   alertTitle,
		Body:    body,
		Urgency: urgency,
		Sound:   true,
	}
}

// SilentNotifier never shows anything and reports permission as denied, so
// sessions run without alerts.
type SilentNotifier struct{}

func NewSilent() Notifier {
	return &SilentNotifier{}
}

func (s *SilentNotifier) RequestPermission(ctx context.Context) Permission { return Denied }

func (s *SilentNotifier) Deliver(ctx context.Context, n Notification) error {
	return ErrPermissionDenied
}

// New creates the notifier for backend: "auto", "dbus", "notify-send",
// "osascript" or "none".
func New(backend string) Notifier {
	logger.Debugf("Initializing notification backend %q", backend)
	switch backend {
	case "none":
		return NewSilent()
	case "osascript":
		return newDarwinNotifier()
	case "notify-send":
		return newLinuxNotifier()
	case "dbus":
		n, err := newDBusNotifier()
		if err != nil {
			logger.Error("D-Bus notifications unavailable", err)
			return NewSilent()
		}
		return n
	}

	if runtime.GOOS == "darwin" {
		logger.Debug("Using Darwin (macOS) notifier")
		return newDarwinNotifier()
	}
	if n, err := newDBusNotifier(); err == nil {
		logger.Debug("Using freedesktop D-Bus notifier")
		return n
	} else {
		logger.Debugf("D-Bus notifier unavailable, falling back to notify-send: %v", err)
	}
	return newLinuxNotifier()
}
