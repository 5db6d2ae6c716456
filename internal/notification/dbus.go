package notification

import (
	"context"
	"fmt"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	fdoDest      = "org.freedesktop.Notifications"
	fdoPath      = "/org/freedesktop/Notifications"
	fdoInterface = "org.freedesktop.Notifications"
)

// busObject is the slice of dbus.BusObject the notifier uses.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type dbusNotifier struct {
	obj busObject
}

func newDBusNotifier() (*dbusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &dbusNotifier{obj: conn.Object(fdoDest, dbus.ObjectPath(fdoPath))}, nil
}

// RequestPermission probes the notification server. Desktop sessions have no
// per-app permission, so a reachable server counts as granted.
func (n *dbusNotifier) RequestPermission(ctx context.Context) Permission {
	var caps []string
	if err := n.obj.CallWithContext(ctx, fdoInterface+".GetCapabilities", 0).Store(&caps); err != nil {
		logger.Warnf("Notification server not reachable: %v", err)
		return Denied
	}
	logger.Debugf("Notification server capabilities: %v", caps)
	return Granted
}

func (n *dbusNotifier) Deliver(ctx context.Context, note Notification) error {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(note.Urgency)),
	}
	if note.Sound {
		hints["sound-name"] = dbus.MakeVariant("dialog-warning")
	}

	var id uint32
	err := n.obj.CallWithContext(ctx, fdoInterface+".Notify", 0,
		appName,          // app_name
		uint32(0),        // replaces_id
		"dialog-warning", // app_icon
		note.Title,
		note.Body,
		[]string{}, // actions
		hints,
		int32(-1), // expire_timeout: server default
	).Store(&id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	logger.Debugf("Delivered notification %d: %s", id, note.Body)
	return nil
}
